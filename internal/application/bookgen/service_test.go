package bookgen

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ebook-factory-api/internal/application/bookstore"
	"ebook-factory-api/internal/domain/entity"
	"ebook-factory-api/internal/domain/repository"
	"ebook-factory-api/internal/workflow/model"
	apperrors "ebook-factory-api/pkg/errors"
)

// stubRunner 流水线替身
type stubRunner struct {
	output *model.GenerateBookOutput
	err    error
	inputs []model.GenerateBookInput
}

func (r *stubRunner) Run(_ context.Context, input model.GenerateBookInput) (*model.GenerateBookOutput, error) {
	r.inputs = append(r.inputs, input)
	if r.err != nil {
		return nil, r.err
	}
	return r.output, nil
}

type finalSink struct {
	mu      sync.Mutex
	entries []finalEntry
}

type finalEntry struct {
	runID    string
	state    string
	progress float64
}

func (s *finalSink) Publish(_ context.Context, runID, state, _ string, progress float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, finalEntry{runID: runID, state: state, progress: progress})
	return nil
}

type memBookRepo struct {
	books     map[string]*entity.Book
	createErr error
}

func (r *memBookRepo) Create(_ context.Context, book *entity.Book) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.books[book.ID] = book
	return nil
}

func (r *memBookRepo) GetByID(_ context.Context, id string) (*entity.Book, error) {
	return r.books[id], nil
}

func (r *memBookRepo) ListByOwner(_ context.Context, ownerID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Book], error) {
	return repository.NewPagedResult[*entity.Book](nil, 0, pagination), nil
}

type memAnalyticsRepo struct {
	rows map[string]*entity.UserAnalytics
}

func (r *memAnalyticsRepo) GetForUpdate(_ context.Context, ownerID string) (*entity.UserAnalytics, error) {
	if row, ok := r.rows[ownerID]; ok {
		return row, nil
	}
	row := &entity.UserAnalytics{OwnerID: ownerID}
	r.rows[ownerID] = row
	return row, nil
}

func (r *memAnalyticsRepo) Save(_ context.Context, analytics *entity.UserAnalytics) error {
	r.rows[analytics.OwnerID] = analytics
	return nil
}

func (r *memAnalyticsRepo) GetByOwner(_ context.Context, ownerID string) (*entity.UserAnalytics, error) {
	return r.rows[ownerID], nil
}

type memSalesRepo struct {
	rows map[string][]*entity.SalesProjection
}

func (r *memSalesRepo) CreateBatch(_ context.Context, rows []*entity.SalesProjection) error {
	for _, row := range rows {
		r.rows[row.BookID] = append(r.rows[row.BookID], row)
	}
	return nil
}

func (r *memSalesRepo) ListByBook(_ context.Context, bookID string) ([]*entity.SalesProjection, error) {
	return r.rows[bookID], nil
}

type directTx struct{}

func (directTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func generatedBook(owner string) *entity.Book {
	return &entity.Book{
		OwnerID: owner,
		Topic:   "Urban Beekeeping",
		Outline: &entity.Outline{
			Title:    "Urban Beekeeping",
			Chapters: []entity.ChapterPlan{{Number: 1, Title: "Getting Started"}},
		},
		Sections:  []entity.ChapterBody{{Number: 1, Title: "Getting Started", Content: "Bees need a home."}},
		WordCount: 1200,
	}
}

func newService(runner Runner, books *memBookRepo, sink *finalSink) *Service {
	store := bookstore.NewStore(
		books,
		&memAnalyticsRepo{rows: make(map[string]*entity.UserAnalytics)},
		&memSalesRepo{rows: make(map[string][]*entity.SalesProjection)},
		directTx{},
		nil,
	)
	return NewService(runner, store, sink)
}

func TestGeneratePersists(t *testing.T) {
	runner := &stubRunner{output: &model.GenerateBookOutput{Book: generatedBook("owner-1")}}
	books := &memBookRepo{books: make(map[string]*entity.Book)}
	sink := &finalSink{}
	svc := newService(runner, books, sink)

	result, err := svc.Generate(context.Background(), model.GenerateBookInput{OwnerID: "owner-1", Topic: "Urban Beekeeping"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if result.RunID == "" {
		t.Error("run id not assigned")
	}
	if result.Book.ID == "" {
		t.Error("book id not assigned before persist")
	}
	if books.books[result.Book.ID] == nil {
		t.Error("book not persisted")
	}
	if len(result.Sales) != bookstore.ProjectionMonths {
		t.Errorf("sales rows = %d, want %d", len(result.Sales), bookstore.ProjectionMonths)
	}
	for _, row := range result.Sales {
		if row.BookID != result.Book.ID {
			t.Errorf("sales row book id = %q, want %q", row.BookID, result.Book.ID)
		}
	}

	last := sink.entries[len(sink.entries)-1]
	if last.state != string(model.StatePersisted) || last.progress != 1.0 {
		t.Errorf("final progress = %+v, want PERSISTED at 1.0", last)
	}
	if last.runID != result.RunID {
		t.Errorf("progress run id = %q, want %q", last.runID, result.RunID)
	}
}

func TestGenerateKeepsProvidedRunID(t *testing.T) {
	runner := &stubRunner{output: &model.GenerateBookOutput{Book: generatedBook("owner-1")}}
	svc := newService(runner, &memBookRepo{books: make(map[string]*entity.Book)}, &finalSink{})

	result, err := svc.Generate(context.Background(), model.GenerateBookInput{
		RunID: "run-fixed", OwnerID: "owner-1", Topic: "T",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.RunID != "run-fixed" {
		t.Errorf("run id = %q, want run-fixed", result.RunID)
	}
	if runner.inputs[0].RunID != "run-fixed" {
		t.Errorf("pipeline received run id %q", runner.inputs[0].RunID)
	}
}

func TestGeneratePipelineAbortPropagates(t *testing.T) {
	runner := &stubRunner{err: apperrors.ErrEmptyTopic}
	books := &memBookRepo{books: make(map[string]*entity.Book)}
	sink := &finalSink{}
	svc := newService(runner, books, sink)

	_, err := svc.Generate(context.Background(), model.GenerateBookInput{OwnerID: "owner-1"})
	if !errors.Is(err, apperrors.ErrEmptyTopic) {
		t.Fatalf("Generate() error = %v, want ErrEmptyTopic", err)
	}
	if len(books.books) != 0 {
		t.Error("book persisted despite pipeline abort")
	}
	// 流水线自己已发布 ABORTED，服务层不再补发终态
	if len(sink.entries) != 0 {
		t.Errorf("unexpected final progress entries: %+v", sink.entries)
	}
}

func TestGenerateSaveFailureAborts(t *testing.T) {
	runner := &stubRunner{output: &model.GenerateBookOutput{Book: generatedBook("owner-1")}}
	books := &memBookRepo{books: make(map[string]*entity.Book), createErr: errors.New("db down")}
	sink := &finalSink{}
	svc := newService(runner, books, sink)

	_, err := svc.Generate(context.Background(), model.GenerateBookInput{OwnerID: "owner-1", Topic: "T"})
	if err == nil {
		t.Fatal("Generate() succeeded, want error")
	}

	if len(sink.entries) == 0 {
		t.Fatal("no final progress published")
	}
	last := sink.entries[len(sink.entries)-1]
	if last.state != string(model.StateAborted) {
		t.Errorf("final state = %s, want ABORTED", last.state)
	}
	if last.progress == 1.0 {
		t.Error("aborted run must not report full progress")
	}
}
