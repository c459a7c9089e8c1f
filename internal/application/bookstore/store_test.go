package bookstore

import (
	"context"
	"errors"
	"math"
	"testing"

	"ebook-factory-api/internal/domain/entity"
	"ebook-factory-api/internal/domain/repository"
	"ebook-factory-api/internal/infrastructure/persistence/redis"
	apperrors "ebook-factory-api/pkg/errors"
)

type fakeBookRepo struct {
	books     map[string]*entity.Book
	createErr error
}

func newFakeBookRepo() *fakeBookRepo {
	return &fakeBookRepo{books: make(map[string]*entity.Book)}
}

func (r *fakeBookRepo) Create(_ context.Context, book *entity.Book) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.books[book.ID] = book
	return nil
}

func (r *fakeBookRepo) GetByID(_ context.Context, id string) (*entity.Book, error) {
	return r.books[id], nil
}

func (r *fakeBookRepo) ListByOwner(_ context.Context, ownerID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Book], error) {
	var items []*entity.Book
	for _, b := range r.books {
		if b.OwnerID == ownerID {
			items = append(items, b)
		}
	}
	return repository.NewPagedResult(items, int64(len(items)), pagination), nil
}

type fakeAnalyticsRepo struct {
	rows    map[string]*entity.UserAnalytics
	saveErr error
}

func newFakeAnalyticsRepo() *fakeAnalyticsRepo {
	return &fakeAnalyticsRepo{rows: make(map[string]*entity.UserAnalytics)}
}

func (r *fakeAnalyticsRepo) GetForUpdate(_ context.Context, ownerID string) (*entity.UserAnalytics, error) {
	if row, ok := r.rows[ownerID]; ok {
		copied := *row
		return &copied, nil
	}
	return &entity.UserAnalytics{OwnerID: ownerID}, nil
}

func (r *fakeAnalyticsRepo) Save(_ context.Context, analytics *entity.UserAnalytics) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	copied := *analytics
	r.rows[analytics.OwnerID] = &copied
	return nil
}

func (r *fakeAnalyticsRepo) GetByOwner(_ context.Context, ownerID string) (*entity.UserAnalytics, error) {
	return r.rows[ownerID], nil
}

type fakeSalesRepo struct {
	rows      map[string][]*entity.SalesProjection
	createErr error
}

func newFakeSalesRepo() *fakeSalesRepo {
	return &fakeSalesRepo{rows: make(map[string][]*entity.SalesProjection)}
}

func (r *fakeSalesRepo) CreateBatch(_ context.Context, rows []*entity.SalesProjection) error {
	if r.createErr != nil {
		return r.createErr
	}
	for _, row := range rows {
		r.rows[row.BookID] = append(r.rows[row.BookID], row)
	}
	return nil
}

func (r *fakeSalesRepo) ListByBook(_ context.Context, bookID string) ([]*entity.SalesProjection, error) {
	return r.rows[bookID], nil
}

// passthroughTx 直通事务替身，失败时标记回滚
type passthroughTx struct {
	began      int
	rolledBack int
}

func (t *passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.began++
	if err := fn(ctx); err != nil {
		t.rolledBack++
		return err
	}
	return nil
}

type recordingCache struct {
	deleted []string
	err     error
}

func (c *recordingCache) Delete(_ context.Context, keys ...string) error {
	c.deleted = append(c.deleted, keys...)
	return c.err
}

type storeFixture struct {
	store     *Store
	books     *fakeBookRepo
	analytics *fakeAnalyticsRepo
	sales     *fakeSalesRepo
	tx        *passthroughTx
	cache     *recordingCache
}

func newStoreFixture() *storeFixture {
	f := &storeFixture{
		books:     newFakeBookRepo(),
		analytics: newFakeAnalyticsRepo(),
		sales:     newFakeSalesRepo(),
		tx:        &passthroughTx{},
		cache:     &recordingCache{},
	}
	f.store = NewStore(f.books, f.analytics, f.sales, f.tx, f.cache)
	return f
}

func testBook(id, owner string, words int) *entity.Book {
	return &entity.Book{ID: id, OwnerID: owner, Topic: "Topic", WordCount: words}
}

func TestStoreSave(t *testing.T) {
	f := newStoreFixture()
	ctx := context.Background()

	book := testBook("b-1", "owner-1", 5000)
	rows := []*entity.SalesProjection{
		{BookID: "b-1", Month: 1, Units: 10, Revenue: 99.9},
		{BookID: "b-1", Month: 2, Units: 5, Revenue: 49.95},
	}

	if err := f.store.Save(ctx, book, rows); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if f.books.books["b-1"] == nil {
		t.Error("book was not persisted")
	}
	if len(f.sales.rows["b-1"]) != 2 {
		t.Errorf("sales rows = %d, want 2", len(f.sales.rows["b-1"]))
	}

	analytics := f.analytics.rows["owner-1"]
	if analytics == nil {
		t.Fatal("analytics row was not created")
	}
	if analytics.TotalBooks != 1 || analytics.TotalWords != 5000 {
		t.Errorf("analytics = %+v", analytics)
	}
	if math.Abs(analytics.EstimatedEarnings-(99.9+49.95)) > 1e-9 {
		t.Errorf("estimated earnings = %v, want %v", analytics.EstimatedEarnings, 99.9+49.95)
	}
	if analytics.LastActive.IsZero() {
		t.Error("last active not set")
	}

	// 失效键必须与读路径使用的键构造保持一致
	if len(f.cache.deleted) != 1 || f.cache.deleted[0] != redis.BuildAnalyticsKey("owner-1") {
		t.Errorf("cache invalidation keys = %v, want [%s]", f.cache.deleted, redis.BuildAnalyticsKey("owner-1"))
	}
	if redis.BuildAnalyticsKey("owner-1") != "analytics:owner-1" {
		t.Errorf("analytics cache key = %s", redis.BuildAnalyticsKey("owner-1"))
	}
}

func TestStoreSaveAccumulatesAnalytics(t *testing.T) {
	f := newStoreFixture()
	ctx := context.Background()

	if err := f.store.Save(ctx, testBook("b-1", "owner-1", 3000), []*entity.SalesProjection{{BookID: "b-1", Revenue: 100}}); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	if err := f.store.Save(ctx, testBook("b-2", "owner-1", 4000), []*entity.SalesProjection{{BookID: "b-2", Revenue: 200}}); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	analytics := f.analytics.rows["owner-1"]
	if analytics.TotalBooks != 2 {
		t.Errorf("total books = %d, want 2", analytics.TotalBooks)
	}
	if analytics.TotalWords != 7000 {
		t.Errorf("total words = %d, want 7000", analytics.TotalWords)
	}
	if analytics.EstimatedEarnings != 300 {
		t.Errorf("estimated earnings = %v, want 300", analytics.EstimatedEarnings)
	}
}

func TestStoreSaveRollsBackOnFailure(t *testing.T) {
	boom := errors.New("insert failed")

	cases := []struct {
		name    string
		corrupt func(f *storeFixture)
	}{
		{"book create fails", func(f *storeFixture) { f.books.createErr = boom }},
		{"sales batch fails", func(f *storeFixture) { f.sales.createErr = boom }},
		{"analytics save fails", func(f *storeFixture) { f.analytics.saveErr = boom }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newStoreFixture()
			tc.corrupt(f)

			err := f.store.Save(context.Background(), testBook("b-1", "owner-1", 100), nil)
			if err == nil {
				t.Fatal("Save() succeeded, want error")
			}
			appErr := apperrors.AsAppError(err)
			if appErr == nil || appErr.Code != apperrors.CodeDatabaseError {
				t.Errorf("error = %v, want database error code", err)
			}
			if f.tx.rolledBack != 1 {
				t.Errorf("rollbacks = %d, want 1", f.tx.rolledBack)
			}
			if len(f.cache.deleted) != 0 {
				t.Errorf("cache invalidated on failed save: %v", f.cache.deleted)
			}
		})
	}
}

func TestStoreSaveCacheFailureIsNotFatal(t *testing.T) {
	f := newStoreFixture()
	f.cache.err = errors.New("redis down")

	if err := f.store.Save(context.Background(), testBook("b-1", "owner-1", 100), nil); err != nil {
		t.Fatalf("Save() error = %v, cache failure must not propagate", err)
	}
}

func TestStoreSaveNilBook(t *testing.T) {
	f := newStoreFixture()
	if err := f.store.Save(context.Background(), nil, nil); err == nil {
		t.Fatal("Save(nil) succeeded, want error")
	}
	if f.tx.began != 0 {
		t.Error("transaction started for nil book")
	}
}

func TestStoreGetBook(t *testing.T) {
	f := newStoreFixture()
	ctx := context.Background()
	f.books.books["b-1"] = testBook("b-1", "owner-1", 100)

	book, err := f.store.GetBook(ctx, "b-1")
	if err != nil {
		t.Fatalf("GetBook() error = %v", err)
	}
	if book.ID != "b-1" {
		t.Errorf("book id = %q", book.ID)
	}

	if _, err := f.store.GetBook(ctx, "missing"); !errors.Is(err, apperrors.ErrBookNotFound) {
		t.Errorf("GetBook(missing) error = %v, want ErrBookNotFound", err)
	}
}

func TestStoreGetSales(t *testing.T) {
	f := newStoreFixture()
	ctx := context.Background()
	f.books.books["b-1"] = testBook("b-1", "owner-1", 100)
	f.sales.rows["b-1"] = []*entity.SalesProjection{{BookID: "b-1", Month: 1}}

	rows, err := f.store.GetSales(ctx, "b-1")
	if err != nil {
		t.Fatalf("GetSales() error = %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("rows = %d, want 1", len(rows))
	}

	if _, err := f.store.GetSales(ctx, "missing"); !errors.Is(err, apperrors.ErrBookNotFound) {
		t.Errorf("GetSales(missing) error = %v, want ErrBookNotFound", err)
	}
}

func TestStoreGetAnalyticsZeroValue(t *testing.T) {
	f := newStoreFixture()

	analytics, err := f.store.GetAnalytics(context.Background(), "fresh-owner")
	if err != nil {
		t.Fatalf("GetAnalytics() error = %v", err)
	}
	if analytics.OwnerID != "fresh-owner" {
		t.Errorf("owner id = %q", analytics.OwnerID)
	}
	if analytics.TotalBooks != 0 || analytics.TotalWords != 0 || analytics.EstimatedEarnings != 0 {
		t.Errorf("expected zero-value analytics, got %+v", analytics)
	}
}
