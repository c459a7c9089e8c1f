package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ebook-factory-api/internal/config"
	"ebook-factory-api/internal/infrastructure/llm"
	"ebook-factory-api/internal/workflow/model"
	"ebook-factory-api/internal/workflow/prompt"
	apperrors "ebook-factory-api/pkg/errors"
)

// stubGateway 可编排的网关替身
type stubGateway struct {
	configured bool
	respond    func(req *llm.CompletionRequest) llm.CompletionResult
	calls      int
}

func (g *stubGateway) Configured() bool { return g.configured }

func (g *stubGateway) Send(_ context.Context, req *llm.CompletionRequest) (llm.CompletionResult, error) {
	g.calls++
	if g.respond == nil {
		return llm.CompletionResult{}, errors.New("no responder configured")
	}
	return g.respond(req), nil
}

func failEverything(_ *llm.CompletionRequest) llm.CompletionResult {
	return llm.CompletionResult{Failure: &llm.Failure{Kind: llm.FailureUnknown, Detail: "stub failure"}}
}

// recordingSink 记录进度发布序列
type recordingSink struct {
	mu      sync.Mutex
	entries []progressEntry
}

type progressEntry struct {
	state    string
	stage    string
	progress float64
}

func (s *recordingSink) Publish(_ context.Context, _, state, stage string, progress float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, progressEntry{state: state, stage: stage, progress: progress})
	return nil
}

func testGenConfig() config.GenerationConfig {
	return config.GenerationConfig{
		RetryBudget:     3,
		BackoffDelay:    time.Millisecond,
		TokenFloor:      256,
		DefaultChapters: 3,
		MaxChapters:     20,
		WordsPerChapter: 400,
	}
}

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		DefaultProvider: "test",
		Providers: map[string]config.ProviderConfig{
			"test": {Model: "test-model", MaxTokens: 4096, Temperature: 0.7},
		},
	}
}

func newTestPipeline(gateway llm.Gateway, sink ProgressSink) *Pipeline {
	gateways := map[string]llm.Gateway{"test": gateway}
	return NewPipeline(gateways, prompt.NewRegistry(), testGenConfig(), testLLMConfig(), sink)
}

func TestRunAbortsWithoutCredential(t *testing.T) {
	sink := &recordingSink{}
	gw := &stubGateway{configured: false}
	p := newTestPipeline(gw, sink)

	_, err := p.Run(context.Background(), model.GenerateBookInput{RunID: "r1", OwnerID: "o1", Topic: "Gardening"})
	if !errors.Is(err, apperrors.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if gw.calls != 0 {
		t.Errorf("gateway called %d times before abort", gw.calls)
	}

	last := sink.entries[len(sink.entries)-1]
	if last.state != string(model.StateAborted) {
		t.Errorf("final state = %s, want ABORTED", last.state)
	}
}

func TestRunAbortsOnEmptyTopic(t *testing.T) {
	gw := &stubGateway{configured: true, respond: failEverything}
	p := newTestPipeline(gw, &recordingSink{})

	_, err := p.Run(context.Background(), model.GenerateBookInput{RunID: "r1", OwnerID: "o1", Topic: "   "})
	if !errors.Is(err, apperrors.ErrEmptyTopic) {
		t.Fatalf("expected ErrEmptyTopic, got %v", err)
	}
	if gw.calls != 0 {
		t.Errorf("gateway called %d times before abort", gw.calls)
	}
}

func TestRunAbortsOnUnknownProvider(t *testing.T) {
	gw := &stubGateway{configured: true, respond: failEverything}
	sink := &recordingSink{}
	p := newTestPipeline(gw, sink)

	_, err := p.Run(context.Background(), model.GenerateBookInput{
		RunID: "r1", OwnerID: "o1", Topic: "Gardening", Provider: "no-such-provider",
	})
	if !errors.Is(err, apperrors.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if gw.calls != 0 {
		t.Errorf("gateway called %d times before abort", gw.calls)
	}
	last := sink.entries[len(sink.entries)-1]
	if last.state != string(model.StateAborted) {
		t.Errorf("final state = %s, want ABORTED", last.state)
	}
}

func TestRunRoutesToRequestedProvider(t *testing.T) {
	primary := &stubGateway{configured: true, respond: failEverything}
	alternate := &stubGateway{configured: true, respond: failEverything}
	gateways := map[string]llm.Gateway{"primary": primary, "alternate": alternate}
	llmCfg := config.LLMConfig{
		DefaultProvider: "primary",
		Providers: map[string]config.ProviderConfig{
			"primary":   {Model: "primary-model", MaxTokens: 4096},
			"alternate": {Model: "alternate-model", MaxTokens: 4096},
		},
	}
	p := NewPipeline(gateways, prompt.NewRegistry(), testGenConfig(), llmCfg, nil)

	output, err := p.Run(context.Background(), model.GenerateBookInput{
		RunID: "r1", OwnerID: "o1", Topic: "Gardening", Provider: "alternate",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if primary.calls != 0 {
		t.Errorf("default gateway called %d times", primary.calls)
	}
	if alternate.calls == 0 {
		t.Error("requested gateway never called")
	}
	if output.Meta.Provider != "alternate" || output.Meta.Model != "alternate-model" {
		t.Errorf("usage meta = %+v, want alternate provider", output.Meta)
	}
}

func TestRunDegradesToCompleteBook(t *testing.T) {
	gw := &stubGateway{configured: true, respond: failEverything}
	sink := &recordingSink{}
	p := newTestPipeline(gw, sink)

	output, err := p.Run(context.Background(), model.GenerateBookInput{
		RunID: "r1", OwnerID: "o1", Topic: "Vertical Farming", ChapterCount: 4,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	book := output.Book
	if book.Outline == nil || len(book.Outline.Chapters) != 4 {
		t.Fatalf("expected 4-chapter outline, got %+v", book.Outline)
	}
	if len(book.Sections) != len(book.Outline.Chapters) {
		t.Errorf("sections %d != chapters %d", len(book.Sections), len(book.Outline.Chapters))
	}
	if strings.TrimSpace(book.Introduction) == "" {
		t.Error("introduction is empty")
	}
	if strings.TrimSpace(book.Conclusion) == "" {
		t.Error("conclusion is empty")
	}
	if book.Marketing == nil {
		t.Error("marketing package is nil")
	}
	if book.WordCount <= 0 {
		t.Errorf("word count = %d, want > 0", book.WordCount)
	}

	// 每个阶段都应记录降级：大纲/引言/4 章/结语/营销
	if len(output.FallbackStages) != 8 {
		t.Errorf("fallback stages = %v, want 8 entries", output.FallbackStages)
	}
}

func TestRunProgressMonotonic(t *testing.T) {
	gw := &stubGateway{configured: true, respond: failEverything}
	sink := &recordingSink{}
	p := newTestPipeline(gw, sink)

	_, err := p.Run(context.Background(), model.GenerateBookInput{
		RunID: "r1", OwnerID: "o1", Topic: "Topic", ChapterCount: 5,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(sink.entries) == 0 {
		t.Fatal("no progress published")
	}

	prev := -1.0
	for i, e := range sink.entries {
		if e.progress < prev {
			t.Errorf("progress regressed at entry %d: %v -> %v", i, prev, e.progress)
		}
		prev = e.progress
	}

	last := sink.entries[len(sink.entries)-1]
	if last.progress != PersistPendingProgress {
		t.Errorf("final pipeline progress = %v, want %v", last.progress, PersistPendingProgress)
	}
	if last.state != string(model.StateMarketing) {
		t.Errorf("final pipeline state = %s, want MARKETING", last.state)
	}
}

func TestRunUsesModelOutput(t *testing.T) {
	outlineJSON := `{
		"title": "Container Gardens",
		"tagline": "Grow anywhere",
		"description": "A practical guide.",
		"target_audience": "urban gardeners",
		"chapters": [
			{"number": 1, "title": "Choosing Containers", "summary": "Pots and planters."},
			{"number": 2, "title": "Soil and Drainage", "summary": "What goes in the pot."}
		]
	}`
	marketingJSON := `{
		"email_templates": ["Subject: Launch\n\nIt is out."],
		"social_posts": ["New book!"],
		"sales_page": "Buy Container Gardens today."
	}`

	gw := &stubGateway{configured: true}
	gw.respond = func(req *llm.CompletionRequest) llm.CompletionResult {
		user := req.UserPrompt
		switch {
		case strings.Contains(user, "detailed outline"):
			return llm.CompletionResult{Text: outlineJSON, Usage: llm.Usage{PromptTokens: 5, CompletionTokens: 50}}
		case strings.Contains(user, "marketing package"):
			return llm.CompletionResult{Text: marketingJSON, Usage: llm.Usage{PromptTokens: 5, CompletionTokens: 30}}
		default:
			return llm.CompletionResult{Text: "Model-written prose for this stage.", Usage: llm.Usage{PromptTokens: 5, CompletionTokens: 40}}
		}
	}

	p := newTestPipeline(gw, &recordingSink{})
	output, err := p.Run(context.Background(), model.GenerateBookInput{
		RunID: "r1", OwnerID: "o1", Topic: "Container Gardening", ChapterCount: 2,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	book := output.Book
	if book.Outline.Title != "Container Gardens" {
		t.Errorf("outline title = %q", book.Outline.Title)
	}
	if len(output.FallbackStages) != 0 {
		t.Errorf("unexpected fallbacks: %v", output.FallbackStages)
	}
	if book.Sections[0].Title != "Choosing Containers" {
		t.Errorf("section title = %q", book.Sections[0].Title)
	}
	if book.Sections[0].Content != "Model-written prose for this stage." {
		t.Errorf("section content = %q", book.Sections[0].Content)
	}
	if output.Meta.Calls != 6 {
		t.Errorf("llm calls = %d, want 6 (outline+intro+2 chapters+conclusion+marketing)", output.Meta.Calls)
	}
	if output.Meta.CompletionTokens == 0 {
		t.Error("usage not aggregated")
	}
	if book.Metadata == nil || len(book.Metadata.FallbackStages) != 0 {
		t.Errorf("metadata = %+v", book.Metadata)
	}
}

func TestRunChapterPromptsCarryPriorTitles(t *testing.T) {
	outlineJSON := `{
		"title": "T",
		"chapters": [
			{"number": 1, "title": "Alpha"},
			{"number": 2, "title": "Beta"},
			{"number": 3, "title": "Gamma"}
		]
	}`

	var chapterPrompts []string
	gw := &stubGateway{configured: true}
	gw.respond = func(req *llm.CompletionRequest) llm.CompletionResult {
		user := req.UserPrompt
		switch {
		case strings.Contains(user, "detailed outline"):
			return llm.CompletionResult{Text: outlineJSON}
		case strings.Contains(user, "do NOT repeat"):
			chapterPrompts = append(chapterPrompts, user)
			return llm.CompletionResult{Text: "chapter prose"}
		default:
			return llm.CompletionResult{Text: "prose"}
		}
	}

	p := newTestPipeline(gw, nil)
	if _, err := p.Run(context.Background(), model.GenerateBookInput{RunID: "r", OwnerID: "o", Topic: "T"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(chapterPrompts) != 3 {
		t.Fatalf("chapter prompts = %d, want 3", len(chapterPrompts))
	}
	// 只看 prior-titles 段落，提示词其余部分必然含有本章自己的标题
	priors := make([]string, len(chapterPrompts))
	for i, p := range chapterPrompts {
		priors[i] = priorTitlesBlock(t, p)
	}

	if !strings.Contains(priors[0], "(none yet)") {
		t.Error("first chapter prompt should list no prior titles")
	}
	if !strings.Contains(priors[1], "Alpha") {
		t.Error("second chapter prompt missing prior title Alpha")
	}
	if !strings.Contains(priors[2], "Alpha") || !strings.Contains(priors[2], "Beta") {
		t.Error("third chapter prompt missing prior titles")
	}
	if strings.Contains(priors[0], "Alpha") {
		t.Error("first chapter prompt leaked its own title as prior")
	}
	if strings.Contains(priors[1], "Beta") {
		t.Error("second chapter prompt leaked its own title as prior")
	}
}

// priorTitlesBlock 截取章节提示词中已写章节列表段落
func priorTitlesBlock(t *testing.T, prompt string) string {
	t.Helper()
	start := strings.Index(prompt, "Chapters already written")
	if start < 0 {
		t.Fatalf("chapter prompt missing prior-titles section: %q", prompt)
	}
	block := prompt[start:]
	if end := strings.Index(block, "Around "); end >= 0 {
		block = block[:end]
	}
	return block
}

func TestRunMalformedOutlineFallsBack(t *testing.T) {
	gw := &stubGateway{configured: true}
	gw.respond = func(req *llm.CompletionRequest) llm.CompletionResult {
		if strings.Contains(req.UserPrompt, "detailed outline") {
			return llm.CompletionResult{Text: "I cannot produce JSON right now."}
		}
		return llm.CompletionResult{Text: "prose"}
	}

	p := newTestPipeline(gw, nil)
	output, err := p.Run(context.Background(), model.GenerateBookInput{
		RunID: "r", OwnerID: "o", Topic: "Topic", ChapterCount: 3,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(output.Book.Outline.Chapters) != 3 {
		t.Errorf("fallback outline chapters = %d, want 3", len(output.Book.Outline.Chapters))
	}
	foundOutlineFallback := false
	for _, s := range output.FallbackStages {
		if s == string(model.StageOutline) {
			foundOutlineFallback = true
		}
	}
	if !foundOutlineFallback {
		t.Errorf("outline fallback not recorded: %v", output.FallbackStages)
	}
}
