package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"ebook-factory-api/internal/config"
	"ebook-factory-api/internal/domain/entity"
	"ebook-factory-api/internal/infrastructure/llm"
	"ebook-factory-api/internal/workflow/fallback"
	"ebook-factory-api/internal/workflow/model"
	"ebook-factory-api/internal/workflow/node"
	"ebook-factory-api/internal/workflow/prompt"
	apperrors "ebook-factory-api/pkg/errors"
	"ebook-factory-api/pkg/logger"
	"ebook-factory-api/pkg/metrics"
)

var tracer = otel.Tracer("pipeline")

// 各阶段完成后的累计进度；持久化完成（流水线之外）补齐到 1.0
const (
	progressOutlineDone    = 0.10
	progressIntroDone      = 0.20
	progressChaptersBudget = 0.60
	progressConclusionDone = 0.90
	progressMarketingDone  = PersistPendingProgress
)

// PersistPendingProgress 流水线产出完毕、等待落库时的进度值
const PersistPendingProgress = 0.95

// Pipeline 书籍生成流水线
// 每个阶段先走模型，失败则降级为确定性兜底内容；流水线自身永不因模型失败而中断，
// 只有前置条件不满足才会中止运行。
type Pipeline struct {
	gateways map[string]llm.Gateway
	prompts  *prompt.Registry
	genCfg   config.GenerationConfig
	llmCfg   config.LLMConfig
	sink     ProgressSink
}

// NewPipeline 创建生成流水线
// gateways 按提供商名称索引，需与 llmCfg.Providers 的键保持一致。
func NewPipeline(gateways map[string]llm.Gateway, prompts *prompt.Registry, genCfg config.GenerationConfig, llmCfg config.LLMConfig, sink ProgressSink) *Pipeline {
	if sink == nil {
		sink = NopSink{}
	}
	return &Pipeline{
		gateways: gateways,
		prompts:  prompts,
		genCfg:   genCfg,
		llmCfg:   llmCfg,
		sink:     sink,
	}
}

// run 绑定单次运行选中的提供商网关
type run struct {
	*Pipeline
	gateway     llm.Gateway
	provider    string
	providerCfg config.ProviderConfig
}

// Run 执行一次完整的生成运行
// 返回错误仅发生在前置条件不满足时；模型层面的失败体现在 FallbackStages 中。
func (p *Pipeline) Run(ctx context.Context, input model.GenerateBookInput) (*model.GenerateBookOutput, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()

	ctx = logger.WithContext(ctx, logger.RunIDKey, input.RunID)
	start := time.Now()

	input.Topic = strings.TrimSpace(input.Topic)
	if input.ChapterCount <= 0 {
		input.ChapterCount = p.genCfg.DefaultChapters
	}
	if p.genCfg.MaxChapters > 0 && input.ChapterCount > p.genCfg.MaxChapters {
		input.ChapterCount = p.genCfg.MaxChapters
	}

	tracker := newProgressTracker(input.RunID, p.sink)

	// 前置检查：任何一项不满足都不发起模型调用
	if input.Topic == "" {
		tracker.publish(ctx, model.StateAborted, "", 0)
		metrics.BookGenerationTotal.WithLabelValues("aborted").Inc()
		return nil, apperrors.ErrEmptyTopic
	}
	providerName, providerCfg, ok := p.llmCfg.Provider(input.Provider)
	if !ok {
		tracker.publish(ctx, model.StateAborted, "", 0)
		metrics.BookGenerationTotal.WithLabelValues("aborted").Inc()
		return nil, apperrors.ErrUnknownProvider
	}
	gateway := p.gateways[providerName]
	if gateway == nil || !gateway.Configured() {
		tracker.publish(ctx, model.StateAborted, "", 0)
		metrics.BookGenerationTotal.WithLabelValues("aborted").Inc()
		return nil, apperrors.ErrMissingCredential
	}
	r := &run{Pipeline: p, gateway: gateway, provider: providerName, providerCfg: providerCfg}

	output := &model.GenerateBookOutput{
		Meta: model.LLMUsageMeta{Provider: r.provider, Model: r.model(input)},
	}

	logger.Info(ctx, "generation run started",
		"topic", input.Topic,
		"niche", input.Niche,
		"chapters", input.ChapterCount,
	)

	// 阶段一：大纲
	tracker.publish(ctx, model.StateOutlining, model.StageOutline, 0)
	outline := r.runOutline(ctx, input, output)
	tracker.publish(ctx, model.StateOutlining, model.StageOutline, progressOutlineDone)

	book := &entity.Book{
		OwnerID: input.OwnerID,
		Topic:   input.Topic,
		Niche:   input.Niche,
		Outline: outline,
	}

	// 阶段二：引言
	tracker.publish(ctx, model.StateWriting, model.StageIntroduction, progressOutlineDone)
	book.Introduction = r.runIntroduction(ctx, input, outline, output)
	tracker.publish(ctx, model.StateWriting, model.StageIntroduction, progressIntroDone)

	// 阶段三：逐章正文，携带已写章节标题抑制重复
	perChapter := progressChaptersBudget / float64(len(outline.Chapters))
	priorTitles := make([]string, 0, len(outline.Chapters))
	for i, plan := range outline.Chapters {
		body := r.runChapter(ctx, input, outline, plan, priorTitles, output)
		book.Sections = append(book.Sections, body)
		priorTitles = append(priorTitles, plan.Title)
		tracker.publish(ctx, model.StateWriting, model.StageChapters, progressIntroDone+perChapter*float64(i+1))
	}

	// 阶段四：结语
	tracker.publish(ctx, model.StateConcluding, model.StageConclusion, progressIntroDone+progressChaptersBudget)
	book.Conclusion = r.runConclusion(ctx, input, outline, output)
	tracker.publish(ctx, model.StateConcluding, model.StageConclusion, progressConclusionDone)

	// 阶段五：营销物料
	tracker.publish(ctx, model.StateMarketing, model.StageMarketing, progressConclusionDone)
	book.Marketing = r.runMarketing(ctx, input, outline, output)
	tracker.publish(ctx, model.StateMarketing, model.StageMarketing, progressMarketingDone)

	book.Metadata = &entity.GenerationMetadata{
		Provider:         output.Meta.Provider,
		Model:            output.Meta.Model,
		PromptTokens:     output.Meta.PromptTokens,
		CompletionTokens: output.Meta.CompletionTokens,
		FallbackStages:   output.FallbackStages,
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	book.RecountWords()

	output.Book = book

	metrics.BookGenerationDuration.WithLabelValues("completed").Observe(time.Since(start).Seconds())
	metrics.BookGenerationTotal.WithLabelValues("completed").Inc()
	metrics.BookWordCount.Observe(float64(book.WordCount))

	logger.Info(ctx, "generation run completed",
		"word_count", book.WordCount,
		"fallback_stages", output.FallbackStages,
		"llm_calls", output.Meta.Calls,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return output, nil
}

func (r *run) model(input model.GenerateBookInput) string {
	if input.Model != "" {
		return input.Model
	}
	return r.providerCfg.Model
}

// complete 调用网关并汇总用量；失败返回 ("", false)
func (r *run) complete(ctx context.Context, id prompt.PromptID, vars map[string]string, input model.GenerateBookInput, output *model.GenerateBookOutput) (string, bool) {
	system, user, err := r.prompts.Render(id, vars)
	if err != nil {
		logger.Error(ctx, "failed to render prompt", err, "prompt_id", string(id))
		return "", false
	}

	req := &llm.CompletionRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Model:        input.Model,
		MaxTokens:    r.providerCfg.MaxTokens,
		Temperature:  r.providerCfg.Temperature,
		TopP:         r.providerCfg.TopP,
	}
	result, err := r.gateway.Send(ctx, req)
	if err != nil {
		logger.Error(ctx, "completion request rejected", err, "prompt_id", string(id))
		return "", false
	}
	if !result.Ok() {
		logger.Warn(ctx, "completion exhausted retries",
			"prompt_id", string(id),
			"kind", string(result.Failure.Kind),
			"detail", result.Failure.Detail,
		)
		return "", false
	}

	output.Meta.Add(result.Usage.PromptTokens, result.Usage.CompletionTokens)
	return result.Text, true
}

// markFallback 记录一次阶段降级
func (p *Pipeline) markFallback(ctx context.Context, stage model.Stage, output *model.GenerateBookOutput, reason string) {
	output.FallbackStages = append(output.FallbackStages, string(stage))
	metrics.StageFallbackTotal.WithLabelValues(string(stage)).Inc()
	logger.Warn(ctx, "stage degraded to fallback content", "stage", string(stage), "reason", reason)
}

func (r *run) runOutline(ctx context.Context, input model.GenerateBookInput, output *model.GenerateBookOutput) *entity.Outline {
	vars := map[string]string{
		"topic":         input.Topic,
		"niche":         nicheOrDefault(input.Niche),
		"chapter_count": strconv.Itoa(input.ChapterCount),
	}
	text, ok := r.complete(ctx, prompt.PromptOutlineV1, vars, input, output)
	if ok {
		outline, err := node.DecodeOutline(text)
		if err == nil {
			// 章节数以模型产出为准，超限时截断并重编号
			if r.genCfg.MaxChapters > 0 && len(outline.Chapters) > r.genCfg.MaxChapters {
				outline.Chapters = outline.Chapters[:r.genCfg.MaxChapters]
				outline.Renumber()
			}
			return outline
		}
		r.markFallback(ctx, model.StageOutline, output, err.Error())
		return fallback.Outline(input.Topic, input.Niche, input.ChapterCount)
	}
	r.markFallback(ctx, model.StageOutline, output, "completion failed")
	return fallback.Outline(input.Topic, input.Niche, input.ChapterCount)
}

func (r *run) runIntroduction(ctx context.Context, input model.GenerateBookInput, outline *entity.Outline, output *model.GenerateBookOutput) string {
	vars := map[string]string{
		"title":           outline.Title,
		"topic":           input.Topic,
		"description":     outline.Description,
		"target_audience": outline.TargetAudience,
		"chapter_titles":  chapterTitleList(outline),
		"word_target":     strconv.Itoa(r.genCfg.WordsPerChapter / 2),
	}
	text, ok := r.complete(ctx, prompt.PromptIntroductionV1, vars, input, output)
	if ok && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}
	r.markFallback(ctx, model.StageIntroduction, output, "completion failed")
	return fallback.Introduction(outline, input.Topic)
}

func (r *run) runChapter(ctx context.Context, input model.GenerateBookInput, outline *entity.Outline, plan entity.ChapterPlan, priorTitles []string, output *model.GenerateBookOutput) entity.ChapterBody {
	prior := "(none yet)"
	if len(priorTitles) > 0 {
		prior = "- " + strings.Join(priorTitles, "\n- ")
	}
	vars := map[string]string{
		"title":           outline.Title,
		"topic":           input.Topic,
		"chapter_number":  strconv.Itoa(plan.Number),
		"chapter_title":   plan.Title,
		"chapter_summary": plan.Summary,
		"key_points":      keyPointList(plan.KeyPoints),
		"prior_titles":    prior,
		"word_target":     strconv.Itoa(r.genCfg.WordsPerChapter),
	}
	text, ok := r.complete(ctx, prompt.PromptChapterV1, vars, input, output)
	if ok && strings.TrimSpace(text) != "" {
		return entity.ChapterBody{
			Number:  plan.Number,
			Title:   plan.Title,
			Content: strings.TrimSpace(text),
		}
	}
	r.markFallback(ctx, model.StageChapters, output, fmt.Sprintf("chapter %d completion failed", plan.Number))
	return fallback.Chapter(plan, input.Topic)
}

func (r *run) runConclusion(ctx context.Context, input model.GenerateBookInput, outline *entity.Outline, output *model.GenerateBookOutput) string {
	vars := map[string]string{
		"title":          outline.Title,
		"topic":          input.Topic,
		"chapter_titles": chapterTitleList(outline),
		"word_target":    strconv.Itoa(r.genCfg.WordsPerChapter / 2),
	}
	text, ok := r.complete(ctx, prompt.PromptConclusionV1, vars, input, output)
	if ok && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}
	r.markFallback(ctx, model.StageConclusion, output, "completion failed")
	return fallback.Conclusion(outline, input.Topic)
}

func (r *run) runMarketing(ctx context.Context, input model.GenerateBookInput, outline *entity.Outline, output *model.GenerateBookOutput) *entity.MarketingPackage {
	vars := map[string]string{
		"title":           outline.Title,
		"tagline":         outline.Tagline,
		"niche":           nicheOrDefault(input.Niche),
		"description":     outline.Description,
		"target_audience": outline.TargetAudience,
	}
	text, ok := r.complete(ctx, prompt.PromptMarketingV1, vars, input, output)
	if ok {
		pkg, err := node.DecodeMarketing(text)
		if err == nil {
			return pkg
		}
		r.markFallback(ctx, model.StageMarketing, output, err.Error())
		return fallback.Marketing(outline, input.Topic, nicheOrDefault(input.Niche))
	}
	r.markFallback(ctx, model.StageMarketing, output, "completion failed")
	return fallback.Marketing(outline, input.Topic, nicheOrDefault(input.Niche))
}

func nicheOrDefault(niche string) string {
	niche = strings.TrimSpace(niche)
	if niche == "" {
		return "general non-fiction"
	}
	return niche
}

func chapterTitleList(outline *entity.Outline) string {
	var sb strings.Builder
	for _, ch := range outline.Chapters {
		sb.WriteString(fmt.Sprintf("%d. %s\n", ch.Number, ch.Title))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func keyPointList(points []string) string {
	if len(points) == 0 {
		return "(use your judgment)"
	}
	return "- " + strings.Join(points, "\n- ")
}
