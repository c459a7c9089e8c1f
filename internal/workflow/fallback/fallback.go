// Package fallback 提供各生成阶段的确定性兜底内容。
// 兜底内容纯由输入推导，不做任何网络调用，保证流水线在模型完全不可用时仍能产出结构完整的书稿。
package fallback

import (
	"fmt"
	"strings"

	"ebook-factory-api/internal/domain/entity"
)

// chapterAngles 兜底大纲的章节切入角度，按顺序循环使用
var chapterAngles = []struct {
	title   string
	summary string
}{
	{"Understanding %s", "Lays the groundwork: what %s is, why it matters, and the core concepts the rest of the book builds on."},
	{"Getting Started with %s", "Walks through the first practical steps, common beginner mistakes, and how to avoid them."},
	{"Core Strategies for %s", "Covers the proven strategies practitioners rely on, with guidance on choosing between them."},
	{"Advanced Techniques in %s", "Goes beyond the basics into techniques that separate competent practitioners from experts."},
	{"Common Pitfalls in %s", "Examines the failure modes people run into and the habits that prevent them."},
	{"Tools and Resources for %s", "Surveys the tools, communities, and resources worth the reader's time."},
	{"Measuring Progress in %s", "Shows how to set benchmarks, track improvement, and course-correct."},
	{"The Future of %s", "Looks at where the field is heading and how to stay ahead of the curve."},
}

// Outline 合成一份满足全部大纲不变式的兜底大纲
func Outline(topic, niche string, chapterCount int) *entity.Outline {
	if chapterCount < 1 {
		chapterCount = 1
	}

	display := strings.TrimSpace(topic)
	chapters := make([]entity.ChapterPlan, 0, chapterCount)
	for i := 0; i < chapterCount; i++ {
		angle := chapterAngles[i%len(chapterAngles)]
		title := fmt.Sprintf(angle.title, display)
		// 角度用尽后追加序号保证标题互不相同
		if i >= len(chapterAngles) {
			title = fmt.Sprintf("%s, Part %d", title, i/len(chapterAngles)+1)
		}
		chapters = append(chapters, entity.ChapterPlan{
			Number:  i + 1,
			Title:   title,
			Summary: fmt.Sprintf(angle.summary, display),
			KeyPoints: []string{
				fmt.Sprintf("Key ideas behind %s", strings.ToLower(title)),
				"Practical steps the reader can apply immediately",
				"Examples that ground the concepts",
			},
		})
	}

	audience := "readers who want a practical, no-fluff guide"
	if strings.TrimSpace(niche) != "" {
		audience = fmt.Sprintf("readers in the %s space who want a practical, no-fluff guide", strings.TrimSpace(niche))
	}

	return &entity.Outline{
		Title:          fmt.Sprintf("The Complete Guide to %s", display),
		Subtitle:       fmt.Sprintf("A Practical Handbook for Mastering %s", display),
		Tagline:        fmt.Sprintf("Everything you need to know about %s, in one place", display),
		Description:    fmt.Sprintf("This book takes you from the fundamentals of %s through advanced techniques, with practical steps you can apply from the first chapter.", display),
		TargetAudience: audience,
		Chapters:       chapters,
	}
}

// Introduction 合成兜底引言
func Introduction(outline *entity.Outline, topic string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Welcome to %s. ", outline.Title))
	sb.WriteString(fmt.Sprintf("This book exists for one reason: to give you a clear, practical path through %s without the noise that usually surrounds it.\n\n", topic))
	sb.WriteString(fmt.Sprintf("Over the next %d chapters you will move from the fundamentals to the techniques practitioners actually use. ", len(outline.Chapters)))
	sb.WriteString("Each chapter builds on the one before it, so the ideas compound rather than pile up.\n\n")
	sb.WriteString("You do not need any special background to start. What you need is the willingness to apply what you read, chapter by chapter. Let's begin.")
	return sb.String()
}

// Chapter 合成一章兜底正文，正文始终非空
func Chapter(plan entity.ChapterPlan, topic string) entity.ChapterBody {
	var sb strings.Builder
	summary := strings.TrimSpace(plan.Summary)
	if summary == "" {
		summary = fmt.Sprintf("This chapter covers an essential aspect of %s.", topic)
	}
	sb.WriteString(summary)
	sb.WriteString("\n\n")

	if len(plan.KeyPoints) > 0 {
		sb.WriteString("The core ideas of this chapter:\n\n")
		for _, point := range plan.KeyPoints {
			sb.WriteString(fmt.Sprintf("First, %s. This matters because it shapes every decision that follows: skipping it is the most common reason progress stalls.\n\n", strings.TrimRight(point, ".")))
		}
	}

	for _, section := range plan.Sections {
		sb.WriteString(fmt.Sprintf("%s. ", section.Title))
		if len(section.KeyPoints) > 0 {
			sb.WriteString(strings.Join(section.KeyPoints, ". "))
			sb.WriteString(". ")
		}
		sb.WriteString("\n\n")
	}

	sb.WriteString(fmt.Sprintf("Take the ideas from this chapter and put them into practice before moving on. The next chapter assumes you have, and builds directly on what you learned about %s here.", topic))

	return entity.ChapterBody{
		Number:  plan.Number,
		Title:   plan.Title,
		Content: sb.String(),
	}
}

// Conclusion 合成兜底结语
func Conclusion(outline *entity.Outline, topic string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You have reached the end of %s, and that puts you ahead of most people who set out to learn %s. ", outline.Title, topic))
	sb.WriteString("The chapters you worked through form a complete foundation: understanding, practice, strategy, and the judgment to know which applies when.\n\n")
	sb.WriteString("Knowledge that is not applied fades quickly. Pick the one idea from this book that struck you most, and act on it this week. ")
	sb.WriteString("Then come back to the chapters that matter most for where you are. This book was written to be reread, not shelved.")
	return sb.String()
}

// Marketing 合成兜底营销物料包
func Marketing(outline *entity.Outline, topic, niche string) *entity.MarketingPackage {
	title := outline.Title
	audience := outline.TargetAudience
	if audience == "" {
		audience = "readers serious about " + topic
	}

	return &entity.MarketingPackage{
		EmailTemplates: []string{
			fmt.Sprintf("Subject: %s is here\n\nIt's live. %s is the guide I wish existed when I started with %s. %s Grab your copy today.", title, title, topic, outline.Description),
			fmt.Sprintf("Subject: The one thing most people get wrong about %s\n\nMost advice on %s skips the fundamentals and jumps straight to tactics. %s takes the opposite approach. See the full chapter list inside.", topic, topic, title),
			fmt.Sprintf("Subject: Last chance to start %s the right way\n\nThe launch window for %s closes soon. If %s has been on your list, this is the moment to start.", topic, title, topic),
		},
		SocialPosts: []string{
			fmt.Sprintf("New ebook: %s. %s", title, outline.Tagline),
			fmt.Sprintf("Spent months distilling everything I know about %s into one book. %s is out now.", topic, title),
			fmt.Sprintf("If you're in %s and %s still feels overwhelming, %s was written for you.", niche, topic, title),
			fmt.Sprintf("%d chapters, zero filler. %s covers %s end to end.", len(outline.Chapters), title, topic),
			fmt.Sprintf("The question I get asked most about %s now has a book-length answer: %s.", topic, title),
		},
		SalesPage: fmt.Sprintf(
			"%s\n%s\n\n%s\n\nWho this book is for: %s\n\nWhat's inside:\n%s\nStart reading today and take the guesswork out of %s.",
			title, outline.Subtitle, outline.Description, audience, chapterList(outline), topic,
		),
	}
}

func chapterList(outline *entity.Outline) string {
	var sb strings.Builder
	for _, ch := range outline.Chapters {
		sb.WriteString(fmt.Sprintf("Chapter %d: %s\n", ch.Number, ch.Title))
	}
	return sb.String()
}
