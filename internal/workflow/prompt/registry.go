// Package prompt 管理提示词模板
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	PromptOutlineV1      PromptID = "outline_v1"
	PromptIntroductionV1 PromptID = "introduction_v1"
	PromptChapterV1      PromptID = "chapter_v1"
	PromptConclusionV1   PromptID = "conclusion_v1"
	PromptMarketingV1    PromptID = "marketing_v1"
)

// pair 系统与用户提示词模板对
type pair struct {
	system string
	user   string
}

// Registry 提示词注册表，模板文件编译期内嵌、首次使用时缓存
type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]pair
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]pair),
	}
}

// Render 渲染指定模板，vars 中的值按 {name} 占位符替换
func (r *Registry) Render(id PromptID, vars map[string]string) (system string, user string, err error) {
	if r == nil {
		return "", "", fmt.Errorf("prompt registry is nil")
	}

	tpl, err := r.template(id)
	if err != nil {
		return "", "", err
	}
	return substitute(tpl.system, vars), substitute(tpl.user, vars), nil
}

func (r *Registry) template(id PromptID) (pair, error) {
	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	systemPath, userPath, err := resolvePromptFiles(id)
	if err != nil {
		return pair{}, err
	}
	system, err := readEmbeddedText(systemPath)
	if err != nil {
		return pair{}, err
	}
	user, err := readEmbeddedText(userPath)
	if err != nil {
		return pair{}, err
	}

	tpl := pair{system: system, user: user}
	r.cache[id] = tpl
	return tpl, nil
}

func resolvePromptFiles(id PromptID) (systemFile string, userFile string, err error) {
	switch id {
	case PromptOutlineV1:
		return "templates/outline_v1.system.txt", "templates/outline_v1.user.txt", nil
	case PromptIntroductionV1:
		return "templates/introduction_v1.system.txt", "templates/introduction_v1.user.txt", nil
	case PromptChapterV1:
		return "templates/chapter_v1.system.txt", "templates/chapter_v1.user.txt", nil
	case PromptConclusionV1:
		return "templates/conclusion_v1.system.txt", "templates/conclusion_v1.user.txt", nil
	case PromptMarketingV1:
		return "templates/marketing_v1.system.txt", "templates/marketing_v1.user.txt", nil
	default:
		return "", "", fmt.Errorf("unknown prompt id: %s", id)
	}
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// substitute 替换模板中的 {name} 占位符；未提供的占位符原样保留
func substitute(tpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
