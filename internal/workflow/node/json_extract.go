// Package node 提供工作流节点的文本处理工具
package node

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject 尝试从模型输出中截取第一个完整 JSON 对象。
// 这是一个容错逻辑：模型可能会在 JSON 前后夹杂多余文本或 Markdown 代码栅栏。
// 截取失败（找不到平衡的对象或无法通过语法校验）时返回空串。
func ExtractJSONObject(s string) string {
	raw := StripCodeFences(s)
	if raw == "" {
		return ""
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	raw = raw[start : end+1]

	// 语法校验：整段必须是一个合法 JSON 值，防止调用方拿到半截对象。
	if !json.Valid([]byte(raw)) {
		return ""
	}
	return raw
}

// StripCodeFences 去掉包裹输出的 Markdown 代码栅栏（``` 或 ```json）
func StripCodeFences(s string) string {
	raw := strings.TrimSpace(s)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}

	raw = strings.TrimPrefix(raw, "```")
	// 栅栏可带语言标签，如 ```json
	if idx := strings.Index(raw, "\n"); idx >= 0 {
		firstLine := strings.TrimSpace(raw[:idx])
		if firstLine == "" || isFenceLanguage(firstLine) {
			raw = raw[idx+1:]
		}
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}

func isFenceLanguage(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
