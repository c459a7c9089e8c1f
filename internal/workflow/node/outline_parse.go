package node

import (
	"encoding/json"
	"fmt"
	"strings"

	"ebook-factory-api/internal/domain/entity"
)

// DecodeOutline 从模型输出中解析书籍大纲。
// 先做容错截取，再严格反序列化，最后规整章节编号并校验不变式。
func DecodeOutline(raw string) (*entity.Outline, error) {
	extracted := ExtractJSONObject(raw)
	if extracted == "" {
		return nil, fmt.Errorf("no json object found in output")
	}

	var outline entity.Outline
	if err := json.Unmarshal([]byte(extracted), &outline); err != nil {
		return nil, fmt.Errorf("failed to decode outline: %w", err)
	}

	// 模型经常把章节编号写错或写成 0 起始，规整后再校验
	outline.Renumber()
	if err := outline.Validate(); err != nil {
		return nil, fmt.Errorf("invalid outline: %w", err)
	}
	return &outline, nil
}

// DecodeMarketing 从模型输出中解析营销物料包
func DecodeMarketing(raw string) (*entity.MarketingPackage, error) {
	extracted := ExtractJSONObject(raw)
	if extracted == "" {
		return nil, fmt.Errorf("no json object found in output")
	}

	var pkg entity.MarketingPackage
	if err := json.Unmarshal([]byte(extracted), &pkg); err != nil {
		return nil, fmt.Errorf("failed to decode marketing package: %w", err)
	}
	if len(pkg.EmailTemplates) == 0 && len(pkg.SocialPosts) == 0 && strings.TrimSpace(pkg.SalesPage) == "" {
		return nil, fmt.Errorf("marketing package is empty")
	}
	return &pkg, nil
}
