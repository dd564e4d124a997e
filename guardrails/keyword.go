package guardrails

import (
	"context"
	"strings"
	"unicode/utf8"
)

// DefaultModerationKeywords moderation 检查默认拦截的关键词
var DefaultModerationKeywords = []string{
	"kill yourself",
	"bomb making",
	"credit card dump",
	"child abuse",
	"hate speech",
}

// KeywordValidator 关键词拦截验证器，匹配不区分大小写
type KeywordValidator struct {
	name     string
	keywords []string
	severity string
}

// NewKeywordValidator 创建关键词验证器
func NewKeywordValidator(name string, keywords []string, severity string) *KeywordValidator {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	if severity == "" {
		severity = SeverityHigh
	}
	return &KeywordValidator{name: name, keywords: lowered, severity: severity}
}

// Name 返回验证器名称
func (v *KeywordValidator) Name() string {
	return v.name
}

// Validate 检查内容是否包含被拦截的关键词
func (v *KeywordValidator) Validate(_ context.Context, content string) (*Result, error) {
	result := &Result{}
	lower := strings.ToLower(content)
	for _, k := range v.keywords {
		if strings.Contains(lower, k) {
			result.Add(CodeBlockedKeyword, v.severity, "blocked keyword: %q", k)
		}
	}
	return result, nil
}

// LengthValidator 按字符（rune）数限制内容长度
type LengthValidator struct {
	max int
}

// NewLengthValidator 创建长度验证器
func NewLengthValidator(max int) *LengthValidator {
	return &LengthValidator{max: max}
}

// Name 返回验证器名称
func (v *LengthValidator) Name() string {
	return "length_validator"
}

// Validate 超过上限即不通过
func (v *LengthValidator) Validate(_ context.Context, content string) (*Result, error) {
	result := &Result{}
	if n := utf8.RuneCountInString(content); n > v.max {
		result.Add(CodeMaxLengthExceeded, SeverityMedium, "content length %d exceeds limit %d", n, v.max)
	}
	return result, nil
}
