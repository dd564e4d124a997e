// Package guardrails 实现 guardrail 节点使用的内容检查。
package guardrails

import (
	"context"
	"fmt"
	"strings"
)

// Validator 检查一段内容并给出结果
type Validator interface {
	Name() string
	Validate(ctx context.Context, content string) (*Result, error)
}

// Severity 常量定义
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// 检查发现的代码
const (
	CodeInjectionDetected = "INJECTION_DETECTED"
	CodePIIDetected       = "PII_DETECTED"
	CodeMaxLengthExceeded = "MAX_LENGTH_EXCEEDED"
	CodeBlockedKeyword    = "BLOCKED_KEYWORD"
)

// Finding 单条检查发现
type Finding struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Result 检查结果，存在任一 Finding 即视为未通过
type Result struct {
	Findings []Finding `json:"findings,omitempty"`
}

// Passed 是否通过检查
func (r *Result) Passed() bool {
	return len(r.Findings) == 0
}

// Add 追加一条发现
func (r *Result) Add(code, severity, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{
		Code:     code,
		Severity: severity,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Highest 返回最高严重级别，没有发现时返回空串
func (r *Result) Highest() string {
	highest := ""
	for _, f := range r.Findings {
		if compareSeverity(f.Severity, highest) > 0 {
			highest = f.Severity
		}
	}
	return highest
}

// Reason 汇总所有发现的消息
func (r *Result) Reason() string {
	msgs := make([]string, len(r.Findings))
	for i, f := range r.Findings {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// compareSeverity 比较两个严重级别
// 返回: >0 如果 a > b, <0 如果 a < b, 0 如果相等
func compareSeverity(a, b string) int {
	order := map[string]int{
		SeverityLow:      1,
		SeverityMedium:   2,
		SeverityHigh:     3,
		SeverityCritical: 4,
	}
	return order[a] - order[b]
}
