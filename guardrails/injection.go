package guardrails

import (
	"context"
	"regexp"
	"strings"
)

// injectionPattern 注入检测模式
type injectionPattern struct {
	re          *regexp.Regexp
	description string
	severity    string
}

// InjectionDetector 提示注入（越狱）检测器
type InjectionDetector struct {
	patterns []injectionPattern
}

// NewInjectionDetector 创建注入检测器，extra 为附加的正则模式
func NewInjectionDetector(extra ...string) (*InjectionDetector, error) {
	d := &InjectionDetector{patterns: defaultInjectionPatterns()}
	for _, p := range extra {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		d.patterns = append(d.patterns, injectionPattern{re: re, description: "custom pattern", severity: SeverityHigh})
	}
	return d, nil
}

func defaultInjectionPatterns() []injectionPattern {
	defs := []struct {
		pattern, description, severity string
	}{
		// 英文
		{`ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts|rules)`, "instruction override", SeverityCritical},
		{`disregard\s+(all\s+)?(previous|prior|your)\s+(instructions|guidelines|rules)`, "instruction override", SeverityCritical},
		{`forget\s+(everything|all)\s+(you|that)`, "context reset", SeverityHigh},
		{`you\s+are\s+now\s+(a|an|in)\b`, "role hijack", SeverityHigh},
		{`\b(DAN|developer)\s+mode\b`, "jailbreak persona", SeverityCritical},
		{`pretend\s+(you\s+are|to\s+be)\s+.*(without|no)\s+(restrictions|limits|rules)`, "restriction bypass", SeverityCritical},
		{`(reveal|show|print)\s+(your\s+)?(system\s+prompt|hidden\s+instructions)`, "prompt extraction", SeverityHigh},
		{`jailbreak`, "jailbreak keyword", SeverityMedium},
		// 中文
		{`忽略(之前|以上|所有)(的)?(指令|提示|规则)`, "instruction override", SeverityCritical},
		{`你现在是`, "role hijack", SeverityMedium},
		{`(显示|输出)(你的)?(系统提示|系统指令)`, "prompt extraction", SeverityHigh},
	}
	patterns := make([]injectionPattern, len(defs))
	for i, def := range defs {
		patterns[i] = injectionPattern{
			re:          regexp.MustCompile("(?i)" + def.pattern),
			description: def.description,
			severity:    def.severity,
		}
	}
	return patterns
}

// Name 返回检测器名称
func (d *InjectionDetector) Name() string {
	return "injection_detector"
}

// Validate 检测提示注入
func (d *InjectionDetector) Validate(_ context.Context, content string) (*Result, error) {
	result := &Result{}
	seen := make(map[string]bool)
	for _, p := range d.patterns {
		if seen[p.description] || !p.re.MatchString(content) {
			continue
		}
		seen[p.description] = true
		result.Add(CodeInjectionDetected, p.severity, "possible prompt injection: %s", p.description)
	}
	if detectDelimiterEscape(content) {
		result.Add(CodeInjectionDetected, SeverityMedium, "possible prompt injection: delimiter escape")
	}
	return result, nil
}

// detectDelimiterEscape 检测试图伪造对话分隔符的输入
func detectDelimiterEscape(content string) bool {
	markers := []string{"<|im_start|>", "<|im_end|>", "[INST]", "[/INST]", "<<SYS>>", "### System:", "</system>"}
	lower := strings.ToLower(content)
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
