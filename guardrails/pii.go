package guardrails

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// PIIType PII 类型
type PIIType string

const (
	PIITypeEmail    PIIType = "email"
	PIITypePhone    PIIType = "phone"
	PIITypeSSN      PIIType = "ssn"
	PIITypeIDCard   PIIType = "id_card"
	PIITypeBankCard PIIType = "bank_card"
)

// PIIMatch PII 匹配结果
type PIIMatch struct {
	Type     PIIType `json:"type"`
	Value    string  `json:"-"`
	Masked   string  `json:"masked"`
	Position int     `json:"position"`
}

// PIIDetector PII 检测器
type PIIDetector struct {
	patterns map[PIIType]*regexp.Regexp
	order    []PIIType
}

// NewPIIDetector 创建 PII 检测器，types 为空则启用所有类型
func NewPIIDetector(types ...PIIType) *PIIDetector {
	defaults := defaultPIIPatterns()
	if len(types) == 0 {
		types = []PIIType{PIITypeEmail, PIITypeSSN, PIITypeIDCard, PIITypeBankCard, PIITypePhone}
	}
	d := &PIIDetector{patterns: make(map[PIIType]*regexp.Regexp)}
	for _, t := range types {
		if p, ok := defaults[t]; ok {
			d.patterns[t] = p
			d.order = append(d.order, t)
		}
	}
	return d
}

func defaultPIIPatterns() map[PIIType]*regexp.Regexp {
	return map[PIIType]*regexp.Regexp{
		PIITypeEmail: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		// 美国社会安全号 123-45-6789
		PIITypeSSN: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		// 中国大陆身份证号: 18位，最后一位可能是X
		PIITypeIDCard: regexp.MustCompile(`\b[1-9]\d{5}(?:19|20)\d{2}(?:0[1-9]|1[0-2])(?:0[1-9]|[12]\d|3[01])\d{3}[\dXx]\b`),
		// 银行卡号: 16-19位数字，允许空格或短横线分组
		PIITypeBankCard: regexp.MustCompile(`\b(?:\d[ -]?){15,18}\d\b`),
		// 中国大陆手机号或带国家码的国际号码
		PIITypePhone: regexp.MustCompile(`\b1[3-9]\d{9}\b|\+\d{1,3}[ -]?\(?\d{2,4}\)?[ -]?\d{3,4}[ -]?\d{3,4}`),
	}
}

// Name 返回检测器名称
func (d *PIIDetector) Name() string {
	return "pii_detector"
}

// Validate 检测到任何 PII 即不通过，消息中只包含脱敏后的值
func (d *PIIDetector) Validate(_ context.Context, content string) (*Result, error) {
	result := &Result{}
	counts := make(map[PIIType]int)
	for _, m := range d.Detect(content) {
		counts[m.Type]++
	}
	for _, t := range d.order {
		if n := counts[t]; n > 0 {
			result.Add(CodePIIDetected, SeverityHigh, "%s detected (%d)", strings.ReplaceAll(string(t), "_", " "), n)
		}
	}
	return result, nil
}

// Detect 检测内容中的所有 PII，已被先前类型覆盖的区间不会重复计入
func (d *PIIDetector) Detect(content string) []PIIMatch {
	var matches []PIIMatch
	taken := make([]bool, len(content))

	for _, t := range d.order {
		for _, loc := range d.patterns[t].FindAllStringIndex(content, -1) {
			if overlaps(taken, loc[0], loc[1]) {
				continue
			}
			for i := loc[0]; i < loc[1]; i++ {
				taken[i] = true
			}
			value := content[loc[0]:loc[1]]
			matches = append(matches, PIIMatch{
				Type:     t,
				Value:    value,
				Masked:   maskValue(t, value),
				Position: loc[0],
			})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Position < matches[j].Position })
	return matches
}

// Mask 对内容中的 PII 进行脱敏处理
func (d *PIIDetector) Mask(content string) string {
	matches := d.Detect(content)
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(content[last:m.Position])
		b.WriteString(m.Masked)
		last = m.Position + len(m.Value)
	}
	b.WriteString(content[last:])
	return b.String()
}

func overlaps(taken []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if taken[i] {
			return true
		}
	}
	return false
}

// maskValue 根据 PII 类型对值进行脱敏
func maskValue(t PIIType, value string) string {
	switch t {
	case PIITypeEmail:
		// 保留首字符和域名
		if at := strings.Index(value, "@"); at > 0 {
			return value[:1] + "***" + value[at:]
		}
	case PIITypePhone:
		if len(value) >= 7 {
			return value[:3] + "****" + value[len(value)-4:]
		}
	case PIITypeSSN:
		return "***-**-" + value[len(value)-4:]
	case PIITypeIDCard:
		if len(value) >= 10 {
			return value[:6] + "********" + value[len(value)-4:]
		}
	case PIITypeBankCard:
		if len(value) >= 8 {
			return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
		}
	}
	return strings.Repeat("*", len(value))
}
