package guardrails

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow"
)

// Config guardrail 检查配置
type Config struct {
	// BlockedKeywords 覆盖 moderation 默认关键词
	BlockedKeywords []string `yaml:"blocked_keywords" env:"BLOCKED_KEYWORDS"`
	// CustomKeywords custom 检查使用的关键词
	CustomKeywords []string `yaml:"custom_keywords" env:"CUSTOM_KEYWORDS"`
	// CustomPatterns 追加到 jailbreak 检查的正则
	CustomPatterns []string `yaml:"custom_patterns" env:"CUSTOM_PATTERNS"`
	// MaxLength max-length 检查的字符上限
	MaxLength int `yaml:"max_length" env:"MAX_LENGTH"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BlockedKeywords: DefaultModerationKeywords,
		MaxLength:       4000,
	}
}

// Checker 按 GuardrailType 分发到对应验证器，实现 workflow.GuardrailChecker
type Checker struct {
	validators map[workflow.GuardrailType]Validator
	pii        *PIIDetector
	logger     *zap.Logger
}

// NewChecker 创建检查器
func NewChecker(cfg Config, logger *zap.Logger) (*Checker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.BlockedKeywords == nil {
		cfg.BlockedKeywords = def.BlockedKeywords
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = def.MaxLength
	}

	injection, err := NewInjectionDetector(cfg.CustomPatterns...)
	if err != nil {
		return nil, types.WrapError(err, types.ErrInvalidRequest, "invalid custom guardrail pattern")
	}
	pii := NewPIIDetector()

	return &Checker{
		validators: map[workflow.GuardrailType]Validator{
			workflow.GuardrailJailbreak:  injection,
			workflow.GuardrailPII:        pii,
			workflow.GuardrailModeration: NewKeywordValidator("moderation", cfg.BlockedKeywords, SeverityHigh),
			workflow.GuardrailMaxLength:  NewLengthValidator(cfg.MaxLength),
			workflow.GuardrailCustom:     NewKeywordValidator("custom", cfg.CustomKeywords, SeverityMedium),
		},
		pii:    pii,
		logger: logger.With(zap.String("component", "guardrails")),
	}, nil
}

// Check 运行指定类型的检查
func (c *Checker) Check(ctx context.Context, guardrailType workflow.GuardrailType, content string) (workflow.GuardrailVerdict, error) {
	v, ok := c.validators[guardrailType]
	if !ok {
		return workflow.GuardrailVerdict{}, types.Errorf(types.ErrInvalidRequest, "unknown guardrail type: %s", guardrailType)
	}

	result, err := v.Validate(ctx, content)
	if err != nil {
		return workflow.GuardrailVerdict{}, fmt.Errorf("%s: %w", v.Name(), err)
	}

	verdict := workflow.GuardrailVerdict{Passed: result.Passed()}
	if !verdict.Passed {
		verdict.Reason = result.Reason()
		for _, f := range result.Findings {
			verdict.Findings = append(verdict.Findings, f.Code+": "+f.Message)
		}
		// PII 发现附带脱敏后的值，便于审计日志定位
		if guardrailType == workflow.GuardrailPII {
			for _, m := range c.pii.Detect(content) {
				verdict.Findings = append(verdict.Findings, string(m.Type)+": "+m.Masked)
			}
		}
		c.logger.Info("guardrail tripped",
			zap.String("type", string(guardrailType)),
			zap.String("severity", result.Highest()),
			zap.Int("findings", len(result.Findings)),
		)
	}
	return verdict, nil
}

// Mask 对内容进行 PII 脱敏
func (c *Checker) Mask(content string) string {
	return c.pii.Mask(content)
}
