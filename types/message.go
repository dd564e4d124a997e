package types

import "time"

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of an execution's conversation. Name carries the id
// of the agent node that produced an assistant message.
type Message struct {
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Name      string    `json:"name,omitempty" yaml:"name,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

func newMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

// NewUserMessage 创建用户消息
func NewUserMessage(content string) Message { return newMessage(RoleUser, content) }

// NewAssistantMessage 创建助手消息
func NewAssistantMessage(content string) Message { return newMessage(RoleAssistant, content) }

// LastContent returns the content of the most recent message; conditions and
// guardrails read it as the "current" text of a run.
func LastContent(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	return messages[len(messages)-1].Content
}
