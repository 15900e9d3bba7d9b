package model

import "time"

// ConversationTurn 是会话历史中的一条消息，按 (用户, 会话) 存放在 Redis。
// 助手消息额外记录引用过的资料名称，重放历史时只使用 Role 和 Content。
type ConversationTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Cited     []string  `json:"cited,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CitedNames 返回回答引用的资料名称，去重并保持顺序。
func (a *RAGAnswer) CitedNames() []string {
	seen := make(map[string]bool, len(a.Sources))
	var names []string
	for _, s := range a.Sources {
		name := s.Title
		if name == "" {
			name = s.Document
		}
		if name == "" {
			name = s.Source
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
