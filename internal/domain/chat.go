package domain

// Role identifies who produced a Turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Name is only set on user turns and
// identifies which human in a shared channel sent it.
type Turn struct {
	Role    Role
	Name    string
	Content string
}

func SystemTurn(content string) Turn {
	return Turn{Role: RoleSystem, Content: content}
}

func UserTurn(name, content string) Turn {
	return Turn{Role: RoleUser, Name: name, Content: content}
}

func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}
