package chat

import "time"

// Role identifies who authored a turn.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleBot
}

// Turn is one persisted message of a conversation. Turns are immutable once stored.
type Turn struct {
	ID        string    `json:"-"`
	SessionID string    `json:"-"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// UserTurn builds an unsaved user turn for the session.
func UserTurn(sessionID, content string) Turn {
	return Turn{SessionID: sessionID, Role: RoleUser, Content: content}
}

// BotTurn builds an unsaved bot turn for the session.
func BotTurn(sessionID, content string) Turn {
	return Turn{SessionID: sessionID, Role: RoleBot, Content: content}
}
