package chat

import "time"

// Session binds one open conversation to an assistant role and, when known,
// the authenticated user.
type Session struct {
	ID        string    `json:"id"`
	RoleID    string    `json:"roleId"`
	UserID    string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
