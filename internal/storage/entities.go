package storage

import "time"

// Account roles and statuses as stored in the accounts table.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
	RoleGuest = "guest"

	StatusActive = "active"
	StatusBanned = "banned"
)

type Account struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Avatar       string    `json:"avatar"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type Message struct {
	ID        int64          `json:"id"`
	Author    string         `json:"author"`
	Avatar    string         `json:"avatar"`
	Body      string         `json:"body"`
	Sentiment float64        `json:"sentiment"`
	Reactions map[string]int `json:"reactions"`
	CreatedAt time.Time      `json:"created_at"`
}

// ModerationState is the single authoritative copy of the chat-wide
// moderation facts. UserMutes may contain entries whose deadline has
// already passed; callers compare against their own clock.
type ModerationState struct {
	ChatMuteUntil      time.Time            `json:"chat_mute_until"`
	GuestLoginDisabled bool                 `json:"guest_login_disabled"`
	UserMutes          map[string]time.Time `json:"user_mutes"`
}
