package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Color        string    `json:"color,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Profile is the chat identity of a user: the name and color
// their messages are rendered with.
type Profile struct {
	Id          int    `json:"id"`
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
}

type Participant struct {
	Id       int        `json:"id"`
	Name     string     `json:"name"`
	Color    string     `json:"color"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type ReplyContext struct {
	UserId         int    `json:"user_id"`
	UserName       string `json:"user_name"`
	ContentExcerpt string `json:"content"`
}

type Message struct {
	Id         string        `json:"id"`
	RoomId     string        `json:"room_id"`
	UserId     int           `json:"user_id"`
	UserName   string        `json:"user_name"`
	UserColor  string        `json:"user_color"`
	Content    string        `json:"content"`
	IsAI       bool          `json:"is_ai"`
	Timestamp  time.Time     `json:"timestamp"`
	ReplyingTo *ReplyContext `json:"replying_to,omitempty"`
}

type RoomSettings struct {
	RoomId        string     `json:"room_id"`
	IsAIMuted     bool       `json:"is_ai_muted"`
	AIMutedBy     *int       `json:"ai_muted_by,omitempty"`
	AIMutedByName *string    `json:"ai_muted_by_name,omitempty"`
	AIMutedAt     *time.Time `json:"ai_muted_at,omitempty"`
}

type Room struct {
	Id           string        `json:"id"`
	Name         string        `json:"name"`
	CreatedAt    time.Time     `json:"created_at"`
	Participants []Participant `json:"participants"`
	Messages     []Message     `json:"messages"`
	Settings     RoomSettings  `json:"settings"`
}

// RoomSummary is a directory entry for a room the user belongs to.
type RoomSummary struct {
	Id               string    `json:"id"`
	Name             string    `json:"name"`
	CreatedAt        time.Time `json:"created_at"`
	ParticipantCount int       `json:"participant_count"`
	OnlineCount      int       `json:"online_count"`
}
