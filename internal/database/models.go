package database

import (
	"encoding/json"
	"time"
)

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Profile struct {
	AccountId   int
	DisplayName string
	Color       string
}

type Room struct {
	Id        string
	Name      string
	CreatedBy int
	CreatedAt time.Time
}

// Participant is a room member together with the time of their
// most recent non-AI message in the room, if any.
type Participant struct {
	AccountId   int
	DisplayName string
	Color       string
	LastSeen    *time.Time
}

type RoomSettings struct {
	RoomId        string
	IsAIMuted     bool
	AIMutedBy     *int
	AIMutedByName *string
	AIMutedAt     *time.Time
}

type ReplyContext struct {
	UserId   int    `json:"user_id"`
	UserName string `json:"user_name"`
	Content  string `json:"content"`
}

type Message struct {
	Id         string
	RoomId     string
	AccountId  *int
	UserName   string
	UserColor  string
	Content    string
	IsAI       bool
	ReplyingTo *ReplyContext
	CreatedAt  time.Time
}

// MessageRecord is the JSON shape of a messages row as carried in
// change event payloads. ReplyingTo is left raw because producers
// emit it either as an object or as a JSON-encoded string.
type MessageRecord struct {
	Id         string          `json:"id"`
	RoomId     string          `json:"room_id"`
	AccountId  *int            `json:"account_id"`
	UserName   string          `json:"user_name"`
	UserColor  string          `json:"user_color"`
	Content    string          `json:"content"`
	IsAI       bool            `json:"is_ai"`
	ReplyingTo json.RawMessage `json:"replying_to,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

// UpdateAccountParams changes the fields that are not empty.
type UpdateAccountParams struct {
	AccountId    int
	DisplayName  string
	PasswordHash string
}

type CreateRoomParams struct {
	Id        string
	Name      string
	CreatorId int
}

type InsertUserMessageParams struct {
	RoomId    string
	AccountId int
	UserName  string
	UserColor string
	Content   string
}

type InsertAIMessageParams struct {
	RoomId      string
	Content     string
	AuthorName  string
	AuthorColor string
	ReplyingTo  *ReplyContext
}

func NewMessageRecord(msg Message) MessageRecord {
	rec := MessageRecord{
		Id:        msg.Id,
		RoomId:    msg.RoomId,
		AccountId: msg.AccountId,
		UserName:  msg.UserName,
		UserColor: msg.UserColor,
		Content:   msg.Content,
		IsAI:      msg.IsAI,
		CreatedAt: msg.CreatedAt,
	}
	if msg.ReplyingTo != nil {
		if raw, err := json.Marshal(msg.ReplyingTo); err == nil {
			rec.ReplyingTo = raw
		}
	}
	return rec
}
