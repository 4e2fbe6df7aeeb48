package database

import (
	"context"
	"errors"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrNotAParticipant  = errors.New("not a participant")
	ErrRoomExists       = errors.New("room already exists")
	ErrUserExists       = errors.New("user already exists")
	ErrUnknownTopic     = errors.New("unknown topic")
	ErrMalformedPayload = errors.New("malformed event payload")
)

type GoChatRepository interface {
	Ping() error
	CreateAccount(ctx context.Context, params CreateAccountParams) (User, error)
	GetAccountById(ctx context.Context, accountId int) (User, error)
	GetAccountByEmail(ctx context.Context, email string) (User, error)
	CreateProfileIfAbsent(ctx context.Context, accountId int) (Profile, error)
	UpdateAccount(ctx context.Context, params UpdateAccountParams) (Profile, error)
	CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error)
	JoinRoom(ctx context.Context, roomId string, accountId int) error
	GetRoom(ctx context.Context, roomId string) (Room, error)
	ListRoomsForAccount(ctx context.Context, accountId int) ([]Room, error)
	GetParticipantsWithPresence(ctx context.Context, roomId string) ([]Participant, error)
	GetRoomSettings(ctx context.Context, roomId string) (RoomSettings, error)
	ToggleAIMute(ctx context.Context, roomId string, accountId int) (RoomSettings, error)
	GetMessages(ctx context.Context, roomId string, limit int) ([]Message, error)
	InsertUserMessage(ctx context.Context, params InsertUserMessageParams) (Message, error)
	InsertAIMessage(ctx context.Context, params InsertAIMessageParams) (Message, error)
	Close() error
}

var profileColors = []string{
	"#EF4444", "#F97316", "#EAB308", "#22C55E",
	"#14B8A6", "#3B82F6", "#6366F1", "#EC4899",
}

// ProfileColor picks a stable color for an account.
func ProfileColor(accountId int) string {
	if accountId < 0 {
		accountId = -accountId
	}
	return profileColors[accountId%len(profileColors)]
}
