package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockGoChatRepository struct {
	mock.Mock
}

func (m *MockGoChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockGoChatRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockGoChatRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetAccountById(ctx context.Context, accountId int) (User, error) {
	args := m.Called(ctx, accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) CreateProfileIfAbsent(ctx context.Context, accountId int) (Profile, error) {
	args := m.Called(ctx, accountId)
	return args.Get(0).(Profile), args.Error(1)
}
func (m *MockGoChatRepository) UpdateAccount(ctx context.Context, params UpdateAccountParams) (Profile, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Profile), args.Error(1)
}
func (m *MockGoChatRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGoChatRepository) JoinRoom(ctx context.Context, roomId string, accountId int) error {
	args := m.Called(ctx, roomId, accountId)
	return args.Error(0)
}
func (m *MockGoChatRepository) GetRoom(ctx context.Context, roomId string) (Room, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGoChatRepository) ListRoomsForAccount(ctx context.Context, accountId int) ([]Room, error) {
	args := m.Called(ctx, accountId)
	if rooms, ok := args.Get(0).([]Room); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockGoChatRepository) GetParticipantsWithPresence(ctx context.Context, roomId string) ([]Participant, error) {
	args := m.Called(ctx, roomId)
	if participants, ok := args.Get(0).([]Participant); ok {
		return participants, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockGoChatRepository) GetRoomSettings(ctx context.Context, roomId string) (RoomSettings, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(RoomSettings), args.Error(1)
}
func (m *MockGoChatRepository) ToggleAIMute(ctx context.Context, roomId string, accountId int) (RoomSettings, error) {
	args := m.Called(ctx, roomId, accountId)
	return args.Get(0).(RoomSettings), args.Error(1)
}
func (m *MockGoChatRepository) GetMessages(ctx context.Context, roomId string, limit int) ([]Message, error) {
	args := m.Called(ctx, roomId, limit)
	if messages, ok := args.Get(0).([]Message); ok {
		return messages, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockGoChatRepository) InsertUserMessage(ctx context.Context, params InsertUserMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) InsertAIMessage(ctx context.Context, params InsertAIMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}
