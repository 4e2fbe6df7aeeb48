package database

import (
	"context"
	"database/sql"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Publisher receives the change events a repository produces.
type Publisher interface {
	Publish(ev Event)
}

type memoryParticipant struct {
	accountId int
	joinedAt  time.Time
}

// MemoryRepository is an in-process GoChatRepository. It emits the same
// change event payloads as the Postgres triggers so subscribers cannot
// tell the two apart.
type MemoryRepository struct {
	mu           sync.RWMutex
	log          *log.Logger
	events       Publisher
	nextId       int
	accounts     map[int]User
	profiles     map[int]Profile
	rooms        map[string]Room
	participants map[string][]memoryParticipant
	settings     map[string]RoomSettings
	messages     map[string][]Message
}

func NewMemoryRepository(events Publisher, logger *log.Logger) *MemoryRepository {
	return &MemoryRepository{
		log:          logger,
		events:       events,
		accounts:     make(map[int]User),
		profiles:     make(map[int]Profile),
		rooms:        make(map[string]Room),
		participants: make(map[string][]memoryParticipant),
		settings:     make(map[string]RoomSettings),
		messages:     make(map[string][]Message),
	}
}

func (m *MemoryRepository) publish(topic Topic, op, roomId string, record any) {
	if m.events == nil {
		return
	}
	// the row is already committed; subscribers only miss the notification
	if err := publishRecord(m.events, topic, op, roomId, record); err != nil {
		m.log.Printf("publish %s event for room %q: %v", topic, roomId, err)
	}
}

func (m *MemoryRepository) Ping() error {
	return nil
}

func (m *MemoryRepository) Close() error {
	return nil
}

func (m *MemoryRepository) CreateAccount(_ context.Context, params CreateAccountParams) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.accounts {
		if strings.EqualFold(a.EmailAddress, params.EmailAddress) {
			return User{}, ErrUserExists
		}
	}

	m.nextId++
	now := time.Now().UTC()
	u := User{
		Id:           m.nextId,
		Username:     params.Username,
		EmailAddress: params.EmailAddress,
		PasswordHash: params.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.accounts[u.Id] = u

	return u, nil
}

func (m *MemoryRepository) GetAccountById(_ context.Context, id int) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.accounts[id]
	if !ok {
		return User{}, sql.ErrNoRows
	}
	u.PasswordHash = ""
	return u, nil
}

func (m *MemoryRepository) GetAccountByEmail(_ context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.accounts {
		if strings.EqualFold(u.EmailAddress, email) {
			return u, nil
		}
	}
	return User{}, sql.ErrNoRows
}

func (m *MemoryRepository) CreateProfileIfAbsent(_ context.Context, accountId int) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.profiles[accountId]; ok {
		return p, nil
	}

	a, ok := m.accounts[accountId]
	if !ok {
		return Profile{}, ErrUserNotFound
	}

	p := Profile{AccountId: a.Id, DisplayName: a.Username, Color: ProfileColor(a.Id)}
	m.profiles[accountId] = p
	return p, nil
}

func (m *MemoryRepository) UpdateAccount(_ context.Context, params UpdateAccountParams) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[params.AccountId]
	if !ok {
		return Profile{}, ErrUserNotFound
	}

	if params.PasswordHash != "" {
		a.PasswordHash = params.PasswordHash
		a.UpdatedAt = time.Now().UTC()
		m.accounts[a.Id] = a
	}

	p, ok := m.profiles[a.Id]
	if !ok {
		p = Profile{AccountId: a.Id, DisplayName: a.Username, Color: ProfileColor(a.Id)}
	}
	if params.DisplayName != "" {
		p.DisplayName = params.DisplayName
	}
	m.profiles[a.Id] = p

	return p, nil
}

func (m *MemoryRepository) CreateRoom(_ context.Context, params CreateRoomParams) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[params.Id]; ok {
		return Room{}, ErrRoomExists
	}
	if _, ok := m.accounts[params.CreatorId]; !ok {
		return Room{}, ErrUserNotFound
	}

	room := Room{
		Id:        params.Id,
		Name:      params.Name,
		CreatedBy: params.CreatorId,
		CreatedAt: time.Now().UTC(),
	}
	m.rooms[room.Id] = room
	m.participants[room.Id] = []memoryParticipant{{accountId: params.CreatorId, joinedAt: room.CreatedAt}}
	m.settings[room.Id] = RoomSettings{RoomId: room.Id}

	m.publish(TopicParticipants, "INSERT", room.Id, participantRecord{RoomId: room.Id, AccountId: params.CreatorId, JoinedAt: room.CreatedAt})
	m.publish(TopicSettings, "INSERT", room.Id, settingsRecord{RoomId: room.Id})

	return room, nil
}

func (m *MemoryRepository) JoinRoom(_ context.Context, roomId string, accountId int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[roomId]; !ok {
		return ErrRoomNotFound
	}
	if _, ok := m.accounts[accountId]; !ok {
		return ErrUserNotFound
	}
	if m.isParticipant(roomId, accountId) {
		return nil
	}

	p := memoryParticipant{accountId: accountId, joinedAt: time.Now().UTC()}
	m.participants[roomId] = append(m.participants[roomId], p)
	m.publish(TopicParticipants, "INSERT", roomId, participantRecord{RoomId: roomId, AccountId: accountId, JoinedAt: p.joinedAt})

	return nil
}

func (m *MemoryRepository) isParticipant(roomId string, accountId int) bool {
	return slices.ContainsFunc(m.participants[roomId], func(p memoryParticipant) bool {
		return p.accountId == accountId
	})
}

func (m *MemoryRepository) GetRoom(_ context.Context, roomId string) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomId]
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	return room, nil
}

func (m *MemoryRepository) ListRoomsForAccount(_ context.Context, accountId int) ([]Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]Room, 0)
	for id, room := range m.rooms {
		if m.isParticipant(id, accountId) {
			rooms = append(rooms, room)
		}
	}
	slices.SortFunc(rooms, func(a, b Room) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return rooms, nil
}

func (m *MemoryRepository) GetParticipantsWithPresence(_ context.Context, roomId string) ([]Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	participants := make([]Participant, 0, len(m.participants[roomId]))
	for _, mp := range m.participants[roomId] {
		p := Participant{AccountId: mp.accountId}
		if profile, ok := m.profiles[mp.accountId]; ok {
			p.DisplayName = profile.DisplayName
			p.Color = profile.Color
		} else {
			p.DisplayName = m.accounts[mp.accountId].Username
		}

		for _, msg := range m.messages[roomId] {
			if msg.IsAI || msg.AccountId == nil || *msg.AccountId != mp.accountId {
				continue
			}
			if p.LastSeen == nil || msg.CreatedAt.After(*p.LastSeen) {
				t := msg.CreatedAt
				p.LastSeen = &t
			}
		}
		participants = append(participants, p)
	}

	return participants, nil
}

func (m *MemoryRepository) GetRoomSettings(_ context.Context, roomId string) (RoomSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.settings[roomId]; ok {
		return s, nil
	}
	return RoomSettings{RoomId: roomId}, nil
}

func (m *MemoryRepository) ToggleAIMute(_ context.Context, roomId string, accountId int) (RoomSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isParticipant(roomId, accountId) {
		return RoomSettings{}, ErrNotAParticipant
	}

	s := m.settings[roomId]
	s.RoomId = roomId
	s.IsAIMuted = !s.IsAIMuted
	if s.IsAIMuted {
		now := time.Now().UTC()
		by := accountId
		s.AIMutedBy = &by
		s.AIMutedAt = &now
		if p, ok := m.profiles[accountId]; ok {
			name := p.DisplayName
			s.AIMutedByName = &name
		}
	} else {
		s.AIMutedBy, s.AIMutedByName, s.AIMutedAt = nil, nil, nil
	}
	m.settings[roomId] = s

	m.publish(TopicSettings, "UPDATE", roomId, settingsRecord{
		RoomId:    roomId,
		IsAIMuted: s.IsAIMuted,
		AIMutedBy: s.AIMutedBy,
		AIMutedAt: s.AIMutedAt,
	})

	return s, nil
}

func (m *MemoryRepository) GetMessages(_ context.Context, roomId string, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	all := m.messages[roomId]
	start := max(len(all)-limit, 0)
	return slices.Clone(all[start:]), nil
}

func (m *MemoryRepository) InsertUserMessage(_ context.Context, params InsertUserMessageParams) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[params.RoomId]; !ok {
		return Message{}, ErrRoomNotFound
	}

	accountId := params.AccountId
	msg := Message{
		Id:        uuid.NewString(),
		RoomId:    params.RoomId,
		AccountId: &accountId,
		UserName:  params.UserName,
		UserColor: params.UserColor,
		Content:   params.Content,
		CreatedAt: time.Now().UTC(),
	}

	return m.insertMessage(msg), nil
}

func (m *MemoryRepository) InsertAIMessage(_ context.Context, params InsertAIMessageParams) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[params.RoomId]; !ok {
		return Message{}, ErrRoomNotFound
	}

	msg := Message{
		Id:         uuid.NewString(),
		RoomId:     params.RoomId,
		UserName:   params.AuthorName,
		UserColor:  params.AuthorColor,
		Content:    params.Content,
		IsAI:       true,
		ReplyingTo: params.ReplyingTo,
		CreatedAt:  time.Now().UTC(),
	}

	return m.insertMessage(msg), nil
}

func (m *MemoryRepository) insertMessage(msg Message) Message {
	m.messages[msg.RoomId] = append(m.messages[msg.RoomId], msg)
	m.publish(TopicMessages, "INSERT", msg.RoomId, NewMessageRecord(msg))
	return msg
}

type participantRecord struct {
	RoomId    string    `json:"room_id"`
	AccountId int       `json:"account_id"`
	JoinedAt  time.Time `json:"joined_at"`
}

type settingsRecord struct {
	RoomId    string     `json:"room_id"`
	IsAIMuted bool       `json:"is_ai_muted"`
	AIMutedBy *int       `json:"ai_muted_by"`
	AIMutedAt *time.Time `json:"ai_muted_at"`
}
