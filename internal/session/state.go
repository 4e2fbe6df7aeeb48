package session

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/npezzotti/go-chatroom/internal/types"
)

// ProvisionalPrefix tags ids of messages that have not been persisted yet.
const ProvisionalPrefix = "temp-"

func IsProvisional(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// State is the view of the room a session currently has joined. A nil
// Room means the session is idle.
type State struct {
	Room        *types.Room
	AIPending   bool
	AIStartedAt time.Time
}

// Event is a state transition fed to Reduce.
type Event interface {
	event()
}

type RoomLoaded struct {
	Room types.Room
}

type RoomCleared struct{}

type LocalSendStarted struct {
	Message types.Message
}

type LocalSendConfirmed struct {
	ProvisionalId string
	Message       types.Message
}

type LocalSendFailed struct {
	RoomId        string
	ProvisionalId string
}

type RemoteMessageArrived struct {
	Message types.Message
}

type ParticipantsLoaded struct {
	RoomId       string
	Participants []types.Participant
}

type SettingsLoaded struct {
	Settings types.RoomSettings
}

type AITurnStarted struct {
	RoomId string
	At     time.Time
}

type AITurnCleared struct {
	RoomId string
}

func (RoomLoaded) event()           {}
func (RoomCleared) event()          {}
func (LocalSendStarted) event()     {}
func (LocalSendConfirmed) event()   {}
func (LocalSendFailed) event()      {}
func (RemoteMessageArrived) event() {}
func (ParticipantsLoaded) event()   {}
func (SettingsLoaded) event()       {}
func (AITurnStarted) event()        {}
func (AITurnCleared) event()        {}

// Reduce returns the state that results from applying ev to s. It never
// modifies s; slices that change are copied first. Events addressed to a
// room other than the current one leave the state unchanged.
func Reduce(s State, ev Event) State {
	switch ev := ev.(type) {
	case RoomLoaded:
		room := cloneRoom(ev.Room)
		return State{Room: &room}
	case RoomCleared:
		return State{}
	}

	if s.Room == nil {
		return s
	}

	switch ev := ev.(type) {
	case LocalSendStarted:
		if ev.Message.RoomId != s.Room.Id || indexOf(s.Room.Messages, ev.Message.Id) >= 0 {
			return s
		}
		msgs := append(slices.Clone(s.Room.Messages), ev.Message)
		return s.withMessages(msgs)

	case LocalSendConfirmed:
		if ev.Message.RoomId != s.Room.Id {
			return s
		}
		provisional := indexOf(s.Room.Messages, ev.ProvisionalId)
		durable := indexOf(s.Room.Messages, ev.Message.Id)
		switch {
		case provisional >= 0 && durable >= 0:
			// the change event won the race
			return s.withMessages(slices.Delete(slices.Clone(s.Room.Messages), provisional, provisional+1))
		case provisional >= 0:
			msgs := slices.Clone(s.Room.Messages)
			msgs[provisional] = ev.Message
			return s.withMessages(msgs)
		case durable >= 0:
			return s
		default:
			return s.withMessages(insertByTime(s.Room.Messages, ev.Message))
		}

	case LocalSendFailed:
		if ev.RoomId != s.Room.Id {
			return s
		}
		i := indexOf(s.Room.Messages, ev.ProvisionalId)
		if i < 0 {
			return s
		}
		return s.withMessages(slices.Delete(slices.Clone(s.Room.Messages), i, i+1))

	case RemoteMessageArrived:
		if ev.Message.RoomId != s.Room.Id || indexOf(s.Room.Messages, ev.Message.Id) >= 0 {
			return s
		}
		return s.withMessages(insertByTime(s.Room.Messages, ev.Message))

	case ParticipantsLoaded:
		if ev.RoomId != s.Room.Id {
			return s
		}
		room := *s.Room
		room.Participants = slices.Clone(ev.Participants)
		s.Room = &room
		return s

	case SettingsLoaded:
		if ev.Settings.RoomId != s.Room.Id {
			return s
		}
		room := *s.Room
		room.Settings = cloneSettings(ev.Settings)
		s.Room = &room
		return s

	case AITurnStarted:
		if ev.RoomId != s.Room.Id {
			return s
		}
		s.AIPending = true
		s.AIStartedAt = ev.At
		return s

	case AITurnCleared:
		if ev.RoomId != s.Room.Id {
			return s
		}
		s.AIPending = false
		s.AIStartedAt = time.Time{}
		return s
	}

	return s
}

func (s State) withMessages(msgs []types.Message) State {
	room := *s.Room
	room.Messages = msgs
	s.Room = &room
	return s
}

func indexOf(msgs []types.Message, id string) int {
	return slices.IndexFunc(msgs, func(m types.Message) bool {
		return m.Id == id
	})
}

// insertByTime returns a copy of msgs with m placed after every message
// whose timestamp is not later than its own.
func insertByTime(msgs []types.Message, m types.Message) []types.Message {
	i := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].Timestamp.After(m.Timestamp)
	})
	return slices.Insert(slices.Clone(msgs), i, m)
}

func cloneRoom(r types.Room) types.Room {
	r.Participants = slices.Clone(r.Participants)
	r.Messages = slices.Clone(r.Messages)
	r.Settings = cloneSettings(r.Settings)
	return r
}

func cloneSettings(s types.RoomSettings) types.RoomSettings {
	if s.AIMutedBy != nil {
		v := *s.AIMutedBy
		s.AIMutedBy = &v
	}
	if s.AIMutedByName != nil {
		v := *s.AIMutedByName
		s.AIMutedByName = &v
	}
	if s.AIMutedAt != nil {
		v := *s.AIMutedAt
		s.AIMutedAt = &v
	}
	return s
}
