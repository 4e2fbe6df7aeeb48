package server

import (
	"net/http"
	"time"

	"github.com/npezzotti/go-chatroom/internal/mention"
	"github.com/npezzotti/go-chatroom/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Join       *Join       `json:"join,omitempty"`
	Leave      *Leave      `json:"leave,omitempty"`
	Publish    *Publish    `json:"publish,omitempty"`
	CreateRoom *CreateRoom `json:"create_room,omitempty"`
	ToggleMute *ToggleMute `json:"toggle_mute,omitempty"`
	Mention    *Mention    `json:"mention,omitempty"`
	UserId     int         `json:"-"`
}

type Join struct {
	RoomId string `json:"room_id"`
}

type Leave struct{}

type Publish struct {
	Content string `json:"content"`
}

type CreateRoom struct {
	Name string `json:"name"`
}

type ToggleMute struct{}

// Mention asks for the autocomplete state of a draft. Cursor counts
// characters, not bytes.
type Mention struct {
	Text   string `json:"text"`
	Cursor int    `json:"cursor"`
}

type ServerMessage struct {
	BaseMessage
	Response *Response        `json:"response,omitempty"`
	Room     *RoomState       `json:"room,omitempty"`
	Mention  *mention.Trigger `json:"mention,omitempty"`
}

// RoomState is the joined room as pushed to the client after every change.
type RoomState struct {
	types.Room
	AIPending bool `json:"ai_pending"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

func response(id, code int, errMsg string, data any) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        errMsg,
			Data:         data,
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func NoErrOK(id int, data any) *ServerMessage {
	return response(id, http.StatusOK, "", data)
}

func NoErrAccepted(id int) *ServerMessage {
	return response(id, http.StatusAccepted, "", nil)
}

func ErrInvalidMessage(id int) *ServerMessage {
	return response(id, http.StatusBadRequest, "invalid message format", nil)
}

func ErrBadRequest(id int, reason string) *ServerMessage {
	return response(id, http.StatusBadRequest, reason, nil)
}

func ErrAuthFailed(id int) *ServerMessage {
	return response(id, http.StatusUnauthorized, "authentication required", nil)
}

func ErrRoomNotFound(id int) *ServerMessage {
	return response(id, http.StatusNotFound, "room not found", nil)
}

func ErrNotJoined(id int) *ServerMessage {
	return response(id, http.StatusConflict, "not joined to a room", nil)
}

func ErrInternalError(id int) *ServerMessage {
	return response(id, http.StatusInternalServerError, "internal server error", nil)
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return response(id, http.StatusServiceUnavailable, "service unavailable", nil)
}

func RoomUpdate(room types.Room, aiPending bool) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Room: &RoomState{Room: room, AIPending: aiPending},
	}
}

func MentionUpdate(id int, trigger mention.Trigger) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Mention: &trigger,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
