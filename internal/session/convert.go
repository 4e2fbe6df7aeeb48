package session

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/npezzotti/go-chatroom/internal/database"
	"github.com/npezzotti/go-chatroom/internal/types"
)

func toMessage(m database.Message) types.Message {
	msg := types.Message{
		Id:        m.Id,
		RoomId:    m.RoomId,
		UserName:  m.UserName,
		UserColor: m.UserColor,
		Content:   m.Content,
		IsAI:      m.IsAI,
		Timestamp: m.CreatedAt,
	}
	if m.AccountId != nil {
		msg.UserId = *m.AccountId
	}
	if m.ReplyingTo != nil {
		msg.ReplyingTo = &types.ReplyContext{
			UserId:         m.ReplyingTo.UserId,
			UserName:       m.ReplyingTo.UserName,
			ContentExcerpt: m.ReplyingTo.Content,
		}
	}
	return msg
}

func toMessages(ms []database.Message) []types.Message {
	out := make([]types.Message, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMessage(m))
	}
	return out
}

func toParticipants(ps []database.Participant) []types.Participant {
	out := make([]types.Participant, 0, len(ps))
	for _, p := range ps {
		out = append(out, types.Participant{
			Id:       p.AccountId,
			Name:     p.DisplayName,
			Color:    p.Color,
			LastSeen: p.LastSeen,
		})
	}
	return out
}

func toSettings(s database.RoomSettings) types.RoomSettings {
	return types.RoomSettings{
		RoomId:        s.RoomId,
		IsAIMuted:     s.IsAIMuted,
		AIMutedBy:     s.AIMutedBy,
		AIMutedByName: s.AIMutedByName,
		AIMutedAt:     s.AIMutedAt,
	}
}

// decodeMessageRecord turns the row carried by a message change event
// into a Message. A reply context that cannot be decoded is returned as
// replyErr and left off the message.
func decodeMessageRecord(raw json.RawMessage) (msg types.Message, replyErr error, err error) {
	var rec database.MessageRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return types.Message{}, nil, fmt.Errorf("%w: %w", database.ErrMalformedPayload, err)
	}
	if rec.Id == "" || rec.RoomId == "" {
		return types.Message{}, nil, fmt.Errorf("%w: message record missing id", database.ErrMalformedPayload)
	}

	msg = types.Message{
		Id:        rec.Id,
		RoomId:    rec.RoomId,
		UserName:  rec.UserName,
		UserColor: rec.UserColor,
		Content:   rec.Content,
		IsAI:      rec.IsAI,
		Timestamp: rec.CreatedAt,
	}
	if rec.AccountId != nil {
		msg.UserId = *rec.AccountId
	}

	msg.ReplyingTo, replyErr = decodeReplyContext(rec.ReplyingTo)
	return msg, replyErr, nil
}

// decodeReplyContext accepts the reply context either as a JSON object
// or as a string holding the JSON encoding of one.
func decodeReplyContext(raw json.RawMessage) (*types.ReplyContext, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode reply context string: %w", err)
		}
		if s == "" {
			return nil, nil
		}
		raw = json.RawMessage(s)
	}

	var rc database.ReplyContext
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, fmt.Errorf("decode reply context: %w", err)
	}

	return &types.ReplyContext{
		UserId:         rc.UserId,
		UserName:       rc.UserName,
		ContentExcerpt: rc.Content,
	}, nil
}
