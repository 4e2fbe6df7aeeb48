package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/npezzotti/go-chatroom/internal/ai"
	"github.com/npezzotti/go-chatroom/internal/database"
	"github.com/npezzotti/go-chatroom/internal/mention"
	"github.com/npezzotti/go-chatroom/internal/types"
)

const (
	AIAuthorName  = "AI Assistant"
	AIAuthorColor = "#8B5CF6"

	excerptLength = 50
)

var questionKeywords = []string{"how", "what", "why", "when", "where", "can you", "could you", "help"}

// FindReplyTarget picks the message an AI reply is anchored to. history
// holds the messages before the trigger, oldest first. AI-authored
// messages are never targets.
func FindReplyTarget(history []types.Message, triggerContent string) *types.Message {
	mentioned := mention.MentionsAI(triggerContent)

	var latest *types.Message
	for i := len(history) - 1; i >= 0; i-- {
		m := &history[i]
		if m.IsAI {
			continue
		}
		if latest == nil {
			latest = m
			if mentioned {
				break
			}
		}
		if looksLikeQuestion(m.Content) {
			return m
		}
	}

	return latest
}

func looksLikeQuestion(content string) bool {
	if strings.Contains(content, "?") {
		return true
	}
	lower := strings.ToLower(content)
	for _, kw := range questionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Excerpt shortens content to the length shown in reply quotes.
func Excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptLength {
		return content
	}
	return string(runes[:excerptLength]) + "..."
}

// BuildContext maps the last n persisted messages to model turns.
func BuildContext(msgs []types.Message, n int) []ai.Turn {
	persisted := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		if !IsProvisional(m.Id) {
			persisted = append(persisted, m)
		}
	}
	if len(persisted) > n {
		persisted = persisted[len(persisted)-n:]
	}

	turns := make([]ai.Turn, 0, len(persisted))
	for _, m := range persisted {
		role := ai.RoleUser
		if m.IsAI {
			role = ai.RoleAssistant
		}
		turns = append(turns, ai.Turn{
			Role:    role,
			Content: fmt.Sprintf("%s: %s", m.UserName, m.Content),
		})
	}
	return turns
}

// messagesBefore returns the messages that precede the message with id.
// When id is not present every message is returned.
func messagesBefore(msgs []types.Message, id string) []types.Message {
	if i := indexOf(msgs, id); i >= 0 {
		return msgs[:i]
	}
	return msgs
}

// startAITurn marks an AI turn pending for rs and runs it in the
// background. It reports false when the AI is muted or a turn is
// already outstanding.
func (s *Synchronizer) startAITurn(rs *roomScope, trigger types.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room != rs || s.state.Room == nil {
		return false
	}
	if s.state.Room.Settings.IsAIMuted {
		s.log.Printf("ai muted in room %q, ignoring mention", rs.roomId)
		return false
	}
	if s.state.AIPending {
		s.log.Printf("ai turn already pending in room %q", rs.roomId)
		return false
	}

	s.setState(Reduce(s.state, AITurnStarted{RoomId: rs.roomId, At: time.Now()}))

	rs.aiTurn++
	turn := rs.aiTurn
	rs.aiTimer = time.AfterFunc(s.opts.AIPendingTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.room != rs || rs.aiTurn != turn || !s.state.AIPending {
			return
		}
		s.log.Printf("ai turn in room %q timed out", rs.roomId)
		rs.aiTimer = nil
		s.setState(Reduce(s.state, AITurnCleared{RoomId: rs.roomId}))
	})

	snapshot := cloneRoom(*s.state.Room)
	s.opts.Turns.wg.Add(1)
	go s.runAITurn(rs, snapshot, trigger)

	return true
}

// clearAITurnLocked ends the pending AI turn for rs. s.mu must be held.
func (s *Synchronizer) clearAITurnLocked(rs *roomScope) {
	if s.room != rs {
		return
	}
	if rs.aiTimer != nil {
		rs.aiTimer.Stop()
		rs.aiTimer = nil
	}
	s.setState(Reduce(s.state, AITurnCleared{RoomId: rs.roomId}))
}

// applyAIMessage records an AI-authored message for rs and ends the
// pending AI turn.
func (s *Synchronizer) applyAIMessage(rs *roomScope, msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room != rs {
		return
	}
	s.clearAITurnLocked(rs)
	s.setState(Reduce(s.state, RemoteMessageArrived{Message: msg}))
}

// roomView returns the current room if rs is still joined, otherwise the
// fallback captured when the turn started.
func (s *Synchronizer) roomView(rs *roomScope, fallback types.Room) types.Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room == rs && s.state.Room != nil {
		return cloneRoom(*s.state.Room)
	}
	return fallback
}

// runAITurn is not cancelled when the room is left; a reply that lands
// after leaving is simply not observed by this session.
func (s *Synchronizer) runAITurn(rs *roomScope, snapshot types.Room, trigger types.Message) {
	defer s.opts.Turns.wg.Done()

	ctx := context.Background()

	if s.opts.AIReplyDelay > 0 {
		delay := time.NewTimer(s.opts.AIReplyDelay)
		<-delay.C
	}

	if !s.ai.Probe(ctx) {
		s.log.Printf("ai unavailable for room %q", rs.roomId)
		s.persistAIMessage(ctx, rs, ai.Unavailable, nil)
		return
	}

	room := s.roomView(rs, snapshot)
	text := s.ai.Generate(ctx, BuildContext(room.Messages, s.opts.AIContextSize), room.Name)

	var reply *database.ReplyContext
	if target := FindReplyTarget(messagesBefore(room.Messages, trigger.Id), trigger.Content); target != nil {
		reply = &database.ReplyContext{
			UserId:   target.UserId,
			UserName: target.UserName,
			Content:  Excerpt(target.Content),
		}
	}

	s.persistAIMessage(ctx, rs, text, reply)
}

func (s *Synchronizer) persistAIMessage(ctx context.Context, rs *roomScope, text string, reply *database.ReplyContext) {
	params := database.InsertAIMessageParams{
		RoomId:      rs.roomId,
		Content:     text,
		AuthorName:  AIAuthorName,
		AuthorColor: AIAuthorColor,
		ReplyingTo:  reply,
	}

	msg, err := s.store.InsertAIMessage(ctx, params)
	if err != nil && reply != nil {
		s.log.Printf("insert ai message with reply context in room %q: %v, retrying without", rs.roomId, err)
		params.ReplyingTo = nil
		msg, err = s.store.InsertAIMessage(ctx, params)
	}
	if err != nil {
		s.log.Printf("insert ai message in room %q: %v", rs.roomId, err)
		s.stats.Incr("NumAITurnFailures")

		s.mu.Lock()
		s.clearAITurnLocked(rs)
		s.mu.Unlock()
		return
	}

	s.stats.Incr("NumAITurns")
	s.applyAIMessage(rs, toMessage(msg))
}
