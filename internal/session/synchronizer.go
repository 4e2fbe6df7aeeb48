// Package session keeps one user's view of the room they have joined in
// step with storage: the initial load, optimistic sends, change events
// pushed by the database and AI turns triggered by mentions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-chatroom/internal/ai"
	"github.com/npezzotti/go-chatroom/internal/database"
	"github.com/npezzotti/go-chatroom/internal/mention"
	"github.com/npezzotti/go-chatroom/internal/presence"
	"github.com/npezzotti/go-chatroom/internal/stats"
	"github.com/npezzotti/go-chatroom/internal/types"
	"github.com/teris-io/shortid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const maxRoomIdAttempts = 3

// Store is the part of the repository a session uses.
type Store interface {
	CreateProfileIfAbsent(ctx context.Context, accountId int) (database.Profile, error)
	CreateRoom(ctx context.Context, params database.CreateRoomParams) (database.Room, error)
	JoinRoom(ctx context.Context, roomId string, accountId int) error
	GetRoom(ctx context.Context, roomId string) (database.Room, error)
	GetParticipantsWithPresence(ctx context.Context, roomId string) ([]database.Participant, error)
	GetRoomSettings(ctx context.Context, roomId string) (database.RoomSettings, error)
	ToggleAIMute(ctx context.Context, roomId string, accountId int) (database.RoomSettings, error)
	GetMessages(ctx context.Context, roomId string, limit int) ([]database.Message, error)
	InsertUserMessage(ctx context.Context, params database.InsertUserMessageParams) (database.Message, error)
	InsertAIMessage(ctx context.Context, params database.InsertAIMessageParams) (database.Message, error)
}

type EventSource interface {
	Subscribe(ctx context.Context, topic database.Topic, roomId string) (*database.Subscription, error)
}

type Responder interface {
	Generate(ctx context.Context, history []ai.Turn, roomLabel string) string
	Probe(ctx context.Context) bool
}

type Options struct {
	MessageLimit            int
	PresenceRefreshInterval time.Duration
	AIPendingTimeout        time.Duration
	AIReplyDelay            time.Duration
	AIContextSize           int

	// Turns tracks the AI turns of every session sharing it. A session
	// gets its own group when nil.
	Turns *TurnGroup
}

// TurnGroup counts AI turns that are still running.
type TurnGroup struct {
	wg sync.WaitGroup
}

// Wait blocks until every tracked turn has finished or ctx is done.
func (g *TurnGroup) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func DefaultOptions() Options {
	return Options{
		MessageLimit:            100,
		PresenceRefreshInterval: 60 * time.Second,
		AIPendingTimeout:        25 * time.Second,
		AIReplyDelay:            1500 * time.Millisecond,
		AIContextSize:           10,
	}
}

// roomScope owns everything tied to one joined room. It is replaced, never
// reused, when the session moves to another room.
type roomScope struct {
	roomId   string
	ctx      context.Context
	cancel   context.CancelFunc
	messages *database.Subscription
	members  *database.Subscription
	settings *database.Subscription
	ticker   *time.Ticker
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once

	// guarded by Synchronizer.mu
	aiTimer *time.Timer
	aiTurn  int
}

// close stops the dispatch loop and releases the subscriptions. It must
// not be called with Synchronizer.mu held.
func (rs *roomScope) close() {
	rs.once.Do(func() {
		rs.cancel()
		close(rs.stop)
		<-rs.done
		rs.ticker.Stop()
		rs.messages.Close()
		rs.members.Close()
		rs.settings.Close()
	})
}

type Synchronizer struct {
	store  Store
	events EventSource
	ai     Responder
	stats  stats.StatsProvider
	log    *log.Logger
	opts   Options

	joins singleflight.Group

	mu      sync.Mutex
	profile *types.Profile
	state   State
	room    *roomScope
	joinSeq uint64
	closed  bool
	changes chan struct{}
}

func New(store Store, events EventSource, responder Responder, su stats.StatsProvider, logger *log.Logger, opts Options) *Synchronizer {
	def := DefaultOptions()
	if opts.MessageLimit <= 0 {
		opts.MessageLimit = def.MessageLimit
	}
	if opts.PresenceRefreshInterval <= 0 {
		opts.PresenceRefreshInterval = def.PresenceRefreshInterval
	}
	if opts.AIPendingTimeout <= 0 {
		opts.AIPendingTimeout = def.AIPendingTimeout
	}
	if opts.AIReplyDelay < 0 {
		opts.AIReplyDelay = 0
	}
	if opts.AIContextSize <= 0 {
		opts.AIContextSize = def.AIContextSize
	}
	if opts.Turns == nil {
		opts.Turns = &TurnGroup{}
	}

	return &Synchronizer{
		store:   store,
		events:  events,
		ai:      responder,
		stats:   su,
		log:     logger,
		opts:    opts,
		changes: make(chan struct{}, 1),
	}
}

// Open binds the session to a user, creating their chat profile on first
// use.
func (s *Synchronizer) Open(ctx context.Context, userId int) (types.Profile, error) {
	p, err := s.store.CreateProfileIfAbsent(ctx, userId)
	if err != nil {
		return types.Profile{}, fmt.Errorf("load profile: %w", err)
	}

	profile := types.Profile{Id: p.AccountId, DisplayName: p.DisplayName, Color: p.Color}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.Profile{}, ErrSessionClosed
	}
	s.profile = &profile

	return profile, nil
}

// Close leaves the current room. Outstanding AI turns run to completion;
// Options.Turns waits for them.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.LeaveRoom()
}

func (s *Synchronizer) currentProfile() (types.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.Profile{}, ErrSessionClosed
	}
	if s.profile == nil {
		return types.Profile{}, ErrNotAuthenticated
	}
	return *s.profile, nil
}

// Changes signals after every state change. Signals are coalesced, so a
// receiver should read the latest Snapshot rather than count signals.
func (s *Synchronizer) Changes() <-chan struct{} {
	return s.changes
}

// setState must be called with s.mu held.
func (s *Synchronizer) setState(next State) {
	s.state = next
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// applyFor applies ev only while rs is the joined room.
func (s *Synchronizer) applyFor(rs *roomScope, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room != rs {
		return
	}
	s.setState(Reduce(s.state, ev))
}

// Snapshot returns a copy of the joined room with presence evaluated as
// of now. It reports false when no room is joined.
func (s *Synchronizer) Snapshot() (types.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Room == nil {
		return types.Room{}, false
	}

	room := cloneRoom(*s.state.Room)
	room.Participants = presence.Classify(room.Participants, time.Now())
	return room, true
}

func (s *Synchronizer) AIPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.AIPending
}

func (s *Synchronizer) CurrentRoomId() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return ""
	}
	return s.room.roomId
}

// JoinRoom makes roomId the current room. Joining the current room again
// succeeds without doing anything, and concurrent joins of the same room
// share a single load.
func (s *Synchronizer) JoinRoom(ctx context.Context, roomId string) (bool, error) {
	profile, err := s.currentProfile()
	if err != nil {
		return false, err
	}

	roomId = strings.TrimSpace(roomId)
	if roomId == "" {
		return false, ErrRoomNotFound
	}

	if s.keepCurrent(roomId) {
		return true, nil
	}

	_, err, shared := s.joins.Do(roomId, func() (any, error) {
		return nil, s.join(ctx, profile, roomId)
	})
	if shared {
		s.log.Printf("shared in-flight join of room %q", roomId)
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// keepCurrent reports whether roomId is already joined. If so, any join of
// another room still in flight is superseded.
func (s *Synchronizer) keepCurrent(roomId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room == nil || s.room.roomId != roomId {
		return false
	}
	s.joinSeq++
	return true
}

func (s *Synchronizer) nextJoinSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joinSeq++
	return s.joinSeq
}

func (s *Synchronizer) join(ctx context.Context, profile types.Profile, roomId string) error {
	// a flight for this room may have completed since JoinRoom checked
	if s.keepCurrent(roomId) {
		return nil
	}

	seq := s.nextJoinSeq()

	if err := s.store.JoinRoom(ctx, roomId, profile.Id); err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			return fmt.Errorf("%w: %q", ErrRoomNotFound, roomId)
		}
		return fmt.Errorf("join room %q: %w", roomId, err)
	}

	dbRoom, err := s.store.GetRoom(ctx, roomId)
	if err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			return fmt.Errorf("%w: %q", ErrRoomNotFound, roomId)
		}
		return fmt.Errorf("get room %q: %w", roomId, err)
	}

	room := types.Room{
		Id:        dbRoom.Id,
		Name:      dbRoom.Name,
		CreatedAt: dbRoom.CreatedAt,
	}

	// subscribe before loading so rows written during the load arrive as
	// events; ones the load already returned are deduplicated by id
	rs, err := s.openScope(ctx, roomId)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ps, err := s.store.GetParticipantsWithPresence(gctx, roomId)
		if err != nil {
			return fmt.Errorf("load participants: %w", err)
		}
		room.Participants = presence.Classify(toParticipants(ps), time.Now())
		return nil
	})
	g.Go(func() error {
		settings, err := s.store.GetRoomSettings(gctx, roomId)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		room.Settings = toSettings(settings)
		return nil
	})
	g.Go(func() error {
		msgs, err := s.store.GetMessages(gctx, roomId, s.opts.MessageLimit)
		if err != nil {
			return fmt.Errorf("load messages: %w", err)
		}
		room.Messages = toMessages(msgs)
		return nil
	})
	if err := g.Wait(); err != nil {
		rs.abort()
		return fmt.Errorf("load room %q: %w", roomId, err)
	}

	return s.install(rs, room, seq)
}

// CreateRoom creates a room owned by the session's user and makes it the
// current room without reading it back from storage.
func (s *Synchronizer) CreateRoom(ctx context.Context, name string) (types.Room, error) {
	profile, err := s.currentProfile()
	if err != nil {
		return types.Room{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return types.Room{}, ErrInvalidRoomName
	}

	seq := s.nextJoinSeq()

	var dbRoom database.Room
	for attempt := 1; ; attempt++ {
		id, err := shortid.Generate()
		if err != nil {
			return types.Room{}, fmt.Errorf("generate room id: %w", err)
		}

		dbRoom, err = s.store.CreateRoom(ctx, database.CreateRoomParams{
			Id:        id,
			Name:      name,
			CreatorId: profile.Id,
		})
		if err == nil {
			break
		}
		if errors.Is(err, database.ErrRoomExists) && attempt < maxRoomIdAttempts {
			s.log.Printf("room id %q already taken, retrying", id)
			continue
		}
		return types.Room{}, fmt.Errorf("%w: create room: %w", ErrPersistence, err)
	}

	room := types.Room{
		Id:        dbRoom.Id,
		Name:      dbRoom.Name,
		CreatedAt: dbRoom.CreatedAt,
		Participants: []types.Participant{{
			Id:    profile.Id,
			Name:  profile.DisplayName,
			Color: profile.Color,
		}},
		Messages: []types.Message{},
		Settings: types.RoomSettings{RoomId: dbRoom.Id},
	}

	rs, err := s.openScope(ctx, room.Id)
	if err != nil {
		return types.Room{}, err
	}
	if err := s.install(rs, room, seq); err != nil {
		return types.Room{}, err
	}

	return room, nil
}

// install swaps rs in as the current room, unless a later join has
// started since seq. rs is released when it is not installed.
func (s *Synchronizer) install(rs *roomScope, room types.Room, seq uint64) error {
	s.mu.Lock()
	if closed := s.closed; closed || seq != s.joinSeq {
		s.mu.Unlock()
		rs.abort()
		if closed {
			return ErrSessionClosed
		}
		return ErrJoinSuperseded
	}

	prev := s.room
	if prev != nil && prev.aiTimer != nil {
		prev.aiTimer.Stop()
	}
	s.room = rs
	s.setState(Reduce(s.state, RoomLoaded{Room: room}))
	go s.run(rs)
	s.mu.Unlock()

	if prev != nil {
		prev.close()
	}

	s.log.Printf("joined room %q", room.Id)

	return nil
}

func (s *Synchronizer) openScope(ctx context.Context, roomId string) (*roomScope, error) {
	var subs [3]*database.Subscription
	for i, topic := range database.Topics {
		sub, err := s.events.Subscribe(ctx, topic, roomId)
		if err != nil {
			for _, opened := range subs[:i] {
				opened.Close()
			}
			return nil, fmt.Errorf("subscribe to %s for room %q: %w", topic, roomId, err)
		}
		subs[i] = sub
	}

	rctx, cancel := context.WithCancel(context.Background())
	return &roomScope{
		roomId:   roomId,
		ctx:      rctx,
		cancel:   cancel,
		messages: subs[0],
		members:  subs[1],
		settings: subs[2],
		ticker:   time.NewTicker(s.opts.PresenceRefreshInterval),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// abort releases a scope whose dispatch loop never started.
func (rs *roomScope) abort() {
	rs.once.Do(func() {
		rs.cancel()
		rs.ticker.Stop()
		rs.messages.Close()
		rs.members.Close()
		rs.settings.Close()
	})
}

// LeaveRoom returns the session to idle. It is a no-op when no room is
// joined.
func (s *Synchronizer) LeaveRoom() {
	s.mu.Lock()
	rs := s.room
	if rs == nil {
		s.mu.Unlock()
		return
	}
	if rs.aiTimer != nil {
		rs.aiTimer.Stop()
		rs.aiTimer = nil
	}
	s.room = nil
	s.joinSeq++
	s.setState(Reduce(s.state, RoomCleared{}))
	s.mu.Unlock()

	rs.close()
	s.log.Printf("left room %q", rs.roomId)
}

// SendMessage shows content in the room immediately and persists it. When
// persisting fails the message is withdrawn and the error returned.
func (s *Synchronizer) SendMessage(ctx context.Context, content string) (types.Message, error) {
	profile, err := s.currentProfile()
	if err != nil {
		return types.Message{}, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return types.Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	rs := s.room
	if rs == nil {
		s.mu.Unlock()
		return types.Message{}, ErrNotJoined
	}
	provisional := types.Message{
		Id:        ProvisionalPrefix + uuid.NewString(),
		RoomId:    rs.roomId,
		UserId:    profile.Id,
		UserName:  profile.DisplayName,
		UserColor: profile.Color,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	s.setState(Reduce(s.state, LocalSendStarted{Message: provisional}))
	s.mu.Unlock()

	dbMsg, err := s.store.InsertUserMessage(ctx, database.InsertUserMessageParams{
		RoomId:    rs.roomId,
		AccountId: profile.Id,
		UserName:  profile.DisplayName,
		UserColor: profile.Color,
		Content:   content,
	})
	if err != nil {
		s.applyFor(rs, LocalSendFailed{RoomId: rs.roomId, ProvisionalId: provisional.Id})
		s.stats.Incr("NumMessageSendFailures")
		return types.Message{}, fmt.Errorf("%w: send message: %w", ErrPersistence, err)
	}

	msg := toMessage(dbMsg)
	s.applyFor(rs, LocalSendConfirmed{ProvisionalId: provisional.Id, Message: msg})
	s.stats.Incr("NumMessagesSent")

	if mention.MentionsAI(content) {
		s.startAITurn(rs, msg)
	}

	return msg, nil
}

// ToggleAIMute flips the room's AI mute setting and applies the result.
func (s *Synchronizer) ToggleAIMute(ctx context.Context) (types.RoomSettings, error) {
	profile, err := s.currentProfile()
	if err != nil {
		return types.RoomSettings{}, err
	}

	s.mu.Lock()
	rs := s.room
	s.mu.Unlock()
	if rs == nil {
		return types.RoomSettings{}, ErrNotJoined
	}

	dbSettings, err := s.store.ToggleAIMute(ctx, rs.roomId, profile.Id)
	if err != nil {
		return types.RoomSettings{}, fmt.Errorf("%w: toggle ai mute: %w", ErrPersistence, err)
	}

	settings := toSettings(dbSettings)
	s.applyFor(rs, SettingsLoaded{Settings: settings})

	return settings, nil
}

// run dispatches the change events of one joined room until the room is
// left. A failing event is logged and skipped.
func (s *Synchronizer) run(rs *roomScope) {
	defer close(rs.done)

	msgs, members, settings := rs.messages.C, rs.members.C, rs.settings.C
	for {
		select {
		case <-rs.stop:
			return
		case ev, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			s.handleMessageEvent(rs, ev)
		case ev, ok := <-members:
			if !ok {
				members = nil
				continue
			}
			if ev.Op == "INSERT" {
				s.reloadParticipants(rs)
			}
		case _, ok := <-settings:
			if !ok {
				settings = nil
				continue
			}
			s.reloadSettings(rs)
		case <-rs.ticker.C:
			s.reloadParticipants(rs)
		}
	}
}

func (s *Synchronizer) eventError(rs *roomScope, what string, err error) {
	s.log.Printf("room %q: %s: %v", rs.roomId, what, err)
	s.stats.Incr("NumEventErrors")
}

func (s *Synchronizer) handleMessageEvent(rs *roomScope, ev database.Event) {
	if ev.Op != "INSERT" {
		return
	}

	msg, replyErr, err := decodeMessageRecord(ev.Record)
	if err != nil {
		s.eventError(rs, "decode message event", err)
		return
	}
	if replyErr != nil {
		s.eventError(rs, fmt.Sprintf("dropping reply context of message %q", msg.Id), replyErr)
	}
	if msg.RoomId != rs.roomId {
		return
	}

	if msg.IsAI {
		s.applyAIMessage(rs, msg)
	} else {
		s.applyFor(rs, RemoteMessageArrived{Message: msg})
	}

	s.reloadParticipants(rs)
}

func (s *Synchronizer) reloadParticipants(rs *roomScope) {
	ps, err := s.store.GetParticipantsWithPresence(rs.ctx, rs.roomId)
	if err != nil {
		if rs.ctx.Err() == nil {
			s.eventError(rs, "reload participants", err)
		}
		return
	}

	s.applyFor(rs, ParticipantsLoaded{
		RoomId:       rs.roomId,
		Participants: presence.Classify(toParticipants(ps), time.Now()),
	})
}

func (s *Synchronizer) reloadSettings(rs *roomScope) {
	settings, err := s.store.GetRoomSettings(rs.ctx, rs.roomId)
	if err != nil {
		if rs.ctx.Err() == nil {
			s.eventError(rs, "reload settings", err)
		}
		return
	}

	s.applyFor(rs, SettingsLoaded{Settings: toSettings(settings)})
}
