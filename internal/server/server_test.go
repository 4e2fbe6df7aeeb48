package server

import (
	"context"
	"testing"
	"time"

	"github.com/npezzotti/go-chatroom/internal/ai"
	"github.com/npezzotti/go-chatroom/internal/database"
	"github.com/npezzotti/go-chatroom/internal/session"
	"github.com/npezzotti/go-chatroom/internal/stats"
	"github.com/npezzotti/go-chatroom/internal/testutil"
	"github.com/npezzotti/go-chatroom/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResponder struct{}

func (stubResponder) Generate(context.Context, []ai.Turn, string) string { return "Happy to help." }
func (stubResponder) Probe(context.Context) bool                        { return true }

// heldResponder answers only once release is closed.
type heldResponder struct {
	release chan struct{}
}

func (h heldResponder) Generate(context.Context, []ai.Turn, string) string {
	<-h.release
	return "Sorry for the wait."
}
func (heldResponder) Probe(context.Context) bool { return true }

// newTestChatServer creates a new ChatServer backed by an in-memory
// repository for testing purposes
func newTestChatServer(t *testing.T, su *stats.MockStatsUpdater) (*ChatServer, *database.MemoryRepository) {
	logger := testutil.TestLogger(t)
	broker := database.NewBroker(logger)
	repo := database.NewMemoryRepository(broker, logger)

	cs, err := NewChatServer(logger, repo, broker, stubResponder{}, su, session.Options{AIReplyDelay: 0})
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs, repo
}

func TestNewChatServer(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)

	cs, repo := newTestChatServer(t, su)
	assert.NotNil(t, cs, "expected ChatServer to be non-nil")
	assert.Equal(t, repo, cs.store, "expected store to be set")
	assert.NotNil(t, cs.registerChan, "expected registerChan to be initialized")
	assert.NotNil(t, cs.deRegisterChan, "expected deRegisterChan to be initialized")
	assert.NotNil(t, cs.stop, "expected stop channel to be initialized")
	assert.NotNil(t, cs.clients, "expected clients map to be initialized")
	assert.NotNil(t, cs.userMap, "expected userMap to be initialized")
	assert.NotNil(t, cs.NewSession(), "expected a session")
}

func TestChatServerShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		cs, _ := newTestChatServer(t, &stats.MockStatsUpdater{})

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		go func() {
			select {
			case req := <-cs.stop:
				assert.NotNil(t, req.done, "expected done channel in stop request")
				close(req.done)
			case <-time.After(100 * time.Millisecond):
				t.Error("expected signal on stop chan")
			}
		}()

		err := cs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		cs, _ := newTestChatServer(t, &stats.MockStatsUpdater{})

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		go func() {
			select {
			case <-cs.stop:
				// do not close req.done to simulate a hang
			case <-time.After(100 * time.Millisecond):
				t.Error("expected signal on stop chan")
			}
		}()

		err := cs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "expected context deadline exceeded error, got %v", err)
	})
}

func TestChatServerShutdown_Integration(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", stats.NumActiveSessions).Once()
	su.On("Decr", stats.NumActiveSessions).Once()
	defer su.AssertExpectations(t)

	cs, _ := newTestChatServer(t, su)
	go cs.Run()

	client := &Client{
		user: types.User{Id: 1, Username: "testuser"},
		stop: make(chan struct{}),
	}
	cs.RegisterClient(client)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := cs.Shutdown(ctx)
	assert.NoError(t, err, "expected successful shutdown with active clients")

	select {
	case <-client.stop:
	default:
		t.Error("expected client to be stopped")
	}
	assert.Empty(t, cs.getClients(), "expected no clients after shutdown")

	// registering after shutdown stops the client instead of blocking
	late := &Client{stop: make(chan struct{})}
	cs.RegisterClient(late)
	cs.DeRegisterClient(late)
	select {
	case <-late.stop:
	default:
		t.Error("expected late client to be stopped")
	}
}

func TestChatServerShutdown_WaitsForAITurns(t *testing.T) {
	logger := testutil.TestLogger(t)
	broker := database.NewBroker(logger)
	repo := database.NewMemoryRepository(broker, logger)
	responder := heldResponder{release: make(chan struct{})}

	cs, err := NewChatServer(logger, repo, broker, responder, stats.NewPermissiveMock(), session.Options{})
	require.NoError(t, err)
	go cs.Run()

	ctx := context.Background()
	alice, err := repo.CreateAccount(ctx, database.CreateAccountParams{Username: "alice", EmailAddress: "alice@example.com"})
	require.NoError(t, err)
	_, err = repo.CreateRoom(ctx, database.CreateRoomParams{Id: "r1", Name: "Planning", CreatorId: alice.Id})
	require.NoError(t, err)

	s := cs.NewSession()
	_, err = s.Open(ctx, alice.Id)
	require.NoError(t, err)
	_, err = s.JoinRoom(ctx, "r1")
	require.NoError(t, err)
	_, err = s.SendMessage(ctx, "@ai status?")
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- cs.Shutdown(shutdownCtx) }()

	select {
	case err := <-errc:
		t.Fatalf("expected shutdown to wait for the ai turn, returned %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(responder.release)
	assert.NoError(t, <-errc)

	msgs, err := repo.GetMessages(ctx, "r1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsAI)
	assert.Equal(t, "Sorry for the wait.", msgs[1].Content)

	s.Close()
}

func TestChatServer_addClient_removeClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", stats.NumActiveSessions).Once()
	su.On("Decr", stats.NumActiveSessions).Once()
	defer su.AssertExpectations(t)

	cs, _ := newTestChatServer(t, su)
	user := types.User{Id: 1, Username: "testuser"}
	client := &Client{user: user}
	cs.addClient(client)
	cs.addClient(client)
	assert.Len(t, cs.clients, 1, "expected 1 client after adding")
	assert.Contains(t, cs.clients, client, "expected client to be added to clients map")
	assert.Len(t, cs.userMap, 1, "expected userMap to have 1 entry")
	assert.Contains(t, cs.userMap[user.Id], client, "expected userMap to contain client")

	cs.removeClient(client)
	cs.removeClient(client)
	assert.Len(t, cs.clients, 0, "expected 0 client after removing")
	assert.Len(t, cs.userMap, 0, "expected userMap to be empty after removing client")
}

func TestChatServer_RegisterDeRegister(t *testing.T) {
	cs, _ := newTestChatServer(t, stats.NewPermissiveMock())
	go cs.Run()
	defer cs.Shutdown(context.Background())

	client := &Client{user: types.User{Id: 1, Username: "testuser"}, stop: make(chan struct{})}
	cs.RegisterClient(client)
	assert.Eventually(t, func() bool { return len(cs.getClients()) == 1 }, time.Second, 5*time.Millisecond)

	cs.DeRegisterClient(client)
	assert.Eventually(t, func() bool { return len(cs.getClients()) == 0 }, time.Second, 5*time.Millisecond)
}
