package server

import (
	"context"
	"log"
	"sync"

	"github.com/npezzotti/go-chatroom/internal/session"
	"github.com/npezzotti/go-chatroom/internal/stats"
)

type stopReq struct {
	done chan struct{}
}

// ChatServer tracks connected clients. Each client owns a session that
// follows the room it has joined.
type ChatServer struct {
	log            *log.Logger
	store          session.Store
	events         session.EventSource
	ai             session.Responder
	stats          stats.StatsProvider
	opts           session.Options
	clients        map[*Client]struct{}
	userMap        map[int]map[*Client]struct{}
	clientsLock    sync.RWMutex
	registerChan   chan *Client
	deRegisterChan chan *Client
	stop           chan stopReq
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, store session.Store, events session.EventSource, responder session.Responder, su stats.StatsProvider, opts session.Options) (*ChatServer, error) {
	if opts.Turns == nil {
		opts.Turns = &session.TurnGroup{}
	}

	return &ChatServer{
		log:            logger,
		store:          store,
		events:         events,
		ai:             responder,
		stats:          su,
		opts:           opts,
		clients:        make(map[*Client]struct{}),
		userMap:        make(map[int]map[*Client]struct{}),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}, nil
}

// NewSession returns a session for a single connection.
func (cs *ChatServer) NewSession() *session.Synchronizer {
	return session.New(cs.store, cs.events, cs.ai, cs.stats, cs.log, cs.opts)
}

func (cs *ChatServer) Run() {
	defer close(cs.done)

	for {
		select {
		case client := <-cs.registerChan:
			cs.log.Printf("adding connection from %q", client.user.Username)
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection from %q", client.user.Username)
			cs.removeClient(client)
		case req := <-cs.stop:
			cs.log.Println("stopping clients")
			for _, c := range cs.getClients() {
				c.stopClient()
				cs.removeClient(c)
			}

			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	select {
	case cs.registerChan <- c:
	case <-cs.done:
		c.stopClient()
	}
}

func (cs *ChatServer) DeRegisterClient(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; ok {
		return
	}
	cs.clients[c] = struct{}{}
	if cs.userMap[c.user.Id] == nil {
		cs.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	cs.userMap[c.user.Id][c] = struct{}{}
	cs.stats.Incr(stats.NumActiveSessions)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}
	delete(cs.clients, c)
	delete(cs.userMap[c.user.Id], c)
	if len(cs.userMap[c.user.Id]) == 0 {
		delete(cs.userMap, c.user.Id)
	}
	cs.stats.Decr(stats.NumActiveSessions)
}

func (cs *ChatServer) getClients() []*Client {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	clients := make([]*Client, 0, len(cs.clients))
	for c := range cs.clients {
		clients = append(clients, c)
	}
	return clients
}

// Shutdown stops every client, waits for the server loop to exit and then
// for AI turns still being answered.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	cs.log.Println("waiting for ai turns")
	return cs.opts.Turns.Wait(ctx)
}
