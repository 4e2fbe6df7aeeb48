package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatroom/internal/mention"
	"github.com/npezzotti/go-chatroom/internal/session"
	"github.com/npezzotti/go-chatroom/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	requestTimeout = 15 * time.Second
)

type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	session    *session.Synchronizer
	log        *log.Logger
	user       types.User
	send       chan *ServerMessage
	stop       chan struct{}
	stopOnce   sync.Once
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:       conn,
		chatServer: cs,
		session:    cs.NewSession(),
		log:        l,
		user:       user,
		send:       make(chan *ServerMessage, 256),
		stop:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start opens the client's session, registers it with the chat server
// and starts the read and write pumps.
func (c *Client) Start(ctx context.Context) error {
	if _, err := c.session.Open(ctx, c.user.Id); err != nil {
		c.cancel()
		return err
	}

	c.chatServer.RegisterClient(c)
	go c.Write()
	go c.Read()

	return nil
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			if !c.writeJSON(msg) {
				return
			}
		case <-c.session.Changes():
			room, ok := c.session.Snapshot()
			if !ok {
				continue
			}

			if !c.writeJSON(RoomUpdate(room, c.session.AIPending())) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) writeJSON(msg *ServerMessage) bool {
	bytes, err := serializeMessage(msg)
	if err != nil {
		c.log.Println("failed to serialize message:", err)
		return true
	}

	return c.sendMessage(websocket.TextMessage, bytes)
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.UserId = c.user.Id
		msg.Timestamp = Now()

		c.handle(&msg)
	}
}

// handle runs one client request against the session. Requests from a
// client are handled one at a time in the order received.
func (c *Client) handle(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()

	switch {
	case msg.Join != nil:
		c.joinRoom(ctx, msg)
	case msg.Leave != nil:
		c.session.LeaveRoom()
		c.queueMessage(NoErrOK(msg.Id, nil))
	case msg.Publish != nil:
		c.publish(ctx, msg)
	case msg.CreateRoom != nil:
		c.createRoom(ctx, msg)
	case msg.ToggleMute != nil:
		c.toggleMute(ctx, msg)
	case msg.Mention != nil:
		c.detectMention(msg)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) joinRoom(ctx context.Context, msg *ClientMessage) {
	if _, err := c.session.JoinRoom(ctx, msg.Join.RoomId); err != nil {
		c.log.Printf("join room %q: %v", msg.Join.RoomId, err)
		c.queueMessage(errorResponse(msg.Id, err))
		return
	}

	c.queueMessage(NoErrOK(msg.Id, map[string]any{"room_id": msg.Join.RoomId}))
}

func (c *Client) publish(ctx context.Context, msg *ClientMessage) {
	sent, err := c.session.SendMessage(ctx, msg.Publish.Content)
	if err != nil {
		c.log.Printf("publish from %q: %v", c.user.Username, err)
		c.queueMessage(errorResponse(msg.Id, err))
		return
	}

	c.queueMessage(NoErrOK(msg.Id, sent))
}

func (c *Client) createRoom(ctx context.Context, msg *ClientMessage) {
	room, err := c.session.CreateRoom(ctx, msg.CreateRoom.Name)
	if err != nil {
		c.log.Printf("create room %q: %v", msg.CreateRoom.Name, err)
		c.queueMessage(errorResponse(msg.Id, err))
		return
	}

	c.queueMessage(NoErrOK(msg.Id, map[string]any{"room_id": room.Id, "name": room.Name}))
}

func (c *Client) toggleMute(ctx context.Context, msg *ClientMessage) {
	settings, err := c.session.ToggleAIMute(ctx)
	if err != nil {
		c.log.Printf("toggle ai mute: %v", err)
		c.queueMessage(errorResponse(msg.Id, err))
		return
	}

	c.queueMessage(NoErrOK(msg.Id, settings))
}

func (c *Client) detectMention(msg *ClientMessage) {
	room, ok := c.session.Snapshot()
	if !ok {
		c.queueMessage(ErrNotJoined(msg.Id))
		return
	}

	trigger := mention.Detect(msg.Mention.Text, msg.Mention.Cursor, room.Participants, room.Settings.IsAIMuted)
	c.queueMessage(MentionUpdate(msg.Id, trigger))
}

func errorResponse(id int, err error) *ServerMessage {
	switch {
	case errors.Is(err, session.ErrRoomNotFound):
		return ErrRoomNotFound(id)
	case errors.Is(err, session.ErrNotJoined):
		return ErrNotJoined(id)
	case errors.Is(err, session.ErrEmptyMessage), errors.Is(err, session.ErrInvalidRoomName):
		return ErrBadRequest(id, err.Error())
	case errors.Is(err, session.ErrNotAuthenticated):
		return ErrAuthFailed(id)
	case errors.Is(err, session.ErrJoinSuperseded), errors.Is(err, context.DeadlineExceeded):
		return ErrServiceUnavailable(id)
	default:
		return ErrInternalError(id)
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.cancel()
	c.session.Close()
	c.chatServer.DeRegisterClient(c)
	c.stopClient()
}
