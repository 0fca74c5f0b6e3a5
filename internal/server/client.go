package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mgoodwin/go-carpool/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client is a single websocket connection. It is owned exclusively by this
// process and holds at most one room membership at a time.
type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	send       chan []byte
	room       *Room
	roomLock   sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		send:       make(chan []byte, 256),
		stop:       make(chan struct{}),
	}
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
		case payload, ok := <-c.send:
			if !ok {
				return
			}

			if !c.sendMessage(websocket.TextMessage, payload) {
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
			c.queueMessage(errFrame("invalid message format"))
			continue
		}

		if err := msg.validate(); err != nil {
			c.log.Println("protocol error:", err)
			c.queueMessage(errFrame(err.Error()))
			continue
		}

		msg.client = c
		msg.UserId = c.user.Id
		msg.Name = c.user.Name

		switch msg.Type {
		case TypeJoin:
			c.joinRoom(&msg)
		case TypeChat:
			r := c.getRoom()
			if r == nil || r.id != msg.CarpoolId {
				c.queueMessage(errFrame("not in room"))
				continue
			}

			select {
			case r.publishChan <- &msg:
			default:
				c.log.Printf("publish channel full for room %q", r.id)
				c.queueMessage(errFrame("service unavailable"))
			}
		}
	}
}

// queueMessage serializes and enqueues a frame for this client. Delivery is
// best-effort: a full queue drops the frame rather than blocking the caller.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.log.Println("failed to serialize message:", err)
		return false
	}

	return c.queueRaw(payload)
}

func (c *Client) queueRaw(payload []byte) bool {
	select {
	case c.send <- payload:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
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

// cleanup runs when the transport drops, and performs the same room
// bookkeeping as an explicit leave.
func (c *Client) cleanup() {
	c.leaveCurrentRoom()
	c.chatServer.DeregisterClient(c)
	c.stopClient()
}

func (c *Client) leaveCurrentRoom() {
	if r := c.getRoom(); r != nil {
		select {
		case r.leaveChan <- c:
		default:
			c.log.Printf("leave channel full for room %q", r.id)
		}
	}
}

// joinRoom forwards a join request to the chat server. A client may be in
// at most one room, so joining a different room leaves the current one
// first.
func (c *Client) joinRoom(msg *ClientMessage) {
	if cur := c.getRoom(); cur != nil {
		if cur.id == msg.CarpoolId {
			return
		}
		c.leaveCurrentRoom()
	}

	select {
	case c.chatServer.joinChan <- msg:
	default:
		c.log.Println("join channel full")
		c.queueMessage(errFrame("service unavailable"))
	}
}

func (c *Client) setRoom(r *Room) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	c.room = r
}

func (c *Client) clearRoom(r *Room) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	if c.room == r {
		c.room = nil
	}
}

func (c *Client) getRoom() *Room {
	c.roomLock.RLock()
	defer c.roomLock.RUnlock()

	return c.room
}
