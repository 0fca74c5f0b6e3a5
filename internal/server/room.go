package server

import (
	"context"
	"encoding/json"
	"log"

	"github.com/mgoodwin/go-carpool/internal/database"
	"github.com/mgoodwin/go-carpool/internal/stats"
)

// Room holds the set of local connections for one carpool chat. The room id
// is the carpool's external id and is used verbatim as the shared channel
// name. A room keeps exactly one bridge subscription alive while it has at
// least one member; messages reach local members only through the
// subscription callback, so members on every process observe each message
// exactly once.
type Room struct {
	id          string
	cs          *ChatServer
	joinChan    chan *ClientMessage
	leaveChan   chan *Client
	publishChan chan *ClientMessage
	eventChan   chan []byte
	clients     map[*Client]struct{}
	log         *log.Logger
	subscribed  bool
	// prev, when set, is the done channel of an earlier room for the same
	// carpool that is still tearing down its subscription
	prev chan struct{}
	// exit is used to signal the room to exit
	exit chan struct{}
	done chan struct{}
}

func newRoom(id string, cs *ChatServer) *Room {
	return &Room{
		id:          id,
		cs:          cs,
		joinChan:    make(chan *ClientMessage, 256),
		leaveChan:   make(chan *Client, 256),
		publishChan: make(chan *ClientMessage, 256),
		eventChan:   make(chan []byte, 256),
		clients:     make(map[*Client]struct{}),
		log:         cs.log,
		exit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.id)

	if r.prev != nil {
		// wait for the predecessor's unsubscribe to finish so the new
		// subscription cannot race it on the shared channel
		select {
		case <-r.prev:
		case <-r.exit:
			r.failPendingJoins()
			close(r.done)
			return
		}
	}

	// The shared-channel subscription must be active before the first
	// member is admitted, otherwise an event published right after the
	// join could be missed.
	err := r.cs.bridge.Subscribe(context.Background(), r.id, func(payload []byte) {
		select {
		case r.eventChan <- payload:
		default:
			r.log.Printf("event channel full for room %q, dropping event", r.id)
		}
	})
	if err != nil {
		r.log.Printf("subscribe %q: %v", r.id, err)
		r.requestUnload()
		// fail joins until the server tears the room down; the caller
		// is expected to retry
		for {
			select {
			case join := <-r.joinChan:
				join.client.queueMessage(errFrame("unable to join room"))
			case <-r.exit:
				r.failPendingJoins()
				close(r.done)
				return
			}
		}
	}

	r.subscribed = true
	r.cs.stats.Incr(stats.ActiveSubscriptions)

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case c := <-r.leaveChan:
			r.handleLeave(c)
		case msg := <-r.publishChan:
			r.handlePublish(msg)
		case payload := <-r.eventChan:
			r.broadcast(payload)
		case <-r.exit:
			r.handleExit()
			return
		}
	}
}

func (r *Room) handleJoin(join *ClientMessage) {
	c := join.client
	if _, ok := r.clients[c]; ok {
		return
	}

	r.clients[c] = struct{}{}
	c.setRoom(r)
	r.log.Printf("client %q joined room %q", c.user.Name, r.id)
}

func (r *Room) handleLeave(c *Client) {
	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.clearRoom(r)
	r.log.Printf("client %q left room %q", c.user.Name, r.id)

	// the subscription lives exactly as long as the room has local
	// members; the room unloads once the last one leaves
	if len(r.clients) == 0 {
		r.requestUnload()
	}
}

// handlePublish persists the chat message, then publishes the persisted
// frame to the shared channel. Local members receive it through the
// subscription callback like everyone else; broadcasting here as well would
// deliver it to them twice. A persistence failure is reported to the sender
// only and nothing is published.
func (r *Room) handlePublish(msg *ClientMessage) {
	dbMsg, err := r.cs.db.CreateChatMessage(database.CreateChatMessageParams{
		CarpoolExternalId: r.id,
		SenderId:          msg.UserId,
		Content:           msg.Message,
	})
	if err != nil {
		r.log.Println("error saving message:", err)
		msg.client.queueMessage(errFrame("unable to send message"))
		return
	}

	frame := &ServerMessage{
		Type:      TypeMessage,
		MessageId: dbMsg.Id,
		Name:      msg.Name,
		Message:   msg.Message,
		Timestamp: dbMsg.CreatedAt,
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		r.log.Println("error serializing frame:", err)
		msg.client.queueMessage(errFrame("unable to send message"))
		return
	}

	if err := r.cs.bridge.Publish(context.Background(), r.id, payload); err != nil {
		r.log.Printf("publish to %q: %v", r.id, err)
		msg.client.queueMessage(errFrame("unable to send message"))
		return
	}

	r.cs.stats.Incr(stats.MessagesPublished)
}

// broadcast delivers a shared-channel event to every local member. Delivery
// is best-effort per member; one stalled connection cannot block the rest
// of the room.
func (r *Room) broadcast(payload []byte) {
	for c := range r.clients {
		c.queueRaw(payload)
	}
}

func (r *Room) failPendingJoins() {
	for {
		select {
		case join := <-r.joinChan:
			join.client.queueMessage(errFrame("unable to join room"))
		default:
			return
		}
	}
}

func (r *Room) requestUnload() {
	select {
	case r.cs.unloadRoomChan <- r.id:
	default:
		r.log.Printf("unload channel full for room %q", r.id)
	}
}

func (r *Room) handleExit() {
	r.log.Printf("room %q is exiting", r.id)

	// joins routed here after the unload request was issued get replayed
	// against the chat server, which will load a fresh room with a fresh
	// subscription
	var replay []*ClientMessage
drain:
	for {
		select {
		case join := <-r.joinChan:
			replay = append(replay, join)
		default:
			break drain
		}
	}

	for c := range r.clients {
		c.clearRoom(r)
		replay = append(replay, &ClientMessage{
			Type:      TypeJoin,
			CarpoolId: r.id,
			UserId:    c.user.Id,
			client:    c,
		})
	}
	r.clients = make(map[*Client]struct{})

	if r.subscribed {
		if err := r.cs.bridge.Unsubscribe(r.id); err != nil {
			// membership bookkeeping is the source of truth, a failed
			// transport unsubscribe is logged and swallowed
			r.log.Printf("unsubscribe %q: %v", r.id, err)
		}
		r.subscribed = false
		r.cs.stats.Decr(stats.ActiveSubscriptions)
	}

	close(r.done)

	if len(replay) > 0 {
		go func() {
			for _, join := range replay {
				join.client.joinRoom(join)
			}
		}()
	}
}
