package server

import (
	"context"
	"log"
	"sync"

	"github.com/mgoodwin/go-carpool/internal/database"
	"github.com/mgoodwin/go-carpool/internal/pubsub"
	"github.com/mgoodwin/go-carpool/internal/stats"
)

// ChatServer routes websocket clients into per-carpool rooms. The rooms map
// is owned by the Run loop; each room runs its own goroutine, so bridge
// operations for one room never block joins to unrelated rooms.
type ChatServer struct {
	log            *log.Logger
	db             database.CarpoolRepository
	bridge         pubsub.Bridge
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *ClientMessage
	unloadRoomChan chan string
	rooms          map[string]*Room
	// draining holds the done channel of the last unloaded room per
	// carpool id; a replacement room waits on it before subscribing so
	// subscribe and unsubscribe for one channel never overlap
	draining map[string]chan struct{}
	stop     chan struct{}
	done     chan struct{}
}

func NewChatServer(logger *log.Logger, db database.CarpoolRepository, bridge pubsub.Bridge, su stats.StatsProvider) (*ChatServer, error) {
	su.RegisterMetric(stats.ActiveConnections)
	su.RegisterMetric(stats.ActiveRooms)
	su.RegisterMetric(stats.ActiveSubscriptions)
	su.RegisterMetric(stats.MessagesPublished)

	return &ChatServer{
		log:            logger,
		db:             db,
		bridge:         bridge,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		joinChan:       make(chan *ClientMessage, 256),
		unloadRoomChan: make(chan string, 256),
		rooms:          make(map[string]*Room),
		draining:       make(map[string]chan struct{}),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoin(joinMsg)
		case id := <-cs.unloadRoomChan:
			cs.unloadRoom(id)
		case <-cs.stop:
			cs.log.Println("shutting down rooms")
			for id, r := range cs.rooms {
				cs.log.Printf("shutting down room %q", id)
				close(r.exit)
				<-r.done
			}
			cs.rooms = make(map[string]*Room)

			close(cs.done)
			return
		}
	}
}

func (cs *ChatServer) handleJoin(joinMsg *ClientMessage) {
	room, ok := cs.rooms[joinMsg.CarpoolId]
	if !ok {
		// only load rooms for carpools that exist; join failures are
		// silent to the peer
		if _, err := cs.db.GetCarpoolByExternalId(joinMsg.CarpoolId); err != nil {
			cs.log.Printf("join %q: %v", joinMsg.CarpoolId, err)
			return
		}

		room = newRoom(joinMsg.CarpoolId, cs)
		if drained, ok := cs.draining[joinMsg.CarpoolId]; ok {
			delete(cs.draining, joinMsg.CarpoolId)
			select {
			case <-drained:
			default:
				room.prev = drained
			}
		}
		cs.rooms[room.id] = room
		cs.stats.Incr(stats.ActiveRooms)

		go room.start()
	}

	select {
	case room.joinChan <- joinMsg:
	default:
		cs.log.Printf("join channel full on room %q", room.id)
	}
}

func (cs *ChatServer) unloadRoom(id string) {
	r, ok := cs.rooms[id]
	if !ok {
		return
	}

	cs.log.Printf("removing room %q", id)
	delete(cs.rooms, id)
	cs.stats.Decr(stats.ActiveRooms)

	// the room finishes its exit, including the bridge unsubscribe, on
	// its own goroutine; waiting for it here would stall joins to every
	// other room behind one slow unsubscribe
	cs.draining[id] = r.done
	close(r.exit)
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.ActiveConnections)
	cs.log.Printf("adding connection from %q", c.user.Name)
}

func (cs *ChatServer) DeregisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	cs.stats.Decr(stats.ActiveConnections)
	cs.log.Printf("removing connection from %q", c.user.Name)
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
