package server

import (
	"encoding/json"
	"testing"

	"github.com/mgoodwin/go-carpool/internal/database"
	"github.com/mgoodwin/go-carpool/internal/pubsub"
	"github.com/mgoodwin/go-carpool/internal/testutil"
	"github.com/mgoodwin/go-carpool/internal/types"
	"github.com/stretchr/testify/assert"
)

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan []byte, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(errFrame("boom"))
		assert.True(t, res, "expected queueMessage to return true when channel is not full")

		select {
		case payload := <-c.send:
			var frame ServerMessage
			assert.NoError(t, json.Unmarshal(payload, &frame), "expected payload to decode")
			assert.Equal(t, TypeError, frame.Type, "expected the queued frame")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan []byte, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- []byte(`{}`) // Pre-fill the send channel to simulate a full channel
		res := c.queueMessage(errFrame("boom"))
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()

	select {
	case <-c.stop:
		// Channel is closed as expected
	default:
		t.Error("expected stop channel to be closed")
	}

	// stopping twice must not panic
	c.stopClient()
}

func Test_setClearGetRoom(t *testing.T) {
	c := &Client{log: testutil.TestLogger(t)}
	r := &Room{id: "pool-1"}

	assert.Nil(t, c.getRoom(), "expected no room initially")

	c.setRoom(r)
	assert.Equal(t, r, c.getRoom(), "expected room to be set")

	other := &Room{id: "pool-2"}
	c.clearRoom(other)
	assert.Equal(t, r, c.getRoom(), "expected clearing a different room to be a no-op")

	c.clearRoom(r)
	assert.Nil(t, c.getRoom(), "expected room to be cleared")
}

func Test_joinRoom(t *testing.T) {
	cs := newTestChatServer(t, &database.MockCarpoolRepository{}, &pubsub.MockBridge{})

	t.Run("forwards the join to the chat server", func(t *testing.T) {
		c := NewClient(types.User{Id: 1, Name: "alice"}, nil, cs, testutil.TestLogger(t))

		c.joinRoom(&ClientMessage{Type: TypeJoin, CarpoolId: "pool-1", UserId: 1, client: c})

		select {
		case join := <-cs.joinChan:
			assert.Equal(t, "pool-1", join.CarpoolId, "expected join for the requested room")
			assert.Equal(t, c, join.client, "expected join to carry the client")
		default:
			t.Error("expected join to be forwarded to the chat server")
		}
	})

	t.Run("joining the current room again is a no-op", func(t *testing.T) {
		c := NewClient(types.User{Id: 1, Name: "alice"}, nil, cs, testutil.TestLogger(t))
		r := &Room{id: "pool-1", leaveChan: make(chan *Client, 1)}
		c.setRoom(r)

		c.joinRoom(&ClientMessage{Type: TypeJoin, CarpoolId: "pool-1", UserId: 1, client: c})

		select {
		case <-cs.joinChan:
			t.Error("expected no join to be forwarded for the current room")
		default:
		}
		assert.Empty(t, r.leaveChan, "expected no implicit leave for the current room")
	})

	t.Run("joining a different room leaves the current one first", func(t *testing.T) {
		c := NewClient(types.User{Id: 1, Name: "alice"}, nil, cs, testutil.TestLogger(t))
		old := &Room{id: "pool-1", leaveChan: make(chan *Client, 1)}
		c.setRoom(old)

		c.joinRoom(&ClientMessage{Type: TypeJoin, CarpoolId: "pool-2", UserId: 1, client: c})

		select {
		case left := <-old.leaveChan:
			assert.Equal(t, c, left, "expected an implicit leave from the old room")
		default:
			t.Error("expected an implicit leave from the old room")
		}

		select {
		case join := <-cs.joinChan:
			assert.Equal(t, "pool-2", join.CarpoolId, "expected join for the new room")
		default:
			t.Error("expected join to be forwarded to the chat server")
		}
	})
}

func Test_cleanup(t *testing.T) {
	cs := newTestChatServer(t, &database.MockCarpoolRepository{}, &pubsub.MockBridge{})

	c := NewClient(types.User{Id: 1, Name: "alice"}, nil, cs, testutil.TestLogger(t))
	cs.RegisterClient(c)

	r := &Room{id: "pool-1", leaveChan: make(chan *Client, 1)}
	c.setRoom(r)

	c.cleanup()

	// a dropped transport performs the same bookkeeping as an explicit leave
	select {
	case left := <-r.leaveChan:
		assert.Equal(t, c, left, "expected the room to be left on cleanup")
	default:
		t.Error("expected a leave to be sent on cleanup")
	}

	assert.NotContains(t, cs.clients, c, "expected client to be deregistered")

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}
