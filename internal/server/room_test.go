package server

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mgoodwin/go-carpool/internal/database"
	"github.com/mgoodwin/go-carpool/internal/pubsub"
	"github.com/mgoodwin/go-carpool/internal/testutil"
	"github.com/mgoodwin/go-carpool/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func Test_handleJoin_handleLeave(t *testing.T) {
	cs := newTestChatServer(t, &database.MockCarpoolRepository{}, &pubsub.MockBridge{})
	room := newRoom("pool-1", cs)

	c := NewClient(types.User{Id: 1, Name: "alice"}, nil, cs, testutil.TestLogger(t))

	room.handleJoin(&ClientMessage{Type: TypeJoin, CarpoolId: "pool-1", UserId: 1, client: c})
	assert.Contains(t, room.clients, c, "expected room to contain client after join")
	assert.Equal(t, room, c.getRoom(), "expected client's room to be set")

	// joining again is a no-op
	room.handleJoin(&ClientMessage{Type: TypeJoin, CarpoolId: "pool-1", UserId: 1, client: c})
	assert.Len(t, room.clients, 1, "expected a single membership per client")

	room.handleLeave(c)
	assert.NotContains(t, room.clients, c, "expected room not to contain client after leave")
	assert.Nil(t, c.getRoom(), "expected client's room to be cleared")

	select {
	case id := <-cs.unloadRoomChan:
		assert.Equal(t, "pool-1", id, "expected unload request for the emptied room")
	default:
		t.Error("expected an unload request after the last member left")
	}

	// leaving a room the client is not in is harmless
	room.handleLeave(c)
}

func Test_handleLeave_keepsRoomWithRemainingMembers(t *testing.T) {
	cs := newTestChatServer(t, &database.MockCarpoolRepository{}, &pubsub.MockBridge{})
	room := newRoom("pool-1", cs)

	logger := testutil.TestLogger(t)
	c1 := NewClient(types.User{Id: 1, Name: "alice"}, nil, cs, logger)
	c2 := NewClient(types.User{Id: 2, Name: "bob"}, nil, cs, logger)
	room.handleJoin(&ClientMessage{Type: TypeJoin, CarpoolId: "pool-1", UserId: 1, client: c1})
	room.handleJoin(&ClientMessage{Type: TypeJoin, CarpoolId: "pool-1", UserId: 2, client: c2})

	room.handleLeave(c1)

	select {
	case <-cs.unloadRoomChan:
		t.Error("expected no unload request while members remain")
	default:
	}
}

func Test_handlePublish(t *testing.T) {
	t.Run("persists then publishes the persisted frame", func(t *testing.T) {
		createdAt := Now()

		db := &database.MockCarpoolRepository{}
		defer db.AssertExpectations(t)
		db.On("CreateChatMessage", database.CreateChatMessageParams{
			CarpoolExternalId: "pool-1",
			SenderId:          1,
			Content:           "hello",
		}).Return(database.ChatMessage{Id: 7, CarpoolId: 1, SenderId: 1, Content: "hello", CreatedAt: createdAt}, nil)

		bridge := &pubsub.MockBridge{}
		defer bridge.AssertExpectations(t)
		bridge.On("Publish", mock.Anything, "pool-1", mock.MatchedBy(func(payload []byte) bool {
			var frame ServerMessage
			if err := json.Unmarshal(payload, &frame); err != nil {
				return false
			}
			return frame.Type == TypeMessage &&
				frame.MessageId == 7 &&
				frame.Name == "alice" &&
				frame.Message == "hello" &&
				frame.Timestamp.Equal(createdAt)
		})).Return(nil).Once()

		cs := newTestChatServer(t, db, bridge)
		room := newRoom("pool-1", cs)
		c := NewClient(types.User{Id: 1, Name: "alice"}, nil, cs, testutil.TestLogger(t))
		room.handleJoin(&ClientMessage{Type: TypeJoin, CarpoolId: "pool-1", UserId: 1, client: c})

		room.handlePublish(&ClientMessage{
			Type:      TypeChat,
			CarpoolId: "pool-1",
			UserId:    1,
			Name:      "alice",
			Message:   "hello",
			client:    c,
		})

		// local delivery is driven only by the subscription callback,
		// publishing must not echo the frame to local members directly
		select {
		case payload := <-c.send:
			t.Errorf("unexpected direct frame to local member: %s", payload)
		default:
		}
	})

	t.Run("persistence failure short-circuits publish", func(t *testing.T) {
		db := &database.MockCarpoolRepository{}
		defer db.AssertExpectations(t)
		db.On("CreateChatMessage", mock.Anything).Return(database.ChatMessage{}, errors.New("db down"))

		bridge := &pubsub.MockBridge{}
		defer bridge.AssertExpectations(t)

		cs := newTestChatServer(t, db, bridge)
		room := newRoom("pool-1", cs)
		c := NewClient(types.User{Id: 1, Name: "alice"}, nil, cs, testutil.TestLogger(t))
		room.handleJoin(&ClientMessage{Type: TypeJoin, CarpoolId: "pool-1", UserId: 1, client: c})

		room.handlePublish(&ClientMessage{
			Type:      TypeChat,
			CarpoolId: "pool-1",
			UserId:    1,
			Name:      "alice",
			Message:   "hello",
			client:    c,
		})

		bridge.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)

		// the sender is told, other members never see the message
		select {
		case payload := <-c.send:
			var frame ServerMessage
			assert.NoError(t, json.Unmarshal(payload, &frame), "expected frame to decode")
			assert.Equal(t, TypeError, frame.Type, "expected an error frame for the sender")
		default:
			t.Error("expected the sender to receive an error frame")
		}
	})

	t.Run("publish failure is reported to the sender", func(t *testing.T) {
		db := &database.MockCarpoolRepository{}
		defer db.AssertExpectations(t)
		db.On("CreateChatMessage", mock.Anything).Return(database.ChatMessage{Id: 7, CreatedAt: Now()}, nil)

		bridge := &pubsub.MockBridge{}
		defer bridge.AssertExpectations(t)
		bridge.On("Publish", mock.Anything, "pool-1", mock.Anything).Return(errors.New("redis down"))

		cs := newTestChatServer(t, db, bridge)
		room := newRoom("pool-1", cs)
		c := NewClient(types.User{Id: 1, Name: "alice"}, nil, cs, testutil.TestLogger(t))
		room.handleJoin(&ClientMessage{Type: TypeJoin, CarpoolId: "pool-1", UserId: 1, client: c})

		room.handlePublish(&ClientMessage{
			Type:      TypeChat,
			CarpoolId: "pool-1",
			UserId:    1,
			Name:      "alice",
			Message:   "hello",
			client:    c,
		})

		select {
		case payload := <-c.send:
			var frame ServerMessage
			assert.NoError(t, json.Unmarshal(payload, &frame), "expected frame to decode")
			assert.Equal(t, TypeError, frame.Type, "expected an error frame for the sender")
		default:
			t.Error("expected the sender to receive an error frame")
		}
	})
}

func Test_broadcast(t *testing.T) {
	cs := newTestChatServer(t, &database.MockCarpoolRepository{}, &pubsub.MockBridge{})
	room := newRoom("pool-1", cs)

	logger := testutil.TestLogger(t)
	healthy := NewClient(types.User{Id: 1, Name: "alice"}, nil, cs, logger)
	room.handleJoin(&ClientMessage{Type: TypeJoin, CarpoolId: "pool-1", UserId: 1, client: healthy})

	// a member whose send queue is full must not block the rest of the room
	stalled := &Client{
		chatServer: cs,
		log:        logger,
		user:       types.User{Id: 2, Name: "bob"},
		send:       make(chan []byte),
		stop:       make(chan struct{}),
	}
	room.handleJoin(&ClientMessage{Type: TypeJoin, CarpoolId: "pool-1", UserId: 2, client: stalled})

	room.broadcast([]byte(`{"type":"message","name":"alice","message":"hi"}`))

	select {
	case payload := <-healthy.send:
		assert.JSONEq(t, `{"type":"message","name":"alice","message":"hi"}`, string(payload), "expected payload to be delivered verbatim")
	default:
		t.Error("expected healthy member to receive the broadcast")
	}
}

func Test_handleExit(t *testing.T) {
	t.Run("releases the subscription", func(t *testing.T) {
		bridge := &pubsub.MockBridge{}
		defer bridge.AssertExpectations(t)
		bridge.On("Unsubscribe", "pool-1").Return(nil).Once()

		cs := newTestChatServer(t, &database.MockCarpoolRepository{}, bridge)
		room := newRoom("pool-1", cs)
		room.subscribed = true

		room.handleExit()

		select {
		case <-room.done:
		default:
			t.Error("expected done channel to be closed")
		}
	})

	t.Run("transport failure on unsubscribe is swallowed", func(t *testing.T) {
		bridge := &pubsub.MockBridge{}
		defer bridge.AssertExpectations(t)
		bridge.On("Unsubscribe", "pool-1").Return(errors.New("connection reset")).Once()

		cs := newTestChatServer(t, &database.MockCarpoolRepository{}, bridge)
		room := newRoom("pool-1", cs)
		room.subscribed = true

		room.handleExit()

		assert.False(t, room.subscribed, "expected local subscription state to be cleared")
	})

	t.Run("replays joins that raced the unload", func(t *testing.T) {
		bridge := &pubsub.MockBridge{}
		defer bridge.AssertExpectations(t)
		bridge.On("Unsubscribe", "pool-1").Return(nil).Once()

		cs := newTestChatServer(t, &database.MockCarpoolRepository{}, bridge)
		room := newRoom("pool-1", cs)
		room.subscribed = true

		c := NewClient(types.User{Id: 1, Name: "alice"}, nil, cs, testutil.TestLogger(t))
		room.joinChan <- &ClientMessage{Type: TypeJoin, CarpoolId: "pool-1", UserId: 1, client: c}

		room.handleExit()

		select {
		case join := <-cs.joinChan:
			assert.Equal(t, c, join.client, "expected the raced join to be replayed")
			assert.Equal(t, "pool-1", join.CarpoolId, "expected replayed join for the same room")
		case <-time.After(time.Second):
			t.Error("timeout: raced join was not replayed")
		}
	})
}
