package pubsub

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockBridge struct {
	mock.Mock
}

func (m *MockBridge) Publish(ctx context.Context, channel string, payload []byte) error {
	args := m.Called(ctx, channel, payload)
	return args.Error(0)
}

func (m *MockBridge) Subscribe(ctx context.Context, channel string, handler Handler) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}

func (m *MockBridge) Unsubscribe(channel string) error {
	args := m.Called(channel)
	return args.Error(0)
}

func (m *MockBridge) Close() error {
	args := m.Called()
	return args.Error(0)
}
