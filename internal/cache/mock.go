package cache

import (
	"context"

	"github.com/mgoodwin/go-carpool/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockListingCache struct {
	mock.Mock
}

func (m *MockListingCache) GetListings(ctx context.Context) ([]types.Carpool, bool, error) {
	args := m.Called(ctx)
	var listings []types.Carpool
	if args.Get(0) != nil {
		listings = args.Get(0).([]types.Carpool)
	}
	return listings, args.Bool(1), args.Error(2)
}

func (m *MockListingCache) SetListings(ctx context.Context, listings []types.Carpool) error {
	args := m.Called(ctx, listings)
	return args.Error(0)
}

func (m *MockListingCache) Invalidate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
