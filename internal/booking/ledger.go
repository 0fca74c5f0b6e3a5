// Package booking applies seat reservations and cancellations to carpools.
// All seat-count mutations go through the repository's atomic conditional
// primitives; the ledger itself never holds seat state.
package booking

import (
	"context"
	"log"

	"github.com/mgoodwin/go-carpool/internal/cache"
	"github.com/mgoodwin/go-carpool/internal/database"
	"github.com/mgoodwin/go-carpool/internal/stats"
	"github.com/mgoodwin/go-carpool/internal/types"
)

type Ledger struct {
	log   *log.Logger
	db    database.CarpoolRepository
	cache cache.ListingCache
	stats stats.StatsProvider
}

func NewLedger(logger *log.Logger, db database.CarpoolRepository, listingCache cache.ListingCache, su stats.StatsProvider) *Ledger {
	su.RegisterMetric(stats.BookingsCreated)
	su.RegisterMetric(stats.BookingsCancelled)

	return &Ledger{
		log:   logger,
		db:    db,
		cache: listingCache,
		stats: su,
	}
}

// Book reserves seats on a carpool for a rider. Preconditions are evaluated
// inside the repository transaction against current state, so two concurrent
// bookings cannot jointly exceed capacity.
func (l *Ledger) Book(ctx context.Context, carpoolId string, riderId, seats int) (types.Booking, error) {
	if seats < 1 {
		return types.Booking{}, database.ErrInvalidSeatCount
	}

	b, err := l.db.BookSeats(database.BookSeatsParams{
		CarpoolExternalId: carpoolId,
		RiderId:           riderId,
		Seats:             seats,
	})
	if err != nil {
		return types.Booking{}, err
	}

	l.stats.Incr(stats.BookingsCreated)

	// invalidation is an optimization, the cached snapshot expires on its own
	if err := l.cache.Invalidate(ctx); err != nil {
		l.log.Printf("invalidate listings after booking: %v", err)
	}

	return types.Booking{
		Id:        b.Id,
		CarpoolId: carpoolId,
		RiderId:   b.RiderId,
		Seats:     b.Seats,
		CreatedAt: b.CreatedAt,
	}, nil
}

// Cancel removes the rider's booking and frees exactly the seats that
// booking held. Cancelling when no booking exists returns zero freed seats
// and no error, so duplicate client retries are harmless.
func (l *Ledger) Cancel(ctx context.Context, carpoolId string, riderId int) (int, error) {
	freed, err := l.db.CancelBooking(carpoolId, riderId)
	if err != nil {
		return 0, err
	}

	if freed > 0 {
		l.stats.Incr(stats.BookingsCancelled)

		if err := l.cache.Invalidate(ctx); err != nil {
			l.log.Printf("invalidate listings after cancellation: %v", err)
		}
	}

	return freed, nil
}
