package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

func (db *PgCarpoolRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (name, email, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, name, email, created_at",
		params.Name,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.Name,
		&a.EmailAddress,
		&a.CreatedAt,
	)

	return a, err
}

func (db *PgCarpoolRepository) GetAccountById(id int) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, email FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Name,
		&a.EmailAddress,
	)

	return a, err
}

func (db *PgCarpoolRepository) GetAccountByEmail(email string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, email, password_hash FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Name,
		&a.EmailAddress,
		&a.PasswordHash,
	)

	return a, err
}

func (db *PgCarpoolRepository) CreateCarpool(params CreateCarpoolParams) (Carpool, error) {
	res := db.conn.QueryRow(
		"INSERT INTO carpools (external_id, owner_id, car_name, origin, destination, departure_time, price, total_seats, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) "+
			"RETURNING id, external_id, owner_id, car_name, origin, destination, departure_time, price, total_seats, booked_seats, created_at",
		params.ExternalId,
		params.OwnerId,
		params.CarName,
		params.Origin,
		params.Destination,
		params.DepartureTime,
		params.Price,
		params.TotalSeats,
		time.Now().UTC(),
	)

	var c Carpool
	err := res.Scan(
		&c.Id,
		&c.ExternalId,
		&c.OwnerId,
		&c.CarName,
		&c.Origin,
		&c.Destination,
		&c.DepartureTime,
		&c.Price,
		&c.TotalSeats,
		&c.BookedSeats,
		&c.CreatedAt,
	)

	return c, err
}

func (db *PgCarpoolRepository) GetCarpoolByExternalId(externalId string) (Carpool, error) {
	row := db.conn.QueryRow(
		"SELECT c.id, c.external_id, c.owner_id, a.name, c.car_name, c.origin, c.destination, "+
			"c.departure_time, c.price, c.total_seats, c.booked_seats, c.created_at, c.updated_at "+
			"FROM carpools c JOIN accounts a ON c.owner_id = a.id "+
			"WHERE c.external_id = $1 LIMIT 1",
		externalId,
	)

	var c Carpool
	err := row.Scan(
		&c.Id,
		&c.ExternalId,
		&c.OwnerId,
		&c.OwnerName,
		&c.CarName,
		&c.Origin,
		&c.Destination,
		&c.DepartureTime,
		&c.Price,
		&c.TotalSeats,
		&c.BookedSeats,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Carpool{}, ErrCarpoolNotFound
	}

	return c, err
}

// ListCarpools returns every carpool with its owner's display name and
// its bookings with rider display names resolved.
func (db *PgCarpoolRepository) ListCarpools() ([]Carpool, error) {
	query := `
		SELECT
			c.id,
			c.external_id,
			c.owner_id,
			o.name AS owner_name,
			c.car_name,
			c.origin,
			c.destination,
			c.departure_time,
			c.price,
			c.total_seats,
			c.booked_seats,
			c.created_at,
			c.updated_at,
			b.id,
			b.rider_id,
			r.name AS rider_name,
			b.seats,
			b.created_at AS booking_created_at
		FROM carpools c
		JOIN accounts o ON c.owner_id = o.id
		LEFT JOIN bookings b ON b.carpool_id = c.id
		LEFT JOIN accounts r ON b.rider_id = r.id
		ORDER BY c.departure_time, c.id, b.id;
`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list carpools: %w", err)
	}
	defer rows.Close()

	var carpools []Carpool
	byId := make(map[int]int)
	for rows.Next() {
		var (
			c                Carpool
			bookingId        sql.NullInt64
			riderId          sql.NullInt64
			riderName        sql.NullString
			seats            sql.NullInt64
			bookingCreatedAt sql.NullTime
		)

		err := rows.Scan(
			&c.Id,
			&c.ExternalId,
			&c.OwnerId,
			&c.OwnerName,
			&c.CarName,
			&c.Origin,
			&c.Destination,
			&c.DepartureTime,
			&c.Price,
			&c.TotalSeats,
			&c.BookedSeats,
			&c.CreatedAt,
			&c.UpdatedAt,
			&bookingId,
			&riderId,
			&riderName,
			&seats,
			&bookingCreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan carpool row: %w", err)
		}

		idx, ok := byId[c.Id]
		if !ok {
			carpools = append(carpools, c)
			idx = len(carpools) - 1
			byId[c.Id] = idx
		}

		if bookingId.Valid {
			carpools[idx].Bookings = append(carpools[idx].Bookings, Booking{
				Id:        int(bookingId.Int64),
				CarpoolId: c.Id,
				RiderId:   int(riderId.Int64),
				RiderName: riderName.String,
				Seats:     int(seats.Int64),
				CreatedAt: bookingCreatedAt.Time,
			})
		}
	}

	return carpools, rows.Err()
}

// BookSeats reserves seats for a rider in a single transaction. The seat
// increment is a conditional update re-checked against capacity at commit
// time, so two concurrent bookings cannot overbook the carpool.
func (db *PgCarpoolRepository) BookSeats(params BookSeatsParams) (Booking, error) {
	if params.Seats < 1 {
		return Booking{}, ErrInvalidSeatCount
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return Booking{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var (
		carpoolId int
		ownerId   int
	)
	err = tx.QueryRow(
		"SELECT id, owner_id FROM carpools WHERE external_id = $1",
		params.CarpoolExternalId,
	).Scan(&carpoolId, &ownerId)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, ErrCarpoolNotFound
	} else if err != nil {
		return Booking{}, err
	}

	if ownerId == params.RiderId {
		return Booking{}, ErrSelfBooking
	}

	var exists bool
	err = tx.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM bookings WHERE carpool_id = $1 AND rider_id = $2)",
		carpoolId, params.RiderId,
	).Scan(&exists)
	if err != nil {
		return Booking{}, err
	}
	if exists {
		return Booking{}, ErrDuplicateBooking
	}

	res, err := tx.Exec(
		"UPDATE carpools SET booked_seats = booked_seats + $2, updated_at = $3 "+
			"WHERE id = $1 AND booked_seats + $2 <= total_seats",
		carpoolId, params.Seats, time.Now().UTC(),
	)
	if err != nil {
		return Booking{}, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Booking{}, err
	}
	if affected == 0 {
		return Booking{}, ErrCapacityExceeded
	}

	var b Booking
	err = tx.QueryRow(
		"INSERT INTO bookings (carpool_id, rider_id, seats, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, carpool_id, rider_id, seats, created_at",
		carpoolId, params.RiderId, params.Seats, time.Now().UTC(),
	).Scan(&b.Id, &b.CarpoolId, &b.RiderId, &b.Seats, &b.CreatedAt)
	if err != nil {
		// a concurrent booking by the same rider loses to the unique constraint
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return Booking{}, ErrDuplicateBooking
		}
		return Booking{}, err
	}

	if err := tx.Commit(); err != nil {
		return Booking{}, fmt.Errorf("commit: %w", err)
	}

	return b, nil
}

// CancelBooking removes a rider's booking and frees exactly the seats that
// booking held. Cancelling with no booking is a no-op returning zero freed
// seats.
func (db *PgCarpoolRepository) CancelBooking(carpoolExternalId string, riderId int) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var carpoolId int
	err = tx.QueryRow(
		"SELECT id FROM carpools WHERE external_id = $1",
		carpoolExternalId,
	).Scan(&carpoolId)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrCarpoolNotFound
	} else if err != nil {
		return 0, err
	}

	var freed int
	err = tx.QueryRow(
		"DELETE FROM bookings WHERE carpool_id = $1 AND rider_id = $2 RETURNING seats",
		carpoolId, riderId,
	).Scan(&freed)
	if errors.Is(err, sql.ErrNoRows) {
		// nothing to cancel, tolerate duplicate client retries
		return 0, nil
	} else if err != nil {
		return 0, err
	}

	_, err = tx.Exec(
		"UPDATE carpools SET booked_seats = booked_seats - $2, updated_at = $3 WHERE id = $1",
		carpoolId, freed, time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	return freed, nil
}

func (db *PgCarpoolRepository) CreateChatMessage(params CreateChatMessageParams) (ChatMessage, error) {
	res := db.conn.QueryRow(
		"INSERT INTO chat_messages (carpool_id, sender_id, content, created_at) "+
			"SELECT c.id, $2, $3, $4 FROM carpools c WHERE c.external_id = $1 "+
			"RETURNING id, carpool_id, sender_id, content, created_at",
		params.CarpoolExternalId,
		params.SenderId,
		params.Content,
		time.Now().UTC(),
	)

	var m ChatMessage
	err := res.Scan(
		&m.Id,
		&m.CarpoolId,
		&m.SenderId,
		&m.Content,
		&m.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatMessage{}, ErrCarpoolNotFound
	}

	return m, err
}

func (db *PgCarpoolRepository) GetChatMessages(carpoolExternalId string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.Query(
		"SELECT m.id, m.carpool_id, m.sender_id, a.name, m.content, m.created_at "+
			"FROM chat_messages m "+
			"JOIN carpools c ON m.carpool_id = c.id "+
			"JOIN accounts a ON m.sender_id = a.id "+
			"WHERE c.external_id = $1 ORDER BY m.created_at, m.id LIMIT $2",
		carpoolExternalId, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat messages: %w", err)
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var m ChatMessage
		err := rows.Scan(
			&m.Id,
			&m.CarpoolId,
			&m.SenderId,
			&m.SenderName,
			&m.Content,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}

		messages = append(messages, m)
	}

	return messages, rows.Err()
}
