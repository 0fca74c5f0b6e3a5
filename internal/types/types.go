package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Name         string    `json:"name"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Carpool struct {
	Id            int       `json:"id"`
	ExternalId    string    `json:"external_id"`
	OwnerId       int       `json:"owner_id"`
	OwnerName     string    `json:"owner_name,omitempty"`
	CarName       string    `json:"car_name"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departure_time"`
	Price         float64   `json:"price"`
	TotalSeats    int       `json:"total_seats"`
	BookedSeats   int       `json:"booked_seats"`
	Bookings      []Booking `json:"bookings,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

type Booking struct {
	Id        int       `json:"id"`
	CarpoolId string    `json:"carpool_id"`
	RiderId   int       `json:"rider_id"`
	RiderName string    `json:"rider_name,omitempty"`
	Seats     int       `json:"seats"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type ChatMessage struct {
	Id         int       `json:"id"`
	CarpoolId  string    `json:"carpool_id"`
	SenderId   int       `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}
