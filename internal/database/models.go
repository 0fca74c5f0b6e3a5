package database

import "time"

type Account struct {
	Id           int
	Name         string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Carpool struct {
	Id            int
	ExternalId    string
	OwnerId       int
	OwnerName     string
	CarName       string
	Origin        string
	Destination   string
	DepartureTime time.Time
	Price         float64
	TotalSeats    int
	BookedSeats   int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Bookings      []Booking
}

type Booking struct {
	Id        int
	CarpoolId int
	RiderId   int
	RiderName string
	Seats     int
	CreatedAt time.Time
}

type ChatMessage struct {
	Id         int
	CarpoolId  int
	SenderId   int
	SenderName string
	Content    string
	CreatedAt  time.Time
}

type CreateAccountParams struct {
	Name         string
	EmailAddress string
	PasswordHash string
}

type CreateCarpoolParams struct {
	ExternalId    string
	OwnerId       int
	CarName       string
	Origin        string
	Destination   string
	DepartureTime time.Time
	Price         float64
	TotalSeats    int
}

type BookSeatsParams struct {
	CarpoolExternalId string
	RiderId           int
	Seats             int
}

type CreateChatMessageParams struct {
	CarpoolExternalId string
	SenderId          int
	Content           string
}
