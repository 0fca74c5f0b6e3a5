package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mgoodwin/go-carpool/internal/database"
	"github.com/mgoodwin/go-carpool/internal/server"
	"github.com/mgoodwin/go-carpool/internal/types"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type CreateCarpoolRequest struct {
	CarName       string    `json:"car_name"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departure_time"`
	Price         float64   `json:"price"`
	TotalSeats    int       `json:"total_seats"`
}

type BookingRequest struct {
	CarpoolId string `json:"carpool_id"`
	Seats     int    `json:"seats"`
}

type CancelBookingResponse struct {
	CarpoolId  string `json:"carpool_id"`
	FreedSeats int    `json:"freed_seats"`
}

func (s *CarpoolApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *CarpoolApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *CarpoolApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateAccountParams{
		Name:         req.Name,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
	}

	newUser, err := s.db.CreateAccount(params)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.User{
		Id:           newUser.Id,
		Name:         newUser.Name,
		EmailAddress: newUser.EmailAddress,
		CreatedAt:    newUser.CreatedAt,
		UpdatedAt:    newUser.UpdatedAt,
	})
}

func (s *CarpoolApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	u := types.User{
		Id:           dbUser.Id,
		Name:         dbUser.Name,
		EmailAddress: dbUser.EmailAddress,
		CreatedAt:    dbUser.CreatedAt,
		UpdatedAt:    dbUser.UpdatedAt,
	}

	token, err := s.createJwtForSession(u, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, u)
}

func (s *CarpoolApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, types.User{
		Id:           user.Id,
		Name:         user.Name,
		EmailAddress: user.EmailAddress,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	})
}

func (s *CarpoolApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

func carpoolFromDb(dbCarpool database.Carpool) types.Carpool {
	cp := types.Carpool{
		Id:            dbCarpool.Id,
		ExternalId:    dbCarpool.ExternalId,
		OwnerId:       dbCarpool.OwnerId,
		OwnerName:     dbCarpool.OwnerName,
		CarName:       dbCarpool.CarName,
		Origin:        dbCarpool.Origin,
		Destination:   dbCarpool.Destination,
		DepartureTime: dbCarpool.DepartureTime,
		Price:         dbCarpool.Price,
		TotalSeats:    dbCarpool.TotalSeats,
		BookedSeats:   dbCarpool.BookedSeats,
		CreatedAt:     dbCarpool.CreatedAt,
		UpdatedAt:     dbCarpool.UpdatedAt,
	}

	for _, b := range dbCarpool.Bookings {
		cp.Bookings = append(cp.Bookings, types.Booking{
			Id:        b.Id,
			CarpoolId: dbCarpool.ExternalId,
			RiderId:   b.RiderId,
			RiderName: b.RiderName,
			Seats:     b.Seats,
			CreatedAt: b.CreatedAt,
		})
	}

	return cp
}

func (s *CarpoolApp) listCarpools(w http.ResponseWriter, r *http.Request) {
	cached, ok, err := s.listings.GetListings(r.Context())
	if err != nil {
		s.log.Println("listing cache get:", err)
	}
	if ok {
		s.writeJson(w, http.StatusOK, cached)
		return
	}

	dbCarpools, err := s.db.ListCarpools()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	carpools := make([]types.Carpool, 0, len(dbCarpools))
	for _, dbCarpool := range dbCarpools {
		carpools = append(carpools, carpoolFromDb(dbCarpool))
	}

	if err := s.listings.SetListings(r.Context(), carpools); err != nil {
		s.log.Println("listing cache set:", err)
	}

	s.writeJson(w, http.StatusOK, carpools)
}

func (s *CarpoolApp) createCarpool(w http.ResponseWriter, r *http.Request) {
	var req CreateCarpoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.CarName == "" || req.Origin == "" || req.Destination == "" || req.TotalSeats < 1 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.DepartureTime.Before(time.Now()) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateCarpoolParams{
		ExternalId:    sid,
		OwnerId:       userId,
		CarName:       req.CarName,
		Origin:        req.Origin,
		Destination:   req.Destination,
		DepartureTime: req.DepartureTime,
		Price:         req.Price,
		TotalSeats:    req.TotalSeats,
	}

	newCarpool, err := s.db.CreateCarpool(params)
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.listings.Invalidate(r.Context()); err != nil {
		s.log.Println("listing cache invalidate:", err)
	}

	s.writeJson(w, http.StatusCreated, carpoolFromDb(newCarpool))
}

func bookingError(err error) *ApiError {
	switch {
	case errors.Is(err, database.ErrCarpoolNotFound):
		return NewNotFoundError()
	case errors.Is(err, database.ErrSelfBooking):
		return NewForbiddenError()
	case errors.Is(err, database.ErrDuplicateBooking):
		return NewConflictError("carpool already booked")
	case errors.Is(err, database.ErrCapacityExceeded):
		return NewConflictError("not enough seats available")
	case errors.Is(err, database.ErrInvalidSeatCount):
		return NewBadRequestError()
	default:
		return NewInternalServerError(err)
	}
}

func (s *CarpoolApp) bookSeats(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.CarpoolId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newBooking, err := s.ledger.Book(r.Context(), req.CarpoolId, userId, req.Seats)
	if err != nil {
		errResp := bookingError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, newBooking)
}

func (s *CarpoolApp) cancelBooking(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.CarpoolId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	freed, err := s.ledger.Cancel(r.Context(), req.CarpoolId, userId)
	if err != nil {
		errResp := bookingError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, CancelBookingResponse{
		CarpoolId:  req.CarpoolId,
		FreedSeats: freed,
	})
}

func (s *CarpoolApp) getMessages(w http.ResponseWriter, r *http.Request) {
	externalId := r.URL.Query().Get("carpool_id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var limit int
	limitStr := r.URL.Query().Get("limit")
	if limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	dbMessages, err := s.db.GetChatMessages(externalId, limit)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrCarpoolNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages := make([]types.ChatMessage, 0, len(dbMessages))
	for _, msg := range dbMessages {
		messages = append(messages, types.ChatMessage{
			Id:         msg.Id,
			CarpoolId:  externalId,
			SenderId:   msg.SenderId,
			SenderName: msg.SenderName,
			Content:    msg.Content,
			Timestamp:  msg.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *CarpoolApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(id)
	if err != nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(types.User{
		Id:           user.Id,
		Name:         user.Name,
		EmailAddress: user.EmailAddress,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
