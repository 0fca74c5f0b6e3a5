package database

import (
	"github.com/stretchr/testify/mock"
)

type MockCarpoolRepository struct {
	mock.Mock
}

func (m *MockCarpoolRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockCarpoolRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockCarpoolRepository) GetAccountById(accountId int) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockCarpoolRepository) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockCarpoolRepository) CreateCarpool(params CreateCarpoolParams) (Carpool, error) {
	args := m.Called(params)
	return args.Get(0).(Carpool), args.Error(1)
}
func (m *MockCarpoolRepository) GetCarpoolByExternalId(externalId string) (Carpool, error) {
	args := m.Called(externalId)
	return args.Get(0).(Carpool), args.Error(1)
}
func (m *MockCarpoolRepository) ListCarpools() ([]Carpool, error) {
	args := m.Called()
	var carpools []Carpool
	if args.Get(0) != nil {
		carpools = args.Get(0).([]Carpool)
	}
	return carpools, args.Error(1)
}
func (m *MockCarpoolRepository) BookSeats(params BookSeatsParams) (Booking, error) {
	args := m.Called(params)
	return args.Get(0).(Booking), args.Error(1)
}
func (m *MockCarpoolRepository) CancelBooking(carpoolExternalId string, riderId int) (int, error) {
	args := m.Called(carpoolExternalId, riderId)
	return args.Int(0), args.Error(1)
}
func (m *MockCarpoolRepository) CreateChatMessage(params CreateChatMessageParams) (ChatMessage, error) {
	args := m.Called(params)
	return args.Get(0).(ChatMessage), args.Error(1)
}
func (m *MockCarpoolRepository) GetChatMessages(carpoolExternalId string, limit int) ([]ChatMessage, error) {
	args := m.Called(carpoolExternalId, limit)
	var messages []ChatMessage
	if args.Get(0) != nil {
		messages = args.Get(0).([]ChatMessage)
	}
	return messages, args.Error(1)
}
