package database

type CarpoolRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (Account, error)
	GetAccountById(accountId int) (Account, error)
	GetAccountByEmail(email string) (Account, error)
	CreateCarpool(params CreateCarpoolParams) (Carpool, error)
	GetCarpoolByExternalId(externalId string) (Carpool, error)
	ListCarpools() ([]Carpool, error)
	BookSeats(params BookSeatsParams) (Booking, error)
	CancelBooking(carpoolExternalId string, riderId int) (int, error)
	CreateChatMessage(params CreateChatMessageParams) (ChatMessage, error)
	GetChatMessages(carpoolExternalId string, limit int) ([]ChatMessage, error)
}
