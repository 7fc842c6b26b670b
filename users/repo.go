package users

type Repo interface {
	Upsert(account *Account) error
	GetByID(userID string) (*Account, error)
	GetByEmail(email string) (*Account, error)
}
