package user

import "github.com/gofrs/uuid"

// User is a stored account. PasswordHash always holds a bcrypt digest.
type User struct {
	ID           uuid.UUID `db:"id"`
	Name         string    `db:"name"`
	Phone        string    `db:"phone"` // unique, used as the login key
	PasswordHash string    `db:"password"`
}

// NewUser is the registration input; Password is cleartext.
type NewUser struct {
	Name     string
	Phone    string
	Password string
}

// UpdateUser is a partial update. Nil fields keep the stored value.
type UpdateUser struct {
	Name     *string
	Phone    *string
	Password *string
}

// Patch is what the repository applies: UpdateUser with the password
// already hashed.
type Patch struct {
	Name         *string
	Phone        *string
	PasswordHash *string
}

type LoginRequest struct {
	Phone    string
	Password string
}
