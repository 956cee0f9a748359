package user

import "errors"

var (
	ErrNotFound        = errors.New("user not found")
	ErrPhoneExists     = errors.New("user with this phone already exists")
	ErrInvalidPassword = errors.New("invalid password")
	ErrHashPassword    = errors.New("failed to hash password")
)
