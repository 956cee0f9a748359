package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/accounts-service/internal/hash"
)

type Service interface {
	Register(ctx context.Context, input NewUser) (*User, error)
	Login(ctx context.Context, input LoginRequest) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, input UpdateUser) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// PasswordHasher is satisfied by *hash.Hasher. Compare must return
// hash.ErrMismatch for a wrong password.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Compare(ctx context.Context, digest, password string) error
}

type service struct {
	repo   Repository
	hasher PasswordHasher
}

func NewService(repo Repository, hasher PasswordHasher) Service {
	return &service{repo: repo, hasher: hasher}
}

func (s *service) Register(ctx context.Context, input NewUser) (*User, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate user id: %w", err)
	}

	passwordHash, err := s.hasher.Hash(ctx, input.Password)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to hash password on register")
		return nil, fmt.Errorf("%w: %w", ErrHashPassword, err)
	}

	created, err := s.repo.Create(ctx, &User{
		ID:           id,
		Name:         input.Name,
		Phone:        input.Phone,
		PasswordHash: passwordHash,
	})
	if err != nil {
		if errors.Is(err, ErrPhoneExists) {
			return nil, ErrPhoneExists
		}
		log.Error().Err(err).Msg("service: failed to create user in repository")
		return nil, fmt.Errorf("service: failed to save user: %w", err)
	}

	log.Info().Stringer("user_id", created.ID).Msg("service: user registered")

	return created, nil
}

func (s *service) Login(ctx context.Context, input LoginRequest) (*User, error) {
	u, err := s.repo.GetByPhone(ctx, input.Phone)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Msg("service: failed to get user by phone in repository")
		return nil, fmt.Errorf("service: failed to get user by phone: %w", err)
	}

	err = s.hasher.Compare(ctx, u.PasswordHash, input.Password)
	if err != nil {
		if errors.Is(err, hash.ErrMismatch) {
			log.Warn().Stringer("user_id", u.ID).Msg("service: invalid password on login")
			return nil, ErrInvalidPassword
		}
		log.Error().Err(err).Stringer("user_id", u.ID).Msg("service: failed to verify password")
		return nil, fmt.Errorf("service: failed to verify password: %w", err)
	}

	return u, nil
}

func (s *service) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list users in repository")
		return nil, fmt.Errorf("service: failed to list users: %w", err)
	}

	return users, nil
}

func (s *service) UpdateUser(ctx context.Context, id uuid.UUID, input UpdateUser) error {
	patch := Patch{
		Name:  input.Name,
		Phone: input.Phone,
	}

	if input.Password != nil {
		// Unknown ids answer 404 before any bcrypt work is spent.
		if _, err := s.repo.GetByID(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNotFound
			}
			log.Error().Err(err).Stringer("user_id", id).Msg("service: failed to get user by id in repository")
			return fmt.Errorf("service: failed to get user by id '%s': %w", id, err)
		}

		passwordHash, err := s.hasher.Hash(ctx, *input.Password)
		if err != nil {
			log.Error().Err(err).Stringer("user_id", id).Msg("service: failed to hash password on update")
			return fmt.Errorf("%w: %w", ErrHashPassword, err)
		}
		patch.PasswordHash = &passwordHash
	}

	err := s.repo.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPhoneExists) {
			return err
		}
		log.Error().Err(err).Stringer("user_id", id).Msg("Database error during update")
		return fmt.Errorf("service: failed to update user by id '%s': %w", id, err)
	}

	return nil
}

// DeleteUser succeeds whether or not a row existed.
func (s *service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", id).Msg("service: failed to delete user")
		return fmt.Errorf("service: failed to delete user by id '%s': %w", id, err)
	}

	if deleted == 0 {
		log.Debug().Stringer("user_id", id).Msg("service: delete matched no user")
	}

	return nil
}
