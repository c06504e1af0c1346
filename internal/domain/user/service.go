package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ehr/patients/internal/platform/auth"
)

type Service struct {
	repo   Repository
	tokens *auth.TokenIssuer

	dummyOnce sync.Once
	dummyHash string
}

func NewService(repo Repository, tokens *auth.TokenIssuer) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Login checks the credentials and returns a signed session token with the
// identity it was issued for. Unknown users and wrong passwords both return
// ErrInvalidCredentials after a bcrypt comparison.
func (s *Service) Login(ctx context.Context, username, password string) (string, *auth.Identity, error) {
	username = strings.TrimSpace(username)

	u, err := s.repo.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		_, _ = auth.CheckPassword(s.dummy(), password)
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("login: %w", err)
	}

	ok, err := auth.CheckPassword(u.PasswordHash, password)
	if err != nil {
		return "", nil, fmt.Errorf("login %s: %w", username, err)
	}
	if !ok {
		return "", nil, ErrInvalidCredentials
	}

	id := u.Identity()
	token, _, err := s.tokens.Issue(id)
	if err != nil {
		return "", nil, fmt.Errorf("login %s: %w", username, err)
	}
	return token, &id, nil
}

// dummy returns a hash used to keep the response time of unknown usernames
// in line with real ones.
func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = auth.HashPassword("not-a-real-password")
	})
	return s.dummyHash
}

// EnsureAccount creates the account unless the username is already taken.
// It reports whether a row was created.
func (s *Service) EnsureAccount(ctx context.Context, a Account) (bool, error) {
	if err := validateAccount(a); err != nil {
		return false, err
	}

	_, err := s.repo.GetByUsername(ctx, a.Username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	hash, err := auth.HashPassword(a.Password)
	if err != nil {
		return false, err
	}
	err = s.repo.Create(ctx, &User{Username: a.Username, PasswordHash: hash, Role: a.Role})
	if errors.Is(err, ErrDuplicate) {
		// Created concurrently by another process.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SeedDefaults creates the demo accounts that do not exist yet and returns
// how many were created.
func (s *Service) SeedDefaults(ctx context.Context) (int, error) {
	created := 0
	for _, a := range DefaultAccounts {
		ok, err := s.EnsureAccount(ctx, a)
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", a.Username, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// DoctorNames lists the usernames of all dokter accounts, sorted.
func (s *Service) DoctorNames(ctx context.Context) ([]string, error) {
	users, err := s.repo.ListByRole(ctx, string(auth.RoleDokter))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	return names, nil
}

func validateAccount(a Account) error {
	if n := len(a.Username); n < 3 || n > 50 {
		return fmt.Errorf("username must be 3 to 50 characters, got %d", n)
	}
	if len(a.Password) < 6 {
		return fmt.Errorf("password for %s must be at least 6 characters", a.Username)
	}
	if !a.Role.Valid() {
		return fmt.Errorf("unknown role %q", a.Role)
	}
	return nil
}
