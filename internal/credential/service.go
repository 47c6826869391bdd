// Package credential provides phone-number/password authentication.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fileforge/api/internal/policy"
	"fileforge/api/internal/store"
	"fileforge/api/internal/util"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for any login failure. The message
	// is the same whether the phone number is unknown or the password is
	// wrong.
	ErrInvalidCredentials = errors.New("invalid phone number or password")
)

// ValidationError carries the offending field for a malformed registration.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// UserStore defines the storage the credential service needs.
type UserStore interface {
	CreateUser(ctx context.Context, user store.User) error
	GetUserByPhone(ctx context.Context, phoneNumber string) (store.User, error)
}

type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// RegisterRequest contains registration parameters.
type RegisterRequest struct {
	PhoneNumber string
	Password    string
	FirstName   string
	LastName    string
	Department  string
	Role        string
}

// Register creates a new user account. Duplicate phone numbers surface as
// store.ErrDuplicatePhoneNumber from the uniqueness constraint.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (store.User, error) {
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Department = strings.TrimSpace(req.Department)

	if req.PhoneNumber == "" {
		return store.User{}, &ValidationError{Field: "phoneNumber", Message: "phone number is required"}
	}
	if req.FirstName == "" {
		return store.User{}, &ValidationError{Field: "firstName", Message: "first name is required"}
	}
	if req.LastName == "" {
		return store.User{}, &ValidationError{Field: "lastName", Message: "last name is required"}
	}
	if req.Department == "" {
		return store.User{}, &ValidationError{Field: "department", Message: "department is required"}
	}
	if len(req.Password) < 8 {
		return store.User{}, &ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		PhoneNumber:  req.PhoneNumber,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Department:   req.Department,
		Role:         string(policy.Normalize(req.Role)),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, err
	}
	return user, nil
}

// Login verifies a phone number and password and returns the user record.
func (s *Service) Login(ctx context.Context, phoneNumber, password string) (store.User, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByPhone(ctx, phoneNumber)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	return user, nil
}
