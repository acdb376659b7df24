// Package auth registers users and issues the bearer tokens that gate the
// write side of the API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/newsagg/internal/logger"
	"github.com/deusflow/newsagg/internal/model"
	"github.com/deusflow/newsagg/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenTTL = 30 * time.Minute
	TokenType       = "bearer"

	// bcrypt ignores everything past 72 bytes and newer versions refuse it.
	maxPasswordBytes = 72
	minPasswordLen   = 6
)

var (
	ErrInvalidInput       = errors.New("invalid registration input")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrUnauthorized       = errors.New("could not validate credentials")
	ErrInactive           = errors.New("inactive user")
)

// Users is the part of storage the service needs.
type Users interface {
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	FindUserByLogin(ctx context.Context, login string) (model.User, error)
	FindUserByID(ctx context.Context, id int64) (model.User, error)
}

type Service struct {
	users  Users
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	log    *slog.Logger
}

type Option func(*Service)

func WithTokenTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func New(users Users, secret string, opts ...Option) *Service {
	s := &Service{
		users:  users,
		secret: []byte(secret),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "auth")
	return s
}

// Register stores a new active user with a bcrypt password hash.
// storage.ErrDuplicateUser is returned when the email or username is taken.
func (s *Service) Register(ctx context.Context, email, username, password string) (model.User, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)
	switch {
	case !strings.Contains(email, "@"):
		return model.User{}, fmt.Errorf("%w: email %q", ErrInvalidInput, email)
	case username == "":
		return model.User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	case len(password) < minPasswordLen:
		return model.User{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return model.User{}, err
	}
	u, err := s.users.CreateUser(ctx, model.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Active:       true,
	})
	if err != nil {
		return model.User{}, err
	}
	s.log.Info("user registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Login checks the password of the user named by login (username or email)
// and returns a signed access token.
func (s *Service) Login(ctx context.Context, login, password string) (string, model.User, error) {
	u, err := s.users.FindUserByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, storage.ErrNotFound) {
		return "", model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", model.User{}, fmt.Errorf("find user: %w", err)
	}
	if !checkPassword(u.PasswordHash, password) {
		return "", model.User{}, ErrInvalidCredentials
	}
	if !u.Active {
		return "", model.User{}, ErrInactive
	}

	token, err := s.issue(u.ID)
	if err != nil {
		return "", model.User{}, err
	}
	return token, u, nil
}

func (s *Service) issue(userID int64) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Authenticate resolves a bearer token to the active user it was issued for.
func (s *Service) Authenticate(ctx context.Context, token string) (model.User, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		s.log.Debug("token rejected", "error", err)
		return model.User{}, ErrUnauthorized
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return model.User{}, ErrUnauthorized
	}
	u, err := s.users.FindUserByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.User{}, ErrUnauthorized
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user %d: %w", id, err)
	}
	if !u.Active {
		return model.User{}, ErrInactive
	}
	return u, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(truncate(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), truncate(password)) == nil
}

func truncate(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}
