package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/buildplan/buildplan/internal/audit"
	"github.com/buildplan/buildplan/internal/domain"
	"github.com/buildplan/buildplan/internal/store"
	"github.com/buildplan/buildplan/internal/web/auth"
	webcontext "github.com/buildplan/buildplan/internal/web/context"
)

// Login failure reasons written to the audit log
const (
	reasonUnknownEmail  = "unknown_email"
	reasonWrongPassword = "wrong_password"
)

// TokenIssuer issues access tokens
type TokenIssuer interface {
	GenerateToken(userID, email string) (string, error)
	TTL() time.Duration
}

// RegisterInput carries the fields of a new account
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Company   string `json:"company"`
}

// LoginInput carries login credentials
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is returned by a successful registration or login
type Session struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresIn int64        `json:"expires_in"`
	User      *domain.User `json:"user"`
}

// AuthService registers users and exchanges credentials for tokens
type AuthService struct {
	users  UserRepository
	tokens TokenIssuer
	audit  audit.Logger
	logger *zap.Logger
}

// NewAuthService creates an auth service. A nil audit logger discards events.
func NewAuthService(users UserRepository, tokens TokenIssuer, auditLog audit.Logger, logger *zap.Logger) *AuthService {
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:  users,
		tokens: tokens,
		audit:  audit.Safe(auditLog),
		logger: logger,
	}
}

// Register creates an account and signs the new user in
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = domain.NormalizeEmail(in.Email)
	profile := domain.Profile{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Phone:     strings.TrimSpace(in.Phone),
		Company:   strings.TrimSpace(in.Company),
	}

	var v domain.ValidationErrors
	if in.Email == "" {
		v.Add("email", "is required")
	} else if !domain.ValidEmail(in.Email) {
		v.Add("email", "is not a valid email address")
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		v.Add("password", err.Error())
	}
	if err := mergeValidation(&v, profile.Validate()); err != nil {
		return nil, err
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    profile.FirstName,
		LastName:     profile.LastName,
		Phone:        profile.Phone,
		Company:      profile.Company,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}

	s.audit.LogRegistration(u.ID, webcontext.GetClientKey(ctx))
	return s.session(u)
}

// Login verifies credentials and issues a token. Unknown emails and wrong
// passwords both return ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	email := domain.NormalizeEmail(in.Email)
	clientKey := webcontext.GetClientKey(ctx)

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !store.IsNotFound(err) {
			return nil, err
		}
		// equalize timing with the wrong password path
		auth.CheckPassword(in.Password, dummyHash())
		s.audit.LogLoginFailure(email, clientKey, reasonUnknownEmail)
		return nil, domain.ErrInvalidCredentials
	}

	if !auth.CheckPassword(in.Password, u.PasswordHash) {
		s.audit.LogLoginFailure(email, clientKey, reasonWrongPassword)
		return nil, domain.ErrInvalidCredentials
	}

	s.audit.LogLoginSuccess(u.ID, clientKey)
	return s.session(u)
}

// Me returns the account of userID
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// UpdateProfile replaces the editable profile fields of userID
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, p domain.Profile) (*domain.User, error) {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Company = strings.TrimSpace(p.Company)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	u, err := s.users.UpdateProfile(ctx, userID, p)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

func (s *AuthService) session(u *domain.User) (*Session, error) {
	token, err := s.tokens.GenerateToken(u.ID, u.Email)
	if err != nil {
		s.logger.Error("failed to issue token", zap.String("user_id", u.ID), zap.Error(err))
		return nil, err
	}
	return &Session{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(s.tokens.TTL().Seconds()),
		User:      u,
	}, nil
}

var (
	dummyOnce sync.Once
	dummy     string
)

// dummyHash returns the hash compared against when the email is unknown
func dummyHash() string {
	dummyOnce.Do(func() {
		dummy, _ = auth.HashPassword("not-a-real-password")
	})
	return dummy
}
