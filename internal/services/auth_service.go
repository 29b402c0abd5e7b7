package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/prudhvinik1/episync/internal/models"
	"github.com/prudhvinik1/episync/internal/repositories"
	"github.com/prudhvinik1/episync/internal/schedule"
	"github.com/prudhvinik1/episync/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNotApproved        = errors.New("account is awaiting approval")
	ErrForbidden          = errors.New("insufficient role")
)

type AuthService struct {
	store       *repositories.Store
	sessionRepo repositories.SessionRepository
	catalog     *schedule.Catalog
	jwtSecret   string
	jwtExpiry   time.Duration
	options
}

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
	Position    string `json:"position"`
	Facility    string `json:"facility"`
}

type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

type TokenClaims struct {
	UserID    string
	Facility  string
	Role      models.UserRole
	SessionID string
}

func NewAuthService(
	store *repositories.Store,
	sessionRepo repositories.SessionRepository,
	catalog *schedule.Catalog,
	jwtSecret string,
	jwtExpiry time.Duration,
	opts ...Option,
) *AuthService {
	return &AuthService{
		store:       store,
		sessionRepo: sessionRepo,
		catalog:     catalog,
		jwtSecret:   jwtSecret,
		jwtExpiry:   jwtExpiry,
		options:     newOptions(opts),
	}
}

// Register creates a health worker account. New accounts cannot log in until
// an admin approves them.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	fullName := titleCase(req.FullName)
	if len(strings.Fields(fullName)) < 2 {
		return nil, fieldErr("full_name", "must contain at least two names")
	}
	facility := strings.TrimSpace(req.Facility)
	if !s.catalog.IsFacility(facility) {
		return nil, fieldErr("facility", fmt.Sprintf("unknown facility %q", facility))
	}

	hashedPassword, err := utils.HashPasswordCost(req.Password, s.hashCost)
	if errors.Is(err, utils.ErrPasswordTooShort) {
		return nil, fieldErr("password", err.Error())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		ID:             uuid.New().String(),
		Email:          email,
		FullName:       fullName,
		PhoneNumber:    strings.TrimSpace(req.PhoneNumber),
		Position:       strings.TrimSpace(req.Position),
		Facility:       facility,
		Role:           models.RoleNew,
		ApprovalStatus: models.ApprovalPending,
		PasswordHash:   hashedPassword,
	}

	var saved models.User
	err = s.store.Exclusive(ctx, func(ctx context.Context) error {
		if _, err := s.userByEmail(ctx, email); err == nil {
			return ErrEmailExists
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("failed to check email: %w", err)
		}
		saved, err = s.store.Users.Upsert(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", saved.ID, "facility", saved.Facility)
	public := saved.Public()
	return &public, nil
}

// SetApproval approves or rejects a pending account. Approved accounts get
// role, or Public Health Officer when role is empty.
func (s *AuthService) SetApproval(ctx context.Context, userID string, status models.ApprovalStatus, role models.UserRole) (*models.User, error) {
	switch status {
	case models.ApprovalApproved:
		if role == "" {
			role = models.RolePHO
		}
		if role != models.RolePHO && role != models.RoleAdmin {
			return nil, fieldErr("role", fmt.Sprintf("unknown role %q", role))
		}
	case models.ApprovalRejected:
		role = models.RoleNew
	default:
		return nil, fieldErr("status", fmt.Sprintf("unknown approval status %q", status))
	}

	var saved models.User
	err := s.store.Exclusive(ctx, func(ctx context.Context) error {
		user, err := s.store.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		user.ApprovalStatus = status
		user.Role = role
		saved, err = s.store.Users.Upsert(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}

	if status == models.ApprovalRejected {
		if err := s.sessionRepo.DeleteAllForUser(ctx, userID); err != nil {
			s.logger.Warn("failed to revoke sessions", "user_id", userID, "error", err)
		}
	}

	s.logger.Info("user approval changed", "user_id", userID, "status", status, "role", role)
	public := saved.Public()
	return &public, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.userByEmail(ctx, email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !utils.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if user.ApprovalStatus != models.ApprovalApproved {
		return nil, ErrNotApproved
	}

	now := s.clock()
	sessionID := uuid.New().String()
	expiresAt := now.Add(s.jwtExpiry)
	session := &models.Session{
		ID:        sessionID,
		UserID:    user.ID,
		Facility:  user.Facility,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.generateToken(user, sessionID, now, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.Public(),
	}, nil
}

func (s *AuthService) generateToken(user models.User, sessionID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":      user.ID,
		"facility": user.Facility,
		"role":     string(user.Role),
		"jti":      sessionID,
		"exp":      expiresAt.Unix(),
		"iat":      issuedAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *AuthService) VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.clock))

	if err != nil {
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return nil, ErrInvalidToken
	}
	facility, _ := claims["facility"].(string)
	role, _ := claims["role"].(string)

	sessionID, ok := claims["jti"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	return &TokenClaims{
		UserID:    userID,
		Facility:  facility,
		Role:      models.UserRole(role),
		SessionID: sessionID,
	}, nil
}

// Authenticate verifies the token and that its session is still live.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*TokenClaims, error) {
	claims, err := s.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.GetByID(ctx, claims.SessionID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session.UserID != claims.UserID {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.VerifyToken(tokenString)
	if err != nil {
		return err
	}

	err = s.sessionRepo.Delete(ctx, claims.SessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

func (s *AuthService) LogoutAll(ctx context.Context, tokenString string) error {
	claims, err := s.VerifyToken(tokenString)
	if err != nil {
		return err
	}

	err = s.sessionRepo.DeleteAllForUser(ctx, claims.UserID)
	if err != nil {
		return fmt.Errorf("failed to logout all sessions: %w", err)
	}

	return nil
}

// EnsureAdmin creates an approved admin account for email unless one with
// that email already exists. It reports whether an account was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password, facility string) (bool, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return false, err
	}
	hashedPassword, err := utils.HashPasswordCost(password, s.hashCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	created := false
	err = s.store.Exclusive(ctx, func(ctx context.Context) error {
		if _, err := s.userByEmail(ctx, email); err == nil {
			return nil
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		_, err := s.store.Users.Upsert(ctx, models.User{
			ID:             uuid.New().String(),
			Email:          email,
			FullName:       "System Administrator",
			Facility:       facility,
			Role:           models.RoleAdmin,
			ApprovalStatus: models.ApprovalApproved,
			PasswordHash:   hashedPassword,
		})
		created = err == nil
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to ensure admin: %w", err)
	}
	if created {
		s.logger.Info("admin account created", "email", email)
	}
	return created, nil
}

func (s *AuthService) ListUsers(ctx context.Context, status models.ApprovalStatus) ([]models.User, error) {
	users, err := s.store.Users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if status == "" || u.ApprovalStatus == status {
			out = append(out, u.Public())
		}
	}
	return out, nil
}

func (s *AuthService) userByEmail(ctx context.Context, email string) (models.User, error) {
	users, err := s.store.Users.List(ctx)
	if err != nil {
		return models.User{}, err
	}
	for _, u := range users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fieldErr("email", "is not a valid address")
	}
	return email, nil
}
