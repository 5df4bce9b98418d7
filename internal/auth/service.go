package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"backend-trailtracker/internal/db"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

var ErrInvalidCredentials = errors.New("invalid credentials")

var (
	signTokenFn       = (*Service).signToken
	hashPasswordFn    = bcrypt.GenerateFromPassword
	parseWithClaimsFn = jwt.ParseWithClaims
)

// LoginHook runs after every successful login, registration or anonymous login.
type LoginHook func(ctx context.Context, userID string) error

type Service struct {
	secret  []byte
	db      db.Querier
	onLogin LoginHook
}

// Token types carried in the typ claim. Tokens without one are access tokens.
const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

type Claims struct {
	UserID    string `json:"user_id"`
	Anonymous bool   `json:"anonymous,omitempty"`
	Type      string `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) isRefresh() bool {
	return c.Type == tokenRefresh
}

func NewService(secret string, db db.Querier) *Service {
	return &Service{
		secret: []byte(secret),
		db:     db,
	}
}

// OnLogin installs a hook, used to provision the user's profile lazily.
func (s *Service) OnLogin(hook LoginHook) {
	s.onLogin = hook
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, TokenResponse, error) {
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return User{}, TokenResponse{}, errors.New("email, username, password required")
	}
	hash, err := hashPasswordFn([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, TokenResponse{}, err
	}

	user := User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, email, username, password_hash, is_anonymous)
		VALUES ($1,$2,$3,$4,false)
		RETURNING created_at, updated_at
	`, user.ID, user.Email, user.Username, user.PasswordHash)
	if err := row.Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, TokenResponse{}, fmt.Errorf("insert user: %w", err)
	}

	tokens, err := s.loggedIn(ctx, Session{UserID: user.ID})
	if err != nil {
		return User{}, TokenResponse{}, err
	}
	slog.Info("user registered", "user_id", user.ID)
	return user, tokens, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (User, TokenResponse, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, email, username, password_hash, is_anonymous, created_at, updated_at
		FROM users WHERE email = $1
	`, req.Email)

	var user User
	if err := row.Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.Anonymous, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, TokenResponse{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return User{}, TokenResponse{}, ErrInvalidCredentials
	}

	tokens, err := s.loggedIn(ctx, Session{UserID: user.ID})
	if err != nil {
		return User{}, TokenResponse{}, err
	}
	return user, tokens, nil
}

// LoginAnonymous creates a user without credentials and logs it in.
func (s *Service) LoginAnonymous(ctx context.Context) (User, TokenResponse, error) {
	user := User{
		ID:        uuid.NewString(),
		Anonymous: true,
	}
	user.Username = "anonymous-" + user.ID[:8]

	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, email, username, password_hash, is_anonymous)
		VALUES ($1,NULL,$2,'',true)
		RETURNING created_at, updated_at
	`, user.ID, user.Username)
	if err := row.Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, TokenResponse{}, fmt.Errorf("insert anonymous user: %w", err)
	}

	tokens, err := s.loggedIn(ctx, Session{UserID: user.ID, Anonymous: true})
	if err != nil {
		return User{}, TokenResponse{}, err
	}
	return user, tokens, nil
}

// Logout revokes every outstanding refresh token of the user.
func (s *Service) Logout(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	slog.Info("user logged out", "user_id", userID)
	return nil
}

func (s *Service) GenerateTokens(ctx context.Context, sess Session) (TokenResponse, error) {
	access, err := signTokenFn(s, sess, tokenAccess, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, err := signTokenFn(s, sess, tokenRefresh, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	if err := s.saveRefreshToken(ctx, refresh, sess.UserID, refreshTokenTTL); err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return Session{}, err
	}
	if !claims.isRefresh() {
		return Session{}, errors.New("not a refresh token")
	}

	userID, expiresAt, err := s.lookupRefreshToken(ctx, token)
	if err != nil || userID != claims.UserID || time.Now().After(expiresAt) {
		return Session{}, errors.New("refresh token invalid")
	}
	return Session{UserID: claims.UserID, Anonymous: claims.Anonymous}, nil
}

func (s *Service) ValidateAccessToken(token string) (Session, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return Session{}, err
	}
	if claims.isRefresh() {
		return Session{}, errors.New("refresh token not accepted")
	}
	return Session{UserID: claims.UserID, Anonymous: claims.Anonymous}, nil
}

func (s *Service) loggedIn(ctx context.Context, sess Session) (TokenResponse, error) {
	if s.onLogin != nil {
		if err := s.onLogin(ctx, sess.UserID); err != nil {
			return TokenResponse{}, err
		}
	}
	return s.GenerateTokens(ctx, sess)
}

func (s *Service) signToken(sess Session, typ string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    sess.UserID,
		Anonymous: sess.Anonymous,
		Type:      typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := parseWithClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func (s *Service) saveRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token, expires_at)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), userID, token, time.Now().Add(ttl))
	return err
}

func (s *Service) lookupRefreshToken(ctx context.Context, token string) (string, time.Time, error) {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, expires_at
		FROM refresh_tokens
		WHERE token = $1 AND revoked_at IS NULL
	`, token)
	var userID string
	var expiresAt time.Time
	if err := row.Scan(&userID, &expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return userID, expiresAt, nil
}
