package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/autoexam/internal/config"
	"github.com/stemsi/autoexam/internal/model"
	"github.com/stemsi/autoexam/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenRevoked       = errors.New("token has been revoked")
)

// TokenType distinguishes token audiences. Students never hold a JWT; they
// are identified by their per-session token.
type TokenType string

const (
	TokenTypeTeacher TokenType = "teacher"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	UserID    int       `json:"user_id"`
	Username  string    `json:"username"`
}

// TeacherStore is the subset of the teacher repository auth needs.
type TeacherStore interface {
	GetByUsername(ctx context.Context, username string) (*model.Teacher, error)
	TouchLastLogin(ctx context.Context, id int, at time.Time) error
}

// TokenStore tracks live token ids so logout can revoke a JWT before it
// expires.
type TokenStore interface {
	Save(ctx context.Context, jti string, ttl time.Duration) error
	Exists(ctx context.Context, jti string) (bool, error)
	Delete(ctx context.Context, jti string) error
}

// RedisTokenStore keeps token ids in Redis with the token's expiry.
type RedisTokenStore struct {
	rdb *redis.Client
}

// NewRedisTokenStore creates a RedisTokenStore.
func NewRedisTokenStore(rdb *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{rdb: rdb}
}

func (s *RedisTokenStore) Save(ctx context.Context, jti string, ttl time.Duration) error {
	return s.rdb.Set(ctx, config.CacheKey.TeacherTokenKey(jti), 1, ttl).Err()
}

func (s *RedisTokenStore) Exists(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, config.CacheKey.TeacherTokenKey(jti)).Result()
	return n > 0, err
}

func (s *RedisTokenStore) Delete(ctx context.Context, jti string) error {
	return s.rdb.Del(ctx, config.CacheKey.TeacherTokenKey(jti)).Err()
}

// AuthService handles teacher authentication and JWTs.
type AuthService struct {
	cfg      *config.Config
	teachers TeacherStore
	tokens   TokenStore
	now      func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, teachers TeacherStore, tokens TokenStore) *AuthService {
	return &AuthService{cfg: cfg, teachers: teachers, tokens: tokens, now: time.Now}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	return HashPassword(password, s.cfg.BcryptCost)
}

// HashPassword hashes a password with the given bcrypt cost. The CLI tools
// use it without a configured service.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login verifies a teacher's credentials and issues a JWT. Unknown users and
// wrong passwords both yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (*model.TeacherLoginResponse, error) {
	t, err := s.teachers.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get teacher: %w", err)
	}

	if err := s.CheckPassword(t.PasswordHash, password); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.GenerateTeacherToken(ctx, t)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.teachers.TouchLastLogin(ctx, t.ID, now); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	t.LastLoginAt = &now

	return &model.TeacherLoginResponse{Token: token, ExpiresAt: expiresAt, Teacher: *t}, nil
}

// GenerateTeacherToken creates a JWT for a teacher and registers its id.
func (s *AuthService) GenerateTeacherToken(ctx context.Context, t *model.Teacher) (string, time.Time, error) {
	jti := uuid.New().String()
	now := s.now()
	expiresAt := now.Add(s.cfg.JWTExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.Itoa(t.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenType: TokenTypeTeacher,
		UserID:    t.ID,
		Username:  t.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	if err := s.tokens.Save(ctx, jti, s.cfg.JWTExpiry); err != nil {
		return "", time.Time{}, fmt.Errorf("store token: %w", err)
	}

	return signed, expiresAt, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// ValidateSession checks that the token has not been revoked by logout.
func (s *AuthService) ValidateSession(ctx context.Context, claims *Claims) error {
	ok, err := s.tokens.Exists(ctx, claims.ID)
	if err != nil {
		return fmt.Errorf("check token: %w", err)
	}
	if !ok {
		return ErrTokenRevoked
	}
	return nil
}

// Logout revokes the token identified by claims.
func (s *AuthService) Logout(ctx context.Context, claims *Claims) error {
	return s.tokens.Delete(ctx, claims.ID)
}

// Teacher returns the account behind a token.
func (s *AuthService) Teacher(ctx context.Context, username string) (*model.Teacher, error) {
	return s.teachers.GetByUsername(ctx, username)
}
