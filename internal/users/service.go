package users

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"backend-socialpost/internal/db"
	"backend-socialpost/internal/logging"
	"backend-socialpost/internal/shared/apperr"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const (
	CacheTTL       = 5 * time.Minute
	minPasswordLen = 8
	maxPasswordLen = 30
)

var hashPasswordFn = bcrypt.GenerateFromPassword

type Service struct {
	db     db.Querier
	cache  *redis.Client
	logger logging.Logger
}

// NewService accepts a nil cache; lookups then go straight to Postgres.
func NewService(q db.Querier, cache *redis.Client, logger logging.Logger) *Service {
	return &Service{db: q, cache: cache, logger: logger}
}

func cacheKey(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}

// GetCurrentUser reads through the cache. Cache failures are logged and
// never fail the request.
func (s *Service) GetCurrentUser(ctx context.Context, id int64) (Profile, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, cacheKey(id)).Bytes()
		switch {
		case err == nil:
			var p Profile
			if jsonErr := json.Unmarshal(raw, &p); jsonErr == nil {
				return p, nil
			}
			s.logger.Warn(ctx, "dropping corrupt cache entry", "user_id", id)
		case !errors.Is(err, redis.Nil):
			s.logger.Warn(ctx, "cache read failed", "user_id", id, "error", err)
		}
	}

	var p Profile
	err := s.db.QueryRow(ctx, `SELECT id, username FROM users WHERE id = $1`, id).Scan(&p.ID, &p.Username)
	if err != nil {
		return Profile{}, apperr.FromDB(err, "user")
	}

	if s.cache != nil {
		raw, _ := json.Marshal(p)
		if err := s.cache.Set(ctx, cacheKey(id), raw, CacheTTL).Err(); err != nil {
			s.logger.Warn(ctx, "cache write failed", "user_id", id, "error", err)
		}
	}
	return p, nil
}

// CreateUser provisions a profile on behalf of a trusted internal caller.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (Profile, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return Profile{}, apperr.Validation("username is required")
	}
	if n := utf8.RuneCountInString(req.Password); n < minPasswordLen || n > maxPasswordLen {
		return Profile{}, apperr.Validation("password must be between %d and %d characters", minPasswordLen, maxPasswordLen)
	}

	hash, err := hashPasswordFn([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Profile{}, err
	}

	p := Profile{Username: username}
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (username, password_hash)
		VALUES ($1,$2)
		RETURNING id
	`, username, string(hash))
	if err := row.Scan(&p.ID); err != nil {
		return Profile{}, apperr.FromDB(err, "username")
	}
	return p, nil
}

// InvalidateCache drops the cached profile so the next read sees the row.
func (s *Service) InvalidateCache(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey(id)).Err(); err != nil {
		s.logger.Warn(ctx, "cache invalidation failed", "user_id", id, "error", err)
	}
}
