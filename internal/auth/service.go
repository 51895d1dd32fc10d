package auth

import (
	"context"
	"errors"
	"strings"

	"backend-socialpost/internal/db"
	"backend-socialpost/internal/events"
	"backend-socialpost/internal/outbox"
	"backend-socialpost/internal/shared/apperr"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

const maxUsernameLen = 150

var errInvalidCredentials = apperr.Unauthorized("invalid credentials")

// dummyHash keeps the unknown-username path as slow as a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password"), bcrypt.DefaultCost)

var hashPasswordFn = bcrypt.GenerateFromPassword

type Service struct {
	db               db.TxQuerier
	tokens           *Tokens
	accountsExchange string
}

func NewService(tokens *Tokens, q db.TxQuerier, accountsExchange string) *Service {
	return &Service{db: q, tokens: tokens, accountsExchange: accountsExchange}
}

// Register stores a new account and records an account.created event in the
// same transaction.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Account, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return Account{}, apperr.Validation("username and password required")
	}
	if len(req.Username) > maxUsernameLen {
		return Account{}, apperr.Validation("username must be at most %d characters", maxUsernameLen)
	}

	hash, err := hashPasswordFn([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}
	account := Account{Username: req.Username, PasswordHash: string(hash)}

	err = db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO users (username, password_hash)
			VALUES ($1,$2)
			RETURNING id
		`, account.Username, account.PasswordHash)
		if err := row.Scan(&account.ID); err != nil {
			return apperr.FromDB(err, "username")
		}

		payload, err := events.AccountCreated{ID: account.ID, Username: account.Username}.Marshal()
		if err != nil {
			return err
		}
		return outbox.Enqueue(ctx, tx, s.accountsExchange, "", payload)
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// Login returns the same error for an unknown username and a wrong password.
func (s *Service) Login(ctx context.Context, req LoginRequest) (TokenResponse, error) {
	if req.Username == "" || req.Password == "" {
		return TokenResponse{}, apperr.Validation("username and password required")
	}

	var account Account
	row := s.db.QueryRow(ctx, `
		SELECT id, username, password_hash
		FROM users WHERE username = $1
	`, strings.TrimSpace(req.Username))
	if err := row.Scan(&account.ID, &account.Username, &account.PasswordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
			return TokenResponse{}, errInvalidCredentials
		}
		return TokenResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		return TokenResponse{}, errInvalidCredentials
	}

	token, err := s.tokens.Issue(account.ID)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokens.TTL().Seconds()),
	}, nil
}
