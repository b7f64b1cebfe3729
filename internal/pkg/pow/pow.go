/*
Package pow implements the proof-of-work gate in front of guest token issuance.

A client fetches a nonce, searches for a counter such that sha256(nonce+counter)
starts with the required number of hex zeros, and trades the answer for a
single-use proof token.
*/
package pow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"parley/internal/storage"
)

const (
	// TokenHeaderKey is the HTTP header key used by the client to send the Proof Token.
	TokenHeaderKey = "X-PoW-Token"

	// ProofTokenDuration is the validity period of an issued proof token.
	ProofTokenDuration = 30 * time.Second

	// NonceExpiryDuration is the validity period for the challenge Nonce.
	NonceExpiryDuration = 5 * time.Minute

	noncePrefix = "pow:nonce:"
	tokenPrefix = "pow:token:"
)

var (
	// ErrInvalidProof is returned for unknown, expired or already used nonces and
	// for answers that miss the difficulty target.
	ErrInvalidProof = errors.New("pow: invalid proof")
)

// Challenge is handed to the client.
type Challenge struct {
	Nonce      string `json:"nonce"`
	Difficulty int    `json:"difficulty"`
}

// Manager issues challenges and proof tokens over a storage.KeyStore.
type Manager struct {
	difficulty int
	store      storage.KeyStore
}

// NewManager returns a Manager. A difficulty of 0 disables the gate.
func NewManager(difficulty int, store storage.KeyStore) *Manager {
	return &Manager{difficulty: difficulty, store: store}
}

// Enabled reports whether proof tokens are required.
func (m *Manager) Enabled() bool {
	return m.difficulty > 0
}

// Difficulty returns the required number of leading hex zeros.
func (m *Manager) Difficulty() int {
	return m.difficulty
}

// NewChallenge stores a fresh nonce and returns it.
func (m *Manager) NewChallenge(ctx context.Context) (Challenge, error) {
	nonce := uuid.New().String()
	if err := m.store.Put(ctx, noncePrefix+nonce, NonceExpiryDuration); err != nil {
		return Challenge{}, fmt.Errorf("pow.NewChallenge: %w", err)
	}
	return Challenge{Nonce: nonce, Difficulty: m.difficulty}, nil
}

// Meets reports whether sha256(nonce+counter) satisfies difficulty.
func Meets(nonce, counter string, difficulty int) bool {
	hash := sha256.Sum256([]byte(nonce + counter))
	hashStr := hex.EncodeToString(hash[:])
	return strings.HasPrefix(hashStr, strings.Repeat("0", difficulty))
}

// Solve brute-forces a counter for nonce. It is used by tests and tooling.
func Solve(nonce string, difficulty int) string {
	for i := 0; ; i++ {
		counter := fmt.Sprintf("%d", i)
		if Meets(nonce, counter, difficulty) {
			return counter
		}
	}
}

// ValidateProof checks the answer and, on success, consumes the nonce and issues
// a proof token. The nonce survives a wrong answer so the client may retry.
func (m *Manager) ValidateProof(ctx context.Context, nonce, counter string) (string, error) {
	ok, err := m.store.Exists(ctx, noncePrefix+nonce)
	if err != nil {
		return "", fmt.Errorf("pow.ValidateProof: %w", err)
	}
	if !ok {
		return "", ErrInvalidProof
	}

	if !Meets(nonce, counter, m.difficulty) {
		return "", ErrInvalidProof
	}

	taken, err := m.store.Take(ctx, noncePrefix+nonce)
	if err != nil {
		return "", fmt.Errorf("pow.ValidateProof: %w", err)
	}
	if !taken {
		// consumed by a concurrent request
		return "", ErrInvalidProof
	}

	token := uuid.New().String()
	if err := m.store.Put(ctx, tokenPrefix+token, ProofTokenDuration); err != nil {
		return "", fmt.Errorf("pow.ValidateProof: %w", err)
	}
	return token, nil
}

// RedeemToken consumes a proof token. Tokens are single-use.
func (m *Manager) RedeemToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	ok, err := m.store.Take(ctx, tokenPrefix+token)
	if err != nil {
		return false, fmt.Errorf("pow.RedeemToken: %w", err)
	}
	return ok, nil
}

// TokenFromRequest reads the proof token from the X-PoW-Token header or the pow_token query parameter.
func TokenFromRequest(r *http.Request) string {
	token := r.Header.Get(TokenHeaderKey)
	if token == "" {
		token = r.URL.Query().Get("pow_token")
	}
	return token
}
