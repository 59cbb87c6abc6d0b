// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protection

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taibuivan/pixveil/internal/platform/constants"
	"github.com/taibuivan/pixveil/internal/platform/sec"
)

// # Access Tokens

// TokenRecord is the server-side state of one issued access token.
//
// The wire token carries the same payload, but the record is authoritative:
// usage counting and expiry checks always run against stored state, never
// against client-supplied fields alone.
type TokenRecord struct {
	PhotoID           int64     `json:"photoId"`
	SessionID         string    `json:"sessionId"`
	ClientFingerprint string    `json:"clientFingerprint"`
	ProtectionLevel   Level     `json:"protectionLevel"`
	MaxUses           int       `json:"maxUses"`
	UsedCount         int       `json:"usedCount"`
	CreatedAt         time.Time `json:"createdAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// RemainingUses reports how many accesses the token still allows.
func (record *TokenRecord) RemainingUses() int {
	remaining := record.MaxUses - record.UsedCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// tokenPayload is the JSON document embedded in the wire token. It mirrors
// the stored record at mint time so clients can introspect their own token,
// but the server never trusts it beyond the signature: usage counting and
// expiry always run against stored state. A random nonce keeps two tokens
// for the same photo/session distinct even when minted within the same
// nanosecond.
type tokenPayload struct {
	PhotoID           int64  `json:"photoId"`
	SessionID         string `json:"sessionId"`
	ClientFingerprint string `json:"clientFingerprint"`
	ProtectionLevel   Level  `json:"protectionLevel"`
	MaxUses           int    `json:"maxUses"`
	UsedCount         int    `json:"usedCount"`
	CreatedAt         int64  `json:"createdAt"`
	ExpiresAt         int64  `json:"expiresAt"`
	Nonce             string `json:"nonce"`
}

// GenerateInput carries the parameters for minting one access token.
// Zero values fall back to platform defaults.
type GenerateInput struct {
	PhotoID           int64
	SessionID         string
	ClientFingerprint string
	Level             Level
	ExpiresIn         time.Duration
	MaxUses           int
}

// GeneratedToken is the mint result returned to the caller.
type GeneratedToken struct {
	Token     string
	ExpiresAt time.Time
	MaxUses   int
}

// Verification is the outcome of checking a presented token.
//
// Valid is false when any check fails; Reason then carries the operator-facing
// explanation, and Record is nil. On success Record reflects the state AFTER
// the presented use was consumed.
type Verification struct {
	Valid     bool
	Reason    string
	Record    *TokenRecord
	Remaining int
}

// Rejection reasons surfaced through verification and the audit log.
const (
	ReasonNotFound            = "Token not found or expired"
	ReasonTampered            = "Token tampered"
	ReasonExpired             = "Token expired"
	ReasonExhausted           = "Token max uses exceeded"
	ReasonFingerprintMismatch = "Client fingerprint mismatch"
)

// TokenService mints and verifies HMAC-signed, usage-bounded access tokens.
type TokenService struct {
	store  TokenStore
	secret []byte
	now    func() time.Time
}

/*
NewTokenService creates a token service.

The signing key is derived from the server secret with HKDF so the raw
secret is never used directly for HMAC and other subsystems deriving their
own sub-keys can never collide with this one.

Parameters:
  - store: TokenStore (Memory or Redis backend)
  - serverSecret: string (Process-wide master secret)

Returns:
  - *TokenService: Ready-to-use service
  - error: Key derivation failures
*/
func NewTokenService(store TokenStore, serverSecret string) (*TokenService, error) {
	secret, err := sec.DeriveSubKey(serverSecret, constants.ImageProtectionKeyPurpose)
	if err != nil {
		return nil, fmt.Errorf("derive token signing key: %w", err)
	}

	return &TokenService{
		store:  store,
		secret: secret,
		now:    time.Now,
	}, nil
}

/*
Generate mints a new single- or multi-use access token bound to a photo,
session, and client fingerprint.

Parameters:
  - context: context.Context
  - input: GenerateInput (ExpiresIn defaults to 5 minutes, MaxUses to 1,
    Level to standard when zero)

Returns:
  - *GeneratedToken: Wire token plus issuance metadata
  - error: Encoding or storage failures
*/
func (service *TokenService) Generate(context context.Context, input GenerateInput) (*GeneratedToken, error) {
	expiresIn := input.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = constants.DefaultTokenTTL
	}
	maxUses := input.MaxUses
	if maxUses <= 0 {
		maxUses = 1
	}
	level := input.Level
	if level == "" {
		level = LevelStandard
	}

	issuedAt := service.now()
	expiresAt := issuedAt.Add(expiresIn)

	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("token_nonce_failed: %w", err)
	}

	payload := tokenPayload{
		PhotoID:           input.PhotoID,
		SessionID:         input.SessionID,
		ClientFingerprint: input.ClientFingerprint,
		ProtectionLevel:   level,
		MaxUses:           maxUses,
		UsedCount:         0,
		CreatedAt:         issuedAt.UnixMilli(),
		ExpiresAt:         expiresAt.UnixMilli(),
		Nonce:             hex.EncodeToString(nonce),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("token_encode_failed: %w", err)
	}

	body := base64.RawURLEncoding.EncodeToString(encoded)
	token := body + "." + service.sign(body)

	record := &TokenRecord{
		PhotoID:           input.PhotoID,
		SessionID:         input.SessionID,
		ClientFingerprint: input.ClientFingerprint,
		ProtectionLevel:   level,
		MaxUses:           maxUses,
		UsedCount:         0,
		CreatedAt:         issuedAt,
		ExpiresAt:         expiresAt,
	}

	// The store TTL outlives the token itself so a just-expired token is
	// rejected with a precise reason instead of a generic not-found.
	ttl := expiresIn + constants.TokenEvictionGrace
	if err := service.store.Put(context, token, record, ttl); err != nil {
		return nil, fmt.Errorf("token_store_failed: %w", err)
	}

	return &GeneratedToken{
		Token:     token,
		ExpiresAt: expiresAt,
		MaxUses:   maxUses,
	}, nil
}

/*
Verify checks a presented token and, when valid, consumes one use.

Checks run in a fixed order so the audit log carries the most specific
failure: signature, existence, expiry, usage budget, then fingerprint.
Signature comes first because the store is keyed by the full token string;
a forged signature would otherwise be indistinguishable from an evicted
token. The fingerprint is only enforced at the enhanced level; the maximum
level relies on fragmentation and short expiry instead, because strict
binding breaks clients behind rotating proxies mid-session.

The use itself is spent through the store's atomic consume, so concurrent
verifications of the same token can never both claim its last use.

Parameters:
  - context: context.Context
  - token: string (Full wire token)
  - clientFingerprint: string (Fingerprint of the requesting client)

Returns:
  - *Verification: Outcome with reason on rejection
  - error: Storage failures only; rejections are not errors
*/
func (service *TokenService) Verify(context context.Context, token, clientFingerprint string) (*Verification, error) {
	body, signature, found := strings.Cut(token, ".")
	if !found || !hmac.Equal([]byte(signature), []byte(service.sign(body))) {
		return &Verification{Valid: false, Reason: ReasonTampered}, nil
	}

	record, err := service.store.Get(context, token)
	if err != nil {
		if err == ErrTokenNotFound {
			return &Verification{Valid: false, Reason: ReasonNotFound}, nil
		}
		return nil, fmt.Errorf("token_lookup_failed: %w", err)
	}

	if service.now().After(record.ExpiresAt) {
		_ = service.store.Delete(context, token)
		return &Verification{Valid: false, Reason: ReasonExpired}, nil
	}

	if record.UsedCount >= record.MaxUses {
		_ = service.store.Delete(context, token)
		return &Verification{Valid: false, Reason: ReasonExhausted}, nil
	}

	if record.ProtectionLevel == LevelEnhanced && record.ClientFingerprint != clientFingerprint {
		return &Verification{Valid: false, Reason: ReasonFingerprintMismatch}, nil
	}

	consumed, err := service.store.Consume(context, token)
	if err != nil {
		// A concurrent verification spent the budget between the lookup and
		// the consume; the record may already be gone.
		if errors.Is(err, ErrTokenExhausted) || errors.Is(err, ErrTokenNotFound) {
			return &Verification{Valid: false, Reason: ReasonExhausted}, nil
		}
		return nil, fmt.Errorf("token_consume_failed: %w", err)
	}

	return &Verification{
		Valid:     true,
		Record:    consumed,
		Remaining: consumed.RemainingUses(),
	}, nil
}

// ActiveTokens reports the number of live token records.
func (service *TokenService) ActiveTokens(context context.Context) (int, error) {
	return service.store.Count(context)
}

// sign computes the hex HMAC-SHA256 of the encoded payload.
func (service *TokenService) sign(body string) string {
	mac := hmac.New(sha256.New, service.secret)
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}
