// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protection_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/pixveil/internal/protection"
)

const testServerSecret = "unit-test-server-secret"

func newTestTokenService(t *testing.T) (*protection.TokenService, *protection.MemoryTokenStore) {
	t.Helper()

	store := protection.NewMemoryTokenStore()
	service, err := protection.NewTokenService(store, testServerSecret)
	require.NoError(t, err)

	return service, store
}

/*
TestTokenService_Generate verifies token minting applies defaults and
produces the two-part wire format.
*/
func TestTokenService_Generate(t *testing.T) {
	service, store := newTestTokenService(t)
	ctx := context.Background()

	generated, err := service.Generate(ctx, protection.GenerateInput{
		PhotoID:           42,
		SessionID:         "session-1",
		ClientFingerprint: "aabbccddeeff0011",
	})
	require.NoError(t, err)

	// Wire format: base64url payload, dot, hex signature.
	parts := strings.Split(generated.Token, ".")
	require.Len(t, parts, 2)
	assert.NotEmpty(t, parts[0])
	assert.Len(t, parts[1], 64) // hex SHA-256

	// Defaults: single use, five minute lifetime.
	assert.Equal(t, 1, generated.MaxUses)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), generated.ExpiresAt, 5*time.Second)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

/*
TestTokenService_Generate_Unique verifies two tokens for the same inputs are
distinct.
*/
func TestTokenService_Generate_Unique(t *testing.T) {
	service, _ := newTestTokenService(t)
	ctx := context.Background()

	input := protection.GenerateInput{PhotoID: 1, SessionID: "s", ClientFingerprint: "f"}

	first, err := service.Generate(ctx, input)
	require.NoError(t, err)
	second, err := service.Generate(ctx, input)
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
}

/*
TestTokenService_Generate_WirePayload verifies the signed payload mirrors the
issued state so clients can introspect their own token.
*/
func TestTokenService_Generate_WirePayload(t *testing.T) {
	service, _ := newTestTokenService(t)

	generated, err := service.Generate(context.Background(), protection.GenerateInput{
		PhotoID:           42,
		SessionID:         "session-1",
		ClientFingerprint: "aabbccddeeff0011",
		Level:             protection.LevelEnhanced,
		MaxUses:           3,
	})
	require.NoError(t, err)

	body, _, found := strings.Cut(generated.Token, ".")
	require.True(t, found)
	decoded, err := base64.RawURLEncoding.DecodeString(body)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(decoded, &payload))

	assert.EqualValues(t, 42, payload["photoId"])
	assert.Equal(t, "session-1", payload["sessionId"])
	assert.Equal(t, "aabbccddeeff0011", payload["clientFingerprint"])
	assert.Equal(t, "enhanced", payload["protectionLevel"])
	assert.EqualValues(t, 3, payload["maxUses"])
	assert.EqualValues(t, 0, payload["usedCount"])
	assert.NotZero(t, payload["createdAt"])
	assert.NotZero(t, payload["expiresAt"])
	assert.NotEmpty(t, payload["nonce"])
}

/*
TestTokenService_Verify_ConsumesUses verifies a multi-use token counts down
and is rejected after exhaustion.
*/
func TestTokenService_Verify_ConsumesUses(t *testing.T) {
	service, store := newTestTokenService(t)
	ctx := context.Background()

	generated, err := service.Generate(ctx, protection.GenerateInput{
		PhotoID:           7,
		SessionID:         "session-1",
		ClientFingerprint: "fp",
		MaxUses:           3,
	})
	require.NoError(t, err)

	// Three successful uses with a descending remaining count.
	for _, wantRemaining := range []int{2, 1, 0} {
		verification, err := service.Verify(ctx, generated.Token, "fp")
		require.NoError(t, err)
		assert.True(t, verification.Valid)
		assert.Equal(t, wantRemaining, verification.Remaining)
	}

	// The exhausted token was removed from the store entirely.
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// A fourth attempt fails as unknown, not as exhausted.
	verification, err := service.Verify(ctx, generated.Token, "fp")
	require.NoError(t, err)
	assert.False(t, verification.Valid)
	assert.Equal(t, protection.ReasonNotFound, verification.Reason)
}

/*
TestTokenService_Verify_Tampered verifies any modification of the token body
or signature is rejected before the store is consulted.
*/
func TestTokenService_Verify_Tampered(t *testing.T) {
	service, _ := newTestTokenService(t)
	ctx := context.Background()

	generated, err := service.Generate(ctx, protection.GenerateInput{
		PhotoID: 7, SessionID: "s", ClientFingerprint: "fp",
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"flipped_signature_byte", flipLastChar(generated.Token)},
		{"flipped_body_byte", "A" + generated.Token[1:]},
		{"missing_signature", strings.Split(generated.Token, ".")[0]},
		{"garbage", "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verification, err := service.Verify(ctx, tt.token, "fp")
			require.NoError(t, err)
			assert.False(t, verification.Valid)
			assert.Equal(t, protection.ReasonTampered, verification.Reason)
		})
	}

	// The genuine token is still usable afterwards.
	verification, err := service.Verify(ctx, generated.Token, "fp")
	require.NoError(t, err)
	assert.True(t, verification.Valid)
}

/*
TestTokenService_Verify_Expired verifies a token past its expiry is rejected
with the expiry reason while its record is still within the eviction grace.
*/
func TestTokenService_Verify_Expired(t *testing.T) {
	service, _ := newTestTokenService(t)
	ctx := context.Background()

	generated, err := service.Generate(ctx, protection.GenerateInput{
		PhotoID:           7,
		SessionID:         "s",
		ClientFingerprint: "fp",
		ExpiresIn:         time.Millisecond,
	})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	verification, err := service.Verify(ctx, generated.Token, "fp")
	require.NoError(t, err)
	assert.False(t, verification.Valid)
	assert.Equal(t, protection.ReasonExpired, verification.Reason)
}

/*
TestTokenService_Verify_FingerprintBinding verifies the fingerprint check is
enforced at the enhanced level only.
*/
func TestTokenService_Verify_FingerprintBinding(t *testing.T) {
	tests := []struct {
		name       string
		level      protection.Level
		wantValid  bool
		wantReason string
	}{
		{"standard_ignores_mismatch", protection.LevelStandard, true, ""},
		{"enhanced_rejects_mismatch", protection.LevelEnhanced, false, protection.ReasonFingerprintMismatch},
		{"maximum_ignores_mismatch", protection.LevelMaximum, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, _ := newTestTokenService(t)
			ctx := context.Background()

			generated, err := service.Generate(ctx, protection.GenerateInput{
				PhotoID:           7,
				SessionID:         "s",
				ClientFingerprint: "original-client",
				Level:             tt.level,
			})
			require.NoError(t, err)

			verification, err := service.Verify(ctx, generated.Token, "different-client")
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, verification.Valid)
			if !tt.wantValid {
				assert.Equal(t, tt.wantReason, verification.Reason)
			}
		})
	}
}

/*
TestTokenService_Verify_MatchingFingerprint verifies the enhanced level
accepts the client the token was minted for.
*/
func TestTokenService_Verify_MatchingFingerprint(t *testing.T) {
	service, _ := newTestTokenService(t)
	ctx := context.Background()

	generated, err := service.Generate(ctx, protection.GenerateInput{
		PhotoID:           7,
		SessionID:         "s",
		ClientFingerprint: "same-client",
		Level:             protection.LevelEnhanced,
	})
	require.NoError(t, err)

	verification, err := service.Verify(ctx, generated.Token, "same-client")
	require.NoError(t, err)
	assert.True(t, verification.Valid)
	require.NotNil(t, verification.Record)
	assert.Equal(t, int64(7), verification.Record.PhotoID)
}

// flipLastChar replaces the final character with a different hex digit.
func flipLastChar(token string) string {
	last := token[len(token)-1]
	replacement := byte('0')
	if last == '0' {
		replacement = '1'
	}
	return token[:len(token)-1] + string(replacement)
}
