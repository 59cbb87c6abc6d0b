// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// # Key Derivation

// derivedKeyLen is the byte length of derived sub-keys (256 bits, matching
// the HMAC-SHA256 block they feed).
const derivedKeyLen = 32

// DeriveSubKey derives a dedicated sub-key from the server secret for a named
// purpose using HKDF-SHA256.
//
// # Why derivation?
//
// Each subsystem (image-protection tokens, future signed URLs) gets its own
// signing key bound to a purpose label. Compromise or rotation of one sub-key
// never affects the others, and the raw server secret is never used directly
// as an HMAC key.
func DeriveSubKey(serverSecret, purpose string) ([]byte, error) {
	if serverSecret == "" {
		return nil, fmt.Errorf("sec: server secret is empty")
	}

	reader := hkdf.New(sha256.New, []byte(serverSecret), nil, []byte(purpose))

	key := make([]byte, derivedKeyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("sec: failed to derive %q sub-key: %w", purpose, err)
	}

	return key, nil
}
