// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protection

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/taibuivan/pixveil/internal/platform/middleware"
)

// fingerprintHexLen is the number of hex characters kept from the SHA-256
// digest (64 bits). Collisions across genuinely different clients are
// acceptable: the fingerprint is a coarse anti-abuse signal, not an
// identity system.
const fingerprintHexLen = 16

// ClientFingerprint derives a stable identifier from request attributes.
//
// The four components are joined with a pipe delimiter before hashing so
// ["ab","c"] and ["a","bc"] cannot produce the same digest. Missing headers
// contribute empty strings, keeping the function total and deterministic.
func ClientFingerprint(ip, userAgent, acceptLanguage, acceptEncoding string) string {
	combined := strings.Join([]string{ip, userAgent, acceptLanguage, acceptEncoding}, "|")
	digest := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(digest[:])[:fingerprintHexLen]
}

// FingerprintFromRequest computes the client fingerprint for an HTTP request,
// resolving the client IP through proxy headers the same way the rest of the
// platform does.
func FingerprintFromRequest(request *http.Request) string {
	return ClientFingerprint(
		middleware.RealIP(request),
		request.UserAgent(),
		request.Header.Get("Accept-Language"),
		request.Header.Get("Accept-Encoding"),
	)
}
