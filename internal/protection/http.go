// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protection

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/pixveil/internal/platform/constants"
	"github.com/taibuivan/pixveil/internal/platform/middleware"
	requestutil "github.com/taibuivan/pixveil/internal/platform/request"
	"github.com/taibuivan/pixveil/internal/platform/respond"
	"github.com/taibuivan/pixveil/internal/platform/sec"
	"github.com/taibuivan/pixveil/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements the secure image delivery HTTP endpoints.
//
// # Scope
//
// Token issuance, secure views (whole and fragmented), secure downloads, and
// the operator security snapshot. Gallery browsing endpoints live elsewhere.
type Handler struct {
	deliveryService *DeliveryService
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *DeliveryService) *Handler {
	return &Handler{deliveryService: service}
}

// Routes returns a [chi.Router] configured with delivery routes.
//
// # Endpoints
//   - POST /{slug}/generate-token                     : Mints an access token.
//   - GET  /{slug}/secure/{photoId}/{token}           : Serves the protected view.
//   - GET  /{slug}/secure-download/{photoId}/{token}  : Serves the download.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/{slug}/generate-token", handler.generateToken)
	router.Get("/{slug}/secure/{photoId}/{token}", handler.secureView)
	router.Get("/{slug}/secure-download/{photoId}/{token}", handler.secureDownload)

	return router
}

// StatsRoutes returns the operator-only security routes.
//
// # Endpoints
//   - GET /stats : Live token count and hourly access aggregates.
func (handler *Handler) StatsRoutes() chi.Router {
	router := chi.NewRouter()

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Use(middleware.RequireRole(sec.RoleSecurity))
		r.Get("/stats", handler.securityStats)
	})

	return router
}

// # Request Payloads

// Token access types accepted on the issuance endpoint.
const (
	accessTypeView     = "view"
	accessTypeDownload = "download"
)

type generateTokenRequest struct {
	PhotoID int64 `json:"photoId"`

	// AccessType is "view" (the default) or "download"; download tokens are
	// single-use.
	AccessType string `json:"accessType"`
}

/*
GenerateToken mints a limited-use access token for one photo.

POST /api/v1/gallery/{slug}/generate-token

Description: Binds a fresh token to the photo, the caller's session, and
the caller's client fingerprint. Download tokens are single-use.

Request:
  - Body: generateTokenRequest (PhotoID, AccessType)
  - Header: X-Session-ID (optional opaque session identifier)

Response:
  - 200: IssuedToken: Token string with expiry and usage budget
  - 400: ErrInvalidJSON: Bad input or validation failure
  - 404: NotFound: Unknown event, photo, or mismatched pairing
*/
func (handler *Handler) generateToken(writer http.ResponseWriter, request *http.Request) {
	var input generateTokenRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	slug := requestutil.Param(request, "slug")

	if input.AccessType == "" {
		input.AccessType = accessTypeView
	}

	validator := &validate.Validator{}
	validator.Required("slug", slug).
		Slug("slug", slug).
		Positive("photoId", input.PhotoID).
		OneOf("accessType", input.AccessType, accessTypeView, accessTypeDownload)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	issued, err := handler.deliveryService.IssueToken(request.Context(), IssueTokenInput{
		Slug:        slug,
		PhotoID:     input.PhotoID,
		SessionID:   sessionID(request),
		Download:    input.AccessType == accessTypeDownload,
		Client:      clientInfo(request),
		Fingerprint: FingerprintFromRequest(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, issued)
}

/*
SecureView serves a protected image through a valid access token.

GET /api/v1/gallery/{slug}/secure/{photoId}/{token}?fragment=N

Description: Verifies the token (consuming one use) and streams the
transformed image. On fragmenting events the call without a fragment
parameter returns the tile plan as JSON; with fragment=N it returns tile N.

Response:
  - 200: image/jpeg body, or FragmentPlan JSON
  - 400: ValidationError: Bad fragment index
  - 401: TokenRejected: Expired, tampered, exhausted, or mismatched token
  - 404: NotFound: Unknown event or photo
*/
func (handler *Handler) secureView(writer http.ResponseWriter, request *http.Request) {
	photoID, err := requestutil.Int64Param(request, "photoId")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	fragment, err := fragmentParam(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	delivery, err := handler.deliveryService.Deliver(request.Context(), DeliverInput{
		Slug:        requestutil.Param(request, "slug"),
		PhotoID:     photoID,
		Token:       requestutil.Param(request, "token"),
		Fingerprint: FingerprintFromRequest(request),
		Client:      clientInfo(request),
		Fragment:    fragment,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	writer.Header().Set(constants.HeaderProtectionLevel, string(delivery.Level))
	writer.Header().Set(constants.HeaderRemainingUses, strconv.Itoa(delivery.Remaining))

	switch delivery.Kind {
	case DeliverFragmentPlan:
		respond.OK(writer, delivery.Plan)

	case DeliverFragment:
		// The position header is a JSON document so clients reuse the same
		// decoder they apply to the tile plan.
		position, _ := json.Marshal(delivery.Fragment.Position)
		writer.Header().Set(constants.HeaderFragmentIndex, strconv.Itoa(delivery.Fragment.Index))
		writer.Header().Set(constants.HeaderFragmentPosition, string(position))
		writeImage(writer, delivery.MimeType, delivery.Body)

	default:
		writeImage(writer, delivery.MimeType, delivery.Body)
	}
}

/*
SecureDownload serves the original-fidelity file through a valid token.

GET /api/v1/gallery/{slug}/secure-download/{photoId}/{token}

Description: Verifies the token (consuming one use), applies the event's
watermark, bumps the download counter, and streams the file as an
attachment.

Response:
  - 200: Attachment body
  - 401: TokenRejected: Expired, tampered, exhausted, or mismatched token
  - 403: Forbidden: Event disables downloads
  - 404: NotFound: Unknown event or photo
*/
func (handler *Handler) secureDownload(writer http.ResponseWriter, request *http.Request) {
	photoID, err := requestutil.Int64Param(request, "photoId")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	download, err := handler.deliveryService.DeliverDownload(request.Context(), DownloadInput{
		Slug:        requestutil.Param(request, "slug"),
		PhotoID:     photoID,
		Token:       requestutil.Param(request, "token"),
		Fingerprint: FingerprintFromRequest(request),
		Client:      clientInfo(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	writer.Header().Set("Content-Type", download.MimeType)
	writer.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	writer.Header().Set("Content-Length", strconv.Itoa(len(download.Body)))
	writer.Header().Set(constants.HeaderDownloadProtect, "true")
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write(download.Body)
}

/*
SecurityStats returns the operator security snapshot.

GET /api/v1/security/stats

Description: Live token count and hourly access aggregates over the
trailing 24 hours. Requires an operator JWT with at least the security role.

Response:
  - 200: SecurityStats
  - 401: Unauthorized: Missing or invalid operator token
  - 403: Forbidden: Insufficient role
*/
func (handler *Handler) securityStats(writer http.ResponseWriter, request *http.Request) {
	if _, err := requestutil.RequiredClaims(request); err != nil {
		respond.Error(writer, request, err)
		return
	}

	stats, err := handler.deliveryService.Stats(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, stats)
}

// # Helpers

// writeImage streams an image body with anti-caching headers. Protected
// bytes must never land in shared caches.
func writeImage(writer http.ResponseWriter, mimeType string, body []byte) {
	writer.Header().Set("Content-Type", mimeType)
	writer.Header().Set("Content-Length", strconv.Itoa(len(body)))
	writer.Header().Set("Cache-Control", "private, no-store")
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write(body)
}

// fragmentParam parses the optional ?fragment=N query parameter.
func fragmentParam(request *http.Request) (*int, error) {
	raw := request.URL.Query().Get("fragment")
	if raw == "" {
		return nil, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil, validate.ErrInvalidFragment
	}

	return &value, nil
}

// sessionID extracts the opaque session identifier, defaulting to anonymous.
func sessionID(request *http.Request) string {
	if session := request.Header.Get(constants.HeaderSessionID); session != "" {
		return session
	}
	return constants.AnonymousSession
}

// clientInfo assembles the audit attributes recorded with every access.
func clientInfo(request *http.Request) ClientInfo {
	return ClientInfo{
		IP:          middleware.RealIP(request),
		UserAgent:   request.UserAgent(),
		Fingerprint: FingerprintFromRequest(request),
	}
}
