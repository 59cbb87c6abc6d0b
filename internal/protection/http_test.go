// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protection_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/pixveil/internal/gallery"
	"github.com/taibuivan/pixveil/internal/protection"
)

func newTestRouter(t *testing.T, event *gallery.Event) (*chi.Mux, *deliveryFixture) {
	t.Helper()

	fixture := newDeliveryFixture(t, event)
	handler := protection.NewHandler(fixture.service)

	router := chi.NewRouter()
	router.Mount("/gallery", handler.Routes())
	router.Mount("/security", handler.StatsRoutes())

	return router, fixture
}

// doRequest executes a request with a stable client identity so issued
// tokens stay bound to the test "browser".
func doRequest(router *chi.Mux, method, target, body string) *httptest.ResponseRecorder {
	var request *http.Request
	if body != "" {
		request = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		request = httptest.NewRequest(method, target, nil)
	}
	request.RemoteAddr = "10.1.1.1:40000"
	request.Header.Set("User-Agent", "Mozilla/5.0")
	request.Header.Set("Accept-Language", "en-US")
	request.Header.Set("Accept-Encoding", "gzip")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

/*
TestHandler_GenerateToken verifies the issuance endpoint envelope and
headers-independent response body.
*/
func TestHandler_GenerateToken(t *testing.T) {
	router, _ := newTestRouter(t, standardEvent())

	recorder := doRequest(router, http.MethodPost, "/gallery/smith-wedding/generate-token", `{"photoId": 1}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	var envelope struct {
		Data protection.IssuedToken `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))

	assert.NotEmpty(t, envelope.Data.Token)
	assert.Equal(t, 3, envelope.Data.MaxUses)
	assert.Equal(t, protection.LevelStandard, envelope.Data.ProtectionLevel)
}

/*
TestHandler_GenerateToken_Invalid verifies malformed input is rejected with
a validation envelope.
*/
func TestHandler_GenerateToken_Invalid(t *testing.T) {
	router, _ := newTestRouter(t, standardEvent())

	tests := []struct {
		name string
		body string
	}{
		{"bad_json", `{`},
		{"missing_photo_id", `{}`},
		{"negative_photo_id", `{"photoId": -3}`},
		{"unknown_access_type", `{"photoId": 1, "accessType": "stream"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := doRequest(router, http.MethodPost, "/gallery/smith-wedding/generate-token", tt.body)
			assert.Equal(t, http.StatusBadRequest, recorder.Code)

			var envelope struct {
				Code string `json:"code"`
			}
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
			assert.Equal(t, "VALIDATION_ERROR", envelope.Code)
		})
	}
}

/*
TestHandler_SecureView verifies the view endpoint streams JPEG bytes with
the protection headers set.
*/
func TestHandler_SecureView(t *testing.T) {
	router, _ := newTestRouter(t, standardEvent())

	recorder := doRequest(router, http.MethodPost, "/gallery/smith-wedding/generate-token", `{"photoId": 1}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	var envelope struct {
		Data protection.IssuedToken `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))

	viewURL := fmt.Sprintf("/gallery/smith-wedding/secure/1/%s", envelope.Data.Token)
	view := doRequest(router, http.MethodGet, viewURL, "")

	require.Equal(t, http.StatusOK, view.Code)
	assert.Equal(t, "image/jpeg", view.Header().Get("Content-Type"))
	assert.Equal(t, "standard", view.Header().Get("X-Protection-Level"))
	assert.Equal(t, "2", view.Header().Get("X-Remaining-Uses"))
	assert.Equal(t, "private, no-store", view.Header().Get("Cache-Control"))
	assert.NotEmpty(t, view.Body.Bytes())
}

/*
TestHandler_SecureView_RejectedToken verifies a forged token yields 401 with
the rejection reason.
*/
func TestHandler_SecureView_RejectedToken(t *testing.T) {
	router, _ := newTestRouter(t, standardEvent())

	recorder := doRequest(router, http.MethodGet, "/gallery/smith-wedding/secure/1/forged-token", "")
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	var envelope struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	assert.Equal(t, "TOKEN_REJECTED", envelope.Code)
	assert.Equal(t, protection.ReasonTampered, envelope.Error)
}

/*
TestHandler_SecureView_FragmentHeaders verifies tile delivery carries index
and position headers.
*/
func TestHandler_SecureView_FragmentHeaders(t *testing.T) {
	router, _ := newTestRouter(t, maximumEvent())

	recorder := doRequest(router, http.MethodPost, "/gallery/smith-wedding/generate-token", `{"photoId": 1}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	var envelope struct {
		Data protection.IssuedToken `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))

	tileURL := fmt.Sprintf("/gallery/smith-wedding/secure/1/%s?fragment=4", envelope.Data.Token)
	tile := doRequest(router, http.MethodGet, tileURL, "")

	require.Equal(t, http.StatusOK, tile.Code)
	assert.Equal(t, "4", tile.Header().Get("X-Fragment-Index"))
	assert.Equal(t, `{"left":200,"top":200,"width":200,"height":200}`, tile.Header().Get("X-Fragment-Position"))

	var position protection.FragmentPosition
	require.NoError(t, json.Unmarshal([]byte(tile.Header().Get("X-Fragment-Position")), &position))
	assert.Equal(t, 200, position.Left)
	assert.Equal(t, 200, position.Top)
}

/*
TestHandler_SecureDownload verifies attachment headers on the download path.
*/
func TestHandler_SecureDownload(t *testing.T) {
	router, _ := newTestRouter(t, standardEvent())

	recorder := doRequest(router, http.MethodPost, "/gallery/smith-wedding/generate-token", `{"photoId": 1, "accessType": "download"}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	var envelope struct {
		Data protection.IssuedToken `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	assert.Equal(t, 1, envelope.Data.MaxUses)

	downloadURL := fmt.Sprintf("/gallery/smith-wedding/secure-download/1/%s", envelope.Data.Token)
	download := doRequest(router, http.MethodGet, downloadURL, "")

	require.Equal(t, http.StatusOK, download.Code)
	assert.Equal(t, `attachment; filename="beach.jpg"`, download.Header().Get("Content-Disposition"))
	assert.Equal(t, "true", download.Header().Get("X-Download-Protected"))
}

/*
TestHandler_SecurityStats_RequiresAuth verifies the operator endpoint is
closed to anonymous requests.
*/
func TestHandler_SecurityStats_RequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t, standardEvent())

	recorder := doRequest(router, http.MethodGet, "/security/stats", "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
