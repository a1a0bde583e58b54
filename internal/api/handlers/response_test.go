package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
)

func TestRespondWithAppError(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		expectedCode    int
		expectedMessage string
	}{
		{name: "not found", err: apperrors.NewNotFoundError("provider x not found"), expectedCode: http.StatusNotFound, expectedMessage: "provider x not found"},
		{name: "validation", err: apperrors.NewValidationError("bad latitude"), expectedCode: http.StatusBadRequest, expectedMessage: "bad latitude"},
		{name: "overlay build failure", err: apperrors.NewOverlayBuildFailureError("provider has no coordinates", nil), expectedCode: http.StatusUnprocessableEntity, expectedMessage: "provider has no coordinates"},
		{name: "external", err: apperrors.NewExternalError("geocoder returned garbage", nil), expectedCode: http.StatusBadGateway, expectedMessage: "geocoder returned garbage"},
		{name: "network failure", err: apperrors.NewNetworkFailureError("roster", errors.New("dial tcp")), expectedCode: http.StatusBadGateway, expectedMessage: "roster unreachable"},
		{name: "wrapped app error", err: fmt.Errorf("listing: %w", apperrors.NewNotFoundError("gone")), expectedCode: http.StatusNotFound, expectedMessage: "gone"},
		{name: "internal hides details", err: apperrors.NewInternalError("pq: password authentication failed", nil), expectedCode: http.StatusInternalServerError, expectedMessage: "internal server error"},
		{name: "plain error", err: errors.New("boom"), expectedCode: http.StatusInternalServerError, expectedMessage: "internal server error"},
		{name: "superseded", err: fmt.Errorf("route: %w", context.Canceled), expectedCode: http.StatusConflict, expectedMessage: "request superseded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			respondWithAppError(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedMessage, body["error"])
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Query string `json:"query"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.NoError(t, decodeJSON(httptest.NewRecorder(), req, &dst), "empty body")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"Campinas"}`))
	require.NoError(t, decodeJSON(httptest.NewRecorder(), req, &dst))
	assert.Equal(t, "Campinas", dst.Query)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":`))
	err := decodeJSON(httptest.NewRecorder(), req, &dst)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}
