package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surfcast/internal/types"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func requestWithID(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	return r.WithContext(types.WithRequestID(r.Context(), "req-1"))
}

func TestError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, requestWithID(http.MethodGet, "/", ""),
		types.NewAppError(types.ErrCodeNotFoundRegion, "unknown region \"atlantis\"", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, "not_found_region", detail.Code)
	assert.Equal(t, "unknown region \"atlantis\"", detail.Message)
	assert.Equal(t, "req-1", detail.RequestID)
}

func TestError_DomainErrorsAreTranslated(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, requestWithID(http.MethodGet, "/", ""), &types.RetryExhausted{Attempts: 3})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, "upstream_forecast_unavailable", detail.Code)
	assert.EqualValues(t, 3, detail.Details["attempts"])
}

func TestError_GenericErrorDoesNotLeak(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, requestWithID(http.MethodGet, "/", ""), errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, "internal_unexpected_error", detail.Code)
	assert.NotContains(t, detail.Message, "password")
}

func TestJSON_WritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, requestWithID(http.MethodGet, "/", ""), http.StatusAccepted, APIResponse{Data: map[string]string{"status": "pending"}})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"status":"pending"}}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Region string `json:"region"`
		Range  int    `json:"range"`
	}

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"valid", `{"region":"hossegor","range":2}`, ""},
		{"empty", ``, "must not be empty"},
		{"syntax", `{"region":`, "malformed JSON"},
		{"unknown field", `{"region":"x","beach":"y"}`, "unknown field"},
		{"wrong type", `{"range":"two"}`, "invalid value for field"},
		{"trailing value", `{"region":"x"} {"region":"y"}`, "single JSON object"},
		{"too large", `{"region":"` + strings.Repeat("a", maxRequestBodySize) + `"}`, "exceed 1MB"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var dst payload
			rec := httptest.NewRecorder()
			err := DecodeJSON(rec, requestWithID(http.MethodPost, "/", tc.body), &dst)
			if tc.wantMsg == "" {
				require.NoError(t, err)
				assert.Equal(t, "hossegor", dst.Region)
				return
			}
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus())
			assert.Contains(t, appErr.Message, tc.wantMsg)
		})
	}
}
