package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/acoda/backend/pkg/validation"
)

func TestRespondValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondValidationError(rec, validation.ValidateUserID(""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Error   string                  `json:"error"`
		Details []validation.FieldError `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Invalid request", body.Error)
	assert.Equal(t, []validation.FieldError{{Field: "userId", Message: "is required"}}, body.Details)
}

func TestRespondValidationErrorPlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondValidationError(rec, errors.New("request body must be valid JSON"))

	assert.Contains(t, rec.Body.String(), `"field":"body"`)
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	var dst map[string]any
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{oops"))
	assert.Error(t, DecodeJSON(req, &dst))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, float64(1), dst["a"])
}

func TestSendSSEEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)
	SendSSEEvent(rec, rec, "delta", map[string]string{"content": "hi"})

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "event: delta\ndata: {\"content\":\"hi\"}\n\n", rec.Body.String())
}
