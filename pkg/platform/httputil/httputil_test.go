package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "agora/pkg/domain-errors"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "internal", body["error"])
		_, ok := body["error_description"]
		assert.False(t, ok)
	})

	t.Run("validation includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid input"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "validation", body["error"])
		assert.Equal(t, "invalid input", body["error_description"])
	})

	t.Run("wrapped state errors keep their code", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := fmt.Errorf("assign: %w", dErrors.New(dErrors.CodeAlreadyTerminal, "mandate is revoked"))
		WriteError(w, err)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "already_terminal", decodeError(t, w)["error"])
	})

	t.Run("uncoded deadline is a timeout", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, fmt.Errorf("lock: %w", context.DeadlineExceeded))

		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
		assert.Equal(t, "timeout", decodeError(t, w)["error"])
	})
}

func TestStatusFor(t *testing.T) {
	tests := map[dErrors.Code]int{
		dErrors.CodeInvalidTransition:  http.StatusConflict,
		dErrors.CodeAlreadyTerminal:    http.StatusConflict,
		dErrors.CodeConflictingRequest: http.StatusConflict,
		dErrors.CodeAlreadyResolved:    http.StatusConflict,
		dErrors.CodeNotFound:           http.StatusNotFound,
		dErrors.CodeValidation:         http.StatusBadRequest,
		dErrors.CodeInvalidBallotSet:   http.StatusInternalServerError,
		dErrors.CodeTimeout:            http.StatusGatewayTimeout,
	}
	for code, status := range tests {
		assert.Equal(t, status, StatusFor(code), string(code))
	}
}

type nameRequest struct {
	Name string `json:"name"`
}

func (r *nameRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	decode := func(body string) (*nameRequest, *httptest.ResponseRecorder, bool) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req, ok := DecodeAndPrepare[nameRequest](w, r, logger, r.Context(), "req-1")
		return req, w, ok
	}

	req, _, ok := decode(`{"name":"  alice "}`)
	require.True(t, ok)
	assert.Equal(t, "alice", req.Name)

	_, w, ok := decode(`{"name":"alice","extra":1}`)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, w, ok = decode(`{"name":" "}`)
	assert.False(t, ok)
	assert.Equal(t, "name is required", decodeError(t, w)["error_description"])
}
