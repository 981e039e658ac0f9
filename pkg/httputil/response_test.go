package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusCreated, map[string]any{"payment_id": 42})

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"payment_id":42}`, w.Body.String())
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name    string
		write   func(http.ResponseWriter)
		status  int
		message string
	}{
		{
			name:    "explicit status",
			write:   func(w http.ResponseWriter) { WriteError(w, http.StatusConflict, errors.New("draft exists")) },
			status:  http.StatusConflict,
			message: "draft exists",
		},
		{
			name:    "bad request",
			write:   func(w http.ResponseWriter) { WriteBadRequest(w, "invalid request body") },
			status:  http.StatusBadRequest,
			message: "invalid request body",
		},
		{
			name:    "not found",
			write:   func(w http.ResponseWriter) { WriteNotFoundError(w, "draft not found") },
			status:  http.StatusNotFound,
			message: "draft not found",
		},
		{
			name:    "internal",
			write:   func(w http.ResponseWriter) { WriteInternalError(w, errors.New("connection reset")) },
			status:  http.StatusInternalServerError,
			message: "connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body["error"])
		})
	}
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteNoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestWriteJSONOrError(t *testing.T) {
	t.Run("encodes value", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSONOrError(w, http.StatusOK, []string{"a"}, "failed to encode")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `["a"]`, w.Body.String())
	})

	t.Run("unencodable value", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSONOrError(w, http.StatusOK, map[string]any{"ch": make(chan int)}, "failed to encode")

		// the status line is already written by the time encoding fails
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "failed to encode")
	})
}
