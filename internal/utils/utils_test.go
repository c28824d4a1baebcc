package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityContext(t *testing.T) {
	t.Run("SetIdentity and IdentityFromContext", func(t *testing.T) {
		want := Identity{
			UserID:      100,
			CatUsername: "helmet.1234",
			Name:        "Virtanen, Aino",
			Email:       "aino@example.com",
			Language:    "fi",
		}

		ctx := SetIdentity(context.Background(), want)

		got, ok := IdentityFromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("Empty context", func(t *testing.T) {
		_, ok := IdentityFromContext(context.Background())
		assert.False(t, ok)
	})
}

func TestGenerateTransactionID(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	t.Run("Format", func(t *testing.T) {
		id := GenerateTransactionID("helmet.1234", now)
		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), id)
	})

	t.Run("Deterministic", func(t *testing.T) {
		assert.Equal(t,
			GenerateTransactionID("helmet.1234", now),
			GenerateTransactionID("helmet.1234", now),
		)
	})

	t.Run("Uniqueness", func(t *testing.T) {
		a := GenerateTransactionID("helmet.1234", now)
		b := GenerateTransactionID("helmet.1234", now.Add(time.Nanosecond))
		c := GenerateTransactionID("helmet.5678", now)
		assert.NotEqual(t, a, b)
		assert.NotEqual(t, a, c)
	})
}

func TestWriteJSONError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSONError(w, "transaction not found", http.StatusNotFound)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "transaction not found", body["error"])
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSON(w, map[string]string{"status": "success"}, http.StatusOK)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success"}`, w.Body.String())
}
