package i18n

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
fi:
  fine_status_overdue: Myöhästymismaksu
  Payment::transaction_fee: Palvelumaksu
en:
  fine_status_overdue: Overdue fine
  status_lost: Lost item
  Payment::transaction_fee: Service fee
sv_FI:
  fine_status_overdue: Förseningsavgift
`

func TestTranslate(t *testing.T) {
	c, err := Parse([]byte(catalogYAML), "en")
	require.NoError(t, err)

	tests := []struct {
		name string
		lang string
		key  string
		want string
		ok   bool
	}{
		{"exact", "fi", "fine_status_overdue", "Myöhästymismaksu", true},
		{"locale normalized", "sv_FI", "fine_status_overdue", "Förseningsavgift", true},
		{"base language", "fi-FI", "Payment::transaction_fee", "Palvelumaksu", true},
		{"fallback language", "fi", "status_lost", "Lost item", true},
		{"missing", "fi", "fine_status_unknown", "", false},
		{"empty language", "", "fine_status_overdue", "Overdue fine", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Translate(tt.lang, tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("From file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "payment.yaml")
		require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

		c, err := Load(path, "en")
		require.NoError(t, err)
		s, ok := c.Translate("en", "status_lost")
		assert.True(t, ok)
		assert.Equal(t, "Lost item", s)
	})

	t.Run("Empty path", func(t *testing.T) {
		c, err := Load("", "en")
		require.NoError(t, err)
		_, ok := c.Translate("en", "status_lost")
		assert.False(t, ok)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "en")
		assert.Error(t, err)
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := Parse([]byte("fi: [unterminated"), "en")
		assert.Error(t, err)
	})
}
