package ratecard

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sadopc/dwell/internal/billing"
	"github.com/sadopc/dwell/internal/store"
)

const sample = `
[[facility]]
name = "Walmart DC 6094"
address = "1 Distribution Way"
city = "Fontana"
state = "CA"
latitude = 34.09
longitude = -117.43
grace_period_minutes = 90
hourly_rate = 85.0

[[facility]]
name = "Kroger Mid-Atlantic"
city = "Roanoke"
state = "VA"
`

func TestParse(t *testing.T) {
	t.Parallel()

	card, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, card.Facilities, 2)

	w := card.Facilities[0]
	require.Equal(t, "Walmart DC 6094", w.Name)
	require.Equal(t, 34.09, *w.Latitude)
	require.Equal(t, 90, *w.GracePeriodMinutes)
	require.Equal(t, 85.0, *w.HourlyRate)

	k := card.Facilities[1]
	require.Nil(t, k.GracePeriodMinutes)
	require.Nil(t, k.HourlyRate)
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		input string
		want  error
	}{
		"empty name":   {"[[facility]]\nname = \"  \"\n", ErrEmptyName},
		"duplicate":    {"[[facility]]\nname = \"A\"\n[[facility]]\nname = \"a\"\n", ErrDuplicateName},
		"negative":     {"[[facility]]\nname = \"A\"\nhourly_rate = -1.0\n", ErrNegativeTerms},
		"negative gp":  {"[[facility]]\nname = \"A\"\ngrace_period_minutes = -5\n", ErrNegativeTerms},
		"unknown keys": {"[[facility]]\nname = \"A\"\nrate = 75.0\n", ErrUnknownKeys},
	}
	for name, tc := range cases {
		_, err := Parse(strings.NewReader(tc.input))
		require.ErrorIs(t, err, tc.want, name)
	}

	_, err := Parse(strings.NewReader("[[facility]\n"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rates.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	card, err := Load(path)
	require.NoError(t, err)
	require.Len(t, card.Facilities, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestApply(t *testing.T) {
	t.Parallel()

	s, err := store.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.CreateFacility(store.FacilityInput{Name: "Kroger Mid-Atlantic"})
	require.NoError(t, err)

	card, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	res, err := card.Apply(s)
	require.NoError(t, err)
	require.Equal(t, Result{Created: 1, Updated: 1}, res)

	w, err := s.GetFacilityByName("Walmart DC 6094")
	require.NoError(t, err)
	require.Equal(t, billing.Terms{GracePeriodMinutes: 90, HourlyRate: 85}, w.Terms(billing.DefaultTerms))

	k, err := s.GetFacilityByName("Kroger Mid-Atlantic")
	require.NoError(t, err)
	require.Equal(t, "Roanoke", k.City)
	require.Equal(t, billing.DefaultTerms, k.Terms(billing.DefaultTerms))

	// Re-applying is idempotent.
	res, err = card.Apply(s)
	require.NoError(t, err)
	require.Equal(t, Result{Updated: 2}, res)
}
