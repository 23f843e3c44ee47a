// Package ratecard imports facility detention terms from a TOML file:
//
//	[[facility]]
//	name = "Walmart DC 6094"
//	city = "Fontana"
//	state = "CA"
//	grace_period_minutes = 120
//	hourly_rate = 75.0
package ratecard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/sadopc/dwell/internal/store"
)

var (
	ErrEmptyName     = errors.New("facility name is required")
	ErrDuplicateName = errors.New("duplicate facility name")
	ErrNegativeTerms = errors.New("grace period and hourly rate must not be negative")
	ErrUnknownKeys   = errors.New("unknown keys in rate card")
)

// Card is a parsed rate card.
type Card struct {
	Facilities []Facility `toml:"facility"`
}

// Facility is one [[facility]] table. Unset terms fall back to the user's
// defaults at check-in.
type Facility struct {
	Name               string   `toml:"name"`
	Address            string   `toml:"address"`
	City               string   `toml:"city"`
	State              string   `toml:"state"`
	Latitude           *float64 `toml:"latitude"`
	Longitude          *float64 `toml:"longitude"`
	GracePeriodMinutes *int     `toml:"grace_period_minutes"`
	HourlyRate         *float64 `toml:"hourly_rate"`
}

// Result counts what Apply changed.
type Result struct {
	Created int
	Updated int
}

// Parse decodes and validates a rate card.
func Parse(r io.Reader) (*Card, error) {
	var card Card
	md, err := toml.NewDecoder(r).Decode(&card)
	if err != nil {
		return nil, fmt.Errorf("decode rate card: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%w: %s", ErrUnknownKeys, strings.Join(keys, ", "))
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}
	return &card, nil
}

// Load parses the rate card at path.
func Load(path string) (*Card, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open rate card: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Validate trims names and checks for duplicates and negative terms.
func (c *Card) Validate() error {
	seen := make(map[string]bool, len(c.Facilities))
	for i := range c.Facilities {
		f := &c.Facilities[i]
		f.Name = strings.TrimSpace(f.Name)
		if f.Name == "" {
			return fmt.Errorf("facility #%d: %w", i+1, ErrEmptyName)
		}
		key := strings.ToLower(f.Name)
		if seen[key] {
			return fmt.Errorf("%w: %q", ErrDuplicateName, f.Name)
		}
		seen[key] = true
		if (f.GracePeriodMinutes != nil && *f.GracePeriodMinutes < 0) || (f.HourlyRate != nil && *f.HourlyRate < 0) {
			return fmt.Errorf("facility %q: %w", f.Name, ErrNegativeTerms)
		}
	}
	return nil
}

// Apply upserts every facility on the card by name.
func (c *Card) Apply(s *store.Store) (Result, error) {
	var res Result
	for _, f := range c.Facilities {
		_, created, err := s.UpsertFacility(store.FacilityInput{
			Name:               f.Name,
			Address:            f.Address,
			City:               f.City,
			State:              f.State,
			Latitude:           f.Latitude,
			Longitude:          f.Longitude,
			GracePeriodMinutes: f.GracePeriodMinutes,
			HourlyRate:         f.HourlyRate,
		})
		if err != nil {
			return res, fmt.Errorf("import %q: %w", f.Name, err)
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}
	return res, nil
}
