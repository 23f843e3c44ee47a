package notify

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatPayload(t *testing.T) {
	event := Event{
		Type:             DetentionStarted,
		EventID:          7,
		Facility:         "Walmart DC 6094",
		LoadNumber:       "884213",
		Timestamp:        time.Date(2026, 2, 2, 22, 18, 12, 0, time.FixedZone("CST", -6*3600)),
		ElapsedSeconds:   7201,
		DetentionSeconds: 1,
		Amount:           0.02,
	}

	payload, err := FormatPayload(event)
	require.NoError(t, err)

	var parsed Payload
	require.NoError(t, json.Unmarshal(payload, &parsed))
	require.Equal(t, "2026-02-03T04:18:12Z", parsed.Detention.Timestamp)
	require.Equal(t, "detention_started", parsed.Detention.Event)
	require.Equal(t, int64(7), parsed.Detention.EventID)
	require.Equal(t, "Walmart DC 6094", parsed.Detention.Facility)
	require.Equal(t, int64(7201), parsed.Detention.ElapsedSeconds)
	require.Equal(t, 0.02, parsed.Detention.Amount)
}

func TestFormatPayloadOmitsEmptyLoad(t *testing.T) {
	payload, err := FormatPayload(Event{Type: CheckedIn, Timestamp: time.Unix(0, 0)})
	require.NoError(t, err)
	require.NotContains(t, string(payload), "load_number")
}

func TestTopic(t *testing.T) {
	tests := []struct {
		prefix string
		typ    EventType
		want   string
	}{
		{"dwell", CheckedIn, "dwell/events/checked_in"},
		{"fleet/truck-12/", GraceWarning, "fleet/truck-12/events/grace_warning"},
		{"", CheckedOut, "dwell/events/checked_out"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Topic(tt.prefix, tt.typ))
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()
	require.NoError(t, f.Publish(Event{Type: CheckedIn}))
	require.NoError(t, f.Publish(Event{Type: CheckedOut}))
	require.Equal(t, []EventType{CheckedIn, CheckedOut}, f.Types())
	require.Len(t, f.Payloads, 2)

	f.PublishError = errors.New("broker down")
	require.Error(t, f.Publish(Event{Type: GraceWarning}))
	require.Len(t, f.Events, 2)

	require.NoError(t, f.Close())
	require.True(t, f.Closed)

	f.Reset()
	require.Empty(t, f.Events)
	require.False(t, f.Closed)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	require.NoError(t, p.Publish(Event{Type: CheckedIn}))
	require.NoError(t, p.Close())
}
