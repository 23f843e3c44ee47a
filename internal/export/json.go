package export

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/sadopc/dwell/internal/billing"
	"github.com/sadopc/dwell/internal/store"
)

type jsonExport struct {
	ExportedAt  string      `json:"exported_at"`
	Count       int         `json:"count"`
	TotalAmount float64     `json:"total_amount"`
	Events      []jsonEvent `json:"events"`
}

type jsonEvent struct {
	ID               int64   `json:"id"`
	Facility         string  `json:"facility"`
	FacilityID       int64   `json:"facility_id"`
	LoadNumber       string  `json:"load_number,omitempty"`
	EventType        string  `json:"event_type"`
	ArrivalTime      string  `json:"arrival_time"`
	DepartureTime    string  `json:"departure_time,omitempty"`
	DwellSec         int64   `json:"dwell_seconds"`
	Dwell            string  `json:"dwell"`
	GracePeriod      int     `json:"grace_period_minutes"`
	HourlyRate       float64 `json:"hourly_rate"`
	DetentionMinutes int64   `json:"detention_minutes"`
	Amount           float64 `json:"amount"`
	Status           string  `json:"status"`
	Notes            string  `json:"notes,omitempty"`
}

func ToJSON(events []store.DetentionEvent, facilities map[int64]*store.Facility, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}
	defer f.Close()

	if err := WriteJSON(f, events, facilities); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}

// WriteJSON writes an indented export document to w.
func WriteJSON(w io.Writer, events []store.DetentionEvent, facilities map[int64]*store.Facility) error {
	export := jsonExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      len(events),
	}

	var total float64
	for _, e := range events {
		departure := ""
		if e.DepartureTime != nil {
			departure = e.DepartureTime.Local().Format(time.RFC3339)
		}
		dwell := e.DwellSeconds()
		total += e.TotalAmount

		export.Events = append(export.Events, jsonEvent{
			ID:               e.ID,
			Facility:         facilityName(facilities, e.FacilityID),
			FacilityID:       e.FacilityID,
			LoadNumber:       e.LoadNumber,
			EventType:        e.EventType,
			ArrivalTime:      e.ArrivalTime.Local().Format(time.RFC3339),
			DepartureTime:    departure,
			DwellSec:         dwell,
			Dwell:            billing.FormatTime(dwell),
			GracePeriod:      e.GracePeriodMinutes,
			HourlyRate:       e.HourlyRate,
			DetentionMinutes: e.DetentionMinutes,
			Amount:           e.TotalAmount,
			Status:           e.Status,
			Notes:            e.Notes,
		})
	}
	export.TotalAmount = math.Round(total*100) / 100

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
