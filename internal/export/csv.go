package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sadopc/dwell/internal/billing"
	"github.com/sadopc/dwell/internal/store"
)

var csvHeader = []string{
	"ID", "Facility", "Load", "Type", "Arrival", "Departure", "Dwell (s)", "Dwell",
	"Detention (min)", "Rate", "Amount", "Status", "Notes",
}

func ToCSV(events []store.DetentionEvent, facilities map[int64]*store.Facility, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	return WriteCSV(f, events, facilities)
}

// WriteCSV writes one row per event to w.
func WriteCSV(out io.Writer, events []store.DetentionEvent, facilities map[int64]*store.Facility) error {
	w := csv.NewWriter(out)

	if err := w.Write(csvHeader); err != nil {
		return err
	}

	for _, e := range events {
		departure := ""
		if e.DepartureTime != nil {
			departure = e.DepartureTime.Local().Format(time.RFC3339)
		}
		dwell := e.DwellSeconds()

		row := []string{
			strconv.FormatInt(e.ID, 10),
			facilityName(facilities, e.FacilityID),
			e.LoadNumber,
			e.EventType,
			e.ArrivalTime.Local().Format(time.RFC3339),
			departure,
			strconv.FormatInt(dwell, 10),
			billing.FormatTime(dwell),
			strconv.FormatInt(e.DetentionMinutes, 10),
			billing.FormatCurrency(e.HourlyRate),
			billing.FormatCurrency(e.TotalAmount),
			e.Status,
			e.Notes,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func facilityName(facilities map[int64]*store.Facility, id int64) string {
	if f, ok := facilities[id]; ok && f != nil {
		return f.Name
	}
	return "Unknown"
}
