package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadopc/dwell/internal/export"
	"github.com/sadopc/dwell/internal/store"
)

func newExportCmd(opts *options) *cobra.Command {
	var (
		format string
		out    string
		status string
		from   string
		to     string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export detention events to CSV or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("unknown format %q: use csv or json", format)
			}

			var filter store.EventFilter
			filter.Status = status
			if from != "" {
				t, err := parseTimeFlag("from", from)
				if err != nil {
					return err
				}
				filter.From = &t
			}
			if to != "" {
				t, err := parseTimeFlag("to", to)
				if err != nil {
					return err
				}
				filter.To = &t
			}

			env, err := opts.open()
			if err != nil {
				return err
			}
			defer env.Close()

			events, err := env.store.ListEvents(filter)
			if err != nil {
				return err
			}
			facilities, err := facilityMap(env.store)
			if err != nil {
				return err
			}

			if out == "" {
				out = fmt.Sprintf("dwell-export-%s.%s", time.Now().Format("2006-01-02"), format)
			}
			if format == "csv" {
				err = export.ToCSV(events, facilities, out)
			} else {
				err = export.ToJSON(events, facilities, out)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d events to %s\n", len(events), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "csv or json")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default dwell-export-DATE.FORMAT)")
	cmd.Flags().StringVar(&status, "status", "", "only events with this status")
	cmd.Flags().StringVar(&from, "from", "", "only events arriving at or after this time")
	cmd.Flags().StringVar(&to, "to", "", "only events arriving before this time")
	return cmd
}

// facilityMap indexes every facility, archived ones included, by id.
func facilityMap(s *store.Store) (map[int64]*store.Facility, error) {
	facilities, err := s.ListFacilities(true)
	if err != nil {
		return nil, err
	}
	m := make(map[int64]*store.Facility, len(facilities))
	for i := range facilities {
		m[facilities[i].ID] = &facilities[i]
	}
	return m, nil
}
