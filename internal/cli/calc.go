package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadopc/dwell/internal/billing"
)

// timeLayouts are accepted by --arrival, --now and --departure. Layouts
// without a zone are read in local time.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

func parseTimeFlag(name, v string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --%s %q: use RFC3339 or \"2006-01-02 15:04\"", name, v)
}

type calcFlags struct {
	arrival string
	end     string
	grace   int
	rate    float64
}

func (f *calcFlags) register(cmd *cobra.Command, endName, endUsage string) {
	cmd.Flags().StringVar(&f.arrival, "arrival", "", "arrival time (required)")
	cmd.Flags().StringVar(&f.end, endName, "", endUsage)
	cmd.Flags().IntVar(&f.grace, "grace", -1, "grace period in minutes (default from config)")
	cmd.Flags().Float64Var(&f.rate, "rate", -1, "hourly detention rate (default from config)")
	_ = cmd.MarkFlagRequired("arrival")
}

// terms overlays the flags on the configured defaults.
func (f *calcFlags) terms(opts *options) (billing.Terms, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return billing.Terms{}, err
	}
	t := cfg.Terms()
	if f.grace >= 0 {
		t.GracePeriodMinutes = f.grace
	}
	if f.rate >= 0 {
		t.HourlyRate = f.rate
	}
	return t, nil
}

func newCalcCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Price a detention interval without recording it",
	}
	cmd.AddCommand(newCalcTimerCmd(opts), newCalcSettleCmd(opts))
	return cmd
}

func newCalcTimerCmd(opts *options) *cobra.Command {
	var f calcFlags
	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Show the live timer for an arrival",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			arrival, err := parseTimeFlag("arrival", f.arrival)
			if err != nil {
				return err
			}
			now := time.Now()
			if f.end != "" {
				if now, err = parseTimeFlag("now", f.end); err != nil {
					return err
				}
			}
			terms, err := f.terms(opts)
			if err != nil {
				return err
			}

			st := billing.ComputeTimerState(arrival, now, terms)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Elapsed:         %s\n", billing.FormatTime(st.ElapsedSeconds))
			fmt.Fprintf(out, "Grace remaining: %s\n", billing.FormatTime(st.GraceRemainingSeconds()))
			fmt.Fprintf(out, "Detention:       %s\n", billing.FormatTime(st.DetentionSeconds))
			fmt.Fprintf(out, "Earnings:        %s\n", billing.FormatCurrency(st.CurrentEarnings))
			return nil
		},
	}
	f.register(cmd, "now", "evaluation time (default now)")
	return cmd
}

func newCalcSettleCmd(opts *options) *cobra.Command {
	var f calcFlags
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle a completed stop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			arrival, err := parseTimeFlag("arrival", f.arrival)
			if err != nil {
				return err
			}
			departure, err := parseTimeFlag("departure", f.end)
			if err != nil {
				return err
			}
			terms, err := f.terms(opts)
			if err != nil {
				return err
			}

			st := billing.ComputeDetentionAmount(arrival, departure, terms)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Dwell:     %s\n", billing.FormatDuration(int64(departure.Sub(arrival).Seconds())))
			fmt.Fprintf(out, "Grace:     %s\n", billing.FormatMinutes(int64(terms.GracePeriodMinutes)))
			fmt.Fprintf(out, "Detention: %d min\n", st.DetentionMinutes)
			fmt.Fprintf(out, "Rate:      %s/h\n", billing.FormatCurrency(terms.HourlyRate))
			fmt.Fprintf(out, "Amount:    %s\n", billing.FormatCurrency(st.TotalAmount))
			return nil
		},
	}
	f.register(cmd, "departure", "departure time (required)")
	_ = cmd.MarkFlagRequired("departure")
	return cmd
}
