package cli

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sadopc/dwell/internal/billing"
	"github.com/sadopc/dwell/internal/ratecard"
)

func newFacilitiesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facilities",
		Short: "Manage facilities and their detention terms",
	}
	cmd.AddCommand(newFacilitiesImportCmd(opts), newFacilitiesListCmd(opts))
	return cmd
}

func newFacilitiesImportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import facility terms from a TOML rate card",
		Long: `Import facility terms from a TOML rate card. Facilities are matched by
name: existing ones are updated, new ones are created.

	[[facility]]
	name = "Walmart DC 6094"
	city = "Fontana"
	state = "CA"
	grace_period_minutes = 120
	hourly_rate = 75.0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			card, err := ratecard.Load(args[0])
			if err != nil {
				return err
			}

			env, err := opts.open()
			if err != nil {
				return err
			}
			defer env.Close()

			res, err := card.Apply(env.store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s: %d created, %d updated\n", args[0], res.Created, res.Updated)
			return nil
		},
	}
}

func newFacilitiesListCmd(opts *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List facilities with their effective terms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.open()
			if err != nil {
				return err
			}
			defer env.Close()

			facilities, err := env.store.ListFacilities(all)
			if err != nil {
				return err
			}
			if len(facilities) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No facilities.")
				return nil
			}

			defaults := env.store.DefaultTerms()
			t := newTable("ID", "Name", "City", "Grace", "Rate")
			for i := range facilities {
				f := &facilities[i]
				terms := f.Terms(defaults)
				t.Row(
					strconv.FormatInt(f.ID, 10),
					f.Name,
					f.City,
					billing.FormatMinutes(int64(terms.GracePeriodMinutes)),
					billing.FormatCurrency(terms.HourlyRate)+"/h",
				)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include archived facilities")
	return cmd
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}
