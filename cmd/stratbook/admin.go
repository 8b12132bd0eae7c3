package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nrzngr/exvoria-strat-management/internal/core"
	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

func newMigrateCmd(a *app) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema to the configured database and optionally seed maps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg.StorageConfig()
			cfg.Seed = false
			store, err := core.OpenPersistentStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.Driver)
			if !seed {
				return nil
			}
			n, err := core.SeedMaps(cmd.Context(), store, core.DefaultSeedMaps())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d maps\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert the default maps that are missing")
	return cmd
}

func newMapsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "maps", Short: "Inspect maps"}
	var query string
	list := &cobra.Command{
		Use:   "list",
		Short: "List maps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var maps []domain.Map
			if c := a.remote(); c != nil {
				var err error
				if maps, err = c.ListMaps(cmd.Context(), query); err != nil {
					return err
				}
			} else {
				svc, err := a.openService(cmd.Context())
				if err != nil {
					return err
				}
				defer func() { _ = svc.Close() }()
				if maps, err = svc.SearchMaps(cmd.Context(), query); err != nil {
					return err
				}
			}
			return printMaps(cmd.OutOrStdout(), maps)
		},
	}
	list.Flags().StringVarP(&query, "query", "q", "", "filter by name or description")
	cmd.AddCommand(list)
	return cmd
}

func printMaps(w io.Writer, maps []domain.Map) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTRATEGIES")
	for _, m := range maps {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", m.ID, m.Name, m.StrategyCount)
	}
	return tw.Flush()
}

func newStrategiesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "strategies", Short: "Inspect strategies"}
	var version int
	show := &cobra.Command{
		Use:   "show <strategy-id>",
		Short: "Print a strategy, or one of its versions, as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.showStrategy(cmd, args[0], version)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	show.Flags().IntVar(&version, "version", 0, "version number (default: current)")
	cmd.AddCommand(show)
	return cmd
}

func (a *app) showStrategy(cmd *cobra.Command, id string, version int) (any, error) {
	ctx := cmd.Context()
	if version < 0 {
		return nil, fmt.Errorf("invalid version %d", version)
	}
	if c := a.remote(); c != nil {
		if version > 0 {
			return c.GetVersion(ctx, id, version)
		}
		return c.GetStrategy(ctx, id)
	}
	svc, err := a.openService(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = svc.Close() }()
	if version > 0 {
		return svc.GetVersion(ctx, id, version)
	}
	return svc.GetStrategy(ctx, id)
}
