package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/workyterm/workyterm/pkg/metrics"
)

func newProvidersCmd() *cobra.Command {
	var (
		configPath string
		noProbe    bool
	)

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and check which are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath, appOptions{logLevel: "warn"})
			if err != nil {
				return err
			}
			defer a.Close()

			var probes map[string]bool
			if !noProbe {
				probes = make(map[string]bool)
				for id, ok := range a.registry.ProbeAll(context.Background()) {
					probes[string(id)] = ok
					metrics.RecordProbe(string(id), ok)
				}
			}

			routes := a.cfg.RouteTable()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tKIND\tENABLED\tSTATUS\tMODEL\tDEFAULT FOR")
			for _, d := range a.registry.List() {
				status := "-"
				if ok, probed := probes[string(d.ID)]; probed {
					status = "unreachable"
					if ok {
						status = "ok"
					}
				}
				model := d.Model
				if model == "" {
					model = "-"
				}
				var defaults []string
				for cat, id := range routes {
					if id == d.ID {
						defaults = append(defaults, string(cat))
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%s\n", d.ID, d.Kind, d.Enabled, status, model, joinSorted(defaults))
			}
			return w.Flush()
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&noProbe, "no-probe", false, "skip reachability checks")
	return cmd
}
