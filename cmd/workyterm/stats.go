package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/workyterm/workyterm/pkg/config"
	"github.com/workyterm/workyterm/pkg/history"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		since      time.Duration
		recent     int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show request history per provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			h, err := history.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer h.Close()

			ctx := context.Background()
			out := cmd.OutOrStdout()

			// Recent runs view
			if recent > 0 {
				runs, err := h.Recent(ctx, recent)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tID\tPROVIDER\tCATEGORY\tSTATUS\tCACHED\tCOUNCIL\tLATENCY")
				for _, r := range runs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%t\t%s\n",
						r.CreatedAt.Local().Format("2006-01-02T15:04:05"), shortID(r.ID), orDash(string(r.Provider)),
						r.Category, r.Status, r.Cached, r.Council, r.Elapsed.Round(time.Millisecond))
				}
				return w.Flush()
			}

			// Summary view
			rows, err := h.Summary(ctx, time.Now().Add(-since))
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tRUNS\tCACHED\tFAILED\tAVG LATENCY")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n",
					orDash(string(r.Provider)), r.Runs, r.Cached, r.Failed, r.AvgElapsed.Round(time.Millisecond))
			}
			return w.Flush()
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().DurationVar(&since, "since", 30*24*time.Hour, "summarize runs newer than this")
	cmd.Flags().IntVarP(&recent, "recent", "n", 0, "list the N most recent runs instead of the summary")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func joinSorted(s []string) string {
	if len(s) == 0 {
		return "-"
	}
	sort.Strings(s)
	return strings.Join(s, ",")
}

