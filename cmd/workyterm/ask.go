package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/workyterm/workyterm/pkg/models"
	"github.com/workyterm/workyterm/pkg/orchestrator"
)

func newAskCmd() *cobra.Command {
	var (
		configPath string
		provider   string
		task       string
		noCache    bool
		councilOn  bool
		asJSON     bool
		quiet      bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "ask [request...]",
		Short: "Answer a request, streaming the response",
		Long: "Answer a request with the provider chosen for its task category, falling back\n" +
			"through the other enabled providers. The request is read from stdin when no\n" +
			"arguments are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read request: %w", err)
				}
				text = string(data)
			}

			opts := models.Options{
				ProviderOverride: models.ProviderID(provider),
				UseCache:         !noCache,
			}
			if task != "" {
				cat, ok := models.ParseTaskCategory(task)
				if !ok {
					return fmt.Errorf("unknown task %q (want one of %s)", task, categoryList())
				}
				opts.TaskHint = cat
			}

			level := "warn"
			if verbose {
				level = "debug"
			}
			a, err := openApp(configPath, appOptions{logLevel: level})
			if err != nil {
				return err
			}
			defer a.Close()

			opts.Council = a.cfg.Council.Enabled
			if cmd.Flags().Changed("council") {
				opts.Council = councilOn
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			h := a.engine.Submit(ctx, text, opts)
			out := cmd.OutOrStdout()
			if asJSON || quiet {
				res, err := h.Wait()
				if err != nil {
					return explain(err)
				}
				if asJSON {
					return writeResultJSON(out, res)
				}
				fmt.Fprintln(out, res.Text)
				return nil
			}

			res, err := streamResult(out, cmd.ErrOrStderr(), h)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "\n[%s]\n", footer(res))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&provider, "provider", "", "use only this provider")
	cmd.Flags().StringVarP(&task, "task", "t", "", "task category: "+categoryList())
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the response cache lookup")
	cmd.Flags().BoolVar(&councilOn, "council", false, "deliberate across the council members")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the final answer")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log routing and provider details")
	cmd.MarkFlagsMutuallyExclusive("json", "quiet")
	return cmd
}

// streamResult prints chunks as they arrive. When a provider fails after
// streaming partial output, a note is written to errOut before the next
// provider's output.
func streamResult(out, errOut io.Writer, h *orchestrator.Handle) (models.Result, error) {
	var current models.ProviderID
	var wrote bool
	for c := range h.Chunks() {
		if current != "" && c.Provider != current && wrote {
			fmt.Fprintf(errOut, "\n[%s stopped, continuing with %s]\n", current, c.Provider)
		}
		current = c.Provider
		fmt.Fprint(out, c.Text)
		wrote = true
	}
	res, err := h.Wait()
	if err == nil && wrote && !strings.HasSuffix(res.Text, "\n") {
		fmt.Fprintln(out)
	}
	return res, err
}

type jsonResult struct {
	ID        string              `json:"id"`
	Text      string              `json:"text"`
	Provider  models.ProviderID   `json:"provider"`
	Cached    bool                `json:"cached"`
	ElapsedMs int64               `json:"elapsed_ms"`
	Category  models.TaskCategory `json:"category"`
	Status    string              `json:"status"`
	Degraded  bool                `json:"degraded,omitempty"`
	Rounds    int                 `json:"rounds,omitempty"`
	Attempts  []models.Attempt    `json:"attempts,omitempty"`
}

func writeResultJSON(w io.Writer, res models.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonResult{
		ID:        res.ID,
		Text:      res.Text,
		Provider:  res.Provider,
		Cached:    res.Cached,
		ElapsedMs: res.ElapsedMs(),
		Category:  res.Category,
		Status:    "success",
		Degraded:  res.Degraded,
		Rounds:    res.Rounds,
		Attempts:  res.Attempts,
	})
}

func footer(res models.Result) string {
	parts := []string{string(res.Provider), string(res.Category)}
	if res.Cached {
		parts = append(parts, "cached")
	}
	if res.Rounds > 0 {
		parts = append(parts, fmt.Sprintf("%d rounds", res.Rounds))
	}
	if res.Degraded {
		parts = append(parts, "degraded")
	}
	parts = append(parts, fmt.Sprintf("%dms", res.ElapsedMs()))
	return strings.Join(parts, " | ")
}

// explain adds a hint to errors a user can act on.
func explain(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return errors.New("cancelled")
	case errors.Is(err, orchestrator.ErrCouncilUnavailable):
		return fmt.Errorf("%w: list at least two council.members in the config", err)
	case errors.Is(err, orchestrator.ErrAllProvidersUnavailable):
		return fmt.Errorf("%w\nrun 'workyterm providers' to check which providers are reachable", err)
	}
	return err
}

func categoryList() string {
	names := make([]string, len(models.TaskCategories))
	for i, c := range models.TaskCategories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
