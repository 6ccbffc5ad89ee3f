package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/finrag/internal/usecase/pipeline"
)

const dateLayout = "2006-01-02"

func newRunCmd(opts *options, open opener) *cobra.Command {
	var (
		entity  string
		since   string
		asJSON  bool
		ov      overrides
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Embed records that are missing any of their five vectors",
		Long: `Run walks the entity's incomplete records page by page and writes all five
embeddings of each record. With --since only records dated on or after that
day are considered. Failed records are reported and left for the next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if entity == "" {
				return errors.New("--entity is required")
			}
			var sinceDate time.Time
			if since != "" {
				d, err := time.Parse(dateLayout, since)
				if err != nil {
					return fmt.Errorf("--since must be YYYY-MM-DD: %w", err)
				}
				sinceDate = d
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			r, cleanup, err := open(ctx, *opts, ov)
			if err != nil {
				return err
			}
			defer cleanup()

			var rep pipeline.Report
			if sinceDate.IsZero() {
				rep, err = r.RunFull(ctx, entity)
			} else {
				rep, err = r.RunIncremental(ctx, entity, sinceDate)
			}
			if perr := printReport(cmd.OutOrStdout(), rep, asJSON); perr != nil && err == nil {
				err = perr
			}
			if err != nil {
				return fmt.Errorf("embedding run: %w", err)
			}
			if rep.Failed > 0 {
				return fmt.Errorf("%d records failed", rep.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&entity, "entity", "", "entity whose transactions to embed")
	cmd.Flags().StringVar(&since, "since", "", "only records dated on or after YYYY-MM-DD")
	cmd.Flags().IntVar(&ov.pageSize, "page-size", 0, "records per page (default from config)")
	cmd.Flags().IntVar(&ov.concurrency, "concurrency", 0, "records embedded in parallel (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abort the run after this long")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

type failureJSON struct {
	ID       string `json:"id"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

type reportJSON struct {
	Mode       string        `json:"mode"`
	Entity     string        `json:"entity"`
	Since      string        `json:"since,omitempty"`
	Pages      int           `json:"pages"`
	Fetched    int           `json:"fetched"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	DurationMs int64         `json:"duration_ms"`
	Failures   []failureJSON `json:"failures"`
}

func printReport(w io.Writer, rep pipeline.Report, asJSON bool) error {
	if asJSON {
		out := reportJSON{
			Mode:       string(rep.Mode),
			Entity:     rep.Entity,
			Pages:      rep.Pages,
			Fetched:    rep.Fetched,
			Succeeded:  rep.Succeeded,
			Failed:     rep.Failed,
			DurationMs: rep.Duration.Milliseconds(),
			Failures:   make([]failureJSON, 0, len(rep.Failures)),
		}
		if !rep.Since.IsZero() {
			out.Since = rep.Since.Format(dateLayout)
		}
		for _, f := range rep.Failures {
			fj := failureJSON{ID: f.ID(), Attempts: f.Attempts()}
			if f.Err() != nil {
				fj.Error = f.Err().Error()
			}
			out.Failures = append(out.Failures, fj)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "mode:      %s\n", rep.Mode)
	fmt.Fprintf(w, "entity:    %s\n", rep.Entity)
	if !rep.Since.IsZero() {
		fmt.Fprintf(w, "since:     %s\n", rep.Since.Format(dateLayout))
	}
	fmt.Fprintf(w, "pages:     %d\n", rep.Pages)
	fmt.Fprintf(w, "fetched:   %d\n", rep.Fetched)
	fmt.Fprintf(w, "succeeded: %d\n", rep.Succeeded)
	fmt.Fprintf(w, "failed:    %d\n", rep.Failed)
	fmt.Fprintf(w, "duration:  %s\n", rep.Duration.Round(time.Millisecond))
	for _, f := range rep.Failures {
		_, err := fmt.Fprintf(w, "  %s (attempts %d): %v\n", f.ID(), f.Attempts(), f.Err())
		if err != nil {
			return err
		}
	}
	return nil
}
