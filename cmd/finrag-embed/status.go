package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

type statusJSON struct {
	Entity   string `json:"entity"`
	Total    int64  `json:"total"`
	Missing  int64  `json:"missing"`
	Embedded int64  `json:"embedded"`
}

func newStatusCmd(opts *options, open opener) *cobra.Command {
	var (
		entity string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Count an entity's records and those still missing embeddings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if entity == "" {
				return errors.New("--entity is required")
			}
			r, cleanup, err := open(cmd.Context(), *opts, overrides{})
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := r.Status(cmd.Context(), entity)
			if err != nil {
				return fmt.Errorf("embedding status: %w", err)
			}

			out := statusJSON{Entity: entity, Total: st.Total, Missing: st.Missing, Embedded: st.Total - st.Missing}
			w := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(w).Encode(out)
			}
			_, err = fmt.Fprintf(w, "%s: %d of %d embedded, %d missing\n", out.Entity, out.Embedded, out.Total, out.Missing)
			return err
		},
	}

	cmd.Flags().StringVar(&entity, "entity", "", "entity to inspect")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
