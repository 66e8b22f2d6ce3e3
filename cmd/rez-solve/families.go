package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/repository"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/resolve"
)

func newFamiliesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "families [names...]",
		Short: "List package families and their versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Cache.Watch = false

			r, err := resolve.FromConfig(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			families, err := r.Families(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) > 0 {
				families = slices.DeleteFunc(families, func(f repository.Family) bool {
					return !slices.Contains(args, f.Name)
				})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(families)
			}
			for _, f := range families {
				fmt.Fprintf(out, "%s: %s\n", f.Name, strings.Join(f.Versions, " "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
