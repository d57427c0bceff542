package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nathoo/agentsim/loader"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>...",
		Short: "Check Lua scenarios without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				def, err := loader.Load(path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s: FAIL\n", path)
					var verr *loader.ValidationError
					if errors.As(err, &verr) {
						for _, e := range verr.Errors {
							fmt.Fprintf(out, "  - %s\n", e)
						}
					} else {
						fmt.Fprintf(out, "  - %v\n", err)
					}
					continue
				}
				warnings, _ := loader.Validate(def)
				fmt.Fprintf(out, "%s: ok (%s, %d agent(s))\n", path, def.Title, len(def.Agents))
				for _, w := range warnings {
					fmt.Fprintf(out, "  ~ %s\n", w)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenario(s) failed validation", failed, len(args))
			}
			return nil
		},
	}
}
