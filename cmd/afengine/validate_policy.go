package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/afengine/afengine/internal/focus"
)

var validatePolicyCmd = &cobra.Command{
	Use:   "validate-policy <file>",
	Short: "Load and lint a policy JSON file without starting the service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := zerolog.New(os.Stdout).With().Timestamp().Logger()
		table, err := focus.Load(args[0], log)
		if err != nil {
			return err
		}
		fmt.Printf("policy file %s loaded successfully\n", args[0])
		reportUndefinedPairs(table)
		return nil
	},
}

// reportUndefinedPairs warns about every ordered pair of distinct request
// types where the holder's incoming matrix has no entry for the arriving
// type, since a request of the arriving type is then denied outright while
// the holder is active — often a misconfiguration rather than an
// intentional exclusion.
func reportUndefinedPairs(table *focus.Table) {
	names := table.Names()
	for _, a := range names {
		for _, b := range names {
			if a == b {
				continue
			}
			if _, ok := table.ActionFor(a, b); !ok {
				fmt.Printf("warning: %s has no defined action for incoming %s; such requests will be denied\n", a, b)
			}
		}
	}
}
