package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// printResult writes v as JSON with --json, otherwise the plain message.
func printResult(cmd *cobra.Command, v any, plain string) error {
	w := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, plain)
	return err
}
