package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test <server>",
		Short: "Test connectivity to a server",
		Long: `Connect to a tool server, complete the handshake, and list its tools.
No tool is invoked and nothing is retried.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			result := app.invoker.TestConnection(cmd.Context(), args[0], app.caller)

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			cmd.Println(string(out))

			if !result.Success {
				return fmt.Errorf("connection test failed: %s", result.Err)
			}
			return nil
		},
	}
}
