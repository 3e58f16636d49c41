package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"toolbridge/internal/invoke"
)

func newInvokeCommand() *cobra.Command {
	var (
		paramsJSON string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "invoke <server> <tool>",
		Short: "Invoke a tool on a server",
		Long: `Invoke a named tool on a tool server. Parameters are passed as a JSON
object and forwarded to the tool unmodified.`,
		Example: `  toolbridge invoke github create_issue --params '{"title":"bug"}'
  toolbridge invoke document-fetcher fetch_url --params '{"url":"https://example.com"}'
  toolbridge invoke agent-assistant chat --params '{"prompt":"hello"}' --timeout 90s`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params map[string]interface{}
			if paramsJSON != "" {
				if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
					return fmt.Errorf("invalid --params JSON: %w", err)
				}
			}

			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			result := app.invoker.Invoke(cmd.Context(), invoke.Request{
				ServerName:      args[0],
				ToolName:        args[1],
				Parameters:      params,
				TimeoutOverride: timeout,
				Caller:          app.caller,
			})

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			cmd.Println(string(out))

			if !result.Success {
				return fmt.Errorf("invocation failed: %s", result.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&paramsJSON, "params", "", "tool parameters as a JSON object")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-invocation timeout override (e.g. 45s)")

	return cmd
}
