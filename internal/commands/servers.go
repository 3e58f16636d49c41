package commands

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"toolbridge/internal/registry"
)

func newServersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List available tool servers",
		Long:  `List the built-in servers and the servers from the config file visible to the caller.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			subject := ""
			if app.caller != nil {
				subject = app.caller.Subject
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTRANSPORT\tSTATUS\tTOOLS")

			builtins := registry.BuiltinServerNames()
			sort.Strings(builtins)
			for _, name := range builtins {
				desc := registry.BuiltinServer(name)
				fmt.Fprintf(w, "%s\t%s\tbuilt-in\t%d\n", name, desc.Transport, len(desc.Tools))
			}

			for _, name := range app.store.ServerNames(subject) {
				desc, err := app.store.GetServerByName(cmd.Context(), name, subject)
				if err != nil || desc == nil {
					continue
				}
				status := "unknown"
				if desc.Disabled {
					status = "disabled"
				} else if update, ok := app.store.Status(name, subject); ok {
					status = string(update.Status)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", desc.Name, desc.Transport, status, len(desc.Tools))
			}

			return w.Flush()
		},
	}
}
