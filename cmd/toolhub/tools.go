package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/toolhub/internal/app"
	"github.com/MrWong99/toolhub/internal/config"
	"github.com/MrWong99/toolhub/internal/rendezvous"
	"github.com/MrWong99/toolhub/internal/tools"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the built-in tool catalogue",
		Long: "tools prints every built-in tool. With --config it also reports whether\n" +
			"the tool's dependencies (files root, hybrid_search stores) are configured.",
		Args: cobra.NoArgs,
		RunE: runTools,
	}
	cmd.Flags().StringP("config", "c", "", "hub configuration used to check availability")
	return cmd
}

func runTools(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadSettings(configPath)
	if err != nil {
		return err
	}

	reg := config.NewRegistry()
	registerBuiltinBackends(reg)
	deps, closeDeps, err := app.ToolDeps(cmd.Context(), cfg, reg, rendezvous.NewBroker())
	defer closeDeps()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tDESCRIPTION")
	for _, name := range tools.Names() {
		t, err := tools.Build(name, deps)
		if err != nil {
			fmt.Fprintf(w, "%s\tunavailable\t%s\n", name, unavailableReason(err))
			continue
		}
		d, _ := t.Describe(cmd.Context())
		fmt.Fprintf(w, "%s\tready\t%s\n", name, d.Description)
	}
	return w.Flush()
}

func unavailableReason(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, "requires "); i >= 0 {
		msg = msg[i:]
	}
	return "(" + msg + ")"
}
