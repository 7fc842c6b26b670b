package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-tenant-session/tokenstore"
	"github.com/spf13/cobra"
)

func (a *app) healthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the API is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient(tokenstore.NewMemoryStore())
			if err != nil {
				return err
			}
			resp, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			if a.flags.json {
				return a.printJSON(map[string]string{"api": a.baseURL(), "status": resp.Status})
			}
			_, err = fmt.Fprintf(a.out, "API:    %s\nStatus: %s\n", a.baseURL(), resp.Status)
			return err
		},
	}
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			banner := figure.NewFigure(a.cfg.GetAppName(), "cybermedium", true)
			_, err := fmt.Fprintf(a.out, "%s\nsessionctl %s\n", banner.String(), version())
			return err
		},
	}
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}
