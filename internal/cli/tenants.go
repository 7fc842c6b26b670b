package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/spf13/cobra"
)

func (a *app) tenantsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "List, switch, create and update tenants",
	}
	cmd.AddCommand(
		a.tenantsListCommand(),
		a.tenantsSwitchCommand(),
		a.tenantsCreateCommand(),
		a.tenantsUpdateCommand(),
	)
	return cmd
}

func (a *app) tenantsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tenants you can act as",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.requireSession(cmd.Context())
			if err != nil {
				return err
			}
			snap := c.Tenants().Snapshot()
			if snap.Err != nil {
				return snap.Err
			}
			return a.printTenants(snap)
		},
	}
}

func (a *app) tenantsSwitchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <tenant-id>",
		Short: "Make a tenant the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.requireSession(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.Tenants().SwitchTenant(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "Switched to %s\n", args[0])
			return err
		},
	}
}

func (a *app) tenantsCreateCommand() *cobra.Command {
	var in tenants.CreateRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant and switch to it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.requireSession(cmd.Context())
			if err != nil {
				return err
			}
			t, err := c.Tenants().CreateTenant(cmd.Context(), in)
			if err != nil {
				return err
			}
			if a.flags.json {
				return a.printJSON(t)
			}
			_, err = fmt.Fprintf(a.out, "Created %s (%s)\n", t.Name, t.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "tenant name")
	cmd.Flags().StringVar(&in.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&in.Password, "password", "", "admin password")
	cmd.Flags().StringVar(&in.Domain, "domain", "", "tenant domain")
	return cmd
}

func (a *app) tenantsUpdateCommand() *cobra.Command {
	var name, domain string
	var active bool
	cmd := &cobra.Command{
		Use:   "update <tenant-id>",
		Short: "Update a tenant's name, domain or active flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.requireSession(cmd.Context())
			if err != nil {
				return err
			}
			var in tenants.UpdateRequest
			if cmd.Flags().Changed("name") {
				in.Name = &name
			}
			if cmd.Flags().Changed("domain") {
				in.Domain = &domain
			}
			if cmd.Flags().Changed("active") {
				in.IsActive = &active
			}
			t, err := c.Tenants().UpdateTenant(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			if a.flags.json {
				return a.printJSON(t)
			}
			_, err = fmt.Fprintf(a.out, "Updated %s (%s)\n", t.Name, t.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&domain, "domain", "", "new domain")
	cmd.Flags().BoolVar(&active, "active", true, "whether the tenant is active")
	return cmd
}

func (a *app) printTenants(snap tenants.Snapshot) error {
	if a.flags.json {
		return a.printJSON(snap.Tenants)
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tNAME\tDOMAIN")
	for _, t := range snap.Tenants {
		marker := ""
		if snap.Current != nil && snap.Current.ID == t.ID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", marker, t.ID, t.Name, t.Domain)
	}
	return w.Flush()
}
