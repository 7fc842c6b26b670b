package cli

import (
	"fmt"

	"github.com/jrsteele09/go-tenant-session/auth"
	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/spf13/cobra"
)

func (a *app) loginCommand() *cobra.Command {
	var email, password, tenantID string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and load your tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			var sess *auth.Session
			if tenantID != "" {
				sess, err = c.Auth().LoginToTenant(cmd.Context(), email, password, tenantID)
			} else {
				sess, err = c.Login(cmd.Context(), email, password)
			}
			if err != nil {
				return err
			}
			return a.printStatus(sess, c.Tenants().Snapshot())
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant to sign in to instead of the default")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) signupCommand() *cobra.Command {
	var in auth.SignupRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			sess, err := c.Signup(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.printStatus(sess, c.Tenants().Snapshot())
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "account email")
	cmd.Flags().StringVar(&in.Password, "password", "", "account password")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&in.Username, "username", "", "username")
	cmd.Flags().StringVar(&in.TenantID, "tenant", "", "existing tenant to join")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.Logout(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, "Signed out")
			return err
		},
	}
}

func (a *app) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session and active tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			return a.printStatus(c.Auth().Session(), c.Tenants().Snapshot())
		},
	}
}

func (a *app) bootstrapCommand() *cobra.Command {
	var in tenants.CreateRequest
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create a new tenant with its admin account and sign in as that admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			_, sess, err := c.Bootstrap(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.printStatus(sess, c.Tenants().Snapshot())
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "tenant name")
	cmd.Flags().StringVar(&in.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&in.Password, "password", "", "admin password")
	cmd.Flags().StringVar(&in.Domain, "domain", "", "tenant domain")
	return cmd
}

type statusView struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId,omitempty"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	TenantID      string `json:"tenantId,omitempty"`
	TenantName    string `json:"tenantName,omitempty"`
	Tenants       int    `json:"tenants"`
}

func (a *app) printStatus(sess *auth.Session, ts tenants.Snapshot) error {
	view := statusView{Authenticated: sess != nil, Tenants: len(ts.Tenants)}
	if sess != nil {
		view.UserID = sess.UserID
		view.Email = sess.Email
		view.Name = sess.DisplayName
		view.TenantID = sess.TenantID
	}
	if ts.Current != nil {
		view.TenantID = ts.Current.ID
		view.TenantName = ts.Current.Name
	}
	if a.flags.json {
		return a.printJSON(view)
	}
	if !view.Authenticated {
		_, err := fmt.Fprintln(a.out, "Not signed in")
		return err
	}
	_, err := fmt.Fprintf(a.out, "Signed in as %s <%s>\nTenant:  %s (%s)\nTenants: %d\n",
		view.Name, view.Email, view.TenantName, view.TenantID, view.Tenants)
	return err
}
