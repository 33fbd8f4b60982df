package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/boardsync/internal/client/auth"
	"github.com/iudanet/boardsync/internal/validation"
)

// addCredentialFlags флаги username и пароля для register и login
func addCredentialFlags(cmd *cobra.Command, username *string, passwords *Passwords) {
	cmd.Flags().StringVarP(username, "username", "u", "", "username (prompted if empty)")
	cmd.Flags().StringVar(&passwords.FromFile, "password-file", "", "read password from file")
	cmd.Flags().StringVar(&passwords.FromArgs, "password", "", "password (not recommended, use "+EnvPassword+" or --password-file)")
}

func (c *Cli) registerCommand() *cobra.Command {
	var username string
	var passwords Passwords

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := c.getUsername(username)
			if err != nil {
				return err
			}
			if err := validation.ValidateUsername(username); err != nil {
				return fmt.Errorf("invalid username: %w", err)
			}

			password, err := c.getPassword(passwords)
			if err != nil {
				return err
			}
			if err := validation.ValidatePassword(password); err != nil {
				return fmt.Errorf("invalid password: %w", err)
			}

			userID, err := c.authService.Register(cmd.Context(), username, password)
			if err != nil {
				return err
			}

			c.io.Println("✓ Registration successful!")
			c.io.Printf("User ID: %s\n", userID)
			c.io.Println("Run 'boardsync login' to start a session.")
			return nil
		},
	}
	addCredentialFlags(cmd, &username, &passwords)
	return cmd
}

func (c *Cli) loginCommand() *cobra.Command {
	var username string
	var passwords Passwords

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login and save the session locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := c.getUsername(username)
			if err != nil {
				return err
			}
			password, err := c.getPassword(passwords)
			if err != nil {
				return err
			}

			authData, err := c.authService.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}

			c.io.Println("✓ Login successful!")
			c.io.Printf("Username: %s\n", authData.Username)
			c.io.Printf("Session expires: %s\n", time.Unix(authData.ExpiresAt, 0).Format(time.RFC3339))
			return nil
		},
	}
	addCredentialFlags(cmd, &username, &passwords)
	return cmd
}

func (c *Cli) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.authService.Logout(cmd.Context()); err != nil {
				return err
			}
			c.io.Println("✓ Logged out")
			return nil
		},
	}
}

func (c *Cli) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session and synchronization status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c.io.Println("=== Status ===")
			authData, err := c.authService.Session(ctx)
			switch {
			case authData == nil && errors.Is(err, auth.ErrNotAuthenticated):
				c.io.Println("Session:  not authenticated")
			case err != nil && !errors.Is(err, auth.ErrNotAuthenticated):
				return err
			default:
				c.io.Printf("Username: %s\n", authData.Username)
				expiresAt := time.Unix(authData.ExpiresAt, 0)
				if err != nil {
					c.io.Printf("Session:  expired at %s, run 'boardsync login'\n", expiresAt.Format(time.RFC3339))
				} else {
					c.io.Printf("Session:  valid until %s\n", expiresAt.Format(time.RFC3339))
				}
			}

			identity, err := c.store.Identity(ctx)
			if err != nil {
				return err
			}
			c.io.Printf("Client group: %s\n", identity.ClientGroupID)
			c.io.Printf("Client:       %s\n", identity.ClientID)

			cookie, err := c.store.Cookie(ctx)
			if err != nil {
				return err
			}
			if cookie == nil {
				c.io.Println("Last sync:    never")
			} else {
				c.io.Printf("Last sync:    cvr %s, order %d\n", cookie.CVRID, cookie.Order)
			}

			pending, err := c.syncService.PendingCount(ctx)
			if err != nil {
				return err
			}
			if pending > 0 {
				c.io.Printf("Pending:      %d mutation(s), run 'boardsync sync'\n", pending)
			} else {
				c.io.Println("Pending:      none")
			}
			return nil
		},
	}
}
