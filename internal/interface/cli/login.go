package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newLoginCommand(opts *options) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the access token",
		Long:  "Sign in with email and password. Without --password the password is read from the first line of stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email = strings.TrimSpace(email)
			if email == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if scanner.Scan() {
					password = strings.TrimRight(scanner.Text(), "\r")
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read password: %w", err)
				}
			}

			store, err := opts.tokens()
			if err != nil {
				return err
			}
			resp, err := opts.client().Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if err := store.Save(resp); err != nil {
				return fmt.Errorf("store token: %w", err)
			}
			name := resp.User.Nickname
			if name == "" {
				name = email
			}
			if tier := resp.User.Tier; tier != "" {
				name += " (" + tier + ")"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	return cmd
}
