package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/tabauth/internal/auth/service"
)

var (
	userName     string
	userEmail    string
	userPhone    string
	userRole     string
	userPassword string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage accounts",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a password account, optionally with a non-default role",
	RunE: func(cmd *cobra.Command, args []string) error {
		password := userPassword
		if password == "" {
			var err error
			if password, err = readPassword(cmd); err != nil {
				return err
			}
		}

		application, err := newApp()
		if err != nil {
			return err
		}
		defer application.Close()

		res, err := application.Auth().Register(cmd.Context(), "", service.RegisterInput{
			Name:     userName,
			Email:    userEmail,
			Phone:    userPhone,
			Password: password,
			Role:     userRole,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) role=%s\n", res.User.ID, res.User.Email, res.User.Role)
		return nil
	},
}

// readPassword takes the first line of stdin so passwords stay out of
// shell history.
func readPassword(cmd *cobra.Command) (string, error) {
	sc := bufio.NewScanner(cmd.InOrStdin())
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("read password from stdin: %w", err)
		}
		return "", errors.New("no password on stdin")
	}
	line := strings.TrimRight(sc.Text(), "\r")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}

func init() {
	f := usersCreateCmd.Flags()
	f.StringVar(&userName, "name", "", "display name")
	f.StringVar(&userEmail, "email", "", "email address (required)")
	f.StringVar(&userPhone, "phone", "", "phone number")
	f.StringVar(&userRole, "role", "", "role claim, defaults to AUTH_DEFAULT_ROLE")
	f.StringVar(&userPassword, "password", "", "password, read from stdin when empty")
	_ = usersCreateCmd.MarkFlagRequired("email")

	usersCmd.AddCommand(usersCreateCmd)
}
