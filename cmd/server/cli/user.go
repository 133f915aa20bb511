package cli

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gadgets/internal/db"
	"gadgets/internal/models"
)

func NewUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage administrator accounts",
	}

	cmd.AddCommand(newUserCreateCommand())

	return cmd
}

func newUserCreateCommand() *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator who can log in to the gadget pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			name = strings.TrimSpace(name)
			email = strings.TrimSpace(email)
			if name == "" {
				return errors.New("--name is required")
			}
			if _, err := mail.ParseAddress(email); err != nil {
				return fmt.Errorf("invalid --email: %w", err)
			}
			if len(password) < 8 {
				return errors.New("--password must be at least 8 characters")
			}

			log, gdb, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close(gdb)
				_ = log.Sync()
			}()

			hash, err := models.HashPassword(password)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}

			u := models.User{Name: name, Email: email, PasswordHash: hash}
			if err := gdb.WithContext(cmd.Context()).Create(&u).Error; err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			log.Info("User created", zap.Uint("id", u.ID), zap.String("email", u.Email))
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d <%s>\n", u.ID, u.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "login password")

	return cmd
}
