package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	internalauth "deptcms/internal/auth"
	"deptcms/internal/config"
	"deptcms/internal/format"
	"deptcms/internal/store"
	"deptcms/internal/tenant"
)

// userEntry is one entry of an import file or one add invocation.
type userEntry struct {
	Username     string `yaml:"username"`
	Department   string `yaml:"department"`
	Email        string `yaml:"email"`
	Role         string `yaml:"role"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

type userImportFile struct {
	Users []userEntry `yaml:"users"`
}

func newAdminUserCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Provision department users in the control database",
	}
	cmd.AddCommand(
		newAdminUserAddCmd(cfg, jsonOutput),
		newAdminUserImportCmd(cfg, jsonOutput),
		newAdminUserListCmd(cfg, jsonOutput),
		newAdminUserSetDisabledCmd(cfg, jsonOutput, "disable", "Block a user from signing in", true),
		newAdminUserSetDisabledCmd(cfg, jsonOutput, "enable", "Allow a disabled user to sign in again", false),
		newAdminUserDeleteCmd(cfg, jsonOutput),
	)
	return cmd
}

func withControlStore(cfg *config.Config, fn func(*store.Store) error) error {
	st, err := openControlStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func newAdminUserAddCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		entry         userEntry
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user bound to one department",
		Args:  requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !passwordStdin {
				return fmt.Errorf("--password-stdin is required")
			}
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			entry.Username = args[0]
			entry.Password = strings.TrimSpace(string(raw))

			return withControlStore(cfg, func(st *store.Store) error {
				user, err := provisionUser(cmd.Context(), st, entry, time.Now())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(user)
				}
				return writePlain("created %s user %s for department %s\n", user.Role, user.Username, user.Department)
			})
		},
	}

	cmd.Flags().StringVar(&entry.Department, "department", "", "department key the user edits (required)")
	cmd.Flags().StringVar(&entry.Role, "role", store.UserRoleEditor, "role: editor or admin")
	cmd.Flags().StringVar(&entry.Email, "email", "", "contact email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read password from stdin")
	return cmd
}

func newAdminUserImportCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Provision users listed in a YAML file",
		Args:  requireExactlyArgs(1, "import file is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return withControlStore(cfg, func(st *store.Store) error {
				users, err := importUsers(cmd.Context(), st, f, time.Now())
				if *jsonOutput {
					if writeErr := writeJSON(map[string]any{"count": len(users), "users": users}); writeErr != nil {
						return writeErr
					}
					return err
				}
				for _, user := range users {
					if writeErr := writePlain("created %s (%s)\n", user.Username, user.Department); writeErr != nil {
						return writeErr
					}
				}
				return err
			})
		},
	}
}

func newAdminUserListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List provisioned users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withControlStore(cfg, func(st *store.Store) error {
				users, err := st.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"count": len(users), "users": users})
				}
				if len(users) == 0 {
					return writePlain("no users provisioned\n")
				}
				table := &format.Table{Header: []string{"USERNAME", "DEPARTMENT", "ROLE", "STATUS", "CREATED"}}
				for _, user := range users {
					status := "enabled"
					if user.Disabled {
						status = "disabled"
					}
					table.Append(user.Username, user.Department, user.Role, status, formatTime(user.CreatedAt))
				}
				return writeTable(table)
			})
		},
	}
}

func newAdminUserSetDisabledCmd(cfg *config.Config, jsonOutput *bool, name, short string, disabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <username>",
		Short: short,
		Args:  requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := internalauth.NormalizeUsername(args[0])
			if err != nil {
				return err
			}
			return withControlStore(cfg, func(st *store.Store) error {
				user, err := st.SetUserDisabled(cmd.Context(), username, disabled, time.Now())
				if err != nil {
					return err
				}
				if user == nil {
					return fmt.Errorf("user %s not found", username)
				}
				if *jsonOutput {
					return writeJSON(user)
				}
				return writePlain("%sd user %s\n", name, user.Username)
			})
		},
	}
}

func newAdminUserDeleteCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <username>",
		Aliases: []string{"rm"},
		Short:   "Delete a user. Department content is untouched.",
		Args:    requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := internalauth.NormalizeUsername(args[0])
			if err != nil {
				return err
			}
			return withControlStore(cfg, func(st *store.Store) error {
				deleted, err := st.DeleteUser(cmd.Context(), username)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("user %s not found", username)
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"username": username, "deleted": true})
				}
				return writePlain("deleted user %s\n", username)
			})
		},
	}
}

func provisionUser(ctx context.Context, st store.UserAdminStore, entry userEntry, now time.Time) (*store.AuthUser, error) {
	username, err := internalauth.NormalizeUsername(entry.Username)
	if err != nil {
		return nil, err
	}
	department, err := tenant.NormalizeKey(entry.Department)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", username, err)
	}
	role := strings.ToLower(strings.TrimSpace(entry.Role))
	switch role {
	case "":
		role = store.UserRoleEditor
	case store.UserRoleEditor, store.UserRoleAdmin:
	default:
		return nil, fmt.Errorf("user %s: unknown role %q", username, entry.Role)
	}

	existing, err := st.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("user %s already exists", username)
	}

	hash := strings.TrimSpace(entry.PasswordHash)
	if hash == "" {
		if hash, err = internalauth.HashPassword(entry.Password); err != nil {
			return nil, fmt.Errorf("user %s: %w", username, err)
		}
	}

	return st.CreateUser(ctx, store.NewAuthUser{
		Username:     username,
		Email:        entry.Email,
		Department:   department,
		PasswordHash: hash,
		Role:         role,
	}, now)
}

// importUsers provisions every user in r, stopping at the first failure.
// Users created before the failure are kept and returned.
func importUsers(ctx context.Context, st store.UserAdminStore, r io.Reader, now time.Time) ([]*store.AuthUser, error) {
	var file userImportFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse user file: %w", err)
	}
	if len(file.Users) == 0 {
		return nil, fmt.Errorf("user file lists no users")
	}

	created := make([]*store.AuthUser, 0, len(file.Users))
	for i, entry := range file.Users {
		user, err := provisionUser(ctx, st, entry, now)
		if err != nil {
			return created, fmt.Errorf("entry %d: %w", i+1, err)
		}
		created = append(created, user)
	}
	return created, nil
}
