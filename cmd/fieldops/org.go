package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperengineering/fieldops/internal/types"
	"github.com/hyperengineering/fieldops/internal/validation"
	"github.com/spf13/cobra"
)

var (
	orgJSONOutput bool
	userName      string
	userEmail     string
	userRole      string
)

var orgCmd = &cobra.Command{
	Use:   "org",
	Short: "Bootstrap organizations and their users",
	Long:  "Create organizations and users directly in the database. The HTTP API authenticates users by id, so at least one manager must exist before it is usable.",
}

var orgCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an organization",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrgCreate,
}

var orgAddUserCmd = &cobra.Command{
	Use:   "add-user <org-id>",
	Short: "Add a user to an organization",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrgAddUser,
}

func init() {
	orgCmd.PersistentFlags().BoolVar(&orgJSONOutput, "json", false,
		"Output in JSON format")
	orgAddUserCmd.Flags().StringVar(&userName, "name", "", "Display name (required)")
	orgAddUserCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
	orgAddUserCmd.Flags().StringVar(&userRole, "role", string(types.RoleTechnician),
		"Role: "+strings.Join(types.UserRoles, ", "))

	orgCmd.AddCommand(orgCreateCmd)
	orgCmd.AddCommand(orgAddUserCmd)
}

func runOrgCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	name := strings.TrimSpace(args[0])
	if name == "" {
		return errors.New("organization name is required")
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	org, err := db.CreateOrganization(ctx, name)
	if err != nil {
		return err
	}

	if orgJSONOutput {
		return printJSON(cmd.OutOrStdout(), org)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created organization %q (id: %s)\n", org.Name, org.ID)
	return nil
}

func runOrgAddUser(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	user := types.User{
		OrganizationID: args[0],
		Name:           strings.TrimSpace(userName),
		Email:          strings.TrimSpace(userEmail),
		Role:           types.UserRole(userRole),
	}
	if errs := validation.ValidateNewUser(user); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Field + " " + e.Message
		}
		return fmt.Errorf("invalid user: %s", strings.Join(msgs, "; "))
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	created, err := db.CreateUser(ctx, user)
	if err != nil {
		return err
	}

	if orgJSONOutput {
		return printJSON(cmd.OutOrStdout(), created)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q (id: %s)\n", created.Role, created.Name, created.ID)
	return nil
}
