package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperengineering/fieldops/internal/types"
	"github.com/hyperengineering/fieldops/internal/validation"
	"github.com/spf13/cobra"
)

var (
	contractsOrgID      string
	contractsStatus     string
	contractsJSONOutput bool
)

var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "Inspect service agreements",
}

var contractsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an organization's service agreements",
	Args:  cobra.NoArgs,
	RunE:  runContractsList,
}

func init() {
	contractsListCmd.Flags().StringVar(&contractsOrgID, "org", "",
		"Organization ID (required)")
	contractsListCmd.Flags().StringVar(&contractsStatus, "status", "",
		"Only list contracts with this status")
	contractsListCmd.Flags().BoolVar(&contractsJSONOutput, "json", false,
		"Output in JSON format")

	contractsCmd.AddCommand(contractsListCmd)
}

func runContractsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if contractsOrgID == "" {
		return errors.New("--org is required")
	}

	var filter types.ContractFilter
	if contractsStatus != "" {
		if verr := validation.ValidateEnum("status", contractsStatus, types.ContractStatuses); verr != nil {
			return fmt.Errorf("invalid --status: %s", verr.Message)
		}
		status := types.ContractStatus(contractsStatus)
		filter.Status = &status
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	contracts, err := db.ListContracts(ctx, contractsOrgID, filter)
	if err != nil {
		return fmt.Errorf("list contracts: %w", err)
	}

	if contractsJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"contracts": contracts,
			"total":     len(contracts),
		})
	}

	if len(contracts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No contracts found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tNUMBER\tNAME\tSTATUS\tENDS\tPM DUE")
	for _, c := range contracts {
		name := "-"
		if c.Name != nil && *c.Name != "" {
			name = *c.Name
		}
		end := c.EndDate
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID,
			c.AgreementNumber,
			name,
			c.Status,
			formatDue(&end),
			formatDue(c.PMDueNext),
		)
	}
	w.Flush()

	return nil
}
