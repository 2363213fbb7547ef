package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperengineering/fieldops/internal/notify"
	"github.com/hyperengineering/fieldops/internal/worker"
	"github.com/spf13/cobra"
)

var (
	scanOrgID      string
	scanJSONOutput bool
	scanCooldown   time.Duration
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a status scan once and exit",
	Long:  "Run the contract or job status scan against the database without starting the server. Notifications are written as they would be by the background worker.",
}

var scanContractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "Mark overdue contracts and raise renewal and job-creation reminders",
	Args:  cobra.NoArgs,
	RunE:  runScanContracts,
}

var scanJobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Mark jobs past their start grace period as overdue",
	Args:  cobra.NoArgs,
	RunE:  runScanJobs,
}

func init() {
	scanCmd.PersistentFlags().StringVar(&scanOrgID, "org", "",
		"Limit the scan to one organization (default: all)")
	scanCmd.PersistentFlags().BoolVar(&scanJSONOutput, "json", false,
		"Output in JSON format")
	scanContractsCmd.Flags().DurationVar(&scanCooldown, "cooldown", worker.DefaultNotifyCooldown,
		"Minimum time between notifications for the same contract and status")

	scanCmd.AddCommand(scanContractsCmd)
	scanCmd.AddCommand(scanJobsCmd)
}

func runScanContracts(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	scanner := worker.NewContractScanner(db, notify.NewStoreNotifier(db), scanCooldown)
	now := time.Now()

	var res worker.ContractScanResult
	if scanOrgID != "" {
		res, err = scanner.ScanOrganization(ctx, scanOrgID, now)
	} else {
		res, err = scanner.ScanAll(ctx, now)
	}
	if err != nil {
		return fmt.Errorf("contract scan: %w", err)
	}

	if scanJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"overdue":             res.Overdue,
			"renewal_needed":      res.Renewal,
			"job_creation_needed": res.JobCreation,
			"notified":            res.Notified,
			"suppressed":          res.Suppressed,
			"failed":              res.Failed,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Contracts: %d overdue, %d renewal needed, %d job creation needed (%d notified, %d suppressed, %d failed)\n",
		res.Overdue, res.Renewal, res.JobCreation, res.Notified, res.Suppressed, res.Failed)
	return nil
}

func runScanJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	scanner := worker.NewJobOverdueScanner(db, notify.NewStoreNotifier(db))
	now := time.Now()

	var res worker.JobScanResult
	if scanOrgID != "" {
		res, err = scanner.ScanOrganization(ctx, scanOrgID, now)
	} else {
		res, err = scanner.ScanAll(ctx, now)
	}
	if err != nil {
		return fmt.Errorf("job scan: %w", err)
	}

	if scanJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"overdue": res.Overdue,
			"failed":  res.Failed,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Jobs: %d marked overdue (%d failed)\n", res.Overdue, res.Failed)
	return nil
}
