package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newNotificationsCommand(ctx *commandContext) *cobra.Command {
	notificationsCmd := &cobra.Command{
		Use:   "notifications",
		Short: "Inspect and repair the notification outbox",
	}

	var limit int
	failedCmd := &cobra.Command{
		Use:   "failed",
		Short: "List notifications that exhausted their retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := ctx.ensureServices(cmd.Context())
			if err != nil {
				return err
			}
			items, err := services.Notification.ListFailed(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No failed notifications")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, item := range items {
				rows = append(rows, []string{
					item.ID,
					item.EventType,
					item.Recipient,
					strconv.Itoa(item.Attempts),
					item.LastError,
					item.CreatedAt.Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"ID", "Event", "Recipient", "Attempts", "Last error", "Created"},
				rows,
				[]columnAlign{left, left, left, right, left, left},
			))
			return nil
		},
	}
	failedCmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to show")
	notificationsCmd.AddCommand(failedCmd)

	notificationsCmd.AddCommand(&cobra.Command{
		Use:   "requeue <id>...",
		Short: "Reset failed notifications so the dispatcher retries them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := ctx.ensureServices(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := services.Notification.Requeue(cmd.Context(), id); err != nil {
					return fmt.Errorf("requeue %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s\n", id)
			}
			return nil
		},
	})

	notificationsCmd.AddCommand(&cobra.Command{
		Use:   "process",
		Short: "Deliver every notification that is due now and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := ctx.ensureServices(cmd.Context())
			if err != nil {
				return err
			}
			n, err := services.Notification.ProcessDue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d notification(s)\n", n)
			return nil
		},
	})

	return notificationsCmd
}

func newAssignmentsCommand(ctx *commandContext) *cobra.Command {
	assignmentsCmd := &cobra.Command{
		Use:   "assignments",
		Short: "Review assignment maintenance",
	}

	assignmentsCmd.AddCommand(&cobra.Command{
		Use:   "expire-overdue",
		Short: "Expire invitations and reviews past their due date",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := ctx.ensureServices(cmd.Context())
			if err != nil {
				return err
			}
			n, err := services.Review.ExpireOverdue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Expired %d assignment(s)\n", n)
			return nil
		},
	})

	return assignmentsCmd
}
