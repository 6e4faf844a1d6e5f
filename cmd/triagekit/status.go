package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/triagekit/triagekit/internal/config"
	"github.com/triagekit/triagekit/internal/storage"
	_ "github.com/triagekit/triagekit/internal/storage/sqlite"
	"github.com/triagekit/triagekit/internal/types"
)

var (
	statusRepo  string
	statusLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending work and recent pipeline activity",
	Long: `Display pending issue records ordered by priority, and the current
state of records in the local store.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cfg, err := config.Load(policyPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		store, err := storage.New(storage.Config{Backend: storage.BackendSQLite, Path: cfg.DBPath})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open store at %s: %v\n", cfg.DBPath, err)
			os.Exit(1)
		}
		defer store.Close()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== TriageKit Status ==="))

		pending, err := store.ListPending(ctx, statusLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list pending records: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s\n", yellow("Pending issues:"))
		if len(pending) == 0 {
			fmt.Printf("  %s\n", gray("Nothing pending"))
		}
		for _, record := range pending {
			fmt.Printf("  %s %s  %s\n",
				priorityBadge(record.Classification.Priority),
				record.Ref.Key(),
				record.Title)
			fmt.Printf("    %s\n", gray(fmt.Sprintf("waiting since %s",
				record.CreatedAt.Format("2006-01-02 15:04:05"))))
		}
		fmt.Println()

		if statusRepo != "" {
			owner, repo, ok := splitRepo(statusRepo)
			if !ok {
				fmt.Fprintf(os.Stderr, "Error: --repo must be owner/name\n")
				os.Exit(1)
			}

			records, err := store.ListByRepo(ctx, owner, repo, storage.ListFilter{Limit: statusLimit})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to list records: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("%s\n", yellow(fmt.Sprintf("Recent records for %s:", statusRepo)))
			if len(records) == 0 {
				fmt.Printf("  %s\n", gray("No records"))
			}
			for _, record := range records {
				fmt.Printf("  %s %s  %s\n",
					statusBadge(record.Status), record.Ref.Key(), record.Title)
				fmt.Printf("    %s\n", gray(fmt.Sprintf("updated %s ago",
					time.Since(record.UpdatedAt).Round(time.Second))))
			}
			fmt.Println()
		}
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusRepo, "repo", "", "show records for one repository (owner/name)")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "maximum records to show")
	rootCmd.AddCommand(statusCmd)
}

func priorityBadge(priority types.Priority) string {
	switch priority {
	case types.PriorityUrgent:
		return color.New(color.FgRed, color.Bold).Sprint("[urgent]")
	case types.PriorityHigh:
		return color.New(color.FgRed).Sprint("[high]  ")
	case types.PriorityMedium:
		return color.New(color.FgYellow).Sprint("[medium]")
	default:
		return color.New(color.FgHiBlack).Sprint("[low]   ")
	}
}

func statusBadge(status types.ProcessingStatus) string {
	switch status {
	case types.StatusFixed, types.StatusClosed:
		return color.New(color.FgGreen).Sprint("●")
	case types.StatusError:
		return color.New(color.FgRed).Sprint("✗")
	case types.StatusManualRequired:
		return color.New(color.FgYellow).Sprint("⚠")
	default:
		return color.New(color.FgHiBlack).Sprint("○")
	}
}

func splitRepo(full string) (owner, repo string, ok bool) {
	for i := 0; i < len(full); i++ {
		if full[i] == '/' {
			if i == 0 || i == len(full)-1 {
				return "", "", false
			}
			return full[:i], full[i+1:], true
		}
	}
	return "", "", false
}
