package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/arnavshah/workload-api-go/pkg/apperr"
	"github.com/arnavshah/workload-api-go/pkg/assignment"
	"github.com/arnavshah/workload-api-go/pkg/auth"
	"github.com/arnavshah/workload-api-go/pkg/config"
	"github.com/arnavshah/workload-api-go/pkg/database"
	"github.com/arnavshah/workload-api-go/pkg/importer"
	"github.com/arnavshah/workload-api-go/pkg/matching"
	"github.com/arnavshah/workload-api-go/pkg/stats"
	"github.com/arnavshah/workload-api-go/pkg/store"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:   "workloadctl",
	Short: "Operate the workload database from the command line",
	Long:  `workloadctl migrates the database, bulk-loads spreadsheets, issues integration keys and runs auto-assignment without going through the HTTP API.`,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update tables and the default admin",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, db := open()
		if err := auth.EnsureAdminExists(db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			fail("Error creating admin", err)
		}
		fmt.Println("Database is up to date.")
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen <client-id>",
	Short: "Generate an HMAC integration key",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fail("Error loading config", err)
		}
		if cfg.APIMasterSecret == "" {
			fmt.Fprintln(os.Stderr, "Error: API_MASTER_SECRET is not set")
			os.Exit(1)
		}

		clientID := args[0]
		key := auth.NewSigner(cfg.JWTSecret, cfg.APIMasterSecret).GenerateHMACKey(clientID)
		fmt.Printf("Generated Key for %s:\n%s\n", clientID, key)

		if save, _ := cmd.Flags().GetBool("save"); save {
			limit, _ := cmd.Flags().GetInt("limit")
			_, db := open()
			ik := &database.IntegrationKey{Key: key, Name: clientID, KeyPreview: auth.KeyPreview(key), RateLimit: limit}
			if err := store.New(db).CreateIntegrationKey(context.Background(), ik); err != nil {
				fail("Error saving key", err)
			}
			fmt.Printf("Saved as key %d with a daily limit of %d\n", ik.ID, limit)
		}
	},
}

var importCmd = &cobra.Command{
	Use:   "import <projects|skills|vacations> <file>",
	Short: "Import a CSV or XLSX file",
	Long: `Import rows from a CSV or XLSX file. Malformed rows are reported and skipped.

Examples:
  workloadctl import projects projects.xlsx
  workloadctl import vacations leave.csv --dry-run`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		entity, err := importer.ParseEntity(args[0])
		if err != nil {
			fail("Error", err)
		}
		f, err := os.Open(args[1])
		if err != nil {
			fail("Error opening file", err)
		}
		defer f.Close()

		_, db := open()
		im := importer.New(store.New(db))
		run := im.Import
		if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
			run = im.Validate
			fmt.Println("Dry run, nothing will be written.")
		}

		res, err := run(context.Background(), entity, args[1], f)
		if err != nil {
			fail("Error", err)
		}
		fmt.Printf("Imported: %d\n", res.Imported)
		fmt.Printf("Skipped: %d (already exist)\n", res.Skipped)
		fmt.Printf("Rejected: %d\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Printf("  row %d %s: %s\n", e.Row, e.Field, e.Message)
		}
	},
}

var autoAssignCmd = &cobra.Command{
	Use:   "auto-assign [project-id...]",
	Short: "Auto-assign projects, by default every unassigned one in priority order",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, db := open()
		ctx := context.Background()
		st := store.New(db)
		svc := assignment.NewService(st, matching.Options{StrictGeography: cfg.StrictGeography})

		var ids []uint
		for _, a := range args {
			id, err := strconv.ParseUint(a, 10, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid project id: %s\n", a)
				os.Exit(1)
			}
			ids = append(ids, uint(id))
		}
		if len(ids) == 0 {
			queue, err := stats.NewService(st, stats.NewMemoryCache(), 0).PrioritizedUnassigned(ctx)
			if err != nil {
				fail("Error listing projects", err)
			}
			for _, sp := range queue {
				ids = append(ids, sp.ID)
			}
		}

		assigned, failed := 0, 0
		for _, id := range ids {
			res, err := svc.Auto(ctx, id)
			if err != nil {
				failed++
				fmt.Printf("project %d: %s (%s)\n", id, err, apperr.KindOf(err))
				continue
			}
			assigned++
			fmt.Printf("project %d -> employee %d (team %d, %.1fh available)\n",
				id, res.Assignment.EmployeeID, res.Candidate.TeamID, res.Candidate.AvailableHours)
		}
		fmt.Printf("\nAssigned: %d, not assigned: %d\n", assigned, failed)
	},
}

func init() {
	keygenCmd.Flags().Bool("save", true, "Store the key; the API only accepts registered keys")
	keygenCmd.Flags().Int("limit", 10000, "Daily request limit when saving")
	importCmd.Flags().Bool("dry-run", false, "Validate the file without writing anything")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(autoAssignCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// open loads the configuration and connects to the migrated database
func open() (*config.Config, *gorm.DB) {
	cfg, err := config.Load()
	if err != nil {
		fail("Error loading config", err)
	}
	return cfg, database.InitDB(cfg)
}

func fail(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
