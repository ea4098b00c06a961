// Package cli provides the taskfabric operational command line:
// running the API server or the worker, applying migrations, and
// triggering an ad hoc reminder scan outside the worker's own ticker.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskfabric/backbone/internal/bootstrap"
)

var (
	jsonOut bool
	verbose bool

	// Version info (set via ldflags)
	Version   = "dev"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "taskfabric",
	Short: "taskfabric operates the task backbone's server and worker processes",
	Long: `taskfabric is the operational command line for the task management
backbone. It runs the HTTP API, the background worker (reminder
scheduler, recurrence engine, notification dispatcher), and the
schema migration and reminder-scan maintenance commands.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reminderScanCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return bootstrap.RunServer(context.Background(), newLogger())
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background worker (scheduler, recurrence engine, notification dispatcher)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return bootstrap.RunWorker(context.Background(), newLogger())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return bootstrap.RunMigrate(context.Background(), newLogger())
	},
}

var reminderScanCmd = &cobra.Command{
	Use:   "reminder-scan",
	Short: "Run a single reminder scan pass and exit",
	Long: `reminder-scan runs one pass of the reminder scheduler's due-reminder
scan and exits, for an operator backfilling missed reminders or
triggering a scan from an external cron outside the worker's own
ticker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return bootstrap.RunReminderScan(context.Background(), newLogger())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("taskfabric version %s (built %s)\n", Version, BuildDate)
	},
}

var completionCmd = &cobra.Command{
	Use:                   "completion [bash|zsh|fish|powershell]",
	Short:                 "Generate shell completion script",
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return nil
	},
}

// IsJSONOutput returns true if JSON output is enabled.
func IsJSONOutput() bool {
	return jsonOut
}
