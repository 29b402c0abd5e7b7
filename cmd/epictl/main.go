package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	db          string
	databaseURL string
	timezone    string
	format      string
}

func main() {
	godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:           "epictl",
		Short:         "Operate an episync edge node from the command line",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.db, "db", envOr("LOCAL_STORE_PATH", "episync.db"), "Path of the local SQLite replica")
	pf.StringVar(&flags.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres URL of the remote replica")
	pf.StringVar(&flags.timezone, "timezone", envOr("FACILITY_TIMEZONE", "UTC"), "Facility time zone used to decide today's date")
	pf.StringVar(&flags.format, "format", "text", "Output format: text or json")

	root.AddCommand(
		newScheduleCmd(&flags),
		newValidateCmd(&flags),
		newDefaultersCmd(&flags),
		newProgressCmd(&flags),
		newSyncCmd(&flags),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
