// cmd/backup/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/semmidev/pgvault/internal/app"
	"github.com/semmidev/pgvault/internal/config"
	"github.com/semmidev/pgvault/internal/usecase"
	"github.com/spf13/cobra"
)

const (
	moduleName = "pgvault"

	configFlg  = "config"
	monthlyFlg = "monthly"
	keepFlg    = "keep"
)

var (
	cfgFile string
	cfg     *config.Config
)

// exitError carries a process exit code without printing anything further.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

var rootCmd = &cobra.Command{
	Use:           moduleName,
	Short:         "dumps a PostgreSQL database and keeps daily and monthly copies in remote storage",
	Long:          "without a subcommand pgvault runs one backup: dump, upload the daily copy, upload a monthly copy on the first of the month, prune expired daily copies, notify and remove the local dump. The exit code is 1 when no offsite copy was made.",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		// a started run is never interrupted by signals
		result := a.RunOnce(context.Background())
		if result.Failed() {
			return exitError{code: result.ExitCode()}
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "lists the dumps in remote storage, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		monthly, _ := cmd.Flags().GetBool(monthlyFlg)

		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		artifacts, err := a.List(cmd.Context(), monthly)
		if err != nil {
			return err
		}

		return printArtifacts(cmd, artifacts)
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "downloads a dump and replaces the database with it",
	Long:  "the database is dropped and recreated before pg_restore runs, other sessions are terminated. Use list to find a name.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		monthly, _ := cmd.Flags().GetBool(monthlyFlg)
		keep, _ := cmd.Flags().GetBool(keepFlg)

		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		return a.Restore(cmd.Context(), usecase.RestoreRequest{
			Name:    args[0],
			Monthly: monthly,
			Keep:    keep,
		})
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "stays in the foreground and runs a backup on the configured cron schedule",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		return a.Schedule(ctx)
	},
}

var gdriveAuthCmd = &cobra.Command{
	Use:   "gdrive-auth",
	Short: "obtains a Google Drive refresh token through the browser consent flow",
	Args:  cobra.NoArgs,
	// only the client secret is needed, so the full config is not validated
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, err := config.LoadRemote(cfgFile)
		if err != nil {
			return err
		}

		server, err := app.NewDriveAuthServer(cmdLogger{cmd}, remote.GDriveClientSecretFile, remote.GDriveAuthAddr)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		cmd.Printf("Open %s in a browser and grant access.\n", server.StartURL())

		token, err := server.Run(ctx)
		if err != nil {
			return err
		}

		cmd.Printf("\ngdrive_refresh_token=%s\n", token)
		return nil
	},
}

func printArtifacts(cmd *cobra.Command, artifacts []usecase.RemoteArtifact) error {
	data := make([][]string, 0, len(artifacts))
	for _, a := range artifacts {
		data = append(data, []string{a.Date.String(), a.Name})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Date", "Name")
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// cmdLogger prints the auth server's progress through the command output.
type cmdLogger struct {
	cmd *cobra.Command
}

func (l cmdLogger) Infof(template string, args ...interface{}) {
	l.cmd.Printf(template+"\n", args...)
}

func (l cmdLogger) Warnf(template string, args ...interface{}) {
	l.cmd.PrintErrf(template+"\n", args...)
}

func (l cmdLogger) Errorf(template string, args ...interface{}) {
	l.cmd.PrintErrf(template+"\n", args...)
}

func init() {
	rootCmd.AddCommand(listCmd, restoreCmd, scheduleCmd, gdriveAuthCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, configFlg, "", "config file (yaml, json, toml or KEY=value env file); environment variables override it")

	listCmd.Flags().Bool(monthlyFlg, false, "list the monthly archive instead of the daily copies")

	restoreCmd.Flags().Bool(monthlyFlg, false, "restore from the monthly archive")
	restoreCmd.Flags().Bool(keepFlg, false, "keep the downloaded dump in the restore directory")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
