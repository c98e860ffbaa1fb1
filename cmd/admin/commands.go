package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ohshane/p3bl-sub002/config"
	"github.com/ohshane/p3bl-sub002/db"
	"github.com/ohshane/p3bl-sub002/repositories"
	"github.com/ohshane/p3bl-sub002/services"
	"github.com/ohshane/p3bl-sub002/storage"
)

var errNoDatabase = errors.New("DATABASE_URL is not set")

// commandLine holds what the subcommands share. Tests fill repos and svc
// directly; otherwise they are built from the environment on first use.
type commandLine struct {
	out    io.Writer
	logger *slog.Logger
	db     *sql.DB
	repos  *repositories.Set
	svc    *services.Services
	now    func() time.Time
}

func (cli *commandLine) init(cmd *cobra.Command) error {
	if cli.now == nil {
		cli.now = time.Now
	}
	if cli.logger == nil {
		cli.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	if cli.repos != nil {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errNoDatabase
	}
	cli.db, err = db.Connect(cfg.DatabaseURL, cfg.DatabaseTimeout)
	if err != nil {
		return err
	}
	cli.repos = repositories.NewPostgresSet(cli.db)

	var reports storage.ObjectStore
	if cfg.R2.Enabled() {
		reports, err = storage.NewR2Store(cmd.Context(), storage.R2Config{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			SecretAccessKey: cfg.R2.SecretAccessKey,
			BucketName:      cfg.R2.BucketName,
			PublicBaseURL:   cfg.R2.PublicBaseURL,
		})
		if err != nil {
			return err
		}
	}
	// без Publisher уведомления только сохраняются
	cli.svc = services.New(services.Dependencies{
		Repos:             cli.repos,
		Reports:           reports,
		Logger:            cli.logger,
		JoinCodeTTL:       cfg.JoinCodeTTL,
		NotifyConcurrency: cfg.NotifyConcurrency,
	})
	return nil
}

func (cli *commandLine) close() {
	if cli.db != nil {
		_ = cli.db.Close()
		cli.db = nil
	}
}

func (cli *commandLine) printJSON(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd(cli *commandLine) *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Maintenance commands for the enrollment service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "migrate" {
				if printOnly, _ := cmd.Flags().GetBool("print"); printOnly {
					return nil
				}
			}
			return cli.init(cmd)
		},
	}
	root.SetOut(cli.out)
	root.AddCommand(
		newMigrateCmd(cli),
		newAllocateCmd(cli),
		newRotateCodeCmd(cli),
		newPruneAttemptsCmd(cli),
	)
	return root
}

func newMigrateCmd(cli *commandLine) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long:  `Apply the embedded schema. Every statement is idempotent, so running it twice is safe.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				_, err := fmt.Fprint(cli.out, db.Schema())
				return err
			}
			if cli.db == nil {
				return errNoDatabase
			}
			if err := db.EnsureSchema(cmd.Context(), cli.db); err != nil {
				return err
			}
			fmt.Fprintln(cli.out, "schema applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the schema instead of applying it")
	return cmd
}

func newAllocateCmd(cli *commandLine) *cobra.Command {
	var started bool
	cmd := &cobra.Command{
		Use:   "allocate [project-id]",
		Short: "Distribute waiting participants into teams",
		Long: `Allocate the waiting pool of one project, or with --started of every
project whose enrollment window is open and still has waiting participants.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if started && len(args) > 0 {
				return errors.New("--started does not take a project id")
			}
			if !started && len(args) != 1 {
				return errors.New("requires a project id or --started")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if started {
				results, err := cli.svc.Allocator.AllocateStarted(cmd.Context())
				if printErr := cli.printJSON(results); printErr != nil {
					return printErr
				}
				return err
			}
			result, err := cli.svc.Allocator.AllocateAll(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return cli.printJSON(result)
		},
	}
	cmd.Flags().BoolVar(&started, "started", false, "allocate every started project with a waiting pool")
	return cmd
}

func newRotateCodeCmd(cli *commandLine) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "rotate-code <project-id>",
		Short: "Issue a new join code for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := cli.svc.Projects.ResetJoinCode(cmd.Context(), args[0], actor)
			if err != nil {
				return err
			}
			return cli.printJSON(map[string]interface{}{
				"project_id":           project.ID,
				"join_code":            project.JoinCode,
				"join_code_expires_at": project.JoinCodeExpiresAt,
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "id of the project creator (required)")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newPruneAttemptsCmd(cli *commandLine) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune-attempts",
		Short: "Delete old join attempts",
		Long:  `Delete join attempts older than --older-than. Keep it well above the rate limit window.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			n, err := cli.repos.JoinAttempts.DeleteOlderThan(cmd.Context(), cli.now().UTC().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "deleted %d join attempts\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of attempts to delete")
	return cmd
}
