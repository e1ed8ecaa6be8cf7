package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arwahdevops/shipmigrate/internal/config"
	"github.com/arwahdevops/shipmigrate/internal/engine"
	"github.com/arwahdevops/shipmigrate/internal/migration"
	"github.com/arwahdevops/shipmigrate/internal/model"
	"github.com/arwahdevops/shipmigrate/internal/report"
	"github.com/arwahdevops/shipmigrate/internal/server"
)

func printLines(w io.Writer, lines []string) {
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

func status(valid bool) string {
	if valid {
		return "VALID"
	}
	return "INVALID"
}

func addSourceFlags(cmd *cobra.Command, req *engine.MigrateRequest) {
	cmd.Flags().StringVar(&req.Source, "source", "backup-tables", "Source: backup-tables, old-db or sql-dump")
	cmd.Flags().StringVar(&req.Database, "database", "", "Legacy database name (old-db, default LEGACY_DBNAME)")
	cmd.Flags().StringVar(&req.File, "file", "", "SQL dump path (sql-dump)")
}

func newMigrateCommand(a *app) *cobra.Command {
	var req engine.MigrateRequest
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy legacy data into the destination tables (insert only, idempotent)",
		RunE: a.withEngine(func(cmd *cobra.Command, _ *config.Config, eng Engine, _ *zap.Logger) error {
			log, err := eng.Migrate(cmd.Context(), req)
			var me *migration.MigrationError
			if errors.As(err, &me) && me.Log != nil {
				log = me.Log
			}
			if log != nil {
				printLines(cmd.OutOrStdout(), log.Lines)
			}
			return err
		}),
	}
	addSourceFlags(cmd, &req)
	return cmd
}

func newVerifyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Count rows and orphan records in the destination",
		RunE: a.withEngine(func(cmd *cobra.Command, _ *config.Config, eng Engine, _ *zap.Logger) error {
			rep, err := eng.VerifyIntegrity(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Row counts:")
			for _, t := range model.AllTables {
				fmt.Fprintf(out, "  %s: %d\n", t.Name, rep.Counts[t.Name])
			}
			fmt.Fprintln(out, "Orphans:")
			for _, rel := range model.Relations() {
				fmt.Fprintf(out, "  %s: %d\n", rel.Name, rep.Orphans[rel.Name])
			}
			fmt.Fprintf(out, "Integrity: %s\n", status(rep.AllValid))
			if !rep.AllValid {
				return errInvalidData
			}
			return nil
		}),
	}
}

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate every data table against field and reference rules",
		RunE: a.withEngine(func(cmd *cobra.Command, _ *config.Config, eng Engine, _ *zap.Logger) error {
			rep, err := eng.ValidateData(cmd.Context())
			if err != nil {
				return err
			}
			printLines(cmd.OutOrStdout(), rep.Log)
			for _, t := range model.DataTables {
				for _, issue := range rep.PerTable[t.Name].Issues {
					fmt.Fprintln(cmd.OutOrStdout(), "  - "+issue)
				}
			}
			if !rep.OverallValid {
				return errInvalidData
			}
			return nil
		}),
	}
}

func newCleanupCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Repair, nullify or delete invalid and orphaned records",
		RunE: a.withEngine(func(cmd *cobra.Command, _ *config.Config, eng Engine, _ *zap.Logger) error {
			rep, err := eng.CleanupData(cmd.Context())
			if rep != nil {
				printLines(cmd.OutOrStdout(), rep.Log)
			}
			return err
		}),
	}
}

func newReportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Validate, clean up, re-validate and save a data quality report",
		RunE: a.withEngine(func(cmd *cobra.Command, _ *config.Config, eng Engine, _ *zap.Logger) error {
			qr, files, err := eng.GenerateQualityReport(cmd.Context())
			out := cmd.OutOrStdout()
			if qr != nil {
				fmt.Fprint(out, report.RenderText(qr))
			}
			for _, f := range files {
				fmt.Fprintln(out, "Saved:", f)
			}
			if err != nil {
				return err
			}
			if qr.FinalValidation == nil || !qr.FinalValidation.OverallValid {
				return errInvalidData
			}
			return nil
		}),
	}
}

func newCredentialsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Upgrade password hashes, create default accounts and link courier accounts",
	}

	var req engine.MigrateRequest
	complete := &cobra.Command{
		Use:   "complete",
		Short: "Migrate, then run update, defaults, permissions and validate",
		RunE: a.withEngine(func(cmd *cobra.Command, _ *config.Config, eng Engine, _ *zap.Logger) error {
			res := eng.CompleteCredentialUpdate(cmd.Context(), req)
			printLines(cmd.OutOrStdout(), res.Log)
			if !res.Success {
				return errors.New(res.Error)
			}
			if res.Result != nil && res.Result.Validation != nil && !res.Result.Validation.Valid {
				printLines(cmd.OutOrStdout(), res.Result.Validation.Issues)
				return errInvalidData
			}
			return nil
		}),
	}
	addSourceFlags(complete, &req)

	cmd.AddCommand(
		&cobra.Command{
			Use:   "update",
			Short: "Replace non-bcrypt passwords with the role default (bcrypt)",
			RunE: a.withEngine(func(cmd *cobra.Command, _ *config.Config, eng Engine, _ *zap.Logger) error {
				res, err := eng.UpdateUserCredentials(cmd.Context())
				if err != nil {
					return err
				}
				printLines(cmd.OutOrStdout(), res.Log)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "defaults",
			Short: "Create the admin, kurir and gudang accounts when missing",
			RunE: a.withEngine(func(cmd *cobra.Command, _ *config.Config, eng Engine, _ *zap.Logger) error {
				res, err := eng.CreateDefaultUsers(cmd.Context())
				if err != nil {
					return err
				}
				printLines(cmd.OutOrStdout(), res.Log)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "permissions",
			Short: "Deactivate invalid levels and link courier accounts",
			RunE: a.withEngine(func(cmd *cobra.Command, _ *config.Config, eng Engine, _ *zap.Logger) error {
				res, err := eng.SetupPermissions(cmd.Context())
				if err != nil {
					return err
				}
				printLines(cmd.OutOrStdout(), res.Log)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check password hashes, usernames and levels",
			RunE: a.withEngine(func(cmd *cobra.Command, _ *config.Config, eng Engine, _ *zap.Logger) error {
				res, err := eng.ValidateUserCredentials(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Credential validation: %d users, %d issues (%s)\n", res.TotalUsers, len(res.Issues), status(res.Valid))
				for _, issue := range res.Issues {
					fmt.Fprintln(out, "  - "+issue)
				}
				if !res.Valid {
					return errInvalidData
				}
				return nil
			}),
		},
		complete,
	)
	return cmd
}

func newSchemaCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create or update the destination tables",
		RunE: a.withEngine(func(cmd *cobra.Command, _ *config.Config, eng Engine, _ *zap.Logger) error {
			if err := eng.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		}),
	}
}

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, health checks and metrics until interrupted",
		RunE: a.withEngine(func(cmd *cobra.Command, cfg *config.Config, eng Engine, log *zap.Logger) error {
			return server.Run(cmd.Context(), cfg, eng, a.metrics, log)
		}),
	}
}
