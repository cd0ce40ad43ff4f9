package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"univ_erp/backend/internal/app"
	"univ_erp/backend/internal/shared"
)

// session holds what a command needs beyond its flags. Tests swap the loaders.
type session struct {
	loadConfig func(envFile string) (*shared.ServiceConfig, error)
	open       func(ctx context.Context, cfg *shared.ServiceConfig) (*app.Services, error)

	// Global flags
	envFile string
	role    string
	userID  string
	timeout time.Duration

	cfg *shared.ServiceConfig
	svc *app.Services
}

func defaultSession() *session {
	return &session{
		loadConfig: func(envFile string) (*shared.ServiceConfig, error) {
			if err := shared.LoadEnv(envFile); err != nil {
				log.Println("Warning: .env file not found, using system environment variables")
			}
			cfg, err := shared.LoadServiceConfig("gradectl")
			if err != nil {
				return nil, err
			}
			return cfg, shared.ValidateServiceConfig(cfg)
		},
		open: app.Open,
	}
}

func newRootCmd(rt *session) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gradectl",
		Short: "Operate the grading engine from the command line",
		Long: `gradectl exports and imports section mark sheets, computes and finalizes
grades, and toggles maintenance mode against the configured store.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.loadConfig(rt.envFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			rt.cfg = cfg
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if rt.svc == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return rt.svc.Close(ctx)
		},
	}

	rootCmd.PersistentFlags().StringVar(&rt.envFile, "env-file", ".env", "environment file to load")
	rootCmd.PersistentFlags().StringVar(&rt.role, "role", shared.GetEnv("GRADECTL_ROLE", shared.RoleInstructor), "caller role (ADMIN, INSTRUCTOR, STUDENT)")
	rootCmd.PersistentFlags().StringVar(&rt.userID, "user", shared.GetEnv("GRADECTL_USER", "gradectl"), "caller user id recorded in the audit log")
	rootCmd.PersistentFlags().DurationVar(&rt.timeout, "timeout", 2*time.Minute, "overall deadline for the command")

	// --- Marks Sheets ---
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write a section's marks sheet as CSV",
		RunE:  rt.runExport, // Defined in cmd_marks.go
	}
	exportCmd.Flags().Int64("section", 0, "section id")
	exportCmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	_ = exportCmd.MarkFlagRequired("section")

	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Load marks for a section from a CSV sheet (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  rt.runImport, // Defined in cmd_marks.go
	}
	importCmd.Flags().Int64("section", 0, "section id")
	_ = importCmd.MarkFlagRequired("section")

	// --- Grades ---
	totalCmd := &cobra.Command{
		Use:   "total",
		Short: "Show the weighted totals and letter of an enrollment",
		RunE:  rt.runTotal, // Defined in cmd_grades.go
	}
	totalCmd.Flags().Int64("enrollment", 0, "enrollment id")
	_ = totalCmd.MarkFlagRequired("enrollment")

	finalizeCmd := &cobra.Command{
		Use:   "finalize",
		Short: "Store computed letters for an enrollment or a whole section",
		RunE:  rt.runFinalize, // Defined in cmd_grades.go
	}
	finalizeCmd.Flags().Int64("enrollment", 0, "enrollment id")
	finalizeCmd.Flags().Int64("section", 0, "section id")
	finalizeCmd.MarkFlagsOneRequired("enrollment", "section")
	finalizeCmd.MarkFlagsMutuallyExclusive("enrollment", "section")

	componentsCmd := &cobra.Command{
		Use:   "components",
		Short: "List the grading component master list",
		RunE:  rt.runListComponents, // Defined in cmd_grades.go
	}
	addComponentCmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Add a grading component (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE:  rt.runAddComponent, // Defined in cmd_grades.go
	}
	componentsCmd.AddCommand(addComponentCmd)

	// --- Administration ---
	maintenanceCmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Read or toggle maintenance mode",
	}
	maintenanceCmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Print the persisted maintenance state",
			Args:  cobra.NoArgs,
			RunE:  rt.runMaintenanceGet, // Defined in cmd_admin.go
		},
		&cobra.Command{
			Use:   "on",
			Short: "Enable maintenance mode (admin only)",
			Args:  cobra.NoArgs,
			RunE:  rt.runMaintenanceSet(true),
		},
		&cobra.Command{
			Use:   "off",
			Short: "Disable maintenance mode (admin only)",
			Args:  cobra.NoArgs,
			RunE:  rt.runMaintenanceSet(false),
		},
	)

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the gateway using JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE:  rt.runToken, // Defined in cmd_admin.go
	}
	tokenCmd.Flags().Duration("ttl", 0, "token lifetime (default JWT_TTL)")

	rootCmd.AddCommand(exportCmd, importCmd, totalCmd, finalizeCmd, componentsCmd, maintenanceCmd, tokenCmd)
	return rootCmd
}

// services opens the store on first use
func (rt *session) services(ctx context.Context) (*app.Services, error) {
	if rt.svc != nil {
		return rt.svc, nil
	}
	svc, err := rt.open(ctx, rt.cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", rt.cfg.Storage.Driver, err)
	}
	rt.svc = svc
	return svc, nil
}

// callerContext returns a context carrying the caller named by --user/--role
func (rt *session) callerContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(cmd.Context(), rt.timeout)
	return shared.WithCaller(ctx, shared.Caller{UserID: rt.userID, Role: rt.role}), cancel
}
