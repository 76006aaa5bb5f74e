package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/cuongbtq/inference-hitl/internal/api/dto"
	"github.com/cuongbtq/inference-hitl/internal/bootstrap"
	"github.com/cuongbtq/inference-hitl/internal/config"
	"github.com/cuongbtq/inference-hitl/internal/domain"
	"github.com/cuongbtq/inference-hitl/internal/storage"
	"github.com/cuongbtq/inference-hitl/shared/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs after the root has loaded the
// configuration.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	defaultConfigPath := os.Getenv("JOBCTL_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/jobctl/config.yaml"
	}

	root := &cobra.Command{
		Use:          "jobctl",
		Short:        "Operate the inference job store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.logger.Close()
			}
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath, "Path to configuration file")

	root.AddCommand(
		newMigrateCmd(a),
		newGetCmd(a),
		newListCmd(a),
		newRequeueCmd(a),
	)
	return root
}

func (a *app) load() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// stdout carries command output
	logCfg := cfg.Logging
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	appLogger, err := bootstrap.InitLogger(&logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = appLogger
	return nil
}

// openStore connects to the configured database. The caller closes the
// returned connection.
func (a *app) openStore(ctx context.Context) (*storage.Storage, storage.Conn, error) {
	conn, err := bootstrap.InitDatabase(ctx, &a.cfg.Database, a.logger.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return storage.NewStorage(conn.GetDB(), a.logger.Logger), conn, nil
}

func printJob(w io.Writer, job *domain.Job) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(dto.NewJobDTO(job))
}

func printJobList(w io.Writer, jobs []domain.Job) error {
	out := make([]dto.JobDTO, 0, len(jobs))
	for i := range jobs {
		out = append(out, dto.NewJobDTO(&jobs[i]))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
