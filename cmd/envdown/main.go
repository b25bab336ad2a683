// Package main implements the envdown CLI.
//
// envdown tears down one data-platform environment:
//
//	envdown run            # full teardown pipeline
//	envdown clean          # local state sweep only
//
// The run aborts with a non-zero exit on any fatal stage failure and
// exits zero otherwise, even when advisory sub-steps reported errors.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dataops-platform/envdown/pkg/config"
	"github.com/dataops-platform/envdown/pkg/identity"
	"github.com/dataops-platform/envdown/pkg/localstate"
	"github.com/dataops-platform/envdown/pkg/teardown"
)

// Version is set at build time.
var version = "dev"

func main() {
	logger := initLogger()
	defer func() {
		_ = logger.Sync()
	}()

	zap.ReplaceGlobals(logger)

	if err := newRootCmd(logger).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "envdown",
		Short: "Data platform environment teardown",
		Long: `envdown destroys a Fabric data-platform environment: Terraform
resources, the environment's ADLS connection in the Fabric control
plane, and local Terraform state caches.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newRunCmd(logger),
		newCleanCmd(logger),
	)

	return cmd
}

func newRunCmd(logger *zap.Logger) *cobra.Command {
	var (
		configFile string
		infraDir   string
		stateRoot  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full teardown pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				logger.Error("Failed to load configuration", zap.Error(err))
				return err
			}

			logger.Info("Configuration loaded",
				zap.String("environment", cfg.EnvironmentName),
				zap.String("subscription_id", identity.MaskID(cfg.SubscriptionID)),
				zap.String("resource_group", cfg.ResourceGroupName),
				zap.String("connection_name", cfg.ConnectionName()),
			)

			orchestrator := teardown.New(cfg, teardown.Options{
				InfraDir:  infraDir,
				StateRoot: stateRoot,
			}, logger)

			result, err := orchestrator.Run(cmd.Context())
			if err != nil {
				logger.Error("Teardown aborted", zap.Error(err))
				return err
			}

			logger.Info("Teardown finished",
				zap.String("mode", string(result.Mode)),
				zap.Bool("connection_deleted", result.ConnectionDeleted),
				zap.Int("advisories", len(result.Advisories)),
				zap.Duration("duration", result.Duration()),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Optional YAML config file (env vars take precedence)")
	cmd.Flags().StringVar(&infraDir, "infra-dir", ".", "Directory holding the Terraform root module")
	cmd.Flags().StringVar(&stateRoot, "state-root", ".", "Directory swept for local Terraform state")

	return cmd
}

func newCleanCmd(logger *zap.Logger) *cobra.Command {
	var (
		environmentName string
		stateRoot       string
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Sweep local Terraform state only",
		RunE: func(cmd *cobra.Command, args []string) error {
			if environmentName == "" {
				environmentName = os.Getenv("ENVIRONMENT_NAME")
			}
			localstate.NewCleaner(stateRoot, logger).Clean(environmentName)
			return nil
		},
	}

	cmd.Flags().StringVar(&environmentName, "environment", "", "Environment name (defaults to ENVIRONMENT_NAME)")
	cmd.Flags().StringVar(&stateRoot, "state-root", ".", "Directory swept for local Terraform state")

	return cmd
}

func initLogger() *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
