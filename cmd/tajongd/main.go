package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tajong-backend/config"
	"tajong-backend/internal/db"
	"tajong-backend/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "tajongd",
	Short:         "Weekly bell scheduler",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default $CONFIG_PATH or ./config/config.yaml)")
	rootCmd.AddCommand(serveCmd, nextCmd, logsCmd)
}

// loadConfig reads .env, then the YAML config. A missing default config file
// falls back to built-in defaults; an explicitly named one must exist.
func loadConfig() (*config.Config, string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("failed to read .env: %w", err)
	}

	path := configPath
	explicit := path != ""
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		explicit = path != ""
	}
	if path == "" {
		path = "./config/config.yaml"
	}

	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return config.Default(), "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	return cfg, path, nil
}

// bootstrap loads the config, builds the logger and opens the database.
func bootstrap() (*config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.NewLogger(&cfg.Log)
	if err != nil {
		return nil, nil, nil, err
	}
	if path == "" {
		log.Info("no config file found, using defaults")
	} else {
		log.Info("configuration loaded", zap.String("path", path))
	}

	gormDB, err := db.Init(&cfg.Database, log)
	if err != nil {
		log.Sync()
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return cfg, log, gormDB, nil
}
