package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/saeid-a/MentorHubBack/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}
	logger.Init("development", os.Getenv("LOG_LEVEL"))

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dir string

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply database schema migrations",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&dir, "dir", "", "migrations directory (searched upwards from the working directory when empty)")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := newMigrator(dir)
				if err != nil {
					return err
				}
				defer m.Close()

				if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return err
				}
				log.Info().Msg("migration up successful")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := newMigrator(dir)
				if err != nil {
					return err
				}
				defer m.Close()

				if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return err
				}
				log.Info().Msg("migration down successful")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := newMigrator(dir)
				if err != nil {
					return err
				}
				defer m.Close()

				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					cmd.Println("no migrations applied")
					return nil
				}
				if err != nil {
					return err
				}
				cmd.Printf("version %d (dirty: %t)\n", version, dirty)
				return nil
			},
		},
	)

	return root
}

func newMigrator(dir string) (*migrate.Migrate, error) {
	dbUrl := os.Getenv("DB_URL")
	if dbUrl == "" {
		return nil, errors.New("DB_URL environment variable is required")
	}

	migrationsPath := dir
	if migrationsPath == "" {
		found, err := findMigrationsDir()
		if err != nil {
			return nil, err
		}
		migrationsPath = found
	}

	absMigrationsPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		return nil, err
	}

	m, err := migrate.New("file://"+absMigrationsPath, dbUrl)
	if err != nil {
		return nil, fmt.Errorf("open migrations at %s: %w", absMigrationsPath, err)
	}
	return m, nil
}

func findMigrationsDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	candidates := []string{}
	current := cwd
	for i := 0; i < 6; i++ {
		candidates = append(candidates, filepath.Join(current, "migrations"))
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		candidates = append(candidates,
			filepath.Join(exeDir, "migrations"),
			filepath.Join(exeDir, "..", "migrations"),
			filepath.Join(exeDir, "..", "..", "migrations"),
		)
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && info.IsDir() {
			return candidate, nil
		}
	}
	return "", errors.New("migrations directory not found")
}
