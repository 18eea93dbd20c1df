package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/BaSui01/expoflow/config"
	"github.com/BaSui01/expoflow/internal/migration"
)

// =============================================================================
// 🗄️ 审计库迁移命令
// =============================================================================

// runMigrate 处理 migrate 子命令
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "up":
		withMigrator(args[1:], func(m *migration.Migrator) error {
			if err := m.Up(); err != nil {
				return err
			}
			fmt.Println("Migrations applied")
			return nil
		})
	case "down":
		withMigrator(args[1:], func(m *migration.Migrator) error {
			if err := m.Down(); err != nil {
				return err
			}
			fmt.Println("Last migration rolled back")
			return nil
		})
	case "status", "version":
		withMigrator(args[1:], func(m *migration.Migrator) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			if version == 0 {
				fmt.Println("No migrations applied")
				return nil
			}
			fmt.Printf("Version: %d (dirty: %v)\n", version, dirty)
			return nil
		})
	case "help", "-h", "--help":
		printMigrateUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", args[0])
		printMigrateUsage()
		os.Exit(1)
	}
}

// withMigrator 加载配置、构建迁移器并执行 fn，处理退出码
func withMigrator(args []string, fn func(*migration.Migrator) error) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	migrator, err := migration.NewMigratorFromDatabaseConfig(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	if err := fn(migrator); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}

// printMigrateUsage 打印迁移命令帮助
func printMigrateUsage() {
	fmt.Println(`Audit Database Migration Commands

Usage:
  expoflow migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration
  status    Show current migration version

Options:
  --config <path>   Path to configuration file (YAML)

Examples:
  expoflow migrate up --config /etc/expoflow/config.yaml
  expoflow migrate status`)
}
