package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/BaSui01/agora/config"
	"github.com/BaSui01/agora/internal/migration"
)

// =============================================================================
// 🗃️ migrate 命令
// =============================================================================

// migrateCommand 一个迁移子命令。positional 为版本号等位置参数个数。
type migrateCommand struct {
	positional int
	run        func(ctx context.Context, cli *migration.CLI, args []string) error
}

var migrateCommands = map[string]migrateCommand{
	"up": {run: func(ctx context.Context, cli *migration.CLI, _ []string) error {
		return cli.RunUp(ctx)
	}},
	"down": {run: func(ctx context.Context, cli *migration.CLI, _ []string) error {
		return cli.RunDown(ctx)
	}},
	"reset": {run: func(ctx context.Context, cli *migration.CLI, _ []string) error {
		return cli.RunDownAll(ctx)
	}},
	"status": {run: func(ctx context.Context, cli *migration.CLI, _ []string) error {
		return cli.RunStatus(ctx)
	}},
	"version": {run: func(ctx context.Context, cli *migration.CLI, _ []string) error {
		return cli.RunVersion(ctx)
	}},
	"info": {run: func(ctx context.Context, cli *migration.CLI, _ []string) error {
		return cli.RunInfo(ctx)
	}},
	"goto": {positional: 1, run: func(ctx context.Context, cli *migration.CLI, args []string) error {
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[0])
		}
		return cli.RunGoto(ctx, uint(version))
	}},
	"force": {positional: 1, run: func(ctx context.Context, cli *migration.CLI, args []string) error {
		version, err := strconv.ParseInt(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[0])
		}
		return cli.RunForce(ctx, int(version))
	}},
}

// runMigrate handles the migrate command and its subcommands
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		printMigrateUsage()
		return
	}

	cmd, ok := migrateCommands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", name)
		printMigrateUsage()
		os.Exit(1)
	}

	rest := args[1:]
	if len(rest) < cmd.positional {
		fmt.Fprintf(os.Stderr, "Usage: agora migrate %s <version>\n", name)
		os.Exit(1)
	}
	positional, flags := rest[:cmd.positional], rest[cmd.positional:]

	fs := flag.NewFlagSet("migrate "+name, flag.ExitOnError)
	migrator, err := createMigrator(fs, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}

	err = cmd.run(context.Background(), migration.NewCLI(migrator), positional)
	migrator.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s failed: %v\n", name, err)
		os.Exit(1)
	}
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  agora migrate <subcommand> [options]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  reset       Rollback all migrations
  status      Show migration status
  version     Show current migration version
  info        Show migration summary
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  help        Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --env-file <path>   Load environment variables from a .env file
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  agora migrate up
  agora migrate up --config /etc/agora/config.yaml
  agora migrate status
  agora migrate goto 1
  agora migrate force 0
  agora migrate up --db-type sqlite --db-url "file:agora.db?mode=rwc"`)
}

// createMigrator creates a migrator from command line flags
func createMigrator(fs *flag.FlagSet, args []string) (*migration.DefaultMigrator, error) {
	configPath := fs.String("config", "", "Path to config file")
	envFile := fs.String("env-file", "", "Path to .env file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *dbType != "" && *dbURL != "" {
		return migration.NewMigratorFromURL(*dbType, *dbURL)
	}

	cfg, err := loadConfig(*configPath, *envFile)
	if err != nil {
		return nil, err
	}
	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}

	return migration.NewMigratorFromConfig(cfg)
}

// loadConfig 按 默认值 → YAML → .env → 环境变量 加载配置
func loadConfig(configPath, envFile string) (*config.Config, error) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	if envFile != "" {
		loader = loader.WithDotEnv(envFile)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
