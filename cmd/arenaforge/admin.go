package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/arenaforge/arenaforge/internal/adapter/postgres"
	"github.com/arenaforge/arenaforge/internal/adapter/wallet"
	"github.com/arenaforge/arenaforge/internal/config"
)

// runAdmin dispatches admin subcommands (keystore-init, migrate-status,
// migrate-up, migrate-rollback).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "keystore-init":
		return runAdminKeystoreInit(args[1:])
	case "migrate-status":
		return runAdminMigrateStatus(args[1:])
	case "migrate-up":
		return runAdminMigrateUp(args[1:])
	case "migrate-rollback":
		return runAdminMigrateRollback(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: arenaforge admin <command> [options]

Commands:
  keystore-init      Encrypt a wallet credential into the keystore file
  migrate-status     Print the current schema migration version
  migrate-up         Apply pending schema migrations
  migrate-rollback   Roll back schema migrations
  help               Show this help message

Examples:
  arenaforge admin keystore-init --path arenaforge.keystore
  arenaforge admin migrate-status
  arenaforge admin migrate-rollback --steps 1
`)
}

func runAdminKeystoreInit(args []string) error {
	fs := flag.NewFlagSet("keystore-init", flag.ContinueOnError)
	path := fs.String("path", "", "keystore file path (defaults to wallet.keystore_path from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	target := *path
	if target == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		target = cfg.Wallet.KeystorePath
	}

	secret, err := promptSecret("Wallet API credential: ")
	if err != nil {
		return fmt.Errorf("read credential: %w", err)
	}
	if secret == "" {
		return fmt.Errorf("credential must not be empty")
	}

	passphrase, err := promptSecret("Keystore passphrase: ")
	if err != nil {
		return fmt.Errorf("read passphrase: %w", err)
	}
	confirm, err := promptSecret("Confirm passphrase: ")
	if err != nil {
		return fmt.Errorf("read passphrase: %w", err)
	}
	if passphrase != confirm {
		return fmt.Errorf("passphrases do not match")
	}

	if err := wallet.NewKeystore(target).Save(secret, passphrase); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Keystore written to %s\n", target)
	return nil
}

func runAdminMigrateStatus(args []string) error {
	fs := flag.NewFlagSet("migrate-status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	version, err := postgres.MigrationVersion(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}

	fmt.Printf("schema version: %d\n", version)
	return nil
}

func runAdminMigrateUp(args []string) error {
	fs := flag.NewFlagSet("migrate-up", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := postgres.RunMigrations(context.Background(), cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	fmt.Fprintln(os.Stderr, "Migrations applied.")
	return nil
}

func runAdminMigrateRollback(args []string) error {
	fs := flag.NewFlagSet("migrate-rollback", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return fmt.Errorf("--steps must be >= 1")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := postgres.RollbackMigrations(context.Background(), cfg.Postgres.DSN, *steps); err != nil {
		return fmt.Errorf("rollback migrations: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Rolled back %d migration(s).\n", *steps)
	return nil
}

// promptSecret reads a line from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
