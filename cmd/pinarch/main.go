package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pinarch/internal/app"
	"pinarch/internal/config"
	"pinarch/internal/encryption"
	"pinarch/internal/server"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Import", "Consolidate").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts on stderr and reads a passphrase without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pw), nil
}

var rootCmd = &cobra.Command{
	Use:   "pinarch",
	Short: "Deduplicated local catalog of saved pins",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		// Generate a new archive ID
		archiveID := uuid.New().String()

		cfg := config.NewConfig(archiveID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Archive ID: %s\n", archiveID)
		fmt.Printf("Base Dir:   %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Archive ID: %s\n", cfg.ArchiveID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Media Dir:  %s\n", cfg.MediaDir())
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Server:     %s:%d\n", cfg.Server.Host, cfg.Server.Port)
		fmt.Printf("Mirror:     %s (%s)\n", cfg.Mirror.Type, cfg.Mirror.Name)
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import [BASE]",
	Short: "Merge snapshot exports into the catalog",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Import")
		if err != nil {
			return err
		}
		defer a.Close()

		base := a.Config().BaseDir
		if len(args) > 0 {
			base, err = filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
		}

		stats, err := a.Import(base)
		if err != nil {
			a.MarkFailed()
			return fmt.Errorf("import failed: %w", err)
		}

		fmt.Printf("Snapshots processed:  %d\n", stats.SnapshotsProcessed)
		fmt.Printf("Pins found:           %d\n", stats.PinsFound)
		fmt.Printf("Pins imported:        %d\n", stats.PinsImported)
		fmt.Printf("Skipped (duplicate):  %d\n", stats.PinsSkippedDuplicate)
		fmt.Printf("Skipped (no media):   %d\n", stats.PinsSkippedMissingMedia)
		fmt.Printf("Total in catalog:     %d\n", stats.TotalInStore)
		return nil
	},
}

// consolidate command
var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Collapse records sharing one media file",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Consolidate")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Consolidate()
		if err != nil {
			a.MarkFailed()
			return fmt.Errorf("consolidation failed: %w", err)
		}

		fmt.Printf("Groups consolidated: %d\n", stats.GroupsConsolidated)
		fmt.Printf("Duplicates removed:  %d\n", stats.DuplicatesRemoved)
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "View catalog statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Stats")
		if err != nil {
			return err
		}
		defer a.Close()

		total, err := a.Stats()
		if err != nil {
			return err
		}

		fmt.Printf("Pins in catalog: %d\n", total)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, run := range runs {
			started := time.Unix(run.StartedAt, 0).UTC()
			duration := ""
			if run.FinishedAt.Valid {
				d := time.Unix(run.FinishedAt.Int64, 0).Sub(started)
				duration = d.String()
			}
			fmt.Printf("#%d  %-12s  %s  %-8s  %s\n",
				run.ID,
				run.Operation,
				started.Format("2006-01-02 15:04:05"),
				run.Status,
				duration,
			)
		}
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Serve")
		if err != nil {
			return err
		}
		defer a.Close()

		srv, err := server.New(a.Config().Server, a.Store(), a.Config().MediaDir(), a.Logger())
		if err != nil {
			return fmt.Errorf("creating server: %w", err)
		}
		return srv.Listen()
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage backup encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a key pair for encrypted backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}

		enc := encryption.NewAgeEncryptor(cfg.Encryption)
		if enc.IsConfigured() {
			return fmt.Errorf("keys already exist at %s", cfg.Encryption.PrivateKeyPath)
		}

		passphrase, err := readPassphrase("Passphrase for the private key: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Push a catalog snapshot to the mirror",
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		a, err := newApp("Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Backup(encrypt); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Println("Catalog backed up.")
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore OUT",
	Short: "Fetch the catalog snapshot from the mirror",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypted, _ := cmd.Flags().GetBool("encrypted")

		a, err := newApp("Restore")
		if err != nil {
			return err
		}
		defer a.Close()

		outPath, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		passphrase := ""
		if encrypted {
			passphrase, err = readPassphrase("Passphrase for the private key: ")
			if err != nil {
				return err
			}
		}

		if err := a.RestoreBackup(outPath, encrypted, passphrase); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("Catalog restored to %s\n", outPath)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// backup subcommands
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.Flags().Bool("encrypt", false, "Encrypt the snapshot before uploading")
	backupRestoreCmd.Flags().Bool("encrypted", false, "The stored snapshot is encrypted")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(backupCmd)
}
