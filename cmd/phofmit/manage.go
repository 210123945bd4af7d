package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"phofmit/internal/app"
	"phofmit/internal/config"
)

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

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Print(renderTable([]string{"Setting", "Value"}, [][]string{
			{"Host ID", cfg.HostID},
			{"Base dir", cfg.BaseDir},
			{"Log dir", cfg.LogDir},
			{"Lock dir", cfg.LockDir()},
			{"Dir mode", cfg.DirMode},
			{"Snapshot filename", cfg.SnapshotFilename},
			{"Workers", workersLabel(cfg.Workers)},
			{"Cache", cfg.Cache.Type + " " + cfg.Cache.DataDir},
			{"Encryption", cfg.Encryption.Type + " " + cfg.Encryption.PublicKeyPath},
		}, nil))
		fmt.Println()

		if len(cfg.Stores) > 0 {
			rows := make([][]string, 0, len(cfg.Stores))
			for _, s := range cfg.Stores {
				location := s.FSRoot
				if s.Type == "s3" {
					location = "s3://" + s.S3Bucket + "/" + s.S3Prefix
				}
				rows = append(rows, []string{s.Name, s.Type, location})
			}
			fmt.Println(renderTable([]string{"Store", "Type", "Location"}, rows, nil))
		}
		return nil
	},
}

func workersLabel(n int) string {
	if n == 0 {
		return "one per CPU"
	}
	return strconv.Itoa(n)
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate the key pair used to encrypt snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("config keys", args, app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		again, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if pass != again {
			return errors.New("passphrases do not match")
		}
		if pass == "" {
			return errors.New("empty passphrase")
		}

		if err := a.SetupKeys(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Println("Encryption keys generated.")
		return nil
	},
}

// cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the target scan cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached target scans",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("cache list", args, app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.CacheEntries()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Scan cache is empty.")
			return nil
		}

		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{
				e.BasePath,
				strconv.Itoa(e.FileCount),
				humanize.Time(e.CreatedAt),
				e.Key[:min(12, len(e.Key))],
			})
		}
		fmt.Println(renderTable(
			[]string{"Path", "Files", "Scanned", "Key"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
		))
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop cached target scans",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")

		a, err := newApp("cache purge", args, app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.PurgeCache(olderThan)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d cached scan(s)\n", n)
		return nil
	},
}

// store command
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage snapshot stores",
}

var storeListCmd = &cobra.Command{
	Use:   "list NAME",
	Short: "List the snapshots held by a store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("store list", args, app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.ListStore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Printf("Store %s holds no snapshots.\n", args[0])
			return nil
		}

		rows := make([][]string, 0, len(items))
		for _, it := range items {
			rows = append(rows, []string{
				args[0] + ":" + it.Key,
				humanize.IBytes(uint64(it.Size)),
				humanize.Time(time.Unix(it.ModifiedAt, 0)),
			})
		}
		fmt.Println(renderTable(
			[]string{"Snapshot", "Size", "Modified"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignLeft},
		))
		return nil
	},
}

var storePutCmd = &cobra.Command{
	Use:   "put NAME FILE",
	Short: "Upload a snapshot file to a store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("store put", args, app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		locator, err := a.PutStore(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Stored as %s\n", locator)
		return nil
	},
}

var storeGetCmd = &cobra.Command{
	Use:   "get NAME KEY",
	Short: "Download a snapshot from a store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp("store get", args, app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		var w io.Writer = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			defer f.Close()
			w = f
		}
		return a.GetStore(cmd.Context(), args[0], args[1], w)
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View past snapshot and mirror runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history", args, app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.GetHistory(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			duration := ""
			if r.FinishedAt.Valid {
				duration = r.FinishedAt.Time.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			rows = append(rows, []string{
				"#" + strconv.FormatInt(r.ID, 10),
				r.Operation,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Status,
				strconv.FormatInt(r.Moved, 10),
				duration,
				r.Parameters,
			})
		}
		fmt.Println(renderTable(
			[]string{"Run", "Operation", "Started", "Status", "Moved", "Duration", "Parameters"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)

	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	cachePurgeCmd.Flags().Duration("older-than", 0, "Only drop scans older than this (e.g. 720h)")

	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storePutCmd)
	storeCmd.AddCommand(storeGetCmd)
	storeGetCmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
}
