package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mtzanidakis/storecrew/internal/store"
)

func newBackupCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a compressed snapshot of the run database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			size, err := db.Backup(f)
			if err != nil {
				f.Close()
				os.Remove(output)
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close file: %w", err)
			}

			archived := int64(0)
			if info, err := os.Stat(output); err == nil {
				archived = info.Size()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup complete: database %s, archive %s\n", formatSize(size), formatSize(archived))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "file", "f", "", "output archive (.tar.zst)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	var input string
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore the run database from a backup archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			f, err := os.Open(input)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer f.Close()

			if err := store.Restore(f, cfg.Store.Path, overwrite); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored database to %s\n", cfg.Store.Path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "file", "f", "", "backup archive (.tar.zst)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing database")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
