package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kfsearch/kfsearch/internal/config"
	"github.com/kfsearch/kfsearch/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the user configuration file's backups",
		Long: `Manage backups of the user/global configuration file
(~/.config/kfsearch/config.yaml).`,
	}

	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigBackupCmd())
	cmd.AddCommand(newConfigBackupsCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return nil
		},
	}
}

func newConfigBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Back up the user configuration file",
		Long: `Writes a timestamped copy of the user config file next to it,
keeping at most the most recent backups.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			backupPath, err := config.BackupUserConfig()
			if err != nil {
				return fmt.Errorf("back up config: %w", err)
			}
			if backupPath == "" {
				out.Warning("No user configuration file to back up")
				out.Statusf("", "expected at: %s", config.GetUserConfigPath())
				return nil
			}

			out.Success("Backed up user configuration")
			out.Statusf("", "backup: %s", backupPath)
			return nil
		},
	}
}

func newConfigBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List user configuration backups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			backups, err := config.ListUserConfigBackups()
			if err != nil {
				return fmt.Errorf("list backups: %w", err)
			}
			if len(backups) == 0 {
				out.Status("", "no backups found")
				return nil
			}

			for _, backup := range backups {
				out.Status("", backup)
			}
			return nil
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-path>",
		Short: "Restore the user configuration from a backup",
		Long: `Replaces the user config file with the contents of the given
backup file, after backing up whatever config currently exists.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			if err := config.RestoreUserConfig(args[0]); err != nil {
				return fmt.Errorf("restore config: %w", err)
			}

			out.Success("Restored user configuration")
			out.Statusf("", "from: %s", args[0])
			return nil
		},
	}
}
