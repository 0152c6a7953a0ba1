package cmd

import (
	"fmt"
	"os"

	"github.com/Stormster/hytale-server-manager-sub000/internal/cli/ui"
	"github.com/Stormster/hytale-server-manager-sub000/pkg/sdk"
	"github.com/spf13/cobra"
)

var backupInstance string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage backups of an instance",
	Long:  "Backup commands act on --instance, or the active instance when it is omitted.",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create [label]",
	Short: "Back up the server state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := Client.CreateBackup(cmd.Context(), backupInstance, instanceArg(args))
		if err != nil {
			return fmt.Errorf("creating backup: %w", err)
		}
		fmt.Printf("Backup %s created (%s).\n", b.Folder, ui.FormatBytes(b.Size))
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		backups, err := Client.ListBackups(ctx, backupInstance)
		if err != nil {
			return fmt.Errorf("listing backups: %w", err)
		}
		printBackups(backups)
		return nil
	},
}

var backupRenameCmd = &cobra.Command{
	Use:   "rename <folder> <label>",
	Short: "Change a backup's label",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		b, err := Client.RenameBackup(ctx, backupInstance, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Backup %s is now labelled %q.\n", b.Folder, b.Label)
		return nil
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <folder>",
	Short: "Delete a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		if err := Client.DeleteBackup(ctx, backupInstance, args[0]); err != nil {
			return err
		}
		fmt.Println("Backup deleted successfully.")
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <folder>",
	Short: "Replace the server state with a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inst, err := Client.RestoreBackup(cmd.Context(), backupInstance, args[0])
		if err != nil {
			return fmt.Errorf("restoring backup: %w", err)
		}
		fmt.Printf("Backup restored. %s is at version %s (%s).\n", inst.Name, inst.Version, inst.Channel)
		return nil
	},
}

var exportOut string

var backupExportCmd = &cobra.Command{
	Use:   "export <folder>",
	Short: "Download a backup as a zip archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := exportOut
		if out == "" {
			out = args[0] + ".zip"
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		n, err := Client.ExportBackup(cmd.Context(), backupInstance, args[0], f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(out)
			return fmt.Errorf("exporting backup: %w", err)
		}
		fmt.Printf("Wrote %s (%s).\n", out, ui.FormatBytes(n))
		return nil
	},
}

func init() {
	backupCmd.PersistentFlags().StringVarP(&backupInstance, "instance", "i", "", "Instance name (default: active)")
	backupExportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Output file (default: <folder>.zip)")

	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRenameCmd, backupDeleteCmd, backupRestoreCmd, backupExportCmd)
	RootCmd.AddCommand(backupCmd)
}

func backupRows(backups []sdk.Backup) [][]string {
	rows := make([][]string, 0, len(backups))
	for _, b := range backups {
		version := "-"
		switch {
		case b.FromVersion != "" && b.ToVersion != "":
			version = b.FromVersion + " → " + b.ToVersion
		case b.FromVersion != "":
			version = b.FromVersion
		}
		rows = append(rows, []string{
			b.Folder,
			b.Label,
			string(b.Type),
			b.Created.Local().Format("2006-01-02 15:04"),
			version,
			ui.FormatBytes(b.Size),
		})
	}
	return rows
}

func printBackups(backups []sdk.Backup) {
	if len(backups) == 0 {
		fmt.Println("No backups.")
		return
	}
	printTable(os.Stdout, []string{"Folder", "Label", "Type", "Created", "Version", "Size"}, backupRows(backups))
}
