package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var purgeCmd = &cobra.Command{
	Use:   "purge-retention",
	Short: "Delete answers older than their applet's retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := backend.Services.Retention.Purge(cmd.Context())
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(removed))
		for id := range removed {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			cmd.Printf("%s\t%d\n", id, removed[id])
		}
		zapLogger.Info("retention purge finished", zap.Int("applets", len(removed)))
		return nil
	},
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export-schedule-history <applet_id>",
	Short: "Build the schedule history workbook of an applet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		export, err := backend.Services.Schedule.BuildHistoryExport(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if export.URL != "" {
			cmd.Println(export.URL)
		}
		if exportOut == "" {
			if export.URL != "" {
				return nil
			}
			exportOut = "."
		}
		path := filepath.Join(exportOut, export.FileName)
		if err := os.WriteFile(path, export.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		cmd.Println(path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "directory to write the workbook to (default: cwd when storage is off)")
}
