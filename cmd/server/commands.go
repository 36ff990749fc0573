package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/condo-repairs/ingest"
	"github.com/warp/condo-repairs/logging"
	"github.com/warp/condo-repairs/repairs"
	"github.com/warp/condo-repairs/session"
	"github.com/warp/condo-repairs/store/sqlite"
)

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List session databases, newest first",
	Long: `List session databases, newest first.

The newest file is the one the server resumes on startup and is marked with *.

Examples:
  condo-repairs sessions
  condo-repairs sessions --sessions ./backup/databases`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctrl, err := session.New(cfg.Storage.SessionDir)
		if err != nil {
			return err
		}
		infos, err := ctrl.List()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No session databases in %s\n", ctrl.Dir())
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "\tNAME\tSIZE\tMODIFIED")
		for i, info := range infos {
			marker := ""
			if i == 0 {
				marker = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", marker, info.Name, info.Size, info.Modified.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	},
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Parse a spreadsheet into a new session database",
	Long: `Parse a spreadsheet into a new session database without running the server.

The file is left in place. The new session becomes the newest one, so the
next server start resumes it.

Examples:
  condo-repairs import ./repairs.csv
  condo-repairs import ./repairs.xlsx --mode heuristic`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := logging.NewWithOutput(os.Stderr, cfg.Log.Level, cfg.Log.Format)

		format, err := ingest.FormatFromFilename(args[0])
		if err != nil {
			return err
		}
		rows, err := ingest.Parse(args[0], format)
		if err != nil {
			return err
		}
		mapper, err := repairs.NewMapper(cfg.Mapping.Mode)
		if err != nil {
			return err
		}
		records := repairs.MapRows(mapper, rows)

		ctrl, err := session.New(cfg.Storage.SessionDir, session.WithLogger(log))
		if err != nil {
			return err
		}
		defer ctrl.Close()

		var saved []repairs.UnitRecord
		path, err := ctrl.NewSessionWith(cmd.Context(), func(s *sqlite.Store) error {
			var err error
			saved, err = s.SaveRecords(cmd.Context(), records)
			return err
		})
		if err != nil {
			return err
		}

		items := 0
		for _, rec := range saved {
			items += len(rec.RepairItems)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d units and %d repair items into %s\n", len(saved), items, path)
		return nil
	},
}

func init() {
	importCmd.Flags().String("mode", "", "row mapping mode (plain|heuristic)")
}
