package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/carecal/carecal/internal/calendar"
	"github.com/carecal/carecal/internal/config"
	"github.com/carecal/carecal/internal/platform/ical"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import appointments from an iCalendar file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			source, _ := cmd.Flags().GetString("source")
			category, _ := cmd.Flags().GetString("category")
			past, _ := cmd.Flags().GetInt("past-days")
			future, _ := cmd.Flags().GetInt("future-days")
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			if source == "" {
				source = "file:" + filepath.Base(file)
			}
			var categoryID *uuid.UUID
			if category != "" {
				id, err := uuid.Parse(category)
				if err != nil {
					return fmt.Errorf("invalid --category: %w", err)
				}
				categoryID = &id
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			loc := cfg.Location()
			today := calendar.StartOfDay(time.Now().In(loc))
			decoded, err := ical.Decode(f, ical.DecodeOptions{
				From:     today.AddDate(0, 0, -past),
				To:       today.AddDate(0, 0, future),
				Location: loc,
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", file, err)
			}
			for _, uid := range decoded.Truncated {
				logger.Warn().Str("uid", uid).Msg("recurrence expansion truncated")
			}

			ctx := context.Background()
			st, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := st.svc.ImportOccurrences(ctx, source, decoded.Occurrences, categoryID)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			logger.Info().
				Str("source", source).
				Int("occurrences", len(decoded.Occurrences)).
				Int("invalid_events", decoded.Skipped).
				Int("created", res.Created).
				Int("updated", res.Updated).
				Int("skipped", res.Skipped).
				Msg("import finished")
			fmt.Fprintf(cmd.OutOrStdout(), "Created %d, updated %d, skipped %d appointment(s).\n", res.Created, res.Updated, res.Skipped)
			return nil
		},
	}
	cmd.Flags().String("file", "", "iCalendar file to import")
	cmd.Flags().String("source", "", "Source name used to key re-imports (default file:<name>)")
	cmd.Flags().String("category", "", "Category id assigned to imported appointments")
	cmd.Flags().Int("past-days", 7, "Expand recurrences this many days into the past")
	cmd.Flags().Int("future-days", 90, "Expand recurrences this many days ahead")
	return cmd
}
