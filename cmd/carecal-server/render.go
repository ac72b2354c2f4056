package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/carecal/carecal/internal/calendar"
	"github.com/carecal/carecal/internal/platform/ical"
)

func renderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Lay out a calendar window from an iCalendar file",
		Long: "Render runs the layout pass offline. Events are read from --input " +
			"(a .ics file, or - for stdin) and the resulting view is printed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			view, _ := cmd.Flags().GetString("view")
			date, _ := cmd.Flags().GetString("date")
			axis, _ := cmd.Flags().GetString("time-axis")
			tz, _ := cmd.Flags().GetString("timezone")
			input, _ := cmd.Flags().GetString("input")
			format, _ := cmd.Flags().GetString("format")

			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("timezone %q: %w", tz, err)
			}
			req, err := renderRequest(view, date, axis, loc, time.Now())
			if err != nil {
				return err
			}
			if input != "" {
				items, err := readItems(cmd.InOrStdin(), input, req, loc)
				if err != nil {
					return err
				}
				req.Items = items
			}
			return writeOutput(cmd.OutOrStdout(), format, calendar.Render(req))
		},
	}
	cmd.Flags().String("view", string(calendar.ViewWeek), "View mode: week or month")
	cmd.Flags().String("date", "", "Reference date as YYYY-MM-DD (default today)")
	cmd.Flags().String("time-axis", "auto", "Time axis: auto, true or false")
	cmd.Flags().String("timezone", "UTC", "Display timezone")
	cmd.Flags().String("input", "", "iCalendar file to read events from, - for stdin")
	cmd.Flags().String("format", "json", "Output format: json or yaml")
	return cmd
}

func renderRequest(view, date, axis string, loc *time.Location, now time.Time) (calendar.RenderRequest, error) {
	mode, err := calendar.ParseViewMode(view)
	if err != nil {
		return calendar.RenderRequest{}, err
	}
	ref := now.In(loc)
	if date != "" {
		d, err := time.ParseInLocation("2006-01-02", date, loc)
		if err != nil {
			return calendar.RenderRequest{}, fmt.Errorf("invalid date %q: %w", date, err)
		}
		ref = d.Add(12 * time.Hour)
	}
	req := calendar.RenderRequest{
		Mode:           mode,
		Reference:      ref,
		Now:            now.In(loc),
		AxisOriginHour: calendar.DefaultTimeAxis.StartHour,
	}
	switch axis {
	case "", "auto":
	default:
		b, err := strconv.ParseBool(axis)
		if err != nil {
			return calendar.RenderRequest{}, fmt.Errorf("invalid time-axis %q", axis)
		}
		req.TimeAxisOverride = &b
	}
	return req, nil
}

// readItems decodes the events overlapping the request window. All-day
// events carry no time of day and are left out.
func readItems(stdin io.Reader, input string, req calendar.RenderRequest, loc *time.Location) ([]calendar.Item, error) {
	r := stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	w := calendar.ResolveWindow(req.Mode, req.Reference)
	decoded, err := ical.Decode(r, ical.DecodeOptions{
		From:     w.Start,
		To:       w.End.AddDate(0, 0, 1),
		Location: loc,
	})
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", input, err)
	}

	items := make([]calendar.Item, 0, len(decoded.Occurrences))
	for _, o := range decoded.Occurrences {
		if o.AllDay {
			continue
		}
		items = append(items, calendar.Item{
			ID:       o.Key(),
			Title:    o.Summary,
			Start:    o.Start,
			End:      o.End,
			Location: o.Location,
		})
	}
	return items, nil
}

func writeOutput(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
