package ical

import (
	"io"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/carecal/carecal/internal/calendar"
)

const DefaultProductID = "-//carecal//calendar export//EN"

// EncodeOptions describe the exported document.
type EncodeOptions struct {
	ProductID string
	// UIDDomain is appended to item IDs to form globally unique UIDs.
	UIDDomain string
	// Stamp is written as DTSTAMP on every event.
	Stamp time.Time
}

// Encode writes items as a PUBLISH calendar. Items without a start are
// skipped; items without an end get the default duration.
func Encode(w io.Writer, items []calendar.Item, opts EncodeOptions) error {
	if opts.ProductID == "" {
		opts.ProductID = DefaultProductID
	}
	if opts.UIDDomain == "" {
		opts.UIDDomain = "carecal"
	}
	if opts.Stamp.IsZero() {
		opts.Stamp = time.Now()
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(opts.ProductID)

	for _, it := range items {
		if !it.HasStart() {
			continue
		}
		end := it.Start.Add(calendar.DefaultDurationMinutes * time.Minute)
		if it.End != nil {
			end = *it.End
		}

		ev := cal.AddEvent(it.ID + "@" + opts.UIDDomain)
		ev.SetDtStampTime(opts.Stamp.UTC())
		ev.SetStartAt(it.Start.UTC())
		ev.SetEndAt(end.UTC())
		ev.SetSummary(it.Title)
		if it.Location != "" {
			ev.SetLocation(it.Location)
		}
		if it.Category != "" {
			ev.AddProperty(ics.ComponentPropertyCategories, it.Category)
		}
		if it.Color != "" {
			ev.AddProperty(ics.ComponentProperty("COLOR"), it.Color)
		}
		if it.Patient != "" {
			ev.SetDescription("Patient: " + it.Patient)
		}
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}
