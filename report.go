package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/grrywlsn/plexmatch/catalog"
	"github.com/grrywlsn/plexmatch/reconcile"
)

// musicBrainzRecordingURL links a recording ID
const musicBrainzRecordingURL = "https://musicbrainz.org/recording/"

// maxNearMisses caps the near misses listed per missing track
const maxNearMisses = 3

// renderTable draws rows under header in the rounded style. rightAligned
// holds 1-based column numbers whose cells are right aligned.
func renderTable(header table.Row, rows []table.Row, rightAligned ...int) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)
	tw.AppendRows(rows)

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, number := range rightAligned {
		configs = append(configs, table.ColumnConfig{
			Number:      number,
			Align:       text.AlignRight,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// renderReport writes the results, summary and missing tracks of a run.
// recordings holds MusicBrainz IDs by outcome index and may be nil.
func renderReport(w io.Writer, report *reconcile.Report, recordings map[int]string) {
	fmt.Fprintf(w, "\n📋 %s\n", report.PlaylistName)
	fmt.Fprintln(w, renderTable(table.Row{"#", "Spotify", "Result", "Plex"}, resultRows(report), 1))
	fmt.Fprintln(w, renderTable(table.Row{"Summary", "Count"}, summaryRows(report), 2))

	if missing := missingRows(report, recordings); len(missing) > 0 {
		fmt.Fprintf(w, "Tracks not found in Plex library (%d total):\n", len(missing))
		fmt.Fprintln(w, renderTable(
			table.Row{"#", "Spotify", "Track ID", "ISRC", "MusicBrainz", "Near misses"},
			missing,
			1,
		))
	}
}

func resultRows(report *reconcile.Report) []table.Row {
	rows := make([]table.Row, 0, len(report.Outcomes))
	for i, o := range report.Outcomes {
		plexTrack := ""
		if o.Match != nil {
			plexTrack = o.Match.Target.String()
		}
		rows = append(rows, table.Row{i + 1, o.Source.String(), outcomeStatus(o), plexTrack})
	}
	return rows
}

func outcomeStatus(o reconcile.Outcome) string {
	switch o.Kind {
	case reconcile.OutcomeMatched:
		status := "✅ " + string(o.Match.Strategy)
		if o.Match.Section != "" {
			status += " (" + string(o.Match.Basis) + ")"
		}
		return status
	case reconcile.OutcomeDuplicate:
		if o.Previous != nil {
			return "🔁 duplicate of " + o.Previous.Track
		}
		return "🔁 already in playlist"
	case reconcile.OutcomeFailed:
		return "⚠️ " + o.Err.Error()
	}
	return "❌ no match"
}

func summaryRows(report *reconcile.Report) []table.Row {
	failed := len(report.Filter(reconcile.OutcomeFailed))
	rows := []table.Row{
		{"Total songs", report.Total()},
		{"Matched", report.Matched()},
		{"Duplicates", report.Duplicates()},
		{"No match", report.Unmatched()},
	}
	if failed > 0 {
		rows = append(rows, table.Row{"Failed", failed})
	}
	rows = append(rows, table.Row{"Match rate", fmt.Sprintf("%.1f%%", report.MatchPercentage())})

	playlist := "(not created)"
	if report.PlaylistID != "" {
		playlist = report.PlaylistID
		if report.Created {
			playlist += " (new)"
		}
	}
	rows = append(rows, table.Row{"Plex playlist", playlist})
	if report.RunID != "" {
		rows = append(rows, table.Row{"Run", report.RunID})
	}
	return rows
}

func missingRows(report *reconcile.Report, recordings map[int]string) []table.Row {
	var rows []table.Row
	for i, o := range report.Outcomes {
		if o.Kind != reconcile.OutcomeUnmatched {
			continue
		}

		src, _ := o.Source.Source()
		isrc := src.ISRC
		if isrc == "" {
			isrc = "(not available)"
		}
		recording := "(not found)"
		if id, ok := recordings[i]; ok {
			recording = musicBrainzRecordingURL + id
		}

		rows = append(rows, table.Row{
			len(rows) + 1,
			o.Source.String(),
			src.ID,
			isrc,
			recording,
			nearMissList(o.NearMisses),
		})
	}
	return rows
}

func nearMissList(entries []catalog.Entry) string {
	if len(entries) == 0 {
		return ""
	}
	names := make([]string, 0, maxNearMisses)
	for i, e := range entries {
		if i == maxNearMisses {
			names = append(names, fmt.Sprintf("+%d more", len(entries)-maxNearMisses))
			break
		}
		names = append(names, e.String())
	}
	return strings.Join(names, "\n")
}
