package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/brandpulse/internal/audit"
	"github.com/sells-group/brandpulse/internal/export"
	"github.com/sells-group/brandpulse/internal/model"
	"github.com/sells-group/brandpulse/internal/poller"
)

// writeStructured encodes v as json or yaml. It reports false for any other
// format so callers can fall back to their table rendering.
func writeStructured(out io.Writer, format string, v any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return true, eris.Wrap(enc.Encode(v), "encode json")
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, eris.Wrap(err, "encode yaml")
		}
		return true, eris.Wrap(enc.Close(), "encode yaml")
	case "", "table":
		return false, nil
	default:
		return true, eris.Errorf("unsupported output format %q (want table, json or yaml)", format)
	}
}

// formatSnapshot writes one row per stage.
func formatSnapshot(out io.Writer, subjectID string, snap *model.PipelineSnapshot) {
	_, _ = fmt.Fprintf(out, "%s  %d%%", subjectID, snap.Percent())
	if snap.CurrentOperation != "" {
		_, _ = fmt.Fprintf(out, "  (%s)", snap.CurrentOperation)
	}
	_, _ = fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tSTATUS\tPROGRESS\tLAST_RUN")
	for _, name := range model.Stages {
		st := snap.Stage(name)
		progress := "-"
		if st.Total > 0 {
			progress = fmt.Sprintf("%d/%d", st.Completed, st.Total)
		}
		lastRun := st.LastRun
		if lastRun == "" {
			lastRun = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, snap.Status(name), progress, lastRun)
	}
	_ = w.Flush()
}

// formatUpdate renders a poll update as a single progress line.
func formatUpdate(u poller.Update) string {
	var active []string
	for _, name := range model.Stages {
		if u.Snapshot.Status(name) == model.StageStatusActive {
			active = append(active, string(name))
		}
	}
	line := fmt.Sprintf("%s %s %3d%%", u.PolledAt.Format(time.TimeOnly), u.SubjectID, u.Percent)
	if len(active) > 0 {
		line += " active=" + strings.Join(active, ",")
	}
	if u.IsComplete {
		line += " complete"
	}
	return line
}

// formatLiveScore renders an aggregator view as a single progress line.
func formatLiveScore(v audit.View) string {
	var done, total int
	for _, c := range v.Categories {
		done += c.Completed
		total += c.Total
	}
	line := fmt.Sprintf("[%s] score=%d tests=%d/%d", v.Status, v.OverallScore, done, total)
	if v.Error != "" {
		line += " error=" + v.Error
	}
	return line
}

// formatView writes the category breakdown of an audit view.
func formatView(out io.Writer, v audit.View) {
	_, _ = fmt.Fprintf(out, "%s  status=%s  overall=%d\n", v.SubjectID, v.Status, v.OverallScore)
	if v.Error != "" {
		_, _ = fmt.Fprintf(out, "error: %s\n", v.Error)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tWEIGHT\tSCORE\tTESTS")
	for _, c := range v.Categories {
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%.1f\t%d/%d\n", export.CategoryTitle(c.Category), c.Weight, c.Score, c.Completed, c.Total)
	}
	_ = w.Flush()

	if len(v.BotAccessStatus) > 0 {
		_, _ = fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "BOT\tALLOWED")
		for _, b := range v.BotAccessStatus {
			_, _ = fmt.Fprintf(w, "%s\t%t\n", b.Name, b.Allowed)
		}
		_ = w.Flush()
	}
}

// formatHistory writes a table of stored audits.
func formatHistory(out io.Writer, recs []model.AuditRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCREATED\tOVERALL\tCRITICAL_ISSUES")
	for _, r := range recs {
		score, issues := 0, 0
		if r.Result != nil {
			score = r.Result.OverallScore
			issues = len(r.Result.CriticalIssues)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", r.ID, r.CreatedAt.Format(time.DateTime), score, issues)
	}
	_ = w.Flush()
}
