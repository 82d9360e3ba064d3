// Package export writes audit results to spreadsheet workbooks.
package export

import (
	"sort"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/brandpulse/internal/model"
)

// Sheet names, in workbook order.
const (
	SheetSummary   = "Summary"
	SheetTests     = "Tests"
	SheetBotAccess = "Bot Access"
	SheetIssues    = "Issues"
)

var titler = cases.Title(language.English)

// CategoryTitle turns a category key such as "aeoOptimization" into
// "Aeo Optimization".
func CategoryTitle(c model.Category) string {
	var b strings.Builder
	for i, r := range string(c) {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return titler.String(b.String())
}

// WriteXLSX writes result for subjectID to a new workbook at path.
func WriteXLSX(path, subjectID string, result *model.AuditResult) error {
	if result == nil {
		return eris.New("export: nil audit result")
	}

	f := xlsx.NewFile()
	builders := []struct {
		name  string
		build func(*xlsx.Sheet)
	}{
		{SheetSummary, func(s *xlsx.Sheet) { writeSummary(s, subjectID, result) }},
		{SheetTests, func(s *xlsx.Sheet) { writeTests(s, result) }},
		{SheetBotAccess, func(s *xlsx.Sheet) { writeBotAccess(s, result) }},
		{SheetIssues, func(s *xlsx.Sheet) { writeIssues(s, result) }},
	}
	for _, b := range builders {
		sheet, err := f.AddSheet(b.name)
		if err != nil {
			return eris.Wrapf(err, "export: add sheet %s", b.name)
		}
		b.build(sheet)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addStrings(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func writeSummary(sheet *xlsx.Sheet, subjectID string, r *model.AuditResult) {
	addStrings(sheet, "Subject", subjectID)
	row := sheet.AddRow()
	row.AddCell().SetString("Overall Score")
	row.AddCell().SetInt(r.OverallScore)

	addStrings(sheet, "Category", "Weight", "Score", "Weighted")
	for _, c := range model.Categories {
		weight := c.Weight()
		if d, ok := r.DetailedResults[c]; ok && d.Weight > 0 {
			weight = d.Weight
		}
		score, ok := r.ScoreBreakdown[c]
		if !ok {
			score = r.DetailedResults[c].Score
		}

		row := sheet.AddRow()
		row.AddCell().SetString(CategoryTitle(c))
		row.AddCell().SetFloat(weight)
		row.AddCell().SetFloat(score)
		row.AddCell().SetFloat(score * weight)
	}
}

func writeTests(sheet *xlsx.Sheet, r *model.AuditResult) {
	addStrings(sheet, "Category", "Test", "Score", "Status", "Details")
	for _, c := range model.Categories {
		for _, t := range r.DetailedResults[c].Tests {
			row := sheet.AddRow()
			row.AddCell().SetString(CategoryTitle(c))
			row.AddCell().SetString(t.Name)
			row.AddCell().SetFloat(t.Score)
			row.AddCell().SetString(t.Status)
			row.AddCell().SetString(t.Details)
		}
	}
}

func writeBotAccess(sheet *xlsx.Sheet, r *model.AuditResult) {
	addStrings(sheet, "Bot", "User Agent", "Allowed")
	bots := append([]model.BotAccessEntry(nil), r.BotAccessStatus...)
	sort.SliceStable(bots, func(i, j int) bool { return bots[i].Name < bots[j].Name })
	for _, b := range bots {
		allowed := "no"
		if b.Allowed {
			allowed = "yes"
		}
		addStrings(sheet, b.Name, b.UserAgent, allowed)
	}
}

func writeIssues(sheet *xlsx.Sheet, r *model.AuditResult) {
	addStrings(sheet, "Type", "Description")
	for _, issue := range r.CriticalIssues {
		addStrings(sheet, "Critical", issue)
	}
	for _, p := range r.ImprovementPriorities {
		addStrings(sheet, "Priority", p)
	}
	for _, c := range model.Categories {
		for _, rec := range r.DetailedResults[c].Recommendations {
			addStrings(sheet, CategoryTitle(c), rec)
		}
	}
}
