package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/arwahdevops/shipmigrate/internal/cleanup"
	"github.com/arwahdevops/shipmigrate/internal/model"
	"github.com/arwahdevops/shipmigrate/internal/validation"
)

const timeLayout = "2006-01-02 15:04:05"

// RenderJSON menghasilkan bentuk terstruktur. encoding/json mengurutkan kunci map,
// jadi input yang sama selalu menghasilkan byte yang sama.
func RenderJSON(r *QualityReport) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// RenderText menghasilkan laporan untuk dibaca operator.
func RenderText(r *QualityReport) string {
	var b strings.Builder

	heading(&b, "DATA QUALITY REPORT", "=")
	fmt.Fprintf(&b, "Report ID: %s\n", r.ID)
	fmt.Fprintf(&b, "Generated at: %s\n\n", r.GeneratedAt.Format(timeLayout))

	heading(&b, "INITIAL VALIDATION", "-")
	writeValidation(&b, r.ValidationResults)

	heading(&b, "CLEANUP", "-")
	writeCleanup(&b, r.CleanupResults, r.CleanupError)

	heading(&b, "FINAL VALIDATION", "-")
	writeValidation(&b, r.FinalValidation)

	return b.String()
}

func heading(b *strings.Builder, title, underline string) {
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat(underline, len(title)) + "\n")
}

func writeValidation(b *strings.Builder, v *validation.Report) {
	if v == nil {
		b.WriteString("(not available)\n\n")
		return
	}
	fmt.Fprintf(b, "Overall: %s\n", validWord(v.OverallValid))
	for _, t := range model.DataTables {
		res, ok := v.PerTable[t.Name]
		if !ok {
			continue
		}
		if res.Valid {
			fmt.Fprintf(b, "[PASS] %s (%d records)\n", t.Name, res.TotalRecords)
			continue
		}
		fmt.Fprintf(b, "[FAIL] %s (%d records, %d issues)\n", t.Name, res.TotalRecords, len(res.Issues))
		for _, issue := range res.Issues {
			fmt.Fprintf(b, "  - %s\n", issue)
		}
	}
	b.WriteString("\n")
}

func writeCleanup(b *strings.Builder, c *cleanup.Report, cleanupErr string) {
	if c == nil {
		b.WriteString("(not available)\n\n")
		return
	}
	if len(c.PerCategory) == 0 {
		b.WriteString("No records changed\n")
	}
	for _, category := range sortedKeys(c.PerCategory) {
		actions := c.PerCategory[category]
		parts := make([]string, 0, len(actions))
		for _, action := range sortedKeys(actions) {
			parts = append(parts, fmt.Sprintf("%s=%d", action, actions[action]))
		}
		fmt.Fprintf(b, "%s: %s\n", category, strings.Join(parts, ", "))
	}
	if cleanupErr != "" {
		fmt.Fprintf(b, "Errors: %s\n", cleanupErr)
	}
	if len(c.Log) > 0 {
		b.WriteString("Log:\n")
		for _, line := range c.Log {
			fmt.Fprintf(b, "  - %s\n", line)
		}
	}
	b.WriteString("\n")
}

func validWord(ok bool) string {
	if ok {
		return "VALID"
	}
	return "INVALID"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
