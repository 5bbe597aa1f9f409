package platform

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-steady/pkg/backend"
)

// NoAnalysisData is the global analysis text when nothing has been saved.
const NoAnalysisData = "No data available for analysis."

// analysisWindow is how many recent sessions the global analysis looks at.
const analysisWindow = 10

// SessionReport writes a short assessment of one session.
func SessionReport(weightKg float64, req backend.ReportRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Data: weight %.1f kg, stability %d%%, duration %ds.\n", weightKg, req.StabilityPercent, req.DurationSeconds)

	switch p := req.StabilityPercent; {
	case p >= 80:
		b.WriteString("Assessment: good postural control with the centre of pressure held near the midline.\n")
		b.WriteString("Recommendations:\n- Progress to a narrower stance or a soft surface.\n- Extend sessions to build endurance.")
	case p >= 50:
		b.WriteString("Assessment: moderate postural control with frequent excursions from the midline.\n")
		b.WriteString("Recommendations:\n- Repeat at the current duration until stability exceeds 80%.\n- Add visual fixation on a fixed target.")
	default:
		b.WriteString("Assessment: limited postural control; the centre of pressure rarely stayed in the green zone.\n")
		b.WriteString("Recommendations:\n- Shorten sessions and train with support nearby.\n- Focus on even weight distribution across both feet.")
	}
	return b.String()
}

// GlobalAnalysis summarises progress across the most recent sessions.
func GlobalAnalysis(entries []backend.HistoryEntry) string {
	if len(entries) == 0 {
		return NoAnalysisData
	}
	if len(entries) > analysisWindow {
		entries = entries[len(entries)-analysisWindow:]
	}

	var b strings.Builder
	sum, best := 0, 0
	for i, e := range entries {
		fmt.Fprintf(&b, "Session %d: Score %d\n", i, e.StabilityScore)
		sum += e.StabilityScore
		best = max(best, e.StabilityScore)
	}
	avg := float64(sum) / float64(len(entries))
	first, last := entries[0].StabilityScore, entries[len(entries)-1].StabilityScore

	fmt.Fprintf(&b, "- Average stability %.0f%% over %d sessions, best %d%%.\n", avg, len(entries), best)
	switch {
	case len(entries) == 1:
		b.WriteString("- A single session is not enough to judge a trend.\n")
	case last > first:
		fmt.Fprintf(&b, "- Improving: up %d points since the first session in this window.\n", last-first)
	case last < first:
		fmt.Fprintf(&b, "- Declining: down %d points since the first session in this window.\n", first-last)
	default:
		b.WriteString("- Stable: no change since the first session in this window.\n")
	}
	if avg >= 80 {
		b.WriteString("- Ready to progress to harder balance tasks.")
	} else {
		b.WriteString("- Continue regular training at the current level.")
	}
	return b.String()
}
