package report

import (
	"fmt"
	"strings"
	"time"
)

const ruleWidth = 48

// Text renders the plain-text build summary.
func Text(s Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Sources Version: %s\n", orDash(s.SourcesVersion))
	fmt.Fprintf(&b, "Pipeline: %s\n", s.Pipeline)
	b.WriteString("\n")

	for _, j := range s.Jobs {
		b.WriteString(j.Name)
		if j.Link != "" {
			fmt.Fprintf(&b, " <%s>", j.Link)
		}
		fmt.Fprintf(&b, "  W %s  R %s  %s\n", Clock(j.WaitTime), Clock(j.RunTime), j.Status.HumanReadable())
		if j.Error != "" {
			fmt.Fprintf(&b, "    %s\n", j.Error)
		}
	}

	b.WriteString(strings.Repeat("=", ruleWidth))
	b.WriteString("\n")
	if s.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", s.Error)
	}
	fmt.Fprintf(&b, "PIPELINE %s\n", s.Status.HumanReadable())
	return b.String()
}

// Markdown renders the summary as a Markdown section suitable for CI step
// summaries.
func Markdown(s Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "### Pipeline %s: %s\n\n", code(s.Pipeline), s.Status.HumanReadable())
	fmt.Fprintf(&b, "Sources version: %s | Elapsed: %s | Run: %s\n\n",
		code(orDash(s.SourcesVersion)), Clock(s.Elapsed), code(s.RunID))

	if s.Error != "" {
		fmt.Fprintf(&b, "> **Error:** %s\n\n", escapeCell(s.Error))
	}

	if len(s.Jobs) == 0 {
		b.WriteString("_No jobs were triggered._\n")
		return b.String()
	}

	b.WriteString("| Job | Provider | Wait | Run | Status |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, j := range s.Jobs {
		name := escapeCell(j.Name)
		if j.Link != "" {
			name = fmt.Sprintf("[%s](%s)", name, j.Link)
		}
		status := j.Status.HumanReadable()
		if j.Error != "" {
			status += ": " + escapeCell(j.Error)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			name, escapeCell(j.Provider), Clock(j.WaitTime), Clock(j.RunTime), status)
	}
	return b.String()
}

// Clock formats d as hh:mm:ss, truncating to whole seconds. Hours are not
// wrapped at 24.
func Clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func code(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "'") + "`"
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
