package tui

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/pipedeck/internal/domain"
)

// maxLogBytes caps how much of a log file the viewer loads.
const maxLogBytes = 1 << 20

// LogsLoadedMsg is sent when a job's log file has been read.
type LogsLoadedMsg struct {
	Content string
	JobName string
	Err     error
}

// logPath returns the local file behind a job link, if the link is a file:// URI.
func logPath(job domain.JobHandle) (string, bool) {
	u, err := url.Parse(job.Link)
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return "", false
	}
	return u.Path, true
}

func loadLog(job domain.JobHandle) tea.Cmd {
	return func() tea.Msg {
		path, ok := logPath(job)
		if !ok {
			return LogsLoadedMsg{JobName: job.Name, Err: errors.New("job has no local log")}
		}
		data, err := readTail(path, maxLogBytes)
		return LogsLoadedMsg{Content: data, JobName: job.Name, Err: err}
	}
}

// readTail reads at most limit bytes from the end of path.
func readTail(path string, limit int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening log: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("reading log: %w", err)
	}
	offset := int64(0)
	if info.Size() > limit {
		offset = info.Size() - limit
	}
	buf := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return "", fmt.Errorf("reading log: %w", err)
	}
	return strings.TrimRight(string(buf), "\n"), nil
}

// logView is the fullscreen log viewer state.
type logView struct {
	job     string
	content string
	offset  int
}

func (v logView) lines() int {
	return strings.Count(v.content, "\n")
}

func (v logView) update(key string, page int) logView {
	maxOffset := v.lines()
	switch key {
	case "down", "j":
		if v.offset < maxOffset {
			v.offset++
		}
	case "up", "k":
		if v.offset > 0 {
			v.offset--
		}
	case "pgup":
		v.offset -= page
		if v.offset < 0 {
			v.offset = 0
		}
	case "pgdown":
		v.offset += page
		if v.offset > maxOffset {
			v.offset = maxOffset
		}
	case "g":
		v.offset = 0
	case "G":
		v.offset = maxOffset
	}
	return v
}

func (v logView) render(pipeline string, visible int) string {
	header := fmt.Sprintf(" pipedeck  %s  [logs] %s\n", pipeline, v.job)
	footer := " ↑/↓: scroll   PgUp/PgDn: page   g/G: top/bottom   esc: back\n"

	lines := strings.Split(v.content, "\n")
	start := v.offset
	if start >= len(lines) {
		start = len(lines) - 1
	}
	if start < 0 {
		start = 0
	}
	end := start + visible
	if end > len(lines) {
		end = len(lines)
	}
	return header + separator + strings.Join(lines[start:end], "\n") + "\n" + separator + footer
}
