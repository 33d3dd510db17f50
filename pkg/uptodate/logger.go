package uptodate

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// ComponentTag prefixes every line the checker reports
const ComponentTag = "FastUpToDate"

// lineLogger accumulates the explanation of one check
type lineLogger struct {
	project string
	lines   []string
	slog    *slog.Logger
}

func newLineLogger(projectPath string, logger *slog.Logger) *lineLogger {
	return &lineLogger{project: ProjectName(projectPath), slog: logger}
}

// ProjectName is the project file name without its extension
func ProjectName(projectPath string) string {
	if projectPath == "" {
		return ""
	}
	base := filepath.Base(projectPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FormatLine wraps a message the way the checker reports it
func FormatLine(message, project string) string {
	return fmt.Sprintf("%s: %s (%s)", ComponentTag, message, project)
}

// info records one message; a multi-line message becomes one reported line per line
func (l *lineLogger) info(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	for _, part := range strings.Split(strings.TrimRight(msg, "\n"), "\n") {
		l.lines = append(l.lines, FormatLine(strings.TrimRight(part, "\r"), l.project))
	}
	l.slog.Debug(msg, "project", l.project)
}
