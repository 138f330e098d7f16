package tools

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"
)

var (
	errorLinePattern   = regexp.MustCompile(`(?i)error|fail|exception|critical`)
	warningLinePattern = regexp.MustCompile(`(?i)warn|alert`)
)

// LogConfig bounds how much of a log file one analysis may read.
type LogConfig struct {
	DefaultLines int `yaml:"default_lines"`
	MaxLines     int `yaml:"max_lines"`
}

func (c *LogConfig) withDefaults() LogConfig {
	out := LogConfig{DefaultLines: 1000, MaxLines: 10000}
	if c != nil {
		if c.DefaultLines > 0 {
			out.DefaultLines = c.DefaultLines
		}
		if c.MaxLines > 0 {
			out.MaxLines = c.MaxLines
		}
	}
	return out
}

// LogAnalysis summarizes the tail of a log file.
type LogAnalysis struct {
	Path         string   `json:"log_path"`
	LinesRead    int      `json:"lines_read"`
	ErrorCount   int      `json:"error_count"`
	WarningCount int      `json:"warning_count"`
	Matches      []string `json:"matches,omitempty"`
	Timestamp    string   `json:"timestamp"`
}

// LogAnalyzer tails log files and counts error and warning lines.
type LogAnalyzer struct {
	cfg LogConfig
	log *slog.Logger
}

func NewLogAnalyzer(cfg *LogConfig, log *slog.Logger) *LogAnalyzer {
	return &LogAnalyzer{cfg: cfg.withDefaults(), log: log.With("tool", "log_analyzer")}
}

// Analyze reads the last lines of the file (capped by configuration)
// and counts error and warning lines. A non-empty filter is compiled as
// a regular expression and matching lines are returned verbatim.
func (a *LogAnalyzer) Analyze(path string, lines int, filter string) (*LogAnalysis, error) {
	if lines <= 0 {
		lines = a.cfg.DefaultLines
	}
	if lines > a.cfg.MaxLines {
		lines = a.cfg.MaxLines
	}

	var filterRe *regexp.Regexp
	if filter != "" {
		var err error
		if filterRe, err = regexp.Compile(filter); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	tail, err := tailLines(path, lines)
	if err != nil {
		return nil, err
	}

	analysis := &LogAnalysis{
		Path:      path,
		LinesRead: len(tail),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for _, line := range tail {
		if errorLinePattern.MatchString(line) {
			analysis.ErrorCount++
		}
		if warningLinePattern.MatchString(line) {
			analysis.WarningCount++
		}
		if filterRe != nil && filterRe.MatchString(line) {
			analysis.Matches = append(analysis.Matches, line)
		}
	}
	return analysis, nil
}

// tailLines returns the last n lines of the file. The file is scanned
// front to back with a sliding window, which is fine for the line caps
// involved.
func tailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open log file: %w", err)
	}
	defer f.Close()

	var window []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		window = append(window, scanner.Text())
		if len(window) > n {
			window = window[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read log file: %w", err)
	}
	return window, nil
}
