package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Handler executes one tool method with raw JSON parameters.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Registry maps method names to tool invocations.
type Registry struct {
	shell   *ShellExecutor
	files   *FileManager
	system  *SystemMonitor
	logs    *LogAnalyzer
	methods map[string]Handler
}

// Config collects per-tool policy.
type Config struct {
	Shell ShellConfig `yaml:"shell"`
	Files FileConfig  `yaml:"files"`
	Logs  LogConfig   `yaml:"logs"`
}

func NewRegistry(cfg *Config, log *slog.Logger) *Registry {
	if cfg == nil {
		cfg = &Config{}
	}
	r := &Registry{
		shell:  NewShellExecutor(&cfg.Shell, log),
		files:  NewFileManager(&cfg.Files, log),
		system: NewSystemMonitor(log),
		logs:   NewLogAnalyzer(&cfg.Logs, log),
	}

	r.methods = map[string]Handler{
		"execute_command":     r.executeCommand,
		"get_command_history": r.commandHistory,
		"read_file":           r.readFile,
		"write_file":          r.writeFile,
		"list_directory":      r.listDirectory,
		"get_system_metrics":  r.systemMetrics,
		"analyze_log_file":    r.analyzeLog,
	}
	return r
}

// Capabilities is the capability map declared during registration, one
// entry per tool group.
func (r *Registry) Capabilities() map[string]bool {
	return map[string]bool{
		"shell_executor": true,
		"file_manager":   true,
		"system_monitor": true,
		"log_analyzer":   true,
	}
}

// Methods returns the registered method names.
func (r *Registry) Methods() []string {
	out := make([]string, 0, len(r.methods))
	for name := range r.methods {
		out = append(out, name)
	}
	return out
}

// Call dispatches a method by name. Unknown methods are reported
// distinctly so the RPC layer can map them to the proper error code.
func (r *Registry) Call(ctx context.Context, method string, params json.RawMessage) (any, error) {
	handler, ok := r.methods[method]
	if !ok {
		return nil, &UnknownMethodError{Method: method}
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	return handler(ctx, params)
}

// UnknownMethodError reports a dispatch to an unregistered method.
type UnknownMethodError struct {
	Method string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("unknown method %q", e.Method)
}

func (r *Registry) executeCommand(ctx context.Context, params json.RawMessage) (any, error) {
	var args struct {
		Command    string `json:"command"`
		WorkingDir string `json:"working_dir"`
		Timeout    int    `json:"timeout"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if args.Command == "" {
		return nil, fmt.Errorf("command is required")
	}
	return r.shell.Execute(ctx, args.Command, args.WorkingDir, time.Duration(args.Timeout)*time.Second)
}

func (r *Registry) commandHistory(_ context.Context, _ json.RawMessage) (any, error) {
	history := r.shell.History()
	return map[string]any{"history": history, "total_commands": len(history)}, nil
}

func (r *Registry) readFile(_ context.Context, params json.RawMessage) (any, error) {
	var args struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return r.files.ReadFile(args.FilePath)
}

func (r *Registry) writeFile(_ context.Context, params json.RawMessage) (any, error) {
	var args struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return r.files.WriteFile(args.FilePath, args.Content)
}

func (r *Registry) listDirectory(_ context.Context, params json.RawMessage) (any, error) {
	var args struct {
		DirectoryPath string `json:"directory_path"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return r.files.ListDirectory(args.DirectoryPath)
}

func (r *Registry) systemMetrics(ctx context.Context, _ json.RawMessage) (any, error) {
	return r.system.Metrics(ctx)
}

func (r *Registry) analyzeLog(_ context.Context, params json.RawMessage) (any, error) {
	var args struct {
		LogPath string `json:"log_path"`
		Lines   int    `json:"lines"`
		Filter  string `json:"filter"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return r.logs.Analyze(args.LogPath, args.Lines, args.Filter)
}
