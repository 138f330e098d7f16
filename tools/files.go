package tools

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileConfig bounds which paths the manager may touch.
type FileConfig struct {
	// MaxFileSize caps reads and writes, in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`

	// AllowedPaths is a list of glob patterns matched against absolute
	// paths. Empty, or containing "*", allows everything not blocked.
	AllowedPaths []string `yaml:"allowed_paths"`

	// BlockedPaths is checked before AllowedPaths and always wins.
	BlockedPaths []string `yaml:"blocked_paths"`
}

func (c *FileConfig) withDefaults() FileConfig {
	out := FileConfig{MaxFileSize: 100 * 1024 * 1024}
	if c != nil {
		if c.MaxFileSize > 0 {
			out.MaxFileSize = c.MaxFileSize
		}
		out.AllowedPaths = c.AllowedPaths
		out.BlockedPaths = c.BlockedPaths
	}
	return out
}

// FileContent is the result of a read.
type FileContent struct {
	Path    string `json:"file_path"`
	Content string `json:"content"`
	Size    int64  `json:"size"`
}

// DirEntry describes one item in a directory listing.
type DirEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	Modified    string `json:"modified"`
	Permissions string `json:"permissions"`
}

// FileManager performs policy-checked file operations.
type FileManager struct {
	cfg FileConfig
	log *slog.Logger
}

func NewFileManager(cfg *FileConfig, log *slog.Logger) *FileManager {
	return &FileManager{cfg: cfg.withDefaults(), log: log.With("tool", "file_manager")}
}

// IsPathAllowed reports whether the policy permits touching the path.
func (m *FileManager) IsPathAllowed(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	for _, pattern := range m.cfg.BlockedPaths {
		if ok, _ := filepath.Match(pattern, abs); ok {
			return false
		}
	}

	if len(m.cfg.AllowedPaths) == 0 {
		return true
	}
	for _, pattern := range m.cfg.AllowedPaths {
		if pattern == "*" {
			return true
		}
		if ok, _ := filepath.Match(pattern, abs); ok {
			return true
		}
	}
	return false
}

// ReadFile returns the file's contents, subject to policy and the size
// cap.
func (m *FileManager) ReadFile(path string) (*FileContent, error) {
	if !m.IsPathAllowed(path) {
		return nil, fmt.Errorf("path blocked by security policy: %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	if info.Size() > m.cfg.MaxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), m.cfg.MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}

	return &FileContent{Path: path, Content: string(data), Size: info.Size()}, nil
}

// WriteFile writes content, creating parent directories as needed.
func (m *FileManager) WriteFile(path, content string) (*FileContent, error) {
	if !m.IsPathAllowed(path) {
		return nil, fmt.Errorf("path blocked by security policy: %s", path)
	}
	if int64(len(content)) > m.cfg.MaxFileSize {
		return nil, fmt.Errorf("content too large: %d bytes (max %d)", len(content), m.cfg.MaxFileSize)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("could not create parent directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("could not write %s: %w", path, err)
	}

	m.log.Info("wrote file", slog.String("path", path), slog.Int("bytes", len(content)))
	return &FileContent{Path: path, Size: int64(len(content))}, nil
}

// ListDirectory returns the directory's entries, directories first,
// then sorted by name.
func (m *FileManager) ListDirectory(path string) ([]DirEntry, error) {
	if !m.IsPathAllowed(path) {
		return nil, fmt.Errorf("path blocked by security policy: %s", path)
	}

	items, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("could not list %s: %w", path, err)
	}

	entries := make([]DirEntry, 0, len(items))
	for _, item := range items {
		info, err := item.Info()
		if err != nil {
			continue
		}
		kind := "file"
		if item.IsDir() {
			kind = "directory"
		}
		entries = append(entries, DirEntry{
			Name:        item.Name(),
			Path:        filepath.Join(path, item.Name()),
			Type:        kind,
			Size:        info.Size(),
			Modified:    info.ModTime().UTC().Format(time.RFC3339),
			Permissions: info.Mode().Perm().String(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type == "directory"
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}
