// Package writer lays out the output directory tree and renders markdown
// summary files.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/bookmark-summarizer/internal/bookmarks"
	"github.com/JakeFAU/bookmark-summarizer/internal/config"
	"github.com/JakeFAU/bookmark-summarizer/internal/hash/sha256"
)

// maxPathBytes caps the full output path length. Most filesystems reject
// longer names.
const maxPathBytes = 255

var (
	invalidChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Page is one summarized bookmark ready to be written.
type Page struct {
	URL       string
	Title     string
	Summary   string
	FetchedAt time.Time
	Status    string
}

type frontMatter struct {
	URL           string `yaml:"url"`
	Title         string `yaml:"title"`
	DateProcessed string `yaml:"date_processed"`
	Status        string `yaml:"status"`
}

// Writer persists summaries as markdown files mirroring the bookmark folder
// hierarchy under the configured output directory.
type Writer struct {
	outputDir       string
	includeMetadata bool
	logger          *zap.Logger
}

// New returns a Writer rooted at cfg.Dir. Nothing is created on disk until
// EnsureFolders or WriteMarkdown runs, so constructing a Writer is safe for
// read-only passes.
func New(cfg config.OutputConfig, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("output directory must be set")
	}
	return &Writer{
		outputDir:       cfg.Dir,
		includeMetadata: cfg.IncludeMetadata,
		logger:          logger,
	}, nil
}

// OutputDir returns the root of the generated tree.
func (w *Writer) OutputDir() string { return w.outputDir }

// EnsureFolders creates the directory tree mirroring the folder hierarchy.
func (w *Writer) EnsureFolders(root *bookmarks.Folder) error {
	return w.ensureFolder(root, w.outputDir)
}

func (w *Writer) ensureFolder(folder *bookmarks.Folder, parent string) error {
	name := w.sanitizeName(folder.Name, parent, true)
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create folder %s: %w", dir, err)
	}
	for _, child := range folder.Children {
		if err := w.ensureFolder(child, dir); err != nil {
			return err
		}
	}
	return nil
}

// PathFor maps a bookmark to its markdown file location. folderPath is the
// logical hierarchy the bookmark lives under.
func (w *Writer) PathFor(folderPath []string, title string) string {
	dir := w.outputDir
	for _, part := range folderPath {
		dir = filepath.Join(dir, w.sanitizeName(part, dir, true))
	}
	return filepath.Join(dir, w.sanitizeName(title, dir, false)+".md")
}

// WriteMarkdown renders page to path, creating parent directories as needed.
func (w *Writer) WriteMarkdown(page Page, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	content := w.render(page)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.logger.Debug("markdown written",
		zap.String("path", path), zap.Int("bytes", len(content)))
	return nil
}

func (w *Writer) render(page Page) string {
	var b strings.Builder

	if w.includeMetadata {
		meta, err := yaml.Marshal(frontMatter{
			URL:           page.URL,
			Title:         page.Title,
			DateProcessed: page.FetchedAt.Format(time.RFC3339),
			Status:        page.Status,
		})
		if err == nil {
			b.WriteString("---\n")
			b.Write(meta)
			b.WriteString("---\n\n")
		}
	}

	b.WriteString("# " + page.Title + "\n\n")
	if page.Summary != "" {
		b.WriteString(page.Summary + "\n\n")
	}
	b.WriteString("---\n")
	b.WriteString("Source: " + page.URL + "\n")
	return b.String()
}

// sanitizeName converts an arbitrary bookmark or folder name into a safe
// path component. Characters the common filesystems reject become
// underscores, whitespace runs collapse, and names that would push the full
// path past maxPathBytes are truncated or, as a last resort, replaced by a
// short content hash so the mapping stays stable across runs.
func (w *Writer) sanitizeName(name, parent string, isFolder bool) string {
	if name == "" {
		return "unnamed"
	}

	sanitized := invalidChars.ReplaceAllString(name, "_")
	sanitized = strings.TrimSpace(whitespace.ReplaceAllString(sanitized, " "))

	overhead := 1 // path separator
	if !isFolder {
		overhead += len(".md")
	}
	budget := maxPathBytes - len(parent) - overhead
	if budget <= 0 {
		return hashName(name)
	}

	if len(sanitized) > budget {
		cut := budget
		for cut > 0 && !utf8.RuneStart(sanitized[cut]) {
			cut--
		}
		sanitized = strings.TrimSpace(sanitized[:cut])
		w.logger.Debug("name truncated to fit path budget",
			zap.String("original", name), zap.String("sanitized", sanitized))
	}
	if sanitized == "" {
		return "unnamed"
	}
	return sanitized
}

func hashName(name string) string {
	return "item_" + sha256.New().HashString(name)[:12]
}
