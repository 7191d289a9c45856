package bookmarks

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// chromeEpochOffset is the number of seconds between the Chrome bookmark epoch
// (1601-01-01) and the Unix epoch (1970-01-01). Chrome stores timestamps as
// microseconds since 1601.
const chromeEpochOffset = 11644473600

type rawNode struct {
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	DateAdded string    `json:"date_added"`
	Children  []rawNode `json:"children"`
}

type rawFile struct {
	Roots map[string]rawNode `json:"roots"`
}

// Parser reads Chrome bookmark export files into a Folder tree.
type Parser struct {
	logger *zap.Logger
}

// NewParser builds a Parser.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// ParseFile loads and parses the bookmarks file at path.
func (p *Parser) ParseFile(path string) (*Folder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bookmarks file: %w", err)
	}
	return p.Parse(data)
}

// Parse decodes the Chrome bookmarks JSON and returns the root folder. The
// three root sections (bookmark bar, other, synced) become top-level children,
// in that fixed order, so traversal is stable across runs.
func (p *Parser) Parse(data []byte) (*Folder, error) {
	var file rawFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode bookmarks json: %w", err)
	}
	if file.Roots == nil {
		return nil, fmt.Errorf("bookmarks json missing required field %q", "roots")
	}

	root := &Folder{Name: "Root"}
	sections := []struct {
		key  string
		name string
	}{
		{"bookmark_bar", "Bookmark Bar"},
		{"other", "Other"},
		{"synced", "Mobile"},
	}
	for _, section := range sections {
		node, ok := file.Roots[section.key]
		if !ok {
			continue
		}
		folder, bookmark := p.traverse(node, section.name)
		if folder != nil {
			root.Children = append(root.Children, folder)
		} else if bookmark != nil {
			root.Bookmarks = append(root.Bookmarks, *bookmark)
		}
	}

	p.logger.Info("bookmarks parsed",
		zap.Int("root_folders", len(root.Children)),
		zap.Int("total_bookmarks", root.Count()),
	)
	return root, nil
}

// traverse converts one raw node to either a folder or a bookmark. Unknown
// node types and url nodes without a URL are dropped.
func (p *Parser) traverse(node rawNode, defaultName string) (*Folder, *Bookmark) {
	title := node.Name
	if title == "" {
		title = defaultName
	}
	if title == "" {
		title = "Untitled"
	}

	switch strings.ToLower(node.Type) {
	case "folder":
		folder := &Folder{Name: title}
		for _, child := range node.Children {
			sub, bookmark := p.traverse(child, "Untitled")
			if sub != nil {
				folder.Children = append(folder.Children, sub)
			} else if bookmark != nil {
				folder.Bookmarks = append(folder.Bookmarks, *bookmark)
			}
		}
		return folder, nil
	case "url":
		if node.URL == "" {
			p.logger.Warn("bookmark without url skipped", zap.String("title", title))
			return nil, nil
		}
		return nil, &Bookmark{
			Title:     title,
			URL:       node.URL,
			DateAdded: parseChromeTime(node.DateAdded),
		}
	default:
		p.logger.Warn("unknown bookmark node type skipped",
			zap.String("type", node.Type),
			zap.String("title", title),
		)
		return nil, nil
	}
}

// parseChromeTime converts Chrome's microseconds-since-1601 stamp. A zero
// time is returned for absent or malformed values.
func parseChromeTime(raw string) time.Time {
	if raw == "" || raw == "0" {
		return time.Time{}
	}
	micros, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || micros <= 0 {
		return time.Time{}
	}
	secs := micros/1e6 - chromeEpochOffset
	if secs < 0 {
		return time.Time{}
	}
	return time.Unix(secs, (micros%1e6)*1000).UTC()
}
