// Package diagram renders a Mermaid overview of the bookmark hierarchy.
package diagram

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/bookmark-summarizer/internal/bookmarks"
)

// Generation limits. Mermaid renderers choke on very large graphs, so both
// the total node count and the fan-out per folder are capped.
const (
	defaultLabelMaxLen = 60
	defaultMaxNodes    = 1000
	defaultMaxChildren = 50
)

// Generator builds "graph TD" Mermaid sources from a folder tree.
type Generator struct {
	labelMaxLen int
	maxNodes    int
	maxChildren int
	logger      *zap.Logger

	counter      int
	nodes        int
	limitEmitted bool
}

// NewGenerator returns a Generator with the default limits.
func NewGenerator(logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		labelMaxLen: defaultLabelMaxLen,
		maxNodes:    defaultMaxNodes,
		maxChildren: defaultMaxChildren,
		logger:      logger,
	}
}

// Generate renders the tree rooted at root. The output starts with
// "graph TD"; oversized trees are truncated with explicit marker nodes.
func (g *Generator) Generate(root *bookmarks.Folder) string {
	g.counter = 0
	g.nodes = 0
	g.limitEmitted = false

	lines := []string{"graph TD"}
	g.traverse(root, "", &lines)

	g.logger.Info("diagram generated", zap.Int("nodes", g.nodes))
	return strings.Join(lines, "\n") + "\n"
}

// Save writes the diagram to path inside a mermaid code fence.
func (g *Generator) Save(diagram, path string) error {
	var b strings.Builder
	b.WriteString("```mermaid\n")
	b.WriteString(diagram)
	if !strings.HasSuffix(diagram, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write diagram %s: %w", path, err)
	}
	return nil
}

func (g *Generator) traverse(folder *bookmarks.Folder, parentID string, lines *[]string) {
	if g.wouldExceed(1) {
		g.emitLimit(lines, parentID)
		return
	}

	folderID := g.nextID("folder")
	*lines = append(*lines, fmt.Sprintf("  %s[%s]", folderID, g.sanitizeLabel(folder.Name)))
	g.nodes++
	if parentID != "" {
		g.edge(lines, parentID, folderID)
	}

	total := len(folder.Children) + len(folder.Bookmarks)
	processed := 0

	for _, child := range folder.Children {
		if processed >= g.maxChildren || g.limitEmitted {
			break
		}
		g.traverse(child, folderID, lines)
		processed++
	}
	for _, bm := range folder.Bookmarks {
		if processed >= g.maxChildren || g.limitEmitted {
			break
		}
		g.addBookmark(bm, folderID, lines)
		processed++
	}

	if omitted := total - processed; omitted > 0 && !g.limitEmitted {
		if g.wouldExceed(1) {
			g.emitLimit(lines, folderID)
			return
		}
		collapsedID := g.nextID("collapsed")
		*lines = append(*lines, fmt.Sprintf("  %s[... and %d more]", collapsedID, omitted))
		g.nodes++
		g.edge(lines, folderID, collapsedID)
	}
}

func (g *Generator) addBookmark(bm bookmarks.Bookmark, parentID string, lines *[]string) {
	if g.wouldExceed(1) {
		g.emitLimit(lines, parentID)
		return
	}
	nodeID := g.nextID("bookmark")
	*lines = append(*lines, fmt.Sprintf("  %s(%q)", nodeID, g.sanitizeLabel(bm.Title)))
	g.nodes++
	g.edge(lines, parentID, nodeID)
}

func (g *Generator) edge(lines *[]string, parentID, childID string) {
	*lines = append(*lines, fmt.Sprintf("  %s --> %s", parentID, childID))
}

// emitLimit marks truncation once per generation.
func (g *Generator) emitLimit(lines *[]string, parentID string) {
	if g.limitEmitted {
		return
	}
	*lines = append(*lines, fmt.Sprintf("  limit_reached[Diagram truncated at %d nodes]", g.maxNodes))
	g.nodes++
	g.limitEmitted = true
	if parentID != "" {
		g.edge(lines, parentID, "limit_reached")
	}
	g.logger.Warn("diagram truncated", zap.Int("max_nodes", g.maxNodes))
}

// sanitizeLabel makes a title safe inside a Mermaid node: double quotes
// become single, backticks are dropped, whitespace collapses, and long
// labels are shortened with an ellipsis.
func (g *Generator) sanitizeLabel(text string) string {
	s := strings.ReplaceAll(text, `"`, "'")
	s = strings.ReplaceAll(s, "`", "")
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > g.labelMaxLen {
		runes := []rune(s)
		if len(runes) > g.labelMaxLen {
			s = string(runes[:g.labelMaxLen-3]) + "..."
		}
	}
	return s
}

func (g *Generator) nextID(kind string) string {
	id := fmt.Sprintf("%s_%d", kind, g.counter)
	g.counter++
	return id
}

func (g *Generator) wouldExceed(additional int) bool {
	return g.nodes+additional > g.maxNodes
}
