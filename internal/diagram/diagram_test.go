package diagram

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bookmark-summarizer/internal/bookmarks"
)

func TestGenerateSimpleTree(t *testing.T) {
	t.Parallel()

	root := &bookmarks.Folder{
		Name: "Bookmark Bar",
		Children: []*bookmarks.Folder{
			{
				Name:      "Tech",
				Bookmarks: []bookmarks.Bookmark{{Title: "Go Blog", URL: "https://go.dev/blog"}},
			},
		},
		Bookmarks: []bookmarks.Bookmark{{Title: "News", URL: "https://news.test"}},
	}

	out := NewGenerator(nil).Generate(root)
	lines := strings.Split(strings.TrimSpace(out), "\n")

	assert.Equal(t, "graph TD", lines[0])
	assert.Contains(t, out, "folder_0[Bookmark Bar]")
	assert.Contains(t, out, "[Tech]")
	assert.Contains(t, out, `("Go Blog")`)
	assert.Contains(t, out, `("News")`)
	assert.Contains(t, out, "-->")
	assert.NotContains(t, out, "limit_reached")
}

func TestGenerateSanitizesLabels(t *testing.T) {
	t.Parallel()

	root := &bookmarks.Folder{
		Name: "root",
		Bookmarks: []bookmarks.Bookmark{
			{Title: "say \"hi\"  and\n`run`", URL: "https://x.test"},
			{Title: strings.Repeat("x", 100), URL: "https://y.test"},
		},
	}

	out := NewGenerator(nil).Generate(root)
	assert.Contains(t, out, "say 'hi' and run")
	assert.Contains(t, out, strings.Repeat("x", 57)+"...")
	assert.NotContains(t, out, "`")
}

func TestGenerateCollapsesWideFolders(t *testing.T) {
	t.Parallel()

	root := &bookmarks.Folder{Name: "wide"}
	for i := 0; i < 60; i++ {
		root.Bookmarks = append(root.Bookmarks, bookmarks.Bookmark{
			Title: fmt.Sprintf("bm %d", i), URL: "https://x.test",
		})
	}

	out := NewGenerator(nil).Generate(root)
	assert.Contains(t, out, "[... and 10 more]")
	assert.NotContains(t, out, "bm 50", "children beyond the fan-out cap are hidden")
	assert.Contains(t, out, "bm 49")
}

func TestGenerateEnforcesNodeBudget(t *testing.T) {
	t.Parallel()

	// A deep chain of folders overruns the total node budget long before the
	// per-folder fan-out cap applies.
	root := &bookmarks.Folder{Name: "level 0"}
	cur := root
	for i := 1; i < 1200; i++ {
		next := &bookmarks.Folder{Name: fmt.Sprintf("level %d", i)}
		cur.Children = append(cur.Children, next)
		cur = next
	}

	g := NewGenerator(nil)
	out := g.Generate(root)
	assert.Contains(t, out, "limit_reached[Diagram truncated at 1000 nodes]")
	assert.Equal(t, 1, strings.Count(out, "limit_reached["), "limit marker appears once")
}

func TestSaveWrapsInMermaidFence(t *testing.T) {
	t.Parallel()

	g := NewGenerator(nil)
	path := filepath.Join(t.TempDir(), "structure.md")
	require.NoError(t, g.Save("graph TD\n  a[Root]", path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "```mermaid\n"))
	assert.True(t, strings.HasSuffix(content, "```\n"))
	assert.Contains(t, content, "a[Root]")
}
