// Package bookmarks defines the bookmark tree model and the Chrome
// bookmarks-JSON parser that produces it.
package bookmarks

import "time"

// Bookmark is a single saved page. The URL is its stable identity across runs.
type Bookmark struct {
	Title     string
	URL       string
	DateAdded time.Time
}

// Folder is one node of the bookmark hierarchy.
type Folder struct {
	Name      string
	Children  []*Folder
	Bookmarks []Bookmark
}

// Count returns the number of bookmarks under the folder, recursively.
func (f *Folder) Count() int {
	if f == nil {
		return 0
	}
	n := len(f.Bookmarks)
	for _, child := range f.Children {
		n += child.Count()
	}
	return n
}
