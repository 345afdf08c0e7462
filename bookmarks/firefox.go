// Package bookmarks turns browser bookmark exports into flat leaves the
// pipeline can build records from.
package bookmarks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Firefox place types.
const (
	TypePlace          = "text/x-moz-place"
	TypePlaceContainer = "text/x-moz-place-container"
	TypePlaceSeparator = "text/x-moz-place-separator"
)

// ErrMalformedTree is returned when a bookmark export cannot be decoded.
var ErrMalformedTree = errors.New("malformed bookmark tree")

// Leaf is a single bookmark with the fields records are built from.
type Leaf struct {
	Title              string
	URI                string
	LastModifiedMicros int64
}

// Node mirrors one entry of a Firefox bookmarks-YYYY-MM-DD.json backup.
// Timestamps are microseconds since the Unix epoch.
type Node struct {
	GUID         string  `json:"guid"`
	Title        string  `json:"title"`
	Index        int64   `json:"index"`
	DateAdded    int64   `json:"dateAdded"`
	LastModified int64   `json:"lastModified"`
	ID           int64   `json:"id"`
	TypeCode     int64   `json:"typeCode"`
	Type         string  `json:"type"`
	Root         string  `json:"root,omitempty"`
	Children     []*Node `json:"children,omitempty"`
	URI          string  `json:"uri,omitempty"`
}

// DecodeFirefox reads a Firefox JSON backup.
func DecodeFirefox(r io.Reader) (*Node, error) {
	var root Node
	dec := json.NewDecoder(r)
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTree, err)
	}
	if root.Type != "" && root.Type != TypePlaceContainer {
		return nil, fmt.Errorf("%w: root has type %q", ErrMalformedTree, root.Type)
	}
	return &root, nil
}

// IsBookmark reports whether n is a place with a URI.
func (n *Node) IsBookmark() bool {
	return n != nil && n.Type == TypePlace && n.URI != ""
}

// Flatten walks the tree depth-first and returns every bookmark in document
// order. Containers and separators contribute nothing themselves.
func (n *Node) Flatten() []Leaf {
	var out []Leaf
	n.walk(func(node *Node) {
		if node.IsBookmark() {
			out = append(out, Leaf{
				Title:              node.Title,
				URI:                node.URI,
				LastModifiedMicros: node.LastModified,
			})
		}
	})
	return out
}

func (n *Node) walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, child := range n.Children {
		child.walk(fn)
	}
}
