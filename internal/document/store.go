// Package document is an in-memory node tree standing in for the design tool.
// The execution agent registers its commands so the relay can be exercised end
// to end without a real editor.
package document

import (
	"fmt"
	"sort"
	"sync"
)

// Node types
const (
	TypeDocument  = "DOCUMENT"
	TypePage      = "PAGE"
	TypeFrame     = "FRAME"
	TypeRectangle = "RECTANGLE"
	TypeText      = "TEXT"
)

// Node is one element of the tree.
type Node struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	ParentID   string   `json:"parentId,omitempty"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Width      float64  `json:"width"`
	Height     float64  `json:"height"`
	Characters string   `json:"characters,omitempty"`
	Children   []string `json:"children,omitempty"`
}

// Info summarises the document.
type Info struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	CurrentPage PageInfo `json:"currentPage"`
	NodeCount   int      `json:"nodeCount"`
}

// PageInfo describes the current page.
type PageInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ChildCount int    `json:"childCount"`
}

// Store is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	nodes  map[string]*Node
	rootID string
	pageID string
	seq    int
}

// NewStore creates a document with one empty page.
func NewStore(name string) *Store {
	s := &Store{nodes: make(map[string]*Node)}
	root := &Node{ID: "0:0", Name: name, Type: TypeDocument}
	page := &Node{ID: "0:1", Name: "Page 1", Type: TypePage, ParentID: root.ID}
	root.Children = []string{page.ID}
	s.nodes[root.ID] = root
	s.nodes[page.ID] = page
	s.rootID = root.ID
	s.pageID = page.ID
	return s
}

// Info returns the document summary.
func (s *Store) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root := s.nodes[s.rootID]
	page := s.nodes[s.pageID]
	return Info{
		ID:   root.ID,
		Name: root.Name,
		CurrentPage: PageInfo{
			ID:         page.ID,
			Name:       page.Name,
			ChildCount: len(page.Children),
		},
		NodeCount: len(s.nodes),
	}
}

// Get returns a copy of the node.
func (s *Store) Get(id string) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, notFound(id)
	}
	return clone(n), nil
}

// Create adds a node under parentID, or under the current page when empty.
func (s *Store) Create(n Node) (Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ParentID == "" {
		n.ParentID = s.pageID
	}
	parent, ok := s.nodes[n.ParentID]
	if !ok {
		return Node{}, fmt.Errorf("Parent node not found: %s", n.ParentID)
	}
	if parent.Type != TypePage && parent.Type != TypeFrame {
		return Node{}, fmt.Errorf("Parent node does not support children: %s", n.ParentID)
	}

	s.seq++
	n.ID = fmt.Sprintf("1:%d", s.seq)
	n.Children = nil
	if n.Name == "" {
		n.Name = defaultName(n.Type)
	}
	s.nodes[n.ID] = &n
	parent.Children = append(parent.Children, n.ID)
	return clone(&n), nil
}

// SetText replaces the characters of a text node.
func (s *Store) SetText(id, text string) (Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, notFound(id)
	}
	if n.Type != TypeText {
		return Node{}, fmt.Errorf("Node is not a text node: %s", id)
	}
	n.Characters = text
	return clone(n), nil
}

// Delete removes a node and its subtree. The document and its page cannot be
// deleted.
func (s *Store) Delete(id string) (Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, notFound(id)
	}
	if n.Type == TypeDocument || n.Type == TypePage {
		return Node{}, fmt.Errorf("Cannot delete %s node: %s", n.Type, id)
	}

	if parent, ok := s.nodes[n.ParentID]; ok {
		parent.Children = remove(parent.Children, id)
	}
	removed := clone(n)
	s.deleteSubtree(id)
	return removed, nil
}

// TextNodes lists the text nodes under rootID in id order.
func (s *Store) TextNodes(rootID string) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[rootID]; !ok {
		return nil, notFound(rootID)
	}
	var out []Node
	var walk func(id string)
	walk = func(id string) {
		n := s.nodes[id]
		if n.Type == TypeText {
			out = append(out, clone(n))
		}
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(rootID)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) deleteSubtree(id string) {
	n, ok := s.nodes[id]
	if !ok {
		return
	}
	for _, child := range n.Children {
		s.deleteSubtree(child)
	}
	delete(s.nodes, id)
}

func clone(n *Node) Node {
	c := *n
	if n.Children != nil {
		c.Children = append([]string(nil), n.Children...)
	}
	return c
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func notFound(id string) error {
	return fmt.Errorf("Node not found: %s", id)
}

func defaultName(nodeType string) string {
	switch nodeType {
	case TypeRectangle:
		return "Rectangle"
	case TypeText:
		return "Text"
	case TypeFrame:
		return "Frame"
	default:
		return "Node"
	}
}
