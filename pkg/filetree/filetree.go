// Package filetree arranges leaf paths into a tree of path components for
// display.
package filetree

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

// Node is one path component.
type Node struct {
	Name string
	// Path is the slash separated path from the tree root.
	Path     string
	Leaf     bool
	Children []*Node

	index map[string]*Node
}

// Build returns a tree of paths relative to root. Paths outside root keep
// their full cleaned form. Children are sorted by name.
func Build(root string, paths []string) *Node {
	top := &Node{Name: "/"}
	for _, p := range paths {
		top.insert(relative(root, p))
	}
	top.sort()
	return top
}

func relative(root, p string) string {
	p = filepath.Clean(p)
	if root != "" {
		if rel, err := filepath.Rel(filepath.Clean(root), p); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			p = rel
		}
	}
	return strings.Trim(filepath.ToSlash(p), "/")
}

func (n *Node) insert(rel string) {
	if rel == "" {
		return
	}
	parts := strings.Split(rel, "/")
	cur := n
	for i, part := range parts {
		child, ok := cur.index[part]
		if !ok {
			child = &Node{Name: part, Path: strings.Join(parts[:i+1], "/")}
			if cur.index == nil {
				cur.index = make(map[string]*Node)
			}
			cur.index[part] = child
			cur.Children = append(cur.Children, child)
		}
		if i == len(parts)-1 {
			child.Leaf = true
		}
		cur = child
	}
}

func (n *Node) sort() {
	sort.Slice(n.Children, func(i, j int) bool { return n.Children[i].Name < n.Children[j].Name })
	for _, c := range n.Children {
		c.sort()
	}
}

// Find returns the node at the slash separated path, or nil.
func (n *Node) Find(p string) *Node {
	cur := n
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		if part == "" {
			continue
		}
		next, ok := cur.index[part]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// Walk visits n and its descendants depth-first, parents before children.
// Returning false from fn skips the node's children.
func (n *Node) Walk(fn func(n *Node, depth int) bool) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// Leaves returns the number of leaf nodes below n.
func (n *Node) Leaves() int {
	count := 0
	n.Walk(func(c *Node, _ int) bool {
		if c.Leaf {
			count++
		}
		return true
	})
	return count
}

// Render writes the tree as indented text, one node per line. Directories
// carry a trailing slash.
func (n *Node) Render(w io.Writer) error {
	var err error
	n.Walk(func(c *Node, depth int) bool {
		if err != nil {
			return false
		}
		if c == n {
			return true
		}
		name := c.Name
		if len(c.Children) > 0 {
			name += "/"
		}
		_, err = fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth-1), name)
		return true
	})
	return err
}
