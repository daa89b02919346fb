// Package dom is a small mutable document tree used by the rewriting rules.
//
// Markup is tokenised and tree-built by golang.org/x/net/html, then copied into
// Node values whose attributes and children are plain ordered slices. Queries
// (by class, id, tag and attribute) and mutations operate on that tree, and
// Render converts it back for serialisation.
package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Kind is the type of a Node.
type Kind int

const (
	DocumentNode Kind = iota
	ElementNode
	TextNode
	CommentNode
	DoctypeNode
)

// Attr is a single attribute. Namespace is set only for foreign content
// (e.g. xlink:href inside SVG).
type Attr struct {
	Namespace string
	Key       string
	Val       string
}

// Node is an element, text, comment, doctype or the document root.
type Node struct {
	Kind Kind
	// Tag is the lower-case element name; empty for non-elements.
	Tag string
	// Namespace is "svg" or "math" for foreign elements, empty for HTML.
	Namespace string
	// Data is the text, comment or doctype content.
	Data     string
	Attrs    []Attr
	Children []*Node
	Parent   *Node
}

// NewElement returns a detached element. attrs are key/value pairs.
func NewElement(tag string, attrs ...string) *Node {
	if len(attrs)%2 != 0 {
		panic("dom: NewElement needs key/value pairs")
	}
	n := &Node{Kind: ElementNode, Tag: strings.ToLower(tag)}
	for i := 0; i < len(attrs); i += 2 {
		n.Attrs = append(n.Attrs, Attr{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

// Attr returns the value of the un-namespaced attribute key.
func (n *Node) Attr(key string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether the attribute key is present.
func (n *Node) HasAttr(key string) bool {
	_, ok := n.Attr(key)
	return ok
}

// SetAttr updates key in place, or appends it when absent.
func (n *Node) SetAttr(key, val string) {
	for i := range n.Attrs {
		if n.Attrs[i].Namespace == "" && n.Attrs[i].Key == key {
			n.Attrs[i].Val = val
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Key: key, Val: val})
}

// HasClass reports whether cls is one of the element's whitespace-separated classes.
func (n *Node) HasClass(cls string) bool {
	v, ok := n.Attr("class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == cls {
			return true
		}
	}
	return false
}

// AppendChild adds c as the last child of n, detaching it from any previous parent.
func (n *Node) AppendChild(c *Node) {
	c.Remove()
	c.Parent = n
	n.Children = append(n.Children, c)
}

// Remove detaches n and its subtree from its parent. It is a no-op for a
// detached node.
func (n *Node) Remove() {
	p := n.Parent
	if p == nil {
		return
	}
	for i, c := range p.Children {
		if c == n {
			p.Children = append(p.Children[:i:i], p.Children[i+1:]...)
			break
		}
	}
	n.Parent = nil
}

// Text returns the concatenated text content of the subtree.
func (n *Node) Text() string {
	var sb strings.Builder
	n.Walk(func(d *Node) bool {
		if d.Kind == TextNode {
			sb.WriteString(d.Data)
		}
		return true
	})
	return sb.String()
}

// Walk visits n and its descendants depth-first in document order. Returning
// false from fn skips the children of the node just visited.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	// Copy so fn may detach the node it is given.
	children := append([]*Node(nil), n.Children...)
	for _, c := range children {
		c.Walk(fn)
	}
}

// FindAll returns every descendant element (n included) for which match is true.
func (n *Node) FindAll(match func(*Node) bool) []*Node {
	var out []*Node
	n.Walk(func(d *Node) bool {
		if d.Kind == ElementNode && match(d) {
			out = append(out, d)
		}
		return true
	})
	return out
}

// FindFirst returns the first element in document order for which match is true.
func (n *Node) FindFirst(match func(*Node) bool) *Node {
	var found *Node
	n.Walk(func(d *Node) bool {
		if found != nil {
			return false
		}
		if d.Kind == ElementNode && match(d) {
			found = d
			return false
		}
		return true
	})
	return found
}

// FindByClass returns all elements carrying class cls.
func (n *Node) FindByClass(cls string) []*Node {
	return n.FindAll(func(d *Node) bool { return d.HasClass(cls) })
}

// FindByID returns the first element whose id is id, or nil.
func (n *Node) FindByID(id string) *Node {
	return n.FindFirst(func(d *Node) bool {
		v, ok := d.Attr("id")
		return ok && v == id
	})
}

// FindByTag returns the first element named tag, or nil.
func (n *Node) FindByTag(tag string) *Node {
	return n.FindFirst(func(d *Node) bool { return d.Tag == tag })
}

// FindByTagAttr returns all elements named one of tags that carry attr.
func (n *Node) FindByTagAttr(tags []string, attr string) []*Node {
	return n.FindAll(func(d *Node) bool {
		for _, t := range tags {
			if d.Tag == t {
				return d.HasAttr(attr)
			}
		}
		return false
	})
}

// FindWithAttr returns all elements carrying attr.
func (n *Node) FindWithAttr(attr string) []*Node {
	return n.FindAll(func(d *Node) bool { return d.HasAttr(attr) })
}

// RemoveByClass detaches every element carrying any of classes and returns
// how many were removed. Elements nested in an already removed one are not
// counted.
func (n *Node) RemoveByClass(classes ...string) int {
	removed := 0
	n.Walk(func(d *Node) bool {
		if d.Kind != ElementNode {
			return true
		}
		for _, cls := range classes {
			if d.HasClass(cls) {
				d.Remove()
				removed++
				return false
			}
		}
		return true
	})
	return removed
}

// Parse parses a complete HTML document. The result always contains html,
// head and body elements.
func Parse(markup string) (*Node, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return fromHTML(root, nil), nil
}

// ParseFragment parses markup as the content of a <body> element. The
// returned document root holds the fragment's nodes directly, with no
// html/head/body wrappers.
func ParseFragment(markup string) (*Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	doc := &Node{Kind: DocumentNode}
	for _, hn := range nodes {
		doc.AppendChild(fromHTML(hn, nil))
	}
	return doc, nil
}

// Render serialises n. A document renders its children.
func (n *Node) Render() (string, error) {
	var sb strings.Builder
	if err := html.Render(&sb, toHTML(n)); err != nil {
		return "", fmt.Errorf("dom: render: %w", err)
	}
	return sb.String(), nil
}

func fromHTML(hn *html.Node, parent *Node) *Node {
	n := &Node{
		Namespace: hn.Namespace,
		Data:      hn.Data,
		Parent:    parent,
	}
	switch hn.Type {
	case html.DocumentNode:
		n.Kind = DocumentNode
		n.Data = ""
	case html.ElementNode:
		n.Kind = ElementNode
		n.Tag = hn.Data
		n.Data = ""
	case html.CommentNode:
		n.Kind = CommentNode
	case html.DoctypeNode:
		n.Kind = DoctypeNode
	default:
		n.Kind = TextNode
	}
	for _, a := range hn.Attr {
		n.Attrs = append(n.Attrs, Attr{Namespace: a.Namespace, Key: a.Key, Val: a.Val})
	}
	for c := hn.FirstChild; c != nil; c = c.NextSibling {
		n.Children = append(n.Children, fromHTML(c, n))
	}
	return n
}

func toHTML(n *Node) *html.Node {
	hn := &html.Node{Namespace: n.Namespace, Data: n.Data}
	switch n.Kind {
	case DocumentNode:
		hn.Type = html.DocumentNode
	case ElementNode:
		hn.Type = html.ElementNode
		hn.Data = n.Tag
		if n.Namespace == "" {
			hn.DataAtom = atom.Lookup([]byte(n.Tag))
		}
	case CommentNode:
		hn.Type = html.CommentNode
	case DoctypeNode:
		hn.Type = html.DoctypeNode
	default:
		hn.Type = html.TextNode
	}
	for _, a := range n.Attrs {
		hn.Attr = append(hn.Attr, html.Attribute{Namespace: a.Namespace, Key: a.Key, Val: a.Val})
	}
	for _, c := range n.Children {
		hn.AppendChild(toHTML(c))
	}
	return hn
}
