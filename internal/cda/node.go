// Package cda provides a namespace-agnostic generic XML tree and the
// XPath-lite helpers Stage G/H use to read a health-checkup CDA document
// without a fixed, strictly-typed schema binding — the real-world
// documents vary enough in structuredBody nesting that a typed struct
// tree would need constant revision for every new observation shape.
package cda

import (
	"encoding/xml"
	"io"
	"strings"
)

// Node is one element of the parsed document, preserving attributes and
// interleaved character data the way encoding/xml.Decoder streams them.
type Node struct {
	Local    string // local name, namespace prefix stripped
	Attrs    []xml.Attr
	Children []*Node
	chardata strings.Builder
}

// Parse reads the entirety of r into a generic tree rooted at the
// document element (ClinicalDocument, normally).
func Parse(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	var root *Node
	var stack []*Node

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Local: t.Name.Local, Attrs: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].chardata.Write(t)
			}
		}
	}
	if root == nil {
		return nil, io.ErrUnexpectedEOF
	}
	return root, nil
}

// Attr returns an attribute's value by local name, ignoring namespace.
func (n *Node) Attr(name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// DirectText is the element's own character data, equivalent to XPath's
// text() — it does not descend into child elements.
func (n *Node) DirectText() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.chardata.String())
}

// StringValue concatenates this element's and every descendant's
// character data, equivalent to XPath's string().
func (n *Node) StringValue() string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*Node)
	walk = func(cur *Node) {
		b.WriteString(cur.chardata.String())
		for _, c := range cur.Children {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// Child returns the first direct child with the given local name.
func (n *Node) Child(local string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Local == local {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns every direct child with the given local name.
func (n *Node) ChildrenNamed(local string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Local == local {
			out = append(out, c)
		}
	}
	return out
}

// Find descends path segments one level at a time (e.g. Find("component",
// "structuredBody")), following only the first match at each level.
func (n *Node) Find(path ...string) *Node {
	cur := n
	for _, seg := range path {
		cur = cur.Child(seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// FindAll returns every descendant (at any depth) with the given local
// name, in document order — the CDA equivalent of ".//localName".
func (n *Node) FindAll(local string) []*Node {
	var out []*Node
	if n == nil {
		return out
	}
	var walk func(*Node)
	walk = func(cur *Node) {
		for _, c := range cur.Children {
			if c.Local == local {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}
