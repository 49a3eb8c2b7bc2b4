package epubreplace

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// xhtmlNamespace is the default namespace of ePub content documents.
const xhtmlNamespace = "http://www.w3.org/1999/xhtml"

// entityNameToNumeric maps lowercase HTML entity names to their XML numeric
// character references. encoding/xml does not recognise HTML named entities
// in strict mode, so they are converted before parsing OPF files.
var entityNameToNumeric = map[string][]byte{
	"nbsp": []byte("&#160;"), "mdash": []byte("&#8212;"), "ndash": []byte("&#8211;"),
	"hellip": []byte("&#8230;"),
	"lsquo": []byte("&#8216;"), "rsquo": []byte("&#8217;"),
	"ldquo": []byte("&#8220;"), "rdquo": []byte("&#8221;"),
	"copy": []byte("&#169;"), "reg": []byte("&#174;"), "trade": []byte("&#8482;"),
	"eacute": []byte("&#233;"), "egrave": []byte("&#232;"),
	"auml": []byte("&#228;"), "ouml": []byte("&#246;"), "uuml": []byte("&#252;"),
	"laquo": []byte("&#171;"), "raquo": []byte("&#187;"),
}

// htmlEntityPattern matches the entities above case-insensitively.
var htmlEntityPattern = regexp.MustCompile(
	`(?i)&(nbsp|mdash|ndash|hellip|lsquo|rsquo|ldquo|rdquo|copy|reg|trade|` +
		`eacute|egrave|auml|ouml|uuml|laquo|raquo);`)

// preprocessHTMLEntities replaces common HTML named entities with their
// numeric character references so that encoding/xml can parse the data.
func preprocessHTMLEntities(data []byte) []byte {
	return htmlEntityPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := strings.ToLower(string(match[1 : len(match)-1]))
		if replacement, ok := entityNameToNumeric[name]; ok {
			return replacement
		}
		return match
	})
}

// parseHTML recovers a document with the HTML5 parsing algorithm, which
// accepts any input, and converts the result into the same tree the XML
// parser produces. The returned document is always marked Degraded.
func parseHTML(data []byte) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("epubreplace: parse html: %w", err)
	}

	doc := &Document{Degraded: true}
	b := &treeBuilder{doc: doc}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := convertHTMLNode(b, c); err != nil {
			return nil, err
		}
	}

	if r := doc.Root(); r != nil && r.Name == "html" && !hasAttr(r, "xmlns") {
		r.Attr = append([]Attr{{Name: "xmlns", Value: xhtmlNamespace}}, r.Attr...)
	}
	return doc, nil
}

// convertHTMLNode appends n and its subtree to the builder.
func convertHTMLNode(b *treeBuilder, n *html.Node) error {
	switch n.Type {
	case html.TextNode:
		b.appendText(n.Data)
		return nil

	case html.CommentNode:
		return b.appendNode(&Node{Type: CommentNode, Text: n.Data})

	case html.ElementNode:
		el := &Node{Type: ElementNode, Name: n.Data}
		for _, a := range n.Attr {
			name := a.Key
			if a.Namespace != "" && !strings.Contains(name, ":") {
				name = a.Namespace + ":" + name
			}
			el.Attr = append(el.Attr, Attr{Name: name, Value: a.Val})
		}
		if err := b.appendNode(el); err != nil {
			return err
		}
		b.push(el)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := convertHTMLNode(b, c); err != nil {
				return err
			}
		}
		b.closeElement(el.Name)
		return nil
	}

	// Doctype and raw nodes carry no document text.
	return nil
}

func hasAttr(n *Node, name string) bool {
	for _, a := range n.Attr {
		if a.Name == name {
			return true
		}
	}
	return false
}
