package epubreplace

import (
	"bufio"
	"io"
	"strings"
)

var (
	textEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\r", "&#13;",
	)
	attrEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"\t", "&#9;",
		"\n", "&#10;",
		"\r", "&#13;",
	)
)

// Render serializes the document as XML. Top-level nodes are separated by
// newlines; no declaration or doctype is written.
func (d *Document) Render(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i, n := range d.Nodes {
		if i > 0 {
			bw.WriteByte('\n')
		}
		renderNode(bw, n, false)
	}
	return bw.Flush()
}

// renderNode writes n and its subtree. Write errors are sticky in
// bufio.Writer and surface from Flush.
func renderNode(w *bufio.Writer, n *Node, withTail bool) {
	switch n.Type {
	case ElementNode:
		w.WriteByte('<')
		w.WriteString(n.Name)
		for _, a := range n.Attr {
			w.WriteByte(' ')
			w.WriteString(a.Name)
			w.WriteString(`="`)
			attrEscaper.WriteString(w, a.Value)
			w.WriteByte('"')
		}
		if n.Text == "" && len(n.Children) == 0 && isVoidElement(n.Name) {
			w.WriteString("/>")
			break
		}
		w.WriteByte('>')
		textEscaper.WriteString(w, n.Text)
		for _, c := range n.Children {
			renderNode(w, c, true)
		}
		w.WriteString("</")
		w.WriteString(n.Name)
		w.WriteByte('>')

	case CommentNode:
		w.WriteString("<!--")
		w.WriteString(n.Text)
		w.WriteString("-->")

	case ProcInstNode:
		w.WriteString("<?")
		w.WriteString(n.Name)
		if n.Text != "" {
			w.WriteByte(' ')
			w.WriteString(n.Text)
		}
		w.WriteString("?>")

	case DirectiveNode:
		w.WriteString("<!")
		w.WriteString(n.Text)
		w.WriteByte('>')
	}

	if withTail {
		textEscaper.WriteString(w, n.Tail)
	}
}
