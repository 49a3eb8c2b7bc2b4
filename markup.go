package epubreplace

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// NodeType identifies the kind of a markup tree node.
type NodeType int

const (
	ElementNode NodeType = iota
	CommentNode
	ProcInstNode
	DirectiveNode
)

// Attr is an element attribute. Name keeps its namespace prefix verbatim
// (e.g., "xml:lang", "xmlns:epub").
type Attr struct {
	Name  string
	Value string
}

// Node is one node of a parsed document.
//
// For element nodes, Text holds the character data between the start tag
// and the first child. For every node, Tail holds the character data after
// the node and before its next sibling. Comment, processing-instruction and
// directive nodes keep their content in Text; only their Tail is textual
// content of the document.
type Node struct {
	Type     NodeType
	Name     string
	Attr     []Attr
	Text     string
	Tail     string
	Children []*Node
}

// Document is a parsed markup document: the top-level nodes in source order,
// at most one of which is an element. The XML declaration and top-level
// doctype are not part of the tree.
type Document struct {
	Nodes []*Node

	// Degraded is set when the document could only be recovered by the
	// HTML fallback parser.
	Degraded bool

	// Diagnostics lists every repair applied while parsing.
	Diagnostics []string
}

// Root returns the document element, or nil.
func (d *Document) Root() *Node {
	for _, n := range d.Nodes {
		if n.Type == ElementNode {
			return n
		}
	}
	return nil
}

func (d *Document) diagnose(format string, args ...any) {
	d.Diagnostics = append(d.Diagnostics, fmt.Sprintf(format, args...))
}

var errNoRootElement = errors.New("epubreplace: no root element")

// voidElements are the HTML elements that never have content. They are
// closed by the parser when written without "/>" and serialized self-closed.
var voidElements = func() map[string]bool {
	m := make(map[string]bool, len(xml.HTMLAutoClose))
	for _, name := range xml.HTMLAutoClose {
		m[name] = true
	}
	return m
}()

func isVoidElement(name string) bool {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	return voidElements[strings.ToLower(name)]
}

// treeBuilder assembles a Document from a flat token stream, attaching
// character data to the right text or tail payload.
type treeBuilder struct {
	doc   *Document
	stack []*Node
}

func (b *treeBuilder) parent() *Node {
	if len(b.stack) == 0 {
		return nil
	}
	return b.stack[len(b.stack)-1]
}

func (b *treeBuilder) appendNode(n *Node) error {
	p := b.parent()
	if p == nil {
		if n.Type == ElementNode && b.doc.Root() != nil {
			return fmt.Errorf("epubreplace: second root element <%s>", n.Name)
		}
		b.doc.Nodes = append(b.doc.Nodes, n)
		return nil
	}
	p.Children = append(p.Children, n)
	return nil
}

func (b *treeBuilder) appendText(s string) {
	p := b.parent()
	if p == nil {
		if strings.TrimSpace(s) != "" {
			b.doc.diagnose("dropped text outside the root element")
		}
		return
	}
	if len(p.Children) == 0 {
		p.Text += s
		return
	}
	last := p.Children[len(p.Children)-1]
	last.Tail += s
}

func (b *treeBuilder) push(n *Node) {
	b.stack = append(b.stack, n)
}

// closeElement pops the innermost open element named name, closing any
// elements opened after it. It reports false when no such element is open.
func (b *treeBuilder) closeElement(name string) bool {
	for i := len(b.stack) - 1; i >= 0; i-- {
		if b.stack[i].Name != name {
			continue
		}
		for _, open := range b.stack[i+1:] {
			b.doc.diagnose("closed unterminated element <%s> at </%s>", open.Name, name)
		}
		b.stack = b.stack[:i]
		return true
	}
	return false
}

func (b *treeBuilder) finish() {
	for i := len(b.stack) - 1; i >= 0; i-- {
		b.doc.diagnose("closed unterminated element <%s> at end of document", b.stack[i].Name)
	}
	b.stack = nil
}

// parseXML parses XHTML leniently: unknown HTML entities are accepted,
// mismatched end tags are repaired and unclosed elements are closed at the
// end of input. Each repair is recorded in Document.Diagnostics. Syntax
// errors that cannot be repaired are returned.
func parseXML(data []byte) (*Document, error) {
	src, undefined := scanSource(data)
	dec := xml.NewDecoder(bytes.NewReader(src))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel

	doc := &Document{}
	b := &treeBuilder{doc: doc}

	var pending xml.Token
	next := func() (xml.Token, error) {
		if pending != nil {
			t := pending
			pending = nil
			return t, nil
		}
		t, err := dec.RawToken()
		if err != nil {
			return nil, err
		}
		return xml.CopyToken(t), nil
	}

	for {
		tok, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Type: ElementNode, Name: qualifiedName(t.Name)}
			for _, a := range t.Attr {
				n.Attr = append(n.Attr, Attr{Name: qualifiedName(a.Name), Value: a.Value})
			}
			if err := b.appendNode(n); err != nil {
				return nil, err
			}
			if !isVoidElement(n.Name) {
				b.push(n)
				continue
			}
			// A void element must close immediately; "<br/>" arrives as a
			// start token followed by a synthesized end token.
			following, err := next()
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			if end, ok := following.(xml.EndElement); ok && qualifiedName(end.Name) == n.Name {
				continue
			}
			doc.diagnose("closed void element <%s>", n.Name)
			pending = following

		case xml.EndElement:
			name := qualifiedName(t.Name)
			if !b.closeElement(name) {
				doc.diagnose("dropped stray end tag </%s>", name)
			}

		case xml.CharData:
			b.appendText(string(t))

		case xml.Comment:
			if err := b.appendNode(&Node{Type: CommentNode, Text: string(t)}); err != nil {
				return nil, err
			}

		case xml.ProcInst:
			if t.Target == "xml" {
				continue
			}
			if err := b.appendNode(&Node{Type: ProcInstNode, Name: t.Target, Text: string(t.Inst)}); err != nil {
				return nil, err
			}

		case xml.Directive:
			if isDoctype(t) {
				continue
			}
			if err := b.appendNode(&Node{Type: DirectiveNode, Text: string(t)}); err != nil {
				return nil, err
			}
		}
	}

	b.finish()
	if doc.Root() == nil {
		return nil, errNoRootElement
	}
	for _, name := range undefined {
		doc.diagnose("kept undefined entity &%s; as literal text", name)
	}
	return doc, nil
}

// scanSource prepares raw markup for the lenient decoder. Literal tabs and
// line breaks inside quoted attribute values become spaces, as an XML
// processor normalizes them; character references such as "&#10;" are left
// for the decoder. It also returns, once each and in order of appearance,
// the entity references outside comments, CDATA sections, processing
// instructions and declarations that neither XML nor HTML defines. The
// decoder keeps those as literal text.
func scanSource(data []byte) ([]byte, []string) {
	out := make([]byte, 0, len(data))
	var undefined []string
	seen := make(map[string]bool)

	entity := func(i int) {
		name, ok := entityName(data[i:])
		if !ok || isKnownEntity(name) || seen[name] {
			return
		}
		seen[name] = true
		undefined = append(undefined, name)
	}

	for i := 0; i < len(data); {
		c := data[i]
		if c == '&' {
			entity(i)
		}
		if c != '<' {
			out = append(out, c)
			i++
			continue
		}

		if end := skipVerbatim(data[i:]); end > 0 {
			out = append(out, data[i:i+end]...)
			i += end
			continue
		}

		// Start or end tag.
		var quote byte
		for ; i < len(data); i++ {
			c := data[i]
			switch {
			case quote == 0:
				out = append(out, c)
				if c == '"' || c == '\'' {
					quote = c
				}
			case c == quote:
				out = append(out, c)
				quote = 0
			case c == '\r':
				out = append(out, ' ')
				if i+1 < len(data) && data[i+1] == '\n' {
					i++
				}
			case c == '\n' || c == '\t':
				out = append(out, ' ')
			default:
				if c == '&' {
					entity(i)
				}
				out = append(out, c)
			}
			if quote == 0 && c == '>' {
				i++
				break
			}
		}
	}
	return out, undefined
}

// skipVerbatim returns the length of the comment, CDATA section,
// processing instruction or declaration at the start of data, or 0 when
// data starts with an ordinary tag.
func skipVerbatim(data []byte) int {
	var closer string
	switch {
	case bytes.HasPrefix(data, []byte("<!--")):
		closer = "-->"
	case bytes.HasPrefix(data, []byte("<![CDATA[")):
		closer = "]]>"
	case bytes.HasPrefix(data, []byte("<?")):
		closer = "?>"
	case bytes.HasPrefix(data, []byte("<!")):
		// A doctype may carry an internal subset in brackets.
		depth := 0
		for i, c := range data {
			switch c {
			case '[':
				depth++
			case ']':
				depth--
			case '>':
				if depth <= 0 {
					return i + 1
				}
			}
		}
		return len(data)
	default:
		return 0
	}
	if i := bytes.Index(data, []byte(closer)); i >= 0 {
		return i + len(closer)
	}
	return len(data)
}

// entityName returns the name of the "&name;" reference at the start of
// data. Character references and bare ampersands report false.
func entityName(data []byte) (string, bool) {
	const maxName = 32
	for i := 1; i < len(data) && i <= maxName+1; i++ {
		c := data[i]
		if c == ';' {
			return string(data[1:i]), i > 1
		}
		isStart := c == '_' || c == ':' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
		if !isStart && (i == 1 || !(c >= '0' && c <= '9' || c == '-' || c == '.')) {
			return "", false
		}
	}
	return "", false
}

func isKnownEntity(name string) bool {
	switch name {
	case "amp", "lt", "gt", "apos", "quot":
		return true
	}
	_, ok := xml.HTMLEntity[name]
	return ok
}

func qualifiedName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func isDoctype(d xml.Directive) bool {
	return len(d) >= 7 && strings.EqualFold(string(d[:7]), "DOCTYPE")
}
