// Package parser recovers a structural hierarchy from free-form document
// text.
//
// The parser classifies markdown-like input into headings, paragraphs,
// lists, tables, and code blocks, and nests them into an ordered tree using
// a heading stack: a heading of level L owns everything up to the next
// heading of level <= L. Inputs that start at H4, skip levels, or have no
// headings at all still parse; content then attaches to a synthetic root.
//
// # Basic Usage
//
//	p := parser.New()
//	tree := p.Parse(rawText)
//	tree.Walk(func(n *types.DocumentNode) bool {
//	    fmt.Println(n.Kind, n.Text)
//	    return true
//	})
//
// Parsing never fails on malformed content: unterminated code fences are
// closed at end of input, and tables with inconsistent column counts are
// still emitted as table nodes. HTML input is supported through ParseHTML,
// which maps h1-h6/ul/ol/table/pre onto the same node kinds.
package parser
