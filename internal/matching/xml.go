package matching

import (
	"strings"

	"github.com/beevik/etree"
)

func parseXML(s string) (*etree.Document, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, false
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(s); err != nil {
		return nil, false
	}
	if doc.Root() == nil {
		return nil, false
	}
	return doc, true
}

func matchXPath(expr, actual string) bool {
	path, err := etree.CompilePath(expr)
	if err != nil {
		return false
	}
	doc, ok := parseXML(actual)
	if !ok {
		return false
	}
	return doc.FindElementPath(path) != nil
}

func matchXML(expected, actual string) bool {
	a, ok := canonicalXML(expected)
	if !ok {
		return false
	}
	b, ok := canonicalXML(actual)
	if !ok {
		return false
	}
	return a == b
}

// canonicalXML renders a document without indentation, with attributes sorted
// and the XML declaration dropped.
func canonicalXML(s string) (string, bool) {
	doc, ok := parseXML(s)
	if !ok {
		return "", false
	}
	var decls []etree.Token
	for _, tok := range doc.Child {
		if _, isPI := tok.(*etree.ProcInst); isPI {
			decls = append(decls, tok)
		}
	}
	for _, tok := range decls {
		doc.RemoveChild(tok)
	}
	sortAttrs(doc.Root())
	doc.Indent(etree.NoIndent)
	out, err := doc.WriteToString()
	if err != nil {
		return "", false
	}
	return out, true
}

func sortAttrs(e *etree.Element) {
	e.SortAttrs()
	for _, child := range e.ChildElements() {
		sortAttrs(child)
	}
}
