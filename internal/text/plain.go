package text

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText converts an HTML description to plain text. Conversion stops at
// the first h1-h6 heading; long reports whether one was found. Paragraph-like
// blocks are separated by a blank line, list items become "- item" lines and
// newlines inside a block collapse to single spaces.
func PlainText(htmlStr string) (text string, long bool) {
	if strings.TrimSpace(htmlStr) == "" {
		return "", false
	}

	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return collapse(htmlStr), false
	}

	c := &plainConverter{}
	c.walk(findBody(doc))
	c.flush()
	return strings.Join(c.blocks, "\n\n"), c.long
}

func findBody(doc *html.Node) *html.Node {
	var body *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "body" {
			body = n
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			find(child)
		}
	}
	find(doc)
	if body == nil {
		return doc
	}
	return body
}

type plainConverter struct {
	blocks []string
	cur    strings.Builder
	long   bool
}

// walk returns true once a heading has been reached.
func (c *plainConverter) walk(n *html.Node) bool {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if c.node(child) {
			return true
		}
	}
	return false
}

func (c *plainConverter) node(n *html.Node) bool {
	switch n.Type {
	case html.TextNode:
		c.cur.WriteString(n.Data)
		return false
	case html.ElementNode:
	default:
		return false
	}

	switch strings.ToLower(n.Data) {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		c.long = true
		return true
	case "script", "style":
		return false
	case "br":
		c.cur.WriteString(" ")
		return false
	case "ul", "ol":
		c.flush()
		return c.list(n)
	case "li":
		c.flush()
		content, stop := textContent(n)
		if item := collapse(content); item != "" {
			c.blocks = append(c.blocks, "- "+item)
		}
		c.long = c.long || stop
		return stop
	case "p", "div", "blockquote", "pre", "section", "article", "header", "footer", "figure", "table", "hr":
		c.flush()
		stop := c.walk(n)
		c.flush()
		return stop
	default:
		// inline elements (a, em, strong, code, span, ...) keep only their text
		return c.walk(n)
	}
}

// list renders the items of n, stopping at a heading inside an item.
func (c *plainConverter) list(n *html.Node) bool {
	var items []string
	stop := false
	for child := n.FirstChild; child != nil && !stop; child = child.NextSibling {
		if child.Type != html.ElementNode || strings.ToLower(child.Data) != "li" {
			continue
		}
		var content string
		content, stop = textContent(child)
		if item := collapse(content); item != "" {
			items = append(items, "- "+item)
		}
	}
	if len(items) > 0 {
		c.blocks = append(c.blocks, strings.Join(items, "\n"))
	}
	c.long = c.long || stop
	return stop
}

func (c *plainConverter) flush() {
	if t := collapse(c.cur.String()); t != "" {
		c.blocks = append(c.blocks, t)
	}
	c.cur.Reset()
}

// textContent flattens n to its text. It stops at the first heading and
// reports whether one was found.
func textContent(n *html.Node) (string, bool) {
	var b strings.Builder
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteString(" ")
		case html.ElementNode:
			switch strings.ToLower(n.Data) {
			case "h1", "h2", "h3", "h4", "h5", "h6":
				return true
			case "script", "style":
				return false
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if walk(child) {
				return true
			}
		}
		return false
	}
	stop := walk(n)
	return b.String(), stop
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
