package telegraph

import (
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"feedrelay/internal/model"
)

// Node is a Telegraph content node: either a string or an *Element.
type Node any

// Element is a Telegraph DOM element.
type Element struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []Node            `json:"children,omitempty"`
}

var allowedTags = map[string]bool{
	"a": true, "aside": true, "b": true, "blockquote": true, "br": true, "code": true,
	"em": true, "figcaption": true, "figure": true, "h3": true, "h4": true, "hr": true,
	"i": true, "iframe": true, "img": true, "li": true, "ol": true, "p": true, "pre": true,
	"s": true, "strong": true, "u": true, "ul": true, "video": true,
}

var renamedTags = map[string]string{
	"h1": "h3", "h2": "h3", "h5": "h4", "h6": "h4",
}

var droppedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "head": true, "title": true,
}

// PageContent renders item as Telegraph nodes: a publication date line,
// the description body and a link back to the source.
func PageContent(item model.FeedItem) ([]Node, error) {
	nodes := []Node{
		&Element{Tag: "p", Children: []Node{"Published: " + item.Published.UTC().Format(time.RFC1123)}},
	}

	body, err := HTMLToNodes(item.Description)
	if err != nil {
		return nil, err
	}
	nodes = append(nodes, body...)

	if item.Link != "" {
		nodes = append(nodes, &Element{Tag: "p", Children: []Node{
			&Element{Tag: "a", Attrs: map[string]string{"href": item.Link}, Children: []Node{"Source"}},
		}})
	}
	return nodes, nil
}

// HTMLToNodes converts an HTML fragment into Telegraph nodes. Tags Telegraph
// does not accept are unwrapped, keeping their children.
func HTMLToNodes(fragment string) ([]Node, error) {
	if strings.TrimSpace(fragment) == "" {
		return nil, nil
	}
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	parsed, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return nil, err
	}

	var out []Node
	for _, n := range parsed {
		out = append(out, convert(n)...)
	}
	return out, nil
}

func convert(n *html.Node) []Node {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" {
			return nil
		}
		return []Node{n.Data}
	case html.ElementNode:
	default:
		return nil
	}

	tag := n.Data
	if droppedTags[tag] {
		return nil
	}
	if r, ok := renamedTags[tag]; ok {
		tag = r
	}

	var children []Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		children = append(children, convert(c)...)
	}

	if !allowedTags[tag] {
		return children
	}

	el := &Element{Tag: tag, Children: children}
	for _, a := range n.Attr {
		if a.Key == "href" || a.Key == "src" {
			if el.Attrs == nil {
				el.Attrs = make(map[string]string)
			}
			el.Attrs[a.Key] = a.Val
		}
	}
	return []Node{el}
}
