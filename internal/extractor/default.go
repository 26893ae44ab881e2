package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// DefaultDocument is the shape DefaultFunc produces: a minimal structural
// summary extracted from the cleaned DOM artifact. Real deployments are
// expected to supply their own Func tailored to the pages being watched;
// this one exists so the extractor has a working default and something
// concrete to test against.
type DefaultDocument struct {
	Title      string `json:"title"`
	MetaDesc   string `json:"meta_description,omitempty"`
	WordCount  int    `json:"word_count"`
	LinkCount  int    `json:"link_count"`
	ImageCount int    `json:"image_count"`
}

// DefaultFunc extracts title, meta description, and basic content/link
// counts from the cleaned DOM artifact (spec §4.4: extraction reads OS
// artifacts, never re-fetches the page). The fingerprinter's default
// configuration strips meta elements from the cleaned DOM, so for such
// snapshots meta_description is empty.
func DefaultFunc(ctx context.Context, a Artifacts) (json.RawMessage, error) {
	doc, err := html.Parse(bytes.NewReader(a.CleanedDOM))
	if err != nil {
		return nil, fmt.Errorf("extractor: parse cleaned dom: %w", err)
	}

	out := DefaultDocument{}
	walk(doc, &out)

	return json.Marshal(out)
}

func walk(n *html.Node, out *DefaultDocument) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			if out.Title == "" {
				out.Title = collectText(n)
			}
		case "meta":
			if attrValue(n, "name") == "description" {
				out.MetaDesc = attrValue(n, "content")
			}
		case "a":
			out.LinkCount++
		case "img":
			out.ImageCount++
		}
	}
	if n.Type == html.TextNode {
		out.WordCount += len(strings.Fields(n.Data))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, out)
	}
}

func collectText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(sb.String())
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
