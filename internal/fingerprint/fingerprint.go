// Package fingerprint implements Talemon's content-stability hash: a pure,
// deterministic function from raw HTML bytes to a (content_hash, clean_hash)
// pair, with no I/O and no state. See spec §4.1.
//
// content_hash is SHA-1 over the raw bytes as received. clean_hash is SHA-1
// over a canonicalized feature stream extracted from the DOM after noise
// (scripts, ads, boilerplate) has been stripped — two captures of the
// "same" page with different ad-network churn hash identically.
package fingerprint

import (
	"crypto/sha1"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// Config is the fingerprinter-version-defining configuration: change any
// field here and stored last_clean_hash values become incomparable with
// freshly computed ones (spec §4.1 treats this as an upgrade event,
// out of scope for the core).
type Config struct {
	// StripTags are tag names whose entire subtree is discarded.
	StripTags []string
	// AdSelectors match against id/class. A selector ending in "-" is a
	// substring match against the raw id/class attribute (spec's "ad-"
	// entry: any id or class containing "ad-"); every other selector is
	// matched as a whitespace-split token against id/class, i.e. ".ad"
	// matches class="ad promo" but not class="gradient".
	AdSelectors []string
	// ExtractAttrs are the attribute keys retained in the feature stream.
	ExtractAttrs []string
}

// DefaultConfig returns the spec §4.1 default noise/ad/attr sets.
func DefaultConfig() Config {
	return Config{
		StripTags:    []string{"script", "style", "iframe", "noscript", "meta", "link", "svg"},
		AdSelectors:  []string{"ad", "ads", "advertisement", "ad-", "sponsored", "promo"},
		ExtractAttrs: []string{"href", "src", "alt", "title"},
	}
}

// Result is the output of Compute.
type Result struct {
	ContentHash string // SHA-1 over raw bytes, 40 lowercase hex chars
	CleanHash   string // SHA-1 over the canonicalized feature stream
	CleanedDOM  []byte // the pruned DOM re-serialized to HTML; stored as dom.html
}

// Compute derives (content_hash, clean_hash, cleaned DOM) from raw HTML.
// Malformed HTML never causes an error — golang.org/x/net/html recovers a
// lenient tree for any byte sequence. The only failure mode is input that
// isn't valid UTF-8, surfaced as ErrNotUTF8 (spec §4.1).
func Compute(raw []byte, cfg Config) (Result, error) {
	if !utf8Valid(raw) {
		return Result{}, ErrNotUTF8
	}

	contentSum := sha1.Sum(raw)

	doc, err := html.Parse(strings.NewReader(string(raw)))
	if err != nil {
		// html.Parse is documented to only fail on reader errors, which a
		// strings.Reader never produces, but surface it rather than panic.
		return Result{}, fmt.Errorf("fingerprint: parse: %w", err)
	}

	strip(doc, cfg)

	var cleanedDOM strings.Builder
	if err := html.Render(&cleanedDOM, doc); err != nil {
		return Result{}, fmt.Errorf("fingerprint: render cleaned DOM: %w", err)
	}

	stream := extractFeatureStream(doc, cfg)
	cleanSum := sha1.Sum([]byte(stream))

	return Result{
		ContentHash: fmt.Sprintf("%x", contentSum),
		CleanHash:   fmt.Sprintf("%x", cleanSum),
		CleanedDOM:  []byte(cleanedDOM.String()),
	}, nil
}

func utf8Valid(b []byte) bool {
	return strings.ToValidUTF8(string(b), "�") == string(b)
}

// strip removes, in place, every subtree rooted at a noise tag or matching
// an ad selector. Operates on the parsed tree before feature extraction and
// before the cleaned-DOM is re-serialized, so both downstream consumers see
// the same pruned tree.
func strip(doc *html.Node, cfg Config) {
	stripTags := toSet(cfg.StripTags)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		child := n.FirstChild
		for child != nil {
			next := child.NextSibling
			if child.Type == html.ElementNode && shouldStrip(child, stripTags, cfg.AdSelectors) {
				n.RemoveChild(child)
			} else {
				walk(child)
			}
			child = next
		}
	}
	walk(doc)
}

func shouldStrip(n *html.Node, stripTags map[string]bool, adSelectors []string) bool {
	if stripTags[n.Data] {
		return true
	}
	id, class := attrValue(n, "id"), attrValue(n, "class")
	classTokens := strings.Fields(class)
	for _, sel := range adSelectors {
		if sel == "" {
			continue
		}
		if strings.HasSuffix(sel, "-") {
			if strings.Contains(id, sel) || strings.Contains(class, sel) {
				return true
			}
			continue
		}
		if id == sel {
			return true
		}
		for _, tok := range classTokens {
			if tok == sel {
				return true
			}
		}
	}
	return false
}

// extractFeatureStream walks the (already pruned) tree in document order,
// emitting one tab-separated record per surviving element: tag name, sorted
// retained-attribute k=v pairs, then collapsed/trimmed text content.
func extractFeatureStream(doc *html.Node, cfg Config) string {
	attrs := toSet(cfg.ExtractAttrs)
	var b strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			writeRecord(&b, n, attrs)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return b.String()
}

func writeRecord(b *strings.Builder, n *html.Node, attrs map[string]bool) {
	var pairs []string
	for _, a := range n.Attr {
		if attrs[a.Key] {
			pairs = append(pairs, a.Key+"="+a.Val)
		}
	}
	sort.Strings(pairs)

	b.WriteString(n.Data)
	b.WriteByte('\t')
	b.WriteString(strings.Join(pairs, ","))
	b.WriteByte('\t')
	b.WriteString(collapseWhitespace(directText(n)))
	b.WriteByte('\n')
}

// directText concatenates the text of direct text-node children only —
// nested elements contribute their own record, avoiding duplicated text
// across ancestor/descendant records.
func directText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func collapseWhitespace(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	return strings.TrimSpace(strings.Join(fields, " "))
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func toSet(vals []string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}
