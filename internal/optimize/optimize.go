// Package optimize implements the post-render HTML transform: a pure
// function that strips non-SEO nodes and attributes from a rendered page
// while preserving structured data, meta tags, and the minimal icon set.
package optimize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/renderx/prerender-gateway/internal/config"
)

var (
	droppedLinkRels = map[string]struct{}{
		"preload":       {},
		"prefetch":      {},
		"dns-prefetch":  {},
		"modulepreload": {},
		"preconnect":    {},
		"stylesheet":    {},
		"mask-icon":     {},
	}

	displayNonePattern = regexp.MustCompile(`display\s*:\s*none|visibility\s*:\s*hidden`)

	voidOrMetaTags = map[string]struct{}{
		"script": {}, "style": {}, "meta": {}, "link": {}, "img": {}, "br": {},
		"hr": {}, "input": {}, "source": {}, "track": {}, "area": {}, "col": {},
		"embed": {}, "param": {}, "wbr": {},
	}

	multiSpace = regexp.MustCompile(` {2,}`)
)

// Optimize applies the deterministic DOM transform described by opts and
// returns the resulting HTML. On any internal failure it returns rawHTML
// unchanged rather than propagating the error — a malformed or unexpected
// document must never turn a render into a 5xx.
func Optimize(rawHTML string, opts config.ResolvedOptimizerOptions) (result string) {
	result = rawHTML
	defer func() {
		if r := recover(); r != nil {
			result = rawHTML
		}
	}()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}

	removeScriptsExceptLDJSON(doc)
	removeDisallowedLinkRels(doc)
	if opts.RemoveInlineStyles {
		doc.Find("style").Remove()
	}
	keepFirstLinkRel(doc, "manifest")
	keepIconLinks(doc)
	keepAppleTouchIcons(doc)
	doc.Find(`meta[name]`).Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		if strings.HasPrefix(name, "msapplication-") || name == "next-head-count" {
			s.Remove()
		}
	})
	doc.Find("[data-testid]").RemoveAttr("data-testid")
	removeComments(doc)
	doc.Find("noscript").Remove()
	removeHiddenElements(doc)
	stripAttributePrefixes(doc, opts)
	removeEmptyBodyElements(doc)
	collapseTextWhitespace(doc)

	out, err := doc.Html()
	if err != nil {
		return rawHTML
	}
	return collapseDocumentWhitespace(out)
}

func removeScriptsExceptLDJSON(doc *goquery.Document) {
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if t, _ := s.Attr("type"); t == "application/ld+json" {
			return
		}
		s.Remove()
	})
}

func removeDisallowedLinkRels(doc *goquery.Document) {
	doc.Find("link[rel]").Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		for _, token := range strings.Fields(rel) {
			if _, drop := droppedLinkRels[strings.ToLower(token)]; drop {
				s.Remove()
				return
			}
		}
	})
}

func keepFirstLinkRel(doc *goquery.Document, rel string) {
	sel := doc.Find("link[rel=\"" + rel + "\"]")
	sel.Each(func(i int, s *goquery.Selection) {
		if i > 0 {
			s.Remove()
		}
	})
}

func keepIconLinks(doc *goquery.Document) {
	doc.Find(`link[rel="icon"]`).Each(func(i int, s *goquery.Selection) {
		if i > 0 {
			s.Remove()
		}
	})
}

func keepAppleTouchIcons(doc *goquery.Document) {
	sel := doc.Find(`link[rel="apple-touch-icon"]`)
	if sel.Length() == 0 {
		return
	}
	var winner *goquery.Selection
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if sizes, _ := s.Attr("sizes"); strings.Contains(sizes, "180x180") {
			winner = s
			return false
		}
		return true
	})
	if winner == nil {
		sel.Each(func(i int, s *goquery.Selection) {
			if i > 0 {
				s.Remove()
			}
		})
		return
	}
	sel.Each(func(_ int, s *goquery.Selection) {
		if s.Nodes[0] != winner.Nodes[0] {
			s.Remove()
		}
	})
}

func removeComments(doc *goquery.Document) {
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		child := n.FirstChild
		for child != nil {
			next := child.NextSibling
			if child.Type == html.CommentNode {
				n.RemoveChild(child)
			} else {
				walk(child)
			}
			child = next
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
}

func removeHiddenElements(doc *goquery.Document) {
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if _, hidden := s.Attr("hidden"); hidden {
			s.Remove()
			return
		}
		if style, ok := s.Attr("style"); ok && displayNonePattern.MatchString(style) {
			s.Remove()
		}
	})
}

func stripAttributePrefixes(doc *goquery.Document, opts config.ResolvedOptimizerOptions) {
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		isMeta := node.Data == "meta"
		var keep []html.Attribute
		for _, attr := range node.Attr {
			key := strings.ToLower(attr.Key)
			switch {
			case opts.RemoveDataAttributes && !isMeta && strings.HasPrefix(key, "data-"):
				continue
			case opts.RemoveAriaAttributes && strings.HasPrefix(key, "aria-"):
				continue
			case strings.HasPrefix(key, "on"):
				continue
			case opts.RemoveStyleAttributes && key == "style":
				continue
			default:
				keep = append(keep, attr)
			}
		}
		node.Attr = keep
	})
}

func removeEmptyBodyElements(doc *goquery.Document) {
	body := doc.Find("body")
	if body.Length() == 0 {
		return
	}
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		child := n.FirstChild
		for child != nil {
			next := child.NextSibling
			if child.Type == html.ElementNode {
				walk(child)
			}
			child = next
		}
		if n.Type != html.ElementNode || n == body.Nodes[0] {
			return false
		}
		if _, void := voidOrMetaTags[n.Data]; void {
			return false
		}
		if n.FirstChild != nil {
			return false
		}
		if len(n.Attr) > 0 {
			return false
		}
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		return true
	}
	walk(body.Nodes[0])
}

func collapseTextWhitespace(doc *goquery.Document) {
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		child := n.FirstChild
		for child != nil {
			next := child.NextSibling
			if child.Type == html.TextNode {
				trimmed := strings.TrimSpace(child.Data)
				if trimmed == "" {
					n.RemoveChild(child)
				} else {
					child.Data = collapseRuns(trimmed)
				}
			} else {
				walk(child)
			}
			child = next
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
}

func collapseRuns(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace {
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func collapseDocumentWhitespace(htmlStr string) string {
	htmlStr = strings.ReplaceAll(htmlStr, "> <", "><")
	lines := strings.Split(htmlStr, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	joined := strings.Join(lines, "\n")
	return multiSpace.ReplaceAllString(joined, " ")
}
