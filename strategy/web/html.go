package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/rahulsharmaah/content-scrapper/strategy"
)

// HTML extracts title, visible text, meta tags and optionally links.
type HTML struct {
	fetcher
}

var _ strategy.Validator = (*HTML)(nil)

// NewHTML creates the "html" strategy.
func NewHTML(opts ...Option) *HTML {
	return &HTML{fetcher: newFetcher(opts)}
}

// Name returns "html".
func (h *HTML) Name() string { return "html" }

// Execute fetches target and parses the document.
func (h *HTML) Execute(ctx context.Context, target string, params json.RawMessage) (*strategy.Result, error) {
	resp, p, err := h.fetch(ctx, target, params)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(resp.body))
	if err != nil {
		return nil, strategy.NonRecoverable("parse html", err)
	}

	base, _ := url.Parse(resp.finalURL)
	ex := &extraction{meta: map[string]string{}, base: base, links: p.IncludeLinks}
	ex.walk(doc)

	res := &strategy.Result{
		FinalURL:    resp.finalURL,
		StatusCode:  resp.status,
		ContentType: resp.contentType,
		Title:       strings.TrimSpace(ex.title),
		Text:        strings.Join(strings.Fields(ex.text.String()), " "),
		FetchedAt:   time.Now().UTC(),
	}
	if len(ex.meta) > 0 {
		res.Meta = ex.meta
	}
	if p.IncludeLinks {
		res.Links = ex.hrefs
	}
	return res, nil
}

type extraction struct {
	title string
	text  strings.Builder
	meta  map[string]string
	hrefs []string
	seen  map[string]struct{}
	base  *url.URL
	links bool
}

func (e *extraction) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		case "title":
			if e.title == "" && n.FirstChild != nil {
				e.title = n.FirstChild.Data
			}
			return
		case "meta":
			e.addMeta(n)
		case "a":
			if e.links {
				e.addLink(attr(n, "href"))
			}
		}
	}
	if n.Type == html.TextNode {
		e.text.WriteString(n.Data)
		e.text.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.walk(c)
	}
}

func (e *extraction) addMeta(n *html.Node) {
	key := attr(n, "name")
	if key == "" {
		key = attr(n, "property")
	}
	if content := attr(n, "content"); key != "" && content != "" {
		e.meta[strings.ToLower(key)] = content
	}
}

func (e *extraction) addLink(href string) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return
	}
	u, err := url.Parse(href)
	if err != nil {
		return
	}
	if e.base != nil {
		u = e.base.ResolveReference(u)
	}
	u.Fragment = ""
	s := u.String()
	if e.seen == nil {
		e.seen = map[string]struct{}{}
	}
	if _, dup := e.seen[s]; dup {
		return
	}
	e.seen[s] = struct{}{}
	e.hrefs = append(e.hrefs, s)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
