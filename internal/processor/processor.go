// Package processor turns fetched HTML into clean text and a markdown
// rendition suitable for downstream ingestion.
package processor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"sitecrawler/internal/config"
)

// Content is the processed form of one HTML page.
type Content struct {
	Title    string
	Text     string
	Markdown string
}

// HTMLProcessor strips noise from fetched pages and derives content.
type HTMLProcessor struct {
	opts config.PreprocessConfig
}

// New constructs a processor from configuration.
func New(cfg config.PreprocessConfig) *HTMLProcessor {
	return &HTMLProcessor{opts: cfg}
}

// Process sanitises the page body and extracts title, text, and markdown.
func (p *HTMLProcessor) Process(body []byte) (*Content, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("page body empty")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	if p.opts.RemoveScripts {
		doc.Find("script,noscript,iframe").Remove()
	}
	if p.opts.RemoveStyles {
		doc.Find("style,link[rel='stylesheet']").Remove()
	}
	if p.opts.RemoveAds {
		selectors := p.opts.AdSelectors
		if len(selectors) == 0 {
			selectors = []string{"[class*='ad']", "[id*='ad']", "[class*='sponsor']"}
		}
		for _, sel := range selectors {
			doc.Find(sel).Remove()
		}
	}

	cleaned, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("serialise html: %w", err)
	}

	markdown, err := renderMarkdown(cleaned)
	if err != nil {
		return nil, err
	}

	text := normalizeText(doc.Find("body").Text())
	if text == "" {
		text = normalizeText(doc.Text())
	}

	return &Content{
		Title:    title,
		Text:     text,
		Markdown: markdown,
	}, nil
}

// renderMarkdown walks the HTML tree and emits a markdown approximation of
// the visible content: headings, paragraphs, lists, links, emphasis, code.
func renderMarkdown(cleanHTML string) (string, error) {
	root, err := html.Parse(strings.NewReader(cleanHTML))
	if err != nil {
		return "", fmt.Errorf("parse processed html: %w", err)
	}
	body := firstElement(root, "body")
	if body == nil {
		body = root
	}

	w := &mdWriter{}
	for child := body.FirstChild; child != nil; child = child.NextSibling {
		w.walk(child)
	}
	return strings.TrimSpace(w.b.String()), nil
}

// mdWriter accumulates markdown while tracking trailing newlines so blocks
// stay separated by exactly one blank line.
type mdWriter struct {
	b         strings.Builder
	newlines  int
	lastByte  byte
	listDepth []bool // stack of list frames; true means ordered
	listIndex []int
	inPre     bool
}

func (w *mdWriter) raw(s string) {
	if s == "" {
		return
	}
	w.b.WriteString(s)
	for _, r := range s {
		if r == '\n' {
			w.newlines++
		} else {
			w.newlines = 0
		}
	}
	w.lastByte = s[len(s)-1]
}

func (w *mdWriter) word(s string) {
	if s == "" {
		return
	}
	if w.b.Len() > 0 && w.newlines == 0 {
		switch w.lastByte {
		case ' ', '(', '[', '*', '_', '`', '#':
		default:
			w.raw(" ")
		}
	}
	w.raw(s)
}

func (w *mdWriter) lineBreak() {
	if w.b.Len() == 0 || w.newlines >= 1 {
		return
	}
	w.raw("\n")
}

func (w *mdWriter) blankLine() {
	if w.b.Len() == 0 {
		return
	}
	for w.newlines < 2 {
		w.raw("\n")
	}
}

func (w *mdWriter) walk(n *html.Node) {
	if n == nil {
		return
	}
	switch n.Type {
	case html.TextNode:
		text := collapseSpace(n.Data)
		if text == "" {
			return
		}
		if w.inPre {
			w.raw(n.Data)
			return
		}
		w.word(text)
	case html.ElementNode:
		w.element(n)
	}
}

func (w *mdWriter) element(n *html.Node) {
	tag := strings.ToLower(n.Data)
	switch tag {
	case "br":
		w.raw("  \n")
	case "p", "div", "section", "article", "header", "footer", "main", "blockquote":
		w.blankLine()
		w.children(n)
		w.blankLine()
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(tag[1] - '0')
		w.blankLine()
		w.raw(strings.Repeat("#", level) + " ")
		w.children(n)
		w.blankLine()
	case "strong", "b":
		w.word("**")
		w.children(n)
		w.raw("**")
	case "em", "i":
		w.word("_")
		w.children(n)
		w.raw("_")
	case "code":
		if w.inPre {
			w.children(n)
			return
		}
		if text := collapseSpace(textContent(n)); text != "" {
			w.word("`" + text + "`")
		}
	case "pre":
		w.blankLine()
		w.raw("```\n")
		w.inPre = true
		w.children(n)
		w.inPre = false
		w.lineBreak()
		w.raw("```\n")
	case "a":
		href := attrValue(n, "href")
		text := collapseSpace(textContent(n))
		if text == "" {
			text = href
		}
		if text == "" {
			return
		}
		if href == "" {
			w.word(text)
		} else {
			w.word("[" + text + "](" + href + ")")
		}
	case "ul", "ol":
		w.listDepth = append(w.listDepth, tag == "ol")
		w.listIndex = append(w.listIndex, 0)
		w.blankLine()
		w.children(n)
		w.listDepth = w.listDepth[:len(w.listDepth)-1]
		w.listIndex = w.listIndex[:len(w.listIndex)-1]
		w.blankLine()
	case "li":
		depth := len(w.listDepth)
		if depth == 0 {
			w.listDepth = append(w.listDepth, false)
			w.listIndex = append(w.listIndex, 0)
			depth = 1
			defer func() {
				w.listDepth = w.listDepth[:0]
				w.listIndex = w.listIndex[:0]
			}()
		}
		w.lineBreak()
		marker := "- "
		if w.listDepth[depth-1] {
			w.listIndex[depth-1]++
			marker = fmt.Sprintf("%d. ", w.listIndex[depth-1])
		}
		w.raw(strings.Repeat("  ", depth-1) + marker)
		w.children(n)
		w.lineBreak()
	case "script", "style", "noscript", "head", "template":
		// skip entirely
	default:
		w.children(n)
	}
}

func (w *mdWriter) children(n *html.Node) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		w.walk(child)
	}
}

func firstElement(n *html.Node, tag string) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := firstElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			b.WriteString(node.Data)
			b.WriteString(" ")
		case html.ElementNode:
			for child := node.FirstChild; child != nil; child = child.NextSibling {
				walk(child)
			}
		}
	}
	walk(n)
	return b.String()
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeText collapses runs of whitespace in extracted text while keeping
// line structure readable.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = collapseSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
