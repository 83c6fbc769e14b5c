// Package markdown converts newsletter HTML bodies into plain Markdown that
// can be handed to a language model.
package markdown

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	conv = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(
				commonmark.WithEmDelimiter("_"),
				commonmark.WithHorizontalRule("---"),
			),
		),
	)

	blankRun = regexp.MustCompile(`\n{3,}`)

	// invisible characters newsletters use to pad preview text
	invisible = strings.NewReplacer(
		"\u200b", "",
		"\u200c", "",
		"\u200d", "",
		"\u034f", "",
		"\u00ad", "",
		"\ufeff", "",
		"\u00a0", " ",
	)
)

// FromHTML converts an HTML document to Markdown. Lines are never wrapped.
// Hidden preheaders and tracking pixels are dropped before conversion.
func FromHTML(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	clean(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("failed to render html: %w", err)
	}

	md, err := conv.ConvertString(buf.String())
	if err != nil {
		return "", fmt.Errorf("failed to convert html: %w", err)
	}
	return tidy(md), nil
}

// clean removes nodes that never carry readable content and strips
// invisible padding from text.
func clean(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.CommentNode, drop(c):
			n.RemoveChild(c)
		case c.Type == html.TextNode:
			c.Data = invisible.Replace(c.Data)
		default:
			clean(c)
		}
		c = next
	}
}

func drop(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Head, atom.Script, atom.Style, atom.Noscript, atom.Iframe, atom.Svg, atom.Title:
		return true
	case atom.Img:
		return attr(n, "width") == "1" || attr(n, "height") == "1"
	}
	style := strings.ReplaceAll(strings.ToLower(attr(n, "style")), " ", "")
	return strings.Contains(style, "display:none")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// tidy drops trailing spaces (hard line breaks become plain newlines) and
// collapses runs of blank lines.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
