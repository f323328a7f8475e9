// Package format cleans model-produced email HTML and renders text previews of it.
package format

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

var fence = regexp.MustCompile("(?s)^\\s*```[A-Za-z]*[ \\t]*\\n(.*?)\\n?[ \\t]*```\\s*$")

// dropped elements never reach a recipient's mail client.
var dropped = map[string]bool{
	"script": true,
	"iframe": true,
	"object": true,
	"embed":  true,
}

// Cleaner normalizes HTML email bodies.
type Cleaner struct{}

// Normalize turns model output into a complete HTML document safe to send.
// A surrounding markdown code fence is removed; active content and event handler attributes are stripped.
func (Cleaner) Normalize(body string) (string, error) {
	doc, err := html.Parse(strings.NewReader(StripFence(body)))
	if err != nil {
		return "", fmt.Errorf("html.Parse failed: %w", err)
	}

	sanitize(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("html.Render failed: %w", err)
	}

	return buf.String(), nil
}

// StripFence returns the content of a markdown code fence wrapping s, or s unchanged.
func StripFence(s string) string {
	if m := fence.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

func sanitize(n *html.Node) {
	var remove []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && dropped[c.Data] {
			remove = append(remove, c)
			continue
		}
		sanitize(c)
	}
	for _, c := range remove {
		n.RemoveChild(c)
	}

	if n.Type != html.ElementNode {
		return
	}

	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") {
			continue
		}
		if (key == "href" || key == "src") && strings.HasPrefix(strings.ToLower(strings.TrimSpace(a.Val)), "javascript:") {
			continue
		}
		attrs = append(attrs, a)
	}
	n.Attr = attrs
}

var blocks = map[string]bool{
	"p": true, "div": true, "br": true, "tr": true, "li": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "blockquote": true, "hr": true,
}

var skipped = map[string]bool{"head": true, "script": true, "style": true, "title": true}

// Preview renders the visible text of an HTML body one block per line.
// A positive width truncates the result to width runes followed by "...".
func Preview(body string, width int) string {
	doc, err := html.Parse(strings.NewReader(StripFence(body)))
	if err != nil {
		return body
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipped[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(collapseSpace(n.Data))
			return
		}
		block := n.Type == html.ElementNode && blocks[n.Data]
		if block {
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			sb.WriteByte('\n')
		}
	}
	walk(doc)

	var lines []string
	for _, line := range strings.Split(sb.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	text := strings.Join(lines, "\n")

	if r := []rune(text); width > 0 && len(r) > width {
		return strings.TrimRight(string(r[:width]), " \n") + "..."
	}
	return text
}

// collapseSpace turns every whitespace run of a text node into one space, so
// source line breaks never split a block.
func collapseSpace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s == "" {
			return ""
		}
		return " "
	}

	out := strings.Join(fields, " ")
	if unicode.IsSpace(rune(s[0])) {
		out = " " + out
	}
	if unicode.IsSpace(rune(s[len(s)-1])) {
		out += " "
	}
	return out
}
