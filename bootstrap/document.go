// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootstrap

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DisabledNoscriptAttribute holds the original content of a <noscript>
// element that was disabled when the page was captured.
const DisabledNoscriptAttribute = "data-sfz-disabled-noscript"

// Script is a script element of a reconstructed document. Scripts must be
// re-created in order for them to run; external non-async scripts have to
// finish loading before the next one is inserted.
type Script struct {
	Src          string
	Type         string
	Text         string
	Async        bool
	InShadowRoot bool
}

// rewriteDocument restores disabled noscript elements, normalizes shadow
// root templates and lists the scripts of text in document order.
func rewriteDocument(text string) (rendered, title string, scripts []Script, err error) {
	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return "", "", nil, err
	}

	var walk func(n *html.Node, shadow bool)
	walk = func(n *html.Node, shadow bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Noscript:
				restoreNoscript(n)
			case atom.Template:
				if normalizeShadowRoot(n) {
					shadow = true
				}
			case atom.Title:
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = n.FirstChild.Data
				}
			case atom.Script:
				scripts = append(scripts, scriptOf(n, shadow))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, shadow)
		}
	}
	walk(doc, false)

	var b strings.Builder
	if err := html.Render(&b, doc); err != nil {
		return "", "", nil, err
	}
	return b.String(), title, scripts, nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func removeAttr(n *html.Node, key string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			attrs = append(attrs, a)
		}
	}
	n.Attr = attrs
}

func restoreNoscript(n *html.Node) {
	content, ok := attr(n, DisabledNoscriptAttribute)
	if !ok {
		return
	}
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: content})
	removeAttr(n, DisabledNoscriptAttribute)
}

// normalizeShadowRoot rewrites the legacy shadowroot attribute of
// declarative shadow roots to shadowrootmode. It reports whether n is a
// shadow root.
func normalizeShadowRoot(n *html.Node) bool {
	if _, ok := attr(n, "shadowrootmode"); ok {
		return true
	}
	mode, ok := attr(n, "shadowroot")
	if !ok {
		return false
	}
	removeAttr(n, "shadowroot")
	n.Attr = append(n.Attr, html.Attribute{Key: "shadowrootmode", Val: mode})
	return true
}

func scriptOf(n *html.Node, shadow bool) Script {
	s := Script{InShadowRoot: shadow}
	s.Src, _ = attr(n, "src")
	s.Type, _ = attr(n, "type")
	_, s.Async = attr(n, "async")
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			s.Text += c.Data
		}
	}
	return s
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Blockquote: true, atom.Pre: true, atom.Ul: true, atom.Ol: true, atom.Table: true,
}

// ReadableText extracts the visible text of an HTML document, one line per
// block element.
func ReadableText(text string) (string, error) {
	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(strings.Map(func(r rune) rune {
				if unicode.IsSpace(r) {
					return ' '
				}
				return r
			}, n.Data))
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Head, atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
			if _, hidden := attr(n, "hidden"); hidden {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if fields := strings.Fields(line); len(fields) > 0 {
			lines = append(lines, strings.Join(fields, " "))
		}
	}
	return strings.Join(lines, "\n"), nil
}
