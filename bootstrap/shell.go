// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootstrap

import (
	_ "embed"
	"strings"

	"golang.org/x/net/html"
)

//go:embed assets/bootstrap.js
var script string

// Trailer closes the shell after the ZIP bytes. It is written as the
// archive comment so that the end of central directory record still ends
// the file.
const Trailer = "]]></xmp></html>"

// BootstrapScript returns the embedded browser bootstrap script.
func BootstrapScript() string { return script }

// Shell is the HTML document wrapped around a self-extracting archive.
type Shell struct {
	Title        string
	CanonicalURL string
	NoIndex      bool
	Viewport     string

	// WaitMessage is shown while the archive is being extracted.
	WaitMessage string

	// ErrorMessage is the default text of the error panel.
	ErrorMessage string

	// ReadableText is the fallback page text, kept in a hidden <main>.
	ReadableText string
}

// Prefix renders the shell up to the point where the ZIP bytes start.
func (s Shell) Prefix() []byte {
	var b strings.Builder
	b.WriteString("<!doctype html><html data-sfz><meta charset=utf-8><title>")
	b.WriteString(html.EscapeString(s.Title))
	b.WriteString("</title>")
	if s.CanonicalURL != "" {
		b.WriteString(`<link rel=canonical href="` + html.EscapeString(s.CanonicalURL) + `">`)
	}
	if s.NoIndex {
		b.WriteString("<meta name=robots content=noindex>")
	}
	if s.Viewport != "" {
		b.WriteString(`<meta name=viewport content="` + html.EscapeString(s.Viewport) + `">`)
	}

	wait, failure := s.WaitMessage, s.ErrorMessage
	if wait == "" {
		wait = "Please wait..."
	}
	if failure == "" {
		failure = "Error: the page could not be extracted."
	}
	b.WriteString("<body hidden><div id=sfz-wait-message>" + html.EscapeString(wait) + "</div>")
	b.WriteString("<div id=sfz-error-message hidden>" + html.EscapeString(failure) + "</div>")
	b.WriteString("<script>" + script + "</script>")
	if s.ReadableText != "" {
		b.WriteString("<main hidden>" + html.EscapeString(s.ReadableText) + "</main>")
	}
	b.WriteString("</body><xmp><![CDATA[")
	return []byte(b.String())
}

// RenderError returns a standalone page showing err in the error panel.
func RenderError(err error) string {
	var b strings.Builder
	b.WriteString("<!doctype html><html data-sfz><meta charset=utf-8><title>Error</title><body>")
	b.WriteString("<div id=sfz-error-message>")
	b.WriteString(html.EscapeString(err.Error()))
	b.WriteString("</div></body></html>")
	return b.String()
}
