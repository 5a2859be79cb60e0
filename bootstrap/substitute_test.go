// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootstrap_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemon4ksan/sfz/bootstrap"
)

func resolved(names ...string) []*bootstrap.Resource {
	var out []*bootstrap.Resource
	for _, name := range names {
		out = append(out, &bootstrap.Resource{Name: name, URL: "url(" + strings.ReplaceAll(name, ".", "_") + ")"})
	}
	bootstrap.SortByNameLength(out)
	return out
}

func TestSubstituteText_LongestFirst(t *testing.T) {
	resources := resolved("a.css", "aa.css", "images/1.png", "images/11.png")

	got := bootstrap.SubstituteText(`<link href=aa.css><link href=a.css><img src=images/11.png><img src=images/1.png>`, "index.html", resources)
	assert.Equal(t, `<link href=url(aa_css)><link href=url(a_css)><img src=url(images/11_png)><img src=url(images/1_png)>`, got)
}

func TestSubstituteText_Idempotent(t *testing.T) {
	resources := resolved("stylesheet_0.css", "images/0.png", "frames/0/index.html", "scripts/0.js")
	text := `<link href=stylesheet_0.css><img src=images/0.png><iframe src=frames/0/index.html></iframe><script src=scripts/0.js></script>`

	once := bootstrap.SubstituteText(text, "index.html", resources)
	twice := bootstrap.SubstituteText(once, "index.html", resources)
	assert.Equal(t, once, twice)
	assert.NotContains(t, once, "images/0.png")
}

func TestSubstituteText_Scope(t *testing.T) {
	resources := resolved("images/0.png", "frames/0/images/0.png", "frames/0/index.json", "index.json")

	// A frame document only sees resources of its own directory, and the
	// manifest name is never replaced.
	got := bootstrap.SubstituteText(`<img src=images/0.png> <a href=index.json>`, "frames/0/index.html", resources)
	assert.Equal(t, `<img src=url(frames/0/images/0_png)> <a href=index.json>`, got)

	got = bootstrap.SubstituteText(`<a href=index.json>`, "index.html", resources)
	assert.Equal(t, `<a href=index.json>`, got)
}

// Names are replaced wherever they occur, not only in references.
func TestSubstituteText_ReplacesPlainTextOccurrences(t *testing.T) {
	resources := resolved("images/0.png")
	got := bootstrap.SubstituteText(`<p>The file images/0.png is missing</p>`, "index.html", resources)
	assert.Equal(t, `<p>The file url(images/0_png) is missing</p>`, got)
}

func TestSubstitute(t *testing.T) {
	resources := []*bootstrap.Resource{
		{Name: "index.html", MIMEType: "text/html", IsText: true, Text: `<link href=stylesheet_0.css><script src=scripts/0.js></script><iframe src=frames/0/index.html></iframe>`},
		{Name: "stylesheet_0.css", MIMEType: "text/css", IsText: true, Text: `body{background:url(images/0.png)}`},
		{Name: "scripts/0.js", MIMEType: "text/javascript", IsText: true, Text: `load("images/0.png")`},
		{Name: "images/0.png", MIMEType: "image/png", Data: []byte("png")},
		{Name: "frames/0/index.html", MIMEType: "text/html", IsText: true, Text: `<img src=images/0.png>`},
		{Name: "frames/0/images/0.png", MIMEType: "image/png", Data: []byte("frame")},
	}

	var resolvedNames []string
	resolve := func(name, mimeType string, data []byte) (string, error) {
		resolvedNames = append(resolvedNames, name)
		return "blob:" + name, nil
	}
	require.NoError(t, bootstrap.Substitute(resources, resolve))

	byName := make(map[string]*bootstrap.Resource)
	for _, r := range resources {
		byName[r.Name] = r
	}

	assert.Equal(t, "body{background:url(blob:images/0.png)}", byName["stylesheet_0.css"].Text)
	assert.Equal(t, `load("images/0.png")`, byName["scripts/0.js"].Text)
	assert.Equal(t, `<img src=data:image/png;base64,ZnJhbWU=>`, byName["frames/0/index.html"].Text)
	assert.True(t, strings.HasPrefix(byName["frames/0/index.html"].URL, "data:text/html;base64,"))
	assert.Equal(t,
		`<link href=blob:stylesheet_0.css><script src=blob:scripts/0.js></script><iframe src=`+byName["frames/0/index.html"].URL+`></iframe>`,
		byName["index.html"].Text)
	assert.NotContains(t, resolvedNames, "frames/0/images/0.png")
	assert.NotContains(t, resolvedNames, "frames/0/index.html")

	failing := func(string, string, []byte) (string, error) { return "", errors.New("no urls") }
	assert.Error(t, bootstrap.Substitute([]*bootstrap.Resource{{Name: "a.png"}}, failing))
}
