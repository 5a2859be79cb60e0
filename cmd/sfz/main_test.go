// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageJSON = `{
  "url": "https://example.com/",
  "title": "Example: page",
  "content": "<html><head><title>Example</title><link rel=stylesheet href=stylesheet_0.css></head><body><p>Hi</p><img src=images/0.png></body></html>",
  "resources": {
    "stylesheets": [{"name": "stylesheet_0.css", "content": "p{color:red}"}],
    "images": [{"name": "images/0.png", "content": "iVBORw0KGgo=", "base64": true}]
  }
}`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setup(t *testing.T) string {
	t.Helper()
	homedir.DisableCache = true
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.json"), []byte(pageJSON), 0o644))
	return dir
}

func TestCLI_PackListUnpackView(t *testing.T) {
	dir := setup(t)
	archive := filepath.Join(dir, "page.html")

	out, err := run(t, "", "pack", filepath.Join(dir, "page.json"), "-o", archive, "--self-extracting")
	require.NoError(t, err, out)
	assert.Contains(t, out, "4 entries")

	out, err = run(t, "", "list", archive, "--sort", "name")
	require.NoError(t, err, out)
	assert.Contains(t, out, "images/0.png")
	assert.Contains(t, out, "bytes before the archive")
	assert.Less(t, strings.Index(out, "images/0.png"), strings.Index(out, "stylesheet_0.css"))

	target := filepath.Join(dir, "out")
	out, err = run(t, "", "unpack", archive, "-o", target)
	require.NoError(t, err, out)
	css, err := os.ReadFile(filepath.Join(target, "stylesheet_0.css"))
	require.NoError(t, err)
	assert.Equal(t, "p{color:red}", string(css))
	_, err = os.Stat(filepath.Join(target, "index.json"))
	assert.NoError(t, err)

	view := filepath.Join(dir, "view.html")
	out, err = run(t, "", "view", archive, "-o", view)
	require.NoError(t, err, out)
	html, err := os.ReadFile(view)
	require.NoError(t, err)
	assert.Contains(t, string(html), "data:text/css;base64,")
	assert.NotContains(t, string(html), "stylesheet_0.css")
}

func TestCLI_Encrypted(t *testing.T) {
	dir := setup(t)
	archive := filepath.Join(dir, "secret.zip")

	_, err := run(t, "", "pack", filepath.Join(dir, "page.json"), "-o", archive, "--encryption", "aes256")
	require.Error(t, err)

	out, err := run(t, "", "pack", filepath.Join(dir, "page.json"), "-o", archive, "--encryption", "zipcrypto", "--password", "pw")
	require.NoError(t, err, out)

	view := filepath.Join(dir, "view.html")
	out, err = run(t, "pw\n", "view", archive, "-o", view)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Password: ")

	out, err = run(t, "bad\n", "view", archive, "-o", view)
	require.Error(t, err, out)
	page, err := os.ReadFile(view)
	require.NoError(t, err)
	assert.Contains(t, string(page), "sfz-error-message")
}

func TestCLI_ConfigFile(t *testing.T) {
	dir := setup(t)
	cfg := filepath.Join(dir, "sfz.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("manifest: false\nlevel: 9\n"), 0o644))

	archive := filepath.Join(dir, "page.zip")
	out, err := run(t, "", "--config", cfg, "pack", filepath.Join(dir, "page.json"), "-o", archive)
	require.NoError(t, err, out)
	assert.Contains(t, out, "3 entries")

	_, err = run(t, "", "--config", filepath.Join(dir, "missing.yaml"), "list", archive)
	assert.Error(t, err)
}

func TestDefaultOutput(t *testing.T) {
	assert.Equal(t, "Example_ page.zip", defaultOutput("Example: page", false))
	assert.Equal(t, "page.html", defaultOutput("", true))
}
