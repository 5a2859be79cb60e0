// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lemon4ksan/sfz"
	"github.com/lemon4ksan/sfz/archiver"
	"github.com/lemon4ksan/sfz/bootstrap"
	"github.com/lemon4ksan/sfz/pagedata"
)

func newPackCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack <pagedata.json>",
		Short: "Pack a captured page into an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.pack(cmd, args[0])
		},
	}
	f := cmd.Flags()
	f.StringP("output", "o", "", "output file (default: <title>.zip or .html)")
	f.String("encryption", "", "encryption method: aes128, aes192, aes256 or zipcrypto")
	f.Bool("self-extracting", false, "wrap the archive in an HTML page that extracts itself")
	f.Bool("manifest", true, "write index.json next to every index.html")
	f.Int("level", sfz.DeflateNormal, "deflate level 1-9")
	f.Bool("no-index", false, "mark self-extracting pages as not indexable")
	return cmd
}

func (a *app) pack(cmd *cobra.Command, input string) error {
	ctx := cmd.Context()

	path, err := homedir.Expand(input)
	if err != nil {
		return errors.Wrapf(err, "expand %s", input)
	}
	in, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open page data")
	}
	defer in.Close()

	pd, err := pagedata.Load(in)
	if err != nil {
		return errors.Wrapf(err, "load %s", input)
	}

	method, err := sfz.ParseEncryptionMethod(a.v.GetString("encryption"))
	if err != nil {
		return errors.Wrap(err, "encryption")
	}
	selfExtracting := a.v.GetBool("self-extracting")

	opts := []archiver.Option{
		archiver.WithScheduler(a.scheduler),
		archiver.WithLogger(a.logger),
		archiver.WithManifest(a.v.GetBool("manifest")),
		archiver.WithLevel(a.v.GetInt("level")),
	}
	if pwd := a.v.GetString("password"); pwd != "" {
		opts = append(opts, archiver.WithPassword(pwd, method))
	} else if method != sfz.NotEncrypted {
		return errors.Wrap(sfz.ErrEncryptedFileNoPassword, "encryption needs --password")
	}
	if selfExtracting {
		opts = append(opts, archiver.WithSelfExtracting(bootstrap.Shell{NoIndex: a.v.GetBool("no-index")}))
	}

	output := a.v.GetString("output")
	if output == "" {
		output = defaultOutput(pd.Title, selfExtracting)
	}
	out, err := os.Create(output)
	if err != nil {
		return errors.Wrap(err, "create output")
	}

	sink, err := sfz.NewFileSink(out)
	if err != nil {
		out.Close()
		return errors.Wrap(err, "create output")
	}
	res, err := archiver.Pack(ctx, pd, sink, opts...)
	if err != nil {
		out.Close()
		os.Remove(output)
		return errors.Wrap(err, "pack")
	}
	if err := sink.Sync(); err != nil {
		out.Close()
		return errors.Wrap(err, "sync output")
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, "close output")
	}
	if res.Corrupted {
		a.logger.Warn("archive has corrupted entries", "file", output)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries\n", output, len(res.Entries))
	return nil
}

// defaultOutput derives a file name from the page title.
func defaultOutput(title string, selfExtracting bool) string {
	name := sanitizeFilename(title)
	if name == "" {
		name = "page"
	}
	if selfExtracting {
		return name + ".html"
	}
	return name + ".zip"
}

func sanitizeFilename(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r < 0x20, r == 0x7f:
			continue
		case r == '/', r == '\\', r == ':', r == '*', r == '?', r == '"', r == '<', r == '>', r == '|':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	if len(out) > 128 {
		out = out[:128]
	}
	return string(out)
}
