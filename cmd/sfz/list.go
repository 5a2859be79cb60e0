// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lemon4ksan/sfz"
)

func newListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <archive|url>",
		Short: "List the entries of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.list(cmd, args[0])
		},
	}
	cmd.Flags().String("sort", "default", "entry order: default, name, size or size-desc")
	addRangeFlag(cmd)
	return cmd
}

var sortStrategies = map[string]sfz.EntrySortStrategy{
	"default":   sfz.SortDefault,
	"name":      sfz.SortAlphabetical,
	"size":      sfz.SortSizeAscending,
	"size-desc": sfz.SortSizeDescending,
}

func (a *app) list(cmd *cobra.Command, arg string) error {
	ctx := cmd.Context()

	strategy, ok := sortStrategies[a.v.GetString("sort")]
	if !ok {
		return errors.Errorf("unknown sort order %q", a.v.GetString("sort"))
	}

	src, release, err := a.openSource(ctx, arg)
	if err != nil {
		return err
	}
	defer release()

	zr, err := sfz.NewZipReader(ctx, src, a.zipOptions()...)
	if err != nil {
		return errors.Wrapf(err, "read %s", arg)
	}
	entries, err := zr.GetEntries(ctx)
	if err != nil {
		return errors.Wrapf(err, "read %s", arg)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Size\tCompressed\tMethod\tEncryption\tModified\t Name")
	for _, e := range sfz.SortEntries(entries, strategy) {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t %s\n",
			e.UncompressedSize, e.CompressedSize, e.CompressionMethod, e.EncryptionMethod,
			e.LastModDate.Format("2006-01-02 15:04"), e.Filename)
	}
	if prepended := zr.PrependedDataLength(); prepended > 0 {
		fmt.Fprintf(w, "\t\t\t\t\t %d bytes before the archive\n", prepended)
	}
	return w.Flush()
}
