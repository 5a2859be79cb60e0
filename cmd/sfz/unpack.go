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
)

func newUnpackCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unpack <archive|url>",
		Short: "Extract every entry of an archive into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.unpack(cmd, args[0])
		},
	}
	cmd.Flags().StringP("output", "o", ".", "destination directory; existing files are not overwritten")
	addRangeFlag(cmd)
	return cmd
}

func (a *app) unpack(cmd *cobra.Command, arg string) error {
	ctx := cmd.Context()

	dir, err := homedir.Expand(a.v.GetString("output"))
	if err != nil {
		return errors.Wrap(err, "expand output")
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
	fsys, err := zr.FS(ctx)
	if err != nil {
		return errors.Wrapf(err, "read %s", arg)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create output")
	}
	if err := os.CopyFS(dir, fsys); err != nil {
		return errors.Wrap(err, "extract")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "extracted %d entries to %s\n", zr.Len(), dir)
	return nil
}
