// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lemon4ksan/sfz/bootstrap"
)

func newViewCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view <archive|url>",
		Short: "Reconstruct the archived page as a standalone HTML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.view(cmd, args[0])
		},
	}
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	addRangeFlag(cmd)
	return cmd
}

func (a *app) view(cmd *cobra.Command, arg string) error {
	ctx := cmd.Context()

	src, release, err := a.openSource(ctx, arg)
	if err != nil {
		return err
	}
	defer release()

	opts := []bootstrap.Option{
		bootstrap.WithLogger(a.logger),
		bootstrap.WithZipOptions(a.zipOptions()...),
		bootstrap.WithPasswordPrompt(promptPassword(cmd.InOrStdin(), cmd.ErrOrStderr())),
	}
	if pwd := a.v.GetString("password"); pwd != "" {
		opts = append(opts, bootstrap.WithPassword(pwd))
	}

	page := ""
	doc, extractErr := bootstrap.Extract(ctx, src, opts...)
	if extractErr != nil {
		page = bootstrap.RenderError(extractErr)
	} else {
		page = doc.HTML
	}

	var out io.Writer = cmd.OutOrStdout()
	if output := a.v.GetString("output"); output != "" {
		f, err := os.Create(output)
		if err != nil {
			return errors.Wrap(err, "create output")
		}
		defer f.Close()
		out = f
	}
	if _, err := io.WriteString(out, page); err != nil {
		return errors.Wrap(err, "write page")
	}
	return errors.Wrapf(extractErr, "extract %s", arg)
}

// promptPassword asks for the password on w and reads one line from r.
func promptPassword(r io.Reader, w io.Writer) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		fmt.Fprint(w, "Password: ")
		line, err := bufio.NewReader(r).ReadString('\n')
		if err != nil && line == "" {
			return "", errors.Wrap(err, "read password")
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}
