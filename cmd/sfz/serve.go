// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lemon4ksan/sfz/bootstrap"
	"github.com/lemon4ksan/sfz/serve"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <archive|url>",
		Short: "Serve the archived page over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd, args[0])
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "listen address")
	addRangeFlag(cmd)
	return cmd
}

func (a *app) serve(cmd *cobra.Command, arg string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	src, release, err := a.openSource(ctx, arg)
	if err != nil {
		return err
	}
	defer release()

	handler := serve.NewHandler(src,
		serve.WithLogger(a.logger),
		serve.WithExtractOptions(bootstrap.WithZipOptions(a.zipOptions()...)),
		serve.WithPassword(a.v.GetString("password")))

	ln, err := net.Listen("tcp", a.v.GetString("addr"))
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	a.logger.Info("serving archive", "archive", arg, "url", "http://"+ln.Addr().String()+"/")

	select {
	case err := <-errc:
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Wrap(srv.Shutdown(shutdownCtx), "shutdown")
}
