// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lemon4ksan/sfz"
	sfzhttp "github.com/lemon4ksan/sfz/http"
)

// app holds the state shared by subcommands for one invocation.
type app struct {
	v         *viper.Viper
	cfgFile   string
	logger    *slog.Logger
	scheduler *sfz.CodecScheduler
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "sfz",
		Short:         "Pack web pages into single-file archives and open them",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.scheduler != nil {
				a.scheduler.TerminateAll()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default $HOME/.sfz.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.Int("max-workers", 0, "parallel codecs (default: number of CPUs)")
	pf.String("password", "", "archive password")

	root.AddCommand(
		newPackCmd(a),
		newListCmd(a),
		newUnpackCmd(a),
		newViewCmd(a),
		newServeCmd(a),
	)
	return root
}

// init loads the configuration and builds the logger and scheduler. Flags
// of the running command are bound here so that subcommands can share key
// names.
func (a *app) init(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return errors.Wrap(err, "bind flags")
	}
	if err := a.v.BindPFlags(cmd.InheritedFlags()); err != nil {
		return errors.Wrap(err, "bind flags")
	}

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return errors.Wrap(err, "locate home directory")
		}
		a.v.AddConfigPath(home)
		a.v.SetConfigName(".sfz")
		a.v.SetConfigType("yaml")
	}
	a.v.SetEnvPrefix("SFZ")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return errors.Wrap(err, "read config")
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(a.v.GetString("log-level"))); err != nil {
		return errors.Wrapf(err, "log level %q", a.v.GetString("log-level"))
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	if used := a.v.ConfigFileUsed(); used != "" {
		a.logger.Debug("config loaded", "file", used)
	}

	a.scheduler = sfz.NewCodecScheduler(sfz.SchedulerConfig{
		MaxWorkers: a.v.GetInt("max-workers"),
		Strategy:   sfz.StrategyPool,
		Logger:     a.logger,
	})
	return nil
}

// zipOptions are the reader options every command uses.
func (a *app) zipOptions() []sfz.Option {
	opts := []sfz.Option{sfz.WithScheduler(a.scheduler), sfz.WithLogger(a.logger)}
	if pwd := a.v.GetString("password"); pwd != "" {
		opts = append(opts, sfz.WithPassword(pwd))
	}
	return opts
}

// openSource opens a local file or, for http(s) URLs, a remote archive.
// The returned function releases the source.
func (a *app) openSource(ctx context.Context, arg string) (sfz.Source, func(), error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		src := sfzhttp.NewSource(arg,
			sfzhttp.WithRangeRequests(a.v.GetBool("range")),
			sfzhttp.WithLogger(a.logger))
		if err := src.Init(ctx); err != nil {
			return nil, nil, errors.Wrapf(err, "open %s", arg)
		}
		return src, func() {}, nil
	}

	path, err := homedir.Expand(arg)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "expand %s", arg)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", arg)
	}
	src, err := sfz.NewFileSource(f)
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrapf(err, "stat %s", arg)
	}
	return src, func() { f.Close() }, nil
}

// addRangeFlag registers the remote reading flag on commands that accept URLs.
func addRangeFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("range", true, "read remote archives with HTTP range requests instead of a single download")
}
