// Copyright 2021 Optakt Labs OÜ
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/agedu-go/ageidx/internal/index"
	"github.com/agedu-go/ageidx/internal/metrics"
	"github.com/agedu-go/ageidx/internal/rules"
)

func main() {
	// Signal catching for a best-effort warning on interrupt. The build
	// writes the trie directly to the output file as it scans, so there
	// is no safe point to cancel mid-write without leaving a corrupt
	// index behind; a first interrupt only warns, a second forces exit.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	var (
		flagOutput      string
		flagLog         string
		flagCrossFS     bool
		flagMtime       bool
		flagFakeAtimes  bool
		flagProgress    bool
		flagMetricsAddr string

		ruleList []rules.Rule
	)

	pflag.StringVarP(&flagOutput, "output", "o", "ageidx.dat", "path to write the index file to")
	pflag.StringVarP(&flagLog, "log", "l", "info", "log output level")
	pflag.BoolVar(&flagCrossFS, "cross-fs", false, "cross filesystem boundaries while scanning")
	pflag.BoolVar(&flagMtime, "mtime", false, "use mtime instead of atime for every entry")
	pflag.BoolVar(&flagFakeAtimes, "fake-atimes", false, "derive directory atimes from the max atime of their contents")
	pflag.BoolVar(&flagProgress, "progress", false, "report scan progress to stderr")
	pflag.StringVar(&flagMetricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address while building")

	// Every --include/--exclude/--prune(+path) flag appends to the same
	// ruleList in the literal order it appeared on the command line, the
	// way original_source/agedu.c's option loop appends every occurrence
	// into one array: a later --include must be able to override an
	// earlier --exclude, and six independent StringArrayVar slices merged
	// after parsing cannot express that, since they'd always concatenate
	// in a fixed category order regardless of invocation order.
	pflag.Var(newRuleFlag(&ruleList, rules.ScopeFilename, rules.ActionInclude), "include", "include entries whose filename matches WILDCARD")
	pflag.Var(newRuleFlag(&ruleList, rules.ScopeFullPath, rules.ActionInclude), "include-path", "include entries whose full path matches WILDCARD")
	pflag.Var(newRuleFlag(&ruleList, rules.ScopeFilename, rules.ActionExclude), "exclude", "exclude entries whose filename matches WILDCARD")
	pflag.Var(newRuleFlag(&ruleList, rules.ScopeFullPath, rules.ActionExclude), "exclude-path", "exclude entries whose full path matches WILDCARD")
	pflag.Var(newRuleFlag(&ruleList, rules.ScopeFilename, rules.ActionPrune), "prune", "prune (exclude and do not recurse into) entries whose filename matches WILDCARD")
	pflag.Var(newRuleFlag(&ruleList, rules.ScopeFullPath, rules.ActionPrune), "prune-path", "prune (exclude and do not recurse into) entries whose full path matches WILDCARD")

	pflag.Parse()

	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	level, err := zerolog.ParseLevel(flagLog)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid log level")
	}
	log = log.Level(level)

	if pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ageidx-build [flags] <directory>")
		pflag.PrintDefaults()
		os.Exit(2)
	}
	root := pflag.Arg(0)

	matcher, err := rules.New(ruleList)
	if err != nil {
		log.Fatal().Err(err).Msg("could not build rule matcher")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	metricsReg := metrics.NewRegistry(reg)

	if flagMetricsAddr != "" {
		go serveMetrics(flagMetricsAddr, reg, log)
	}

	var progress func(string)
	if flagProgress {
		progress = func(path string) {
			fmt.Fprintf(os.Stderr, "%-79.79s\r", path)
		}
	}

	start := time.Now()
	log.Info().Str("root", root).Str("output", flagOutput).Msg("ageidx-build starting")

	done := make(chan error, 1)
	go func() {
		done <- index.Build(flagOutput, root, index.BuildOptions{
			CrossFilesystem:    flagCrossFS,
			UseMtimeGlobally:   flagMtime,
			FakeDirAtimes:      flagFakeAtimes,
			PropagateDirAtimes: flagFakeAtimes,
			Rules:              matcher,
			Progress:           progress,
			Metrics:            metricsReg,
			Log:                log,
		})
	}()

	go func() {
		<-sig
		log.Warn().Msg("interrupt received; the index is written incrementally and cannot be safely cancelled mid-scan, press again to force exit")
		<-sig
		log.Warn().Msg("forcing exit, output file will be incomplete")
		os.Exit(1)
	}()

	err = <-done
	if flagProgress {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("build failed")
	}

	log.Info().Dur("duration", time.Since(start).Round(time.Second)).Msg("ageidx-build done")
}

// ruleFlag is a pflag.Value that appends every occurrence of one rule flag
// (e.g. --exclude) straight onto a single shared, ordered rule list, rather
// than into a per-flag slice that would have to be merged back together
// after parsing and lose the relative order between different flag names.
type ruleFlag struct {
	list   *[]rules.Rule
	scope  rules.Scope
	action rules.Action
}

func newRuleFlag(list *[]rules.Rule, scope rules.Scope, action rules.Action) *ruleFlag {
	return &ruleFlag{list: list, scope: scope, action: action}
}

func (f *ruleFlag) String() string { return "" }

func (f *ruleFlag) Set(wildcard string) error {
	*f.list = append(*f.list, rules.Rule{Wildcard: wildcard, Scope: f.scope, Action: f.action})
	return nil
}

func (f *ruleFlag) Type() string { return "wildcard" }

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}
