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

// Command ageidx-query answers rank, prefix-sum and order-statistic
// questions against an index file built by ageidx-build, and can re-emit
// its contents as a text dump. It does not render the HTML/text reports
// or serve them over HTTP.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/agedu-go/ageidx/internal/dump"
	"github.com/agedu-go/ageidx/internal/index"
	"github.com/agedu-go/ageidx/internal/pathorder"
)

func main() {
	var (
		flagIndex   string
		flagLog     string
		flagCache   bool
		flagCompact bool
	)

	pflag.StringVarP(&flagIndex, "index", "i", "ageidx.dat", "path to the index file to query")
	pflag.StringVarP(&flagLog, "log", "l", "info", "log output level")
	pflag.BoolVar(&flagCache, "cache", true, "memoize repeated AVL queries with a ristretto cache")
	pflag.BoolVar(&flagCompact, "zstd", false, "compress dump output with zstd (dump subcommand only)")

	pflag.Parse()

	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	level, err := zerolog.ParseLevel(flagLog)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid log level")
	}
	log = log.Level(level)

	args := pflag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	var cache *ristretto.Cache
	if flagCache {
		cache, err = ristretto.NewCache(&ristretto.Config{
			NumCounters: 1e6,
			MaxCost:     1 << 24,
			BufferItems: 64,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("could not build query cache")
		}
	}

	r, err := index.Open(flagIndex, cache)
	if err != nil {
		log.Fatal().Err(err).Msg("could not open index file")
	}
	defer r.Close()

	switch args[0] {
	case "rank":
		err = cmdRank(r, args[1:])
	case "query":
		err = cmdQuery(r, args[1:])
	case "orderstat":
		err = cmdOrderStat(r, args[1:])
	case "dump":
		err = cmdDump(r, flagCompact)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("query failed")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: ageidx-query [flags] <command> [args]

commands:
  rank <path>                 print the collation rank of path
  query <path> <atime>        print the total size of path's subtree with atime < atime
  orderstat <path> <fraction> print the atime at which fraction (0..1) of the size of every entry
                              sorting up to the end of path's subtree is older (not path's subtree alone)
  dump                        emit the index contents as a text dump`)
	pflag.PrintDefaults()
}

func cmdRank(r *index.Reader, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("rank: expected exactly one path argument")
	}
	fmt.Println(r.Trie.Rank(args[0]))
	return nil
}

// subtreeRange returns the half-open range [lo, hi) of collation ranks
// that make up path's entire subtree: path itself plus every descendant.
func subtreeRange(r *index.Reader, path string) (lo, hi int64) {
	sep := r.Header().PathSep
	lo = r.Trie.Rank(path)
	hi = r.Trie.Rank(pathorder.Successor(sep, path))
	return lo, hi
}

func cmdQuery(r *index.Reader, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("query: expected <path> <atime>")
	}
	atime, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("query: invalid atime: %w", err)
	}
	lo, hi := subtreeRange(r, args[0])
	total := r.AVL.Query(hi, atime) - r.AVL.Query(lo, atime)
	fmt.Println(total)
	return nil
}

func cmdOrderStat(r *index.Reader, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("orderstat: expected <path> <fraction>")
	}
	f, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("orderstat: invalid fraction: %w", err)
	}
	_, hi := subtreeRange(r, args[0])
	fmt.Println(r.AVL.OrderStatistic(hi, f))
	return nil
}

func cmdDump(r *index.Reader, compact bool) error {
	h := r.Header()
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	var w io.Writer = out
	if compact {
		cw, err := dump.CompressWriter(out)
		if err != nil {
			return err
		}
		defer cw.Close()
		w = cw
	}

	if err := dump.WriteHeader(w, h.PathSep); err != nil {
		return err
	}
	for i := int64(0); i < h.Count; i++ {
		path := r.Trie.Path(i)
		leaf := r.Trie.File(i)
		if err := dump.WriteLine(w, path, leaf.Size, leaf.Atime); err != nil {
			return err
		}
	}
	return nil
}
