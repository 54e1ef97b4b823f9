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

// Package scan walks a directory tree and reports each entry's size and
// effective access time to a Visitor, in the strict collation order that
// internal/trie requires of its input stream. It is a Go-idiomatic port of
// du_recurse and gotdata from original_source/agedu/du.c and agedu.c.
package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/agedu-go/ageidx/internal/metrics"
	"github.com/agedu-go/ageidx/internal/rules"
)

// Record is the (size, atime) pair stored for every scanned entry,
// corresponding exactly to the trie_file struct of spec.md §3.2.
type Record struct {
	// Size in bytes. For a directory, this is its own inode's block
	// usage, not the recursive total of its contents - callers looking
	// for the latter must sum the trie's leaves (see internal/avlindex).
	Size uint64
	// Atime in seconds since the Unix epoch. Provisional for
	// directories until internal/trie.PropagateDirAtimes overwrites it.
	Atime uint64
}

// Visitor receives one callback per scanned entry, in collation order.
// Visit returns whether the scanner should recurse into path if it is a
// directory; this is the Go form of the gotdata callback (§6.3).
type Visitor interface {
	Visit(path string, rec Record) (recurse bool)
	Error(path string, err error)
}

// Options configures a Scan.
type Options struct {
	// CrossFilesystem allows the scan to follow mount points onto other
	// filesystems. Default false: stay on the filesystem of root.
	CrossFilesystem bool
	// UseMtimeGlobally uses mtime instead of atime for every entry, not
	// just directories.
	UseMtimeGlobally bool
	// FakeDirAtimes uses mtime (instead of atime) for directories only;
	// irrelevant if UseMtimeGlobally is set. It does not, by itself,
	// propagate a directory's children's atimes upward - that is
	// internal/trie.PropagateDirAtimes, a separate post-build pass.
	FakeDirAtimes bool
	// Rules is the ordered inclusion/exclusion/prune rule list. Nil
	// means "include everything".
	Rules *rules.Matcher
	// SelfDev/SelfIno identify the output index file, so the scan can
	// skip it if it lives inside the tree being scanned.
	SelfDev, SelfIno uint64
	// Progress, if set, is invoked at most once per wall-clock second
	// with the path currently being visited.
	Progress func(path string)
	// Metrics, if set, is incremented as entries are visited and errors
	// occur.
	Metrics *metrics.Registry
	// Log is carried in the options but Scan writes nothing to it; the
	// zero value is a no-op logger.
	Log zerolog.Logger
}

// Scan walks the tree rooted at root, depth first, emitting each entry to
// visitor.Visit in strict collation order: a directory's own record
// immediately precedes its children, and children are visited in
// byte-sorted order by name (spec.md §4.1 "Output ordering").
func Scan(root string, visitor Visitor, opts Options) {
	s := &scanner{visitor: visitor, opts: opts, lastReport: time.Time{}}
	s.recurse(root)
}

type scanner struct {
	visitor    Visitor
	opts       Options
	lastReport time.Time
	rootDev    uint64
}

func (s *scanner) recurse(path string) {
	fi, err := os.Lstat(path)
	if err != nil {
		s.reportError(path, fmt.Errorf("lstat: %w", err))
		return
	}

	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		s.reportError(path, fmt.Errorf("lstat: no platform stat_t available"))
		return
	}

	// Filter out our own index file, wherever it is in the tree.
	if s.opts.SelfDev != 0 && uint64(st.Dev) == s.opts.SelfDev && uint64(st.Ino) == s.opts.SelfIno {
		return
	}

	// Don't cross a filesystem boundary unless asked to. The scan root
	// itself always establishes rootDev, so this only ever skips
	// descendants mounted from elsewhere.
	if s.rootDev != 0 && !s.opts.CrossFilesystem && uint64(st.Dev) != s.rootDev {
		return
	}
	if s.rootDev == 0 {
		s.rootDev = uint64(st.Dev)
	}

	rec := Record{
		Size: uint64(st.Blocks) * 512,
	}
	isDir := fi.IsDir()
	switch {
	case s.opts.UseMtimeGlobally, s.opts.FakeDirAtimes && isDir:
		rec.Atime = uint64(st.Mtim.Sec)
	default:
		rec.Atime = maxU64(uint64(st.Mtim.Sec), uint64(st.Atim.Sec))
	}

	if s.opts.Rules != nil {
		filename := filepath.Base(path)
		action := s.opts.Rules.Evaluate(path, filename)
		switch action {
		case rules.ActionPrune:
			return // skip entirely, do not recurse
		case rules.ActionExclude:
			if !isDir {
				return
			}
			// Still recurse, but hide this directory's own size
			// so descendants remain visible without double
			// counting (spec.md §4.1, Open Question 1).
			rec.Size = 0
		}
	}

	recurse := s.visitor.Visit(path, rec)
	s.report(path)
	if s.opts.Metrics != nil {
		s.opts.Metrics.ScanEntries.Inc()
	}

	if !isDir || !recurse {
		return
	}

	names, err := readDirNames(path)
	if err != nil {
		s.reportError(path, fmt.Errorf("opendir: %w", err))
		return
	}
	sort.Strings(names)

	for _, name := range names {
		child := joinPath(path, name)
		s.recurse(child)
	}
}

func (s *scanner) report(path string) {
	if s.opts.Progress == nil {
		return
	}
	now := time.Now()
	if now.Unix() == s.lastReport.Unix() {
		return
	}
	s.lastReport = now
	s.opts.Progress(path)
}

func (s *scanner) reportError(path string, err error) {
	s.visitor.Error(path, err)
	if s.opts.Metrics != nil {
		s.opts.Metrics.ScanErrors.Inc()
	}
}

func readDirNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}

	out := names[:0]
	for _, n := range names {
		if n == "." || n == ".." {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	if dir[len(dir)-1] == '/' {
		return dir + name
	}
	return dir + "/" + name
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
