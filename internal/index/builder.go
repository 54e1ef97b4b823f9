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

package index

import (
	"fmt"
	"os"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/agedu-go/ageidx/internal/avlindex"
	"github.com/agedu-go/ageidx/internal/metrics"
	"github.com/agedu-go/ageidx/internal/rules"
	"github.com/agedu-go/ageidx/internal/scan"
	"github.com/agedu-go/ageidx/internal/trie"
)

// BuildOptions configures Build. The zero value scans with default rules
// (include everything), the later of atime and mtime for every entry, and
// no progress reporting.
type BuildOptions struct {
	PathSep            byte
	CrossFilesystem    bool
	UseMtimeGlobally   bool
	FakeDirAtimes      bool
	PropagateDirAtimes bool
	Rules              *rules.Matcher
	Progress           func(path string)
	Metrics            *metrics.Registry
	Log                zerolog.Logger
}

func (o BuildOptions) sep() byte {
	if o.PathSep == 0 {
		return '/'
	}
	return o.PathSep
}

// Build scans root and writes a complete index file to outPath: magic
// block, header, trie, and tagged AVL index, in that order. It is the
// Go-idiomatic coordinator standing in for agedu.c main()'s build branch,
// driving internal/scan, internal/trie and internal/avlindex over a single
// growing memory-mapped file.
func Build(outPath string, root string, opts BuildOptions) error {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	sep := opts.sep()

	if _, err := f.Write(make([]byte, TrieStart)); err != nil {
		return fmt.Errorf("reserve header: %w", err)
	}

	var selfDev, selfIno uint64
	if fi, serr := f.Stat(); serr == nil {
		if st, ok := fi.Sys().(*syscall.Stat_t); ok {
			selfDev, selfIno = uint64(st.Dev), uint64(st.Ino)
		}
	}

	tb := trie.NewBuilder(f, TrieStart, sep)
	v := &buildVisitor{tb: tb, log: opts.Log}
	scan.Scan(root, v, scan.Options{
		CrossFilesystem:  opts.CrossFilesystem,
		UseMtimeGlobally: opts.UseMtimeGlobally,
		FakeDirAtimes:    opts.FakeDirAtimes,
		Rules:            opts.Rules,
		SelfDev:          selfDev,
		SelfIno:          selfIno,
		Progress:         opts.Progress,
		Metrics:          opts.Metrics,
		Log:              opts.Log,
	})
	if v.err != nil {
		return fmt.Errorf("scan %s: %w", root, v.err)
	}

	trieRoot, count, maxPathLen, err := tb.Finish()
	if err != nil {
		return fmt.Errorf("finish trie: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat trie: %w", err)
	}
	trieEnd := fi.Size()

	totalSize := avlindex.InitialSize(trieEnd, count)
	totalSize += totalSize / 10

	mapped, err := mapWritable(f, totalSize)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}

	if opts.PropagateDirAtimes {
		trie.PropagateDirAtimes(mapped, trieRoot, sep)
	}

	ib := avlindex.NewBuilder(mapped, trieEnd, count)
	w := trie.NewWalker(mapped, trieRoot)

	mapped, totalSize, err = driveIndexBuild(f, mapped, totalSize, ib, w, count, sep, opts.Metrics)
	if err != nil {
		unix.Munmap(mapped)
		return err
	}

	realSize := ib.RealSize()
	indexRoot := ib.IndexRootOffset()

	if err := unix.Munmap(mapped); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	if err := f.Truncate(realSize); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}

	h := Header{
		Root:       trieRoot,
		IndexRoot:  indexRoot,
		Count:      count,
		MaxPathLen: int64(maxPathLen),
		PathSep:    sep,
	}
	if _, err := f.WriteAt(buildMagic(), 0); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if _, err := f.WriteAt(encodeHeader(h), HeaderOffset); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// driveIndexBuild replays the trie in collation order through ib, applying
// the tag-placement policy described in original_source/agedu.c's main
// build loop (the code immediately surrounding its two indexbuild_tag
// calls): a tag must be dropped before adding a pathname that a later
// Rank call could stop exactly on, and an unconditional final tag closes
// out the index. It returns the (possibly grown and remapped) byte slice
// and its size, since both may change underneath the caller.
//
// The policy compares the previous and current pathname at their first
// differing byte i:
//   - if prevPath was itself a directory and path is one of its
//     descendants (prevPath is a prefix of path, and path continues past a
//     path separator there), a Rank call landing on prevPath would see an
//     inconsistent snapshot unless a tag is dropped before prevPath is
//     added;
//   - if prevPath is a filename somewhere inside a directory that path has
//     now left (there's a separator anywhere in prevPath[i:]), a tag must
//     be dropped right after prevPath is added, for the same reason.
func driveIndexBuild(f *os.File, mapped []byte, totalSize int64, ib *avlindex.Builder, w *trie.Walker, count int64, sep byte, m *metrics.Registry) ([]byte, int64, error) {
	prevPath, _, prevOff, ok := w.Next()
	if !ok {
		ib.Tag()
		return mapped, totalSize, nil
	}

	for {
		if totalSize-ib.RealSize() < avlindex.Delta(count) {
			grown, newSize, err := remap(f, mapped, totalSize+avlindex.Delta(count))
			if err != nil {
				return mapped, totalSize, fmt.Errorf("grow index file: %w", err)
			}
			mapped, totalSize = grown, newSize
			ib.Rebase(mapped)
			w.Rebase(mapped)
			if m != nil {
				m.IndexRemaps.Inc()
			}
		}

		path, _, off, ok := w.Next()

		i := firstDiff(prevPath, path)
		if i == len(prevPath) && (!ok || (len(path) > i && path[i] == sep) || (i > 0 && path[i-1] == sep)) {
			ib.Tag()
		}

		ib.Add(prevOff)

		if !ok {
			ib.Tag()
			return mapped, totalSize, nil
		}

		if containsByte(prevPath[i:], sep) {
			ib.Tag()
		}

		prevPath, prevOff = path, off
	}
}

func firstDiff(a, b string) int {
	i := 0
	for i < len(a) && i < len(b) && a[i] == b[i] {
		i++
	}
	return i
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}

type buildVisitor struct {
	tb  *trie.Builder
	log zerolog.Logger
	err error
}

func (v *buildVisitor) Visit(path string, rec scan.Record) bool {
	if v.err != nil {
		return false
	}
	if err := v.tb.Add(path, trie.Leaf{Size: rec.Size, Atime: rec.Atime}); err != nil {
		v.err = fmt.Errorf("add %s: %w", path, err)
		return false
	}
	return true
}

func (v *buildVisitor) Error(path string, err error) {
	v.log.Warn().Err(err).Str("path", path).Msg("scan error")
}
