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

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sys/unix"

	"github.com/agedu-go/ageidx/internal/avlindex"
	"github.com/agedu-go/ageidx/internal/trie"
)

// Reader opens a previously built index file read-only and answers
// pathname and age queries against it. It owns the file's memory mapping
// for its whole lifetime; Close must be called to release it.
type Reader struct {
	f      *os.File
	mapped []byte

	header Header

	Trie *trie.Reader
	AVL  *avlindex.Reader
}

// Open validates the magic block, decodes the header, and maps filename
// read-only. cache, if non-nil, is attached to the AVL reader so repeated
// Query calls (one per reported directory, typically) are memoized.
func Open(filename string, cache *ristretto.Cache) (*Reader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", filename, err)
	}
	if fi.Size() < HeaderOffset+headerSize {
		f.Close()
		return nil, fmt.Errorf("%s: too small to be an index file", filename)
	}

	mapped, err := mapReadOnly(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", filename, err)
	}

	if !checkMagic(mapped) {
		unix.Munmap(mapped)
		f.Close()
		return nil, fmt.Errorf("%s: not an index file, or built for a different platform", filename)
	}

	h := decodeHeader(mapped[HeaderOffset : HeaderOffset+headerSize])

	tr := trie.NewReader(mapped, h.Root, h.Count, h.PathSep)
	avl := avlindex.NewReader(mapped, h.IndexRoot, h.Count)
	if cache != nil {
		avl = avl.WithCache(cache)
	}

	return &Reader{f: f, mapped: mapped, header: h, Trie: tr, AVL: avl}, nil
}

// Header returns the decoded file header (root offsets, entry count,
// maximum pathname length, and path separator).
func (r *Reader) Header() Header { return r.header }

// Close unmaps the file and closes its descriptor.
func (r *Reader) Close() error {
	err := unix.Munmap(r.mapped)
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	return err
}
