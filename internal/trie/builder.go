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

package trie

import (
	"fmt"
	"io"

	"github.com/agedu-go/ageidx/internal/pathorder"
)

// pending accumulates the (char, subnode, subcount) triples collected for
// the switch that will eventually be written at one particular depth. It is
// the Go analogue of one entry in triebuild's tb->switches array.
type pending struct {
	chars  []byte
	offs   []int64
	counts []int64
}

func (p *pending) add(c byte, off, count int64) {
	p.chars = append(p.chars, c)
	p.offs = append(p.offs, off)
	p.counts = append(p.counts, count)
}

func (p *pending) empty() bool {
	return len(p.chars) == 0
}

func (p *pending) reset() {
	p.chars = p.chars[:0]
	p.offs = p.offs[:0]
	p.counts = p.counts[:0]
}

// Builder appends trie nodes to w in strict collation order, one pathname
// at a time. It is a direct port of triebuild_new/triebuild_add/
// triebuild_unwind/triebuild_finish from original_source/trie.c: entries
// must be fed in increasing pathorder.Compare order, and Finish must be
// called exactly once after the last Add.
//
// Unlike triebuild, which mmaps the growing output file and therefore has
// to cope with remapping mid-build, Builder only ever appends - the file
// is plain-written here and only mmap'd afterwards, once complete, by
// internal/index for the mtime-propagation and AVL-index phases.
type Builder struct {
	w      io.Writer
	offset int64
	sep    byte

	lastPath   []byte
	lastOffset int64 // 0 until the first Add
	switches   []pending
	maxPathLen int
	count      int64

	rootOffset int64
	finished   bool
}

// NewBuilder creates a Builder that will append nodes starting at
// startOffset. The caller is responsible for w's write cursor already
// being positioned at startOffset (e.g. immediately after writing a
// placeholder file header).
func NewBuilder(w io.Writer, startOffset int64, sep byte) *Builder {
	return &Builder{
		w:      w,
		offset: startOffset,
		sep:    sep,
	}
}

func charAt(s []byte, i int) byte {
	if i == len(s) {
		return 0
	}
	return s[i]
}

// Add appends one pathname/leaf pair. path must sort strictly after every
// previously added path under pathorder.Compare(sep, ...).
func (b *Builder) Add(path string, leaf Leaf) error {
	if b.finished {
		return fmt.Errorf("trie: Add called after Finish")
	}
	p := []byte(path)

	if b.lastPath != nil {
		cmp, depth := pathorder.CompareOffset(b.sep, b.lastPath, p)
		if cmp >= 0 {
			return fmt.Errorf("trie: Add called out of order: %q must sort after %q", path, string(b.lastPath))
		}
		offset, count, err := b.unwind(depth + 1)
		if err != nil {
			return err
		}
		if err := b.ensureDepth(depth); err != nil {
			return err
		}
		b.switches[depth].add(charAt(b.lastPath, depth), offset, count)
	}

	if err := b.writeAligned(encodeLeaf(leaf)); err != nil {
		return err
	}
	b.lastOffset = b.offset - leafSize

	b.lastPath = append(b.lastPath[:0], p...)
	if len(p) > b.maxPathLen {
		b.maxPathLen = len(p)
	}
	b.count++
	return nil
}

// unwind flushes every pending switch at a depth >= targetDepth into
// written Switch (and, where a run of depths produced only a single
// child, String) nodes, returning the offset and leaf-count of the
// resulting subtree rooted just above targetDepth. It is the direct
// analogue of triebuild_unwind.
func (b *Builder) unwind(targetDepth int) (offset int64, count int64, err error) {
	if b.lastOffset == 0 && b.lastPath == nil {
		return 0, 0, nil
	}

	offset = b.lastOffset
	count = 1
	depth := len(b.lastPath) + 1

	for depth > targetDepth {
		odepth := depth
		for depth > targetDepth && (depth-1 >= len(b.switches) || b.switches[depth-1].empty()) {
			depth--
		}
		if odepth > depth {
			// Nothing had a switch pending between depth and
			// odepth: those bytes collapse into a single String
			// node fragment.
			// charAt supplies the NUL terminator at
			// len(lastPath) instead of reading past its end.
			fragment := make([]byte, odepth-depth)
			for k := range fragment {
				fragment[k] = charAt(b.lastPath, depth+k)
			}
			if err := b.writeAligned(encodeString(fragment, offset)); err != nil {
				return 0, 0, err
			}
			offset = b.offset - int64(stringSize(len(fragment)))
		}

		if depth <= targetDepth {
			break
		}

		// Sitting just below a switch node: add our final entry and
		// flush it.
		depth--
		sw := &b.switches[depth]
		sw.add(charAt(b.lastPath, depth), offset, count)

		if err := b.writeAligned(encodeSwitch(sw.chars, sw.offs, sw.counts)); err != nil {
			return 0, 0, err
		}
		offset = b.offset - int64(switchSize(len(sw.chars)))

		total := int64(0)
		for _, c := range sw.counts {
			total += c
		}
		count = total
		sw.reset()
	}

	return offset, count, nil
}

func (b *Builder) ensureDepth(depth int) error {
	for len(b.switches) <= depth {
		b.switches = append(b.switches, pending{})
	}
	return nil
}

// Finish flushes the final pending switches and returns the offset of the
// trie's root node, the total number of leaves, and the longest pathname
// length seen - the three values internal/index must record in the file
// header (spec.md §3.4).
func (b *Builder) Finish() (root int64, count int64, maxPathLen int, err error) {
	if b.finished {
		return b.rootOffset, b.count, b.maxPathLen, nil
	}
	b.finished = true

	root, count, err = b.unwind(0)
	if err != nil {
		return 0, 0, 0, err
	}
	b.rootOffset = root
	return root, b.count, b.maxPathLen, nil
}

func (b *Builder) writeAligned(node []byte) error {
	pad := padding(b.offset)
	if pad > 0 {
		if _, err := b.w.Write(make([]byte, pad)); err != nil {
			return err
		}
		b.offset += pad
	}
	if _, err := b.w.Write(node); err != nil {
		return err
	}
	b.offset += int64(len(node))
	return nil
}
