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

	"github.com/agedu-go/ageidx/internal/pathorder"
)

// Reader answers rank and order-statistic queries against an already-built
// trie living inside a memory-mapped byte slice. It holds no header of its
// own: internal/index owns the file header and hands Reader the three
// values (root offset, leaf count, separator) it read from it, so this
// package stays agnostic of the surrounding file format.
//
// Direct port of trie_before/trie_getpath/trie_getfile from
// original_source/trie.c.
type Reader struct {
	mapped []byte
	root   int64
	count  int64
	sep    byte
}

// NewReader wraps mapped (the whole memory-mapped index file) with the trie
// metadata needed to answer queries.
func NewReader(mapped []byte, root, count int64, sep byte) *Reader {
	return &Reader{mapped: mapped, root: root, count: count, sep: sep}
}

// Count returns the number of leaves (pathnames) in the trie.
func (r *Reader) Count() int64 { return r.count }

// Rank returns the number of pathnames strictly less than path under
// pathorder collation - the "before" operation of spec.md §4.2, and the
// primitive every prefix-range query is built from.
func (r *Reader) Rank(path string) int64 {
	p := []byte(path)
	var ret int64
	lastCount := r.count
	depth := 0
	off := r.root

	for {
		switch nodeTag(r.mapped, off) {
		case tagLeaf:
			if depth < len(p)+1 {
				ret += lastCount
			}
			return ret

		case tagString:
			st := decodeString(r.mapped[off:])
			frag := st.Fragment()
			cmp, offset := compareFragment(r.sep, frag, p, depth)
			if offset < len(frag) {
				if cmp < 0 {
					ret += lastCount
				}
				return ret
			}
			depth += len(frag)
			off = st.Subnode()

		case tagSwitch:
			sw := decodeSwitch(r.mapped[off:])
			matched := false
			for i := 0; i < sw.Len(); i++ {
				c := sw.Char(i)
				cmp := pathorder.CompareByte(r.sep, charAt(p, depth), c)
				if cmp > 0 {
					ret += sw.SubCount(i)
				} else if cmp < 0 {
					return ret
				} else {
					off = sw.SubOffset(i)
					lastCount = sw.SubCount(i)
					depth++
					matched = true
					break
				}
			}
			if !matched {
				return ret
			}

		default:
			panic(fmt.Sprintf("trie: corrupt node tag at offset %d", off))
		}
	}
}

// compareFragment compares a string-node fragment against p starting at
// depth, using the same implicit-terminator convention as
// pathorder.CompareOffset (p[depth+i] reads as 0 once depth+i==len(p)),
// and returns the offset within frag where the comparison stopped.
func compareFragment(sep byte, frag, p []byte, depth int) (cmp int, offset int) {
	for offset < len(frag) {
		c := pathorder.CompareByte(sep, frag[offset], charAt(p, depth+offset))
		if c != 0 {
			return c, offset
		}
		offset++
	}
	return 0, offset
}

// Path reconstructs the n-th pathname (0-indexed, in collation order).
// Direct port of trie_getpath.
func (r *Reader) Path(n int64) string {
	var buf []byte
	depth := 0
	off := r.root

	for {
		switch nodeTag(r.mapped, off) {
		case tagLeaf:
			// Drop the NUL terminator consumed on the way to the leaf.
			return string(buf[:depth-1])

		case tagString:
			st := decodeString(r.mapped[off:])
			frag := st.Fragment()
			buf = appendAt(buf, depth, frag)
			depth += len(frag)
			off = st.Subnode()

		case tagSwitch:
			sw := decodeSwitch(r.mapped[off:])
			found := false
			for i := 0; i < sw.Len(); i++ {
				if n < sw.SubCount(i) {
					buf = appendAt(buf, depth, []byte{sw.Char(i)})
					depth++
					off = sw.SubOffset(i)
					found = true
					break
				}
				n -= sw.SubCount(i)
			}
			if !found {
				panic("trie: order statistic out of range")
			}

		default:
			panic(fmt.Sprintf("trie: corrupt node tag at offset %d", off))
		}
	}
}

// File returns the leaf record of the n-th pathname (0-indexed, in
// collation order). Direct port of trie_getfile.
func (r *Reader) File(n int64) Leaf {
	off := r.root
	for {
		switch nodeTag(r.mapped, off) {
		case tagLeaf:
			return decodeLeaf(r.mapped[off:])

		case tagString:
			off = decodeString(r.mapped[off:]).Subnode()

		case tagSwitch:
			sw := decodeSwitch(r.mapped[off:])
			found := false
			for i := 0; i < sw.Len(); i++ {
				if n < sw.SubCount(i) {
					off = sw.SubOffset(i)
					found = true
					break
				}
				n -= sw.SubCount(i)
			}
			if !found {
				panic("trie: order statistic out of range")
			}

		default:
			panic(fmt.Sprintf("trie: corrupt node tag at offset %d", off))
		}
	}
}

func appendAt(buf []byte, depth int, b []byte) []byte {
	need := depth + len(b)
	if cap(buf) < need {
		grown := make([]byte, len(buf), need*2+16)
		copy(grown, buf)
		buf = grown
	}
	buf = buf[:need]
	copy(buf[depth:], b)
	return buf
}
