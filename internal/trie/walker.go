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

	"github.com/gammazero/deque"
)

// walkerFrame is one level of in-progress Switch-node iteration. It is the
// Go analogue of one entry in triewalk's tw->switches array. swOff is kept
// as an absolute offset rather than a decoded switchView (which would hold
// a slice into a particular mapped []byte) so a frame survives a Rebase
// onto a freshly remapped file.
type walkerFrame struct {
	swOff int64
	pos   int
	depth int
}

// Walker performs a full in-order traversal of a trie, yielding every
// pathname and its Leaf in collation order. It is a direct port of
// triewalk_new/triewalk_next from original_source/trie.c, replacing the
// reference implementation's growable tw->switches array (an explicit
// stack implemented by hand) with gammazero/deque so the traversal never
// recurses on the Go call stack regardless of tree depth.
type Walker struct {
	mapped  []byte
	root    int64
	started bool
	stack   *deque.Deque
	buf     []byte
}

// NewWalker creates a Walker over mapped starting from root.
func NewWalker(mapped []byte, root int64) *Walker {
	return &Walker{mapped: mapped, root: root, stack: deque.New()}
}

// Rebase points Walker at a freshly remapped copy of the same file. Direct
// analogue of triewalk_rebase, simplified the same way avlindex.Builder.Rebase
// is: every position the Walker holds onto is a file offset, never a raw
// pointer or a slice into the old mapping, so there is no pointer-diff
// arithmetic to redo.
func (w *Walker) Rebase(mapped []byte) {
	w.mapped = mapped
}

// Next returns the next (path, leaf) pair in collation order, along with
// the leaf's absolute file offset (needed by callers, such as
// internal/index's build coordinator, that must hand the offset to
// avlindex.Builder.Add rather than the decoded value), or ok=false once
// the walk is exhausted.
func (w *Walker) Next() (path string, leaf Leaf, leafOffset int64, ok bool) {
	var off int64
	var depth int

	if !w.started {
		w.started = true
		off = w.root
		depth = 0
	} else {
		for {
			if w.stack.Len() == 0 {
				return "", Leaf{}, 0, false
			}
			top := w.stack.Back().(*walkerFrame)
			sw := decodeSwitch(w.mapped[top.swOff:])
			if top.pos < sw.Len() {
				depth = top.depth
				off = sw.SubOffset(top.pos)
				w.buf = appendAt(w.buf, depth, []byte{sw.Char(top.pos)})
				depth++
				top.pos++
				break
			}
			w.stack.PopBack()
		}
	}

	for {
		switch nodeTag(w.mapped, off) {
		case tagLeaf:
			// depth counts the NUL terminator that leads into every
			// leaf; it is not part of the returned path.
			return string(w.buf[:depth-1]), decodeLeaf(w.mapped[off:]), off, true

		case tagString:
			st := decodeString(w.mapped[off:])
			frag := st.Fragment()
			w.buf = appendAt(w.buf, depth, frag)
			depth += len(frag)
			off = st.Subnode()

		case tagSwitch:
			sw := decodeSwitch(w.mapped[off:])
			w.stack.PushBack(&walkerFrame{swOff: off, pos: 1, depth: depth})
			w.buf = appendAt(w.buf, depth, []byte{sw.Char(0)})
			off = sw.SubOffset(0)
			depth++

		default:
			panic(fmt.Sprintf("trie: corrupt node tag at offset %d", off))
		}
	}
}
