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

package avlindex

import "github.com/agedu-go/ageidx/internal/trie"

const align = 8

func padding(off int64) int64 {
	return (align - (off % align)) % align
}

// MaxDepth models an AVL tree growing under maximum imbalance and returns
// the deepest it could become with nodeCount elements - the same bound
// index_maxdepth computes, used to size the per-insertion growth budget.
func MaxDepth(nodeCount int64) int64 {
	depth := int64(1)
	b, c := int64(0), int64(1)
	for b <= nodeCount {
		b, c = c, 1+b+c
		depth++
	}
	return depth
}

// Delta is the maximum number of bytes a single Add call can append to the
// node arena: in the worst case, one brand new node plus a mutable copy of
// every node on the path to the root. Callers that grow the backing file
// on demand (internal/index's remap coordinator) must ensure at least this
// many free bytes exist before every Add.
func Delta(nodeCount int64) int64 {
	return nodeSize * (1 + MaxDepth(nodeCount))
}

// InitialSize computes the file offset immediately after the root table
// and AVL node arena have had their alignment padding reserved, given the
// offset the trie ended at and the total number of leaves the tree will
// eventually hold. This is where indexbuild_new's caller-visible "starting
// point" port of index_initial_size ends up; Builder recomputes the same
// layout internally from startOffset and nodeCount.
func InitialSize(trieEnd int64, nodeCount int64) int64 {
	off := trieEnd
	off += padding(off)
	off += nodeCount * wordSize
	off += padding(off)
	return off
}

// Builder incrementally constructs a persistent AVL tree over trie leaves,
// keyed by access time, directly inside a growable mapped byte slice.
// Direct port of indexbuild_new/indexbuild_add/indexbuild_tag/
// indexbuild_rebase/indexbuild_realsize.
type Builder struct {
	mapped []byte

	rootsOff  int64
	nodesOff  int64
	nodeCount int64 // total leaves this index will eventually hold

	n      int64 // number of Adds so far == roots table cursor
	nnodes int64 // number of avlnode slots allocated so far

	currRoot     int64 // 0 means nil
	firstMutable int64 // node index (not offset) at/after which a node is already mutable
}

// NewBuilder lays out the roots table and node arena starting at
// startOffset and returns a Builder ready to accept nodeCount Adds.
// mapped must already be large enough to hold InitialSize(startOffset,
// nodeCount) bytes; the caller grows by Delta(nodeCount) before every
// subsequent Add, as agedu.c's main loop does around indexbuild_add.
func NewBuilder(mapped []byte, startOffset int64, nodeCount int64) *Builder {
	off := startOffset
	off += padding(off)
	rootsOff := off
	off += nodeCount * wordSize
	off += padding(off)
	nodesOff := off

	return &Builder{
		mapped:    mapped,
		rootsOff:  rootsOff,
		nodesOff:  nodesOff,
		nodeCount: nodeCount,
	}
}

// IndexRootOffset is the offset internal/index must record as the file
// header's indexroot field (trie_set_index_offset).
func (b *Builder) IndexRootOffset() int64 { return b.rootsOff }

// Rebase points Builder at a freshly remapped copy of the same file. Since
// every field inside Builder is a file offset rather than a raw pointer,
// this never needs pointer-diff arithmetic the way indexbuild_rebase does.
func (b *Builder) Rebase(mapped []byte) {
	b.mapped = mapped
}

func (b *Builder) nodeOffset(index int64) int64 {
	return b.nodesOff + index*nodeSize
}

// makeMutable returns a node offset that is safe to write through: if off
// already refers to a node allocated since the last Tag, it is returned
// unchanged; otherwise a fresh mutable copy is allocated and its content
// copied from off (or left zeroed if off is nil).
func (b *Builder) makeMutable(off int64) int64 {
	if off != 0 && (off-b.nodesOff)/nodeSize >= b.firstMutable {
		return off
	}
	newOff := b.nodeOffset(b.nnodes)
	b.nnodes++
	if off != 0 {
		copy(b.mapped[newOff:newOff+nodeSize], b.mapped[off:off+nodeSize])
	}
	return newOff
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// fix recomputes n's cached maxdepth/totalsize annotations from its
// children. Direct port of avl_fix.
func (b *Builder) fix(off int64) {
	n := at(b.mapped, off)
	left := at(b.mapped, n.child(0))
	right := at(b.mapped, n.child(1))

	n.setMaxDepth(1 + maxI64(left.maxDepth(), right.maxDepth()))

	leaf := trie.ReadLeafAt(b.mapped, n.element())
	total := leaf.Size + left.totalSize() + right.totalSize()
	n.setTotalSize(total)
}

// insert inserts the trie leaf at leafOffset into the subtree rooted at
// off (0 for an empty subtree), rebalancing as needed, and returns the new
// subtree root. Direct, recursive port of avl_insert: recursion depth is
// bounded by MaxDepth, i.e. O(log n), so there is no call-stack concern
// here unlike the trie traversals.
func (b *Builder) insert(off int64, leafOffset int64) int64 {
	if off == 0 {
		newOff := b.makeMutable(0)
		n := at(b.mapped, newOff)
		n.setChild(0, 0)
		n.setChild(1, 0)
		n.setElement(leafOffset)
		b.fix(newOff)
		return newOff
	}

	newLeaf := trie.ReadLeafAt(b.mapped, leafOffset)
	oldLeaf := trie.ReadLeafAt(b.mapped, at(b.mapped, off).element())
	subtree := 0
	if newLeaf.Atime > oldLeaf.Atime {
		subtree = 1
	}

	off = b.makeMutable(off)
	n := at(b.mapped, off)

	childOff := b.insert(n.child(subtree), leafOffset)
	n.setChild(subtree, childOff)

	other := 1 - subtree
	if at(b.mapped, n.child(subtree)).maxDepth() > at(b.mapped, n.child(other)).maxDepth()+1 {
		off = b.rebalance(off, subtree)
		n = at(b.mapped, off)
	}

	b.fix(off)
	return off
}

// rebalance performs the single or double AVL rotation needed after
// inserting into child `subtree` of n made it too deep. Direct port of the
// rotation logic inside avl_insert.
func (b *Builder) rebalance(nOff int64, subtree int) int64 {
	other := 1 - subtree
	n := at(b.mapped, nOff)
	pOff := n.child(subtree)
	p := at(b.mapped, pOff)

	if at(b.mapped, p.child(subtree)).maxDepth() >= at(b.mapped, p.child(other)).maxDepth() {
		// Single rotation.
		n.setChild(subtree, p.child(other))
		p.setChild(other, nOff)
		b.fix(nOff)
		return pOff
	}

	// Double rotation.
	qOff := p.child(other)
	q := at(b.mapped, qOff)
	p.setChild(other, q.child(subtree))
	n.setChild(subtree, q.child(other))
	q.setChild(other, nOff)
	q.setChild(subtree, pOff)
	b.fix(nOff)
	b.fix(pOff)
	return qOff
}

// Add inserts the trie leaf at leafOffset into the tree under
// construction. Direct port of indexbuild_add.
func (b *Builder) Add(leafOffset int64) {
	b.currRoot = b.insert(b.currRoot, leafOffset)
	putU64(b.mapped, b.rootsOff+b.n*wordSize, 0)
	b.n++
}

// Tag snapshots the current root into the roots table at the most recent
// Add's slot, and freezes every node allocated so far so future Adds copy
// rather than mutate them. Direct port of indexbuild_tag.
func (b *Builder) Tag() {
	if b.n > 0 {
		putU64(b.mapped, b.rootsOff+(b.n-1)*wordSize, uint64(b.currRoot))
	}
	b.firstMutable = b.nnodes
}

// RealSize returns the offset immediately past every node allocated so
// far - the true size to truncate the file down to once the build is
// complete, discarding any slack reserved by Delta but never used.
// Direct port of indexbuild_realsize.
func (b *Builder) RealSize() int64 {
	return b.nodeOffset(b.nnodes)
}
