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

import (
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/agedu-go/ageidx/internal/trie"
)

// Reader answers prefix-sum and order-statistic queries against a tagged
// AVL snapshot. Direct port of index_query/index_order_stat.
//
// n in both operations is a 1-indexed prefix count: "the tree as it stood
// after the n-th Add", matching the roots table's indexing in
// original_source/agedu/index.c. Since leaves are added in trie order, a
// trie rank can be passed as n directly.
type Reader struct {
	mapped   []byte
	rootsOff int64
	count    int64

	cache *ristretto.Cache // optional; nil means uncached
}

// NewReader wraps mapped with the AVL metadata read from the file header:
// the roots table offset and the total leaf count.
func NewReader(mapped []byte, rootsOff, count int64) *Reader {
	return &Reader{mapped: mapped, rootsOff: rootsOff, count: count}
}

// WithCache attaches a ristretto cache that memoizes Query results keyed
// by (n, at). Order-statistic queries are not cached since f is a float
// and makes a poor cache key; they are also rarer (one per requested
// report line, not one per directory entry).
func (r *Reader) WithCache(cache *ristretto.Cache) *Reader {
	r.cache = cache
	return r
}

func (r *Reader) rootAt(n int64) int64 {
	if n < 1 {
		return 0
	}
	if n > r.count {
		n = r.count
	}
	off := int64(getU64(r.mapped, r.rootsOff+(n-1)*wordSize))
	if off == 0 {
		panic(fmt.Sprintf("avlindex: roots[%d] was never tagged", n-1))
	}
	return off
}

type queryKey struct {
	n  int64
	at uint64
}

// Query returns the total size of every element in the first n Adds whose
// atime is < at: the "how much is older than this instant" primitive
// every age-based report in spec.md §4.3/§4.4 is built from.
func (r *Reader) Query(n int64, atime uint64) uint64 {
	if r.cache != nil {
		key := queryKey{n: n, at: atime}
		if v, ok := r.cache.Get(key); ok {
			return v.(uint64)
		}
		v := r.query(n, atime)
		r.cache.Set(key, v, 1)
		return v
	}
	return r.query(n, atime)
}

func (r *Reader) query(n int64, atime uint64) uint64 {
	if n < 1 {
		return 0
	}
	off := r.rootAt(n)

	var ret uint64
	for off != 0 {
		nd := at(r.mapped, off)
		leaf := trie.ReadLeafAt(r.mapped, nd.element())
		left := nd.child(0)

		if atime <= leaf.Atime {
			off = left
		} else {
			if left != 0 {
				ret += at(r.mapped, left).totalSize()
			}
			ret += leaf.Size
			off = nd.child(1)
		}
	}
	return ret
}

// OrderStatistic returns the atime such that elements of the first n Adds
// with an older atime account for at most a fraction f (0..1) of their
// total size. Direct port of index_order_stat.
func (r *Reader) OrderStatistic(n int64, f float64) uint64 {
	if n < 1 {
		return 0
	}
	off := r.rootAt(n)
	nd := at(r.mapped, off)

	size := uint64(float64(nd.totalSize()) * f)

	for {
		nd = at(r.mapped, off)
		leaf := trie.ReadLeafAt(r.mapped, nd.element())
		left := nd.child(0)
		right := nd.child(1)

		leftSize := uint64(0)
		if left != 0 {
			leftSize = at(r.mapped, left).totalSize()
		}

		switch {
		case left != 0 && size < leftSize:
			off = left
		case right == 0 || size < leftSize+leaf.Size:
			return leaf.Atime
		default:
			size -= leftSize + leaf.Size
			off = right
		}
	}
}
