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

// Package pathorder defines the total order on pathnames used throughout the
// index: byte order, except that the path separator sorts immediately after
// NUL and before every other byte. This makes every directory's subtree a
// contiguous range in sorted order, with the directory's own entry
// immediately preceding it.
package pathorder

// Rank gives the collation rank of a single byte: NUL is least, the
// separator is next, everything else keeps its natural order above that.
func Rank(sep byte, c byte) int {
	switch {
	case c == 0:
		return 0
	case c == sep:
		return 1
	default:
		return int(c) + 1
	}
}

// CompareByte orders two bytes under the collation rule.
func CompareByte(sep byte, a, b byte) int {
	return Rank(sep, a) - Rank(sep, b)
}

// Compare orders two byte strings under the collation rule. Use
// CompareOffset to also get the length of their common prefix.
//
// It mirrors triencmp/trieccmp from the reference trie implementation:
// walk both strings while they agree, then compare the first differing
// byte (or, if one is a prefix of the other, the shorter string sorts
// first).
func Compare(sep byte, a, b []byte) int {
	cmp, _ := CompareOffset(sep, a, b)
	return cmp
}

// CompareOffset is Compare, additionally returning the length of the
// common prefix of a and b.
func CompareOffset(sep byte, a, b []byte) (cmp int, offset int) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	off := 0
	for off < n && a[off] == b[off] {
		off++
	}
	if off == len(a) || off == len(b) {
		switch {
		case len(a) == len(b):
			return 0, off
		case off == len(a):
			return -1, off
		default:
			return 1, off
		}
	}
	return CompareByte(sep, a[off], b[off]), off
}

// Less reports whether a sorts strictly before b under the collation order.
// It is the comparator to hand to a stable sort over a batch of pathnames
// before feeding them to a trie builder.
func Less(sep byte, a, b string) bool {
	return Compare(sep, []byte(a), []byte(b)) < 0
}

// Successor returns the shortest string that sorts strictly after prefix
// and every descendant of prefix, and strictly before any unrelated
// sibling that follows it. It strips one trailing separator if present and
// appends byte value 0x01, exactly as make_successor does in the reference
// implementation (whose trailing NUL was only a C-string artifact; see
// SPEC_FULL.md's Open Question on this point).
func Successor(sep byte, prefix string) string {
	if len(prefix) > 0 && prefix[len(prefix)-1] == sep {
		prefix = prefix[:len(prefix)-1]
	}
	return prefix + "\x01"
}
