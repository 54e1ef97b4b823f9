package trie_test

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agedu-go/ageidx/internal/pathorder"
	"github.com/agedu-go/ageidx/internal/trie"
)

const sep = '/'

type entry struct {
	path string
	leaf trie.Leaf
}

func build(t *testing.T, entries []entry) ([]byte, int64, int64, int) {
	t.Helper()
	sort.Slice(entries, func(i, j int) bool {
		return pathorder.Less(sep, entries[i].path, entries[j].path)
	})

	var buf bytes.Buffer
	b := trie.NewBuilder(&buf, 0, sep)
	for _, e := range entries {
		require.NoError(t, b.Add(e.path, e.leaf))
	}
	root, count, maxPathLen, err := b.Finish()
	require.NoError(t, err)
	require.EqualValues(t, len(entries), count)

	return buf.Bytes(), root, count, maxPathLen
}

// TestWalkDirectoryBeforeDescendants builds a small directory tree's trie
// and checks that a full walk yields every path exactly once, with each
// directory's own entry before its descendants.
func TestWalkDirectoryBeforeDescendants(t *testing.T) {
	entries := []entry{
		{"/home", trie.Leaf{Size: 10, Atime: 100}},
		{"/home/alice", trie.Leaf{Size: 20, Atime: 200}},
		{"/home/alice/file.txt", trie.Leaf{Size: 30, Atime: 300}},
		{"/home/bob", trie.Leaf{Size: 40, Atime: 150}},
	}
	mapped, root, count, _ := build(t, entries)

	w := trie.NewWalker(mapped, root)
	var walked []string
	for i := int64(0); i < count; i++ {
		path, _, _, ok := w.Next()
		require.True(t, ok)
		walked = append(walked, path)
	}
	_, _, _, ok := w.Next()
	require.False(t, ok)

	require.Equal(t, []string{
		"/home",
		"/home/alice",
		"/home/alice/file.txt",
		"/home/bob",
	}, walked)
}

func TestRankMatchesWalkOrder(t *testing.T) {
	entries := []entry{
		{"foo", trie.Leaf{Size: 1}},
		{"foo.bar", trie.Leaf{Size: 2}},
		{"foo/baz", trie.Leaf{Size: 3}},
		{"foobar", trie.Leaf{Size: 4}},
	}
	mapped, root, count, _ := build(t, entries)
	r := trie.NewReader(mapped, root, count, sep)

	w := trie.NewWalker(mapped, root)
	var order []string
	for i := int64(0); i < count; i++ {
		path, _, _, ok := w.Next()
		require.True(t, ok)
		order = append(order, path)
	}

	// spec.md §8 Scenario C's exact collation order.
	require.Equal(t, []string{"foo", "foo/baz", "foo.bar", "foobar"}, order)

	for i, path := range order {
		require.EqualValues(t, i, r.Rank(path), "rank of %q", path)
	}
}

func TestGetPathAndGetFileAgreeWithRank(t *testing.T) {
	entries := []entry{
		{"a", trie.Leaf{Size: 1, Atime: 11}},
		{"a/b", trie.Leaf{Size: 2, Atime: 22}},
		{"a/c", trie.Leaf{Size: 3, Atime: 33}},
		{"b", trie.Leaf{Size: 4, Atime: 44}},
	}
	mapped, root, count, _ := build(t, entries)
	r := trie.NewReader(mapped, root, count, sep)

	for i := int64(0); i < count; i++ {
		path := r.Path(i)
		require.EqualValues(t, i, r.Rank(path))
		leaf := r.File(i)

		var want trie.Leaf
		for _, e := range entries {
			if e.path == path {
				want = e.leaf
			}
		}
		require.Equal(t, want, leaf)
	}
}

func TestPrefixRangeViaSuccessor(t *testing.T) {
	entries := []entry{
		{"a", trie.Leaf{Size: 1}},
		{"a/b", trie.Leaf{Size: 2}},
		{"a/c", trie.Leaf{Size: 3}},
		{"a/c/d", trie.Leaf{Size: 4}},
		{"ab", trie.Leaf{Size: 5}},
		{"b", trie.Leaf{Size: 6}},
	}
	mapped, root, count, _ := build(t, entries)
	r := trie.NewReader(mapped, root, count, sep)

	lo := r.Rank("a")
	hi := r.Rank(pathorder.Successor(sep, "a"))
	require.EqualValues(t, 0, lo)
	require.EqualValues(t, 4, hi) // a, a/b, a/c, a/c/d - not ab or b
}

func TestPropagateDirAtimes(t *testing.T) {
	entries := []entry{
		{"/home", trie.Leaf{Size: 10, Atime: 1}},
		{"/home/alice", trie.Leaf{Size: 20, Atime: 2}},
		{"/home/alice/old.txt", trie.Leaf{Size: 30, Atime: 100}},
		{"/home/alice/new.txt", trie.Leaf{Size: 40, Atime: 500}},
		{"/home/bob", trie.Leaf{Size: 50, Atime: 9}},
		{"/home/bob/only.txt", trie.Leaf{Size: 60, Atime: 42}},
	}
	mapped, root, count, _ := build(t, entries)

	trie.PropagateDirAtimes(mapped, root, sep)

	r := trie.NewReader(mapped, root, count, sep)
	got := map[string]uint64{}
	for i := int64(0); i < count; i++ {
		got[r.Path(i)] = r.File(i).Atime
	}

	require.EqualValues(t, 500, got["/home/alice"], "directory atime must become the max of its subtree")
	require.EqualValues(t, 42, got["/home/bob"])
	require.EqualValues(t, 500, got["/home"], "ancestor directories propagate transitively")
	// Leaf files are untouched.
	require.EqualValues(t, 100, got["/home/alice/old.txt"])
	require.EqualValues(t, 500, got["/home/alice/new.txt"])
}

func TestAddOutOfOrderRejected(t *testing.T) {
	var buf bytes.Buffer
	b := trie.NewBuilder(&buf, 0, sep)
	require.NoError(t, b.Add("b", trie.Leaf{}))
	require.Error(t, b.Add("a", trie.Leaf{}))
}
