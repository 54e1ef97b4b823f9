package pathorder_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agedu-go/ageidx/internal/pathorder"
)

func TestCompareByte(t *testing.T) {
	// NUL < separator < everything else, in natural order above that.
	assert.True(t, pathorder.CompareByte('/', 0, '/') < 0)
	assert.True(t, pathorder.CompareByte('/', '/', 'a') < 0)
	assert.True(t, pathorder.CompareByte('/', 'a', 'b') < 0)
	assert.Equal(t, 0, pathorder.CompareByte('/', 'x', 'x'))
}

func TestCompareScenarioC(t *testing.T) {
	// Scenario C from spec.md §8: byte order would put "foo" < "foo.bar" <
	// "foo/baz"; collation order must put "foo" < "foo/baz" < "foo.bar".
	names := []string{"foo", "foo.bar", "foo/baz"}
	sort.Slice(names, func(i, j int) bool { return pathorder.Less('/', names[i], names[j]) })
	require.Equal(t, []string{"foo", "foo/baz", "foo.bar"}, names)
}

func TestCompareDirectoryContiguity(t *testing.T) {
	paths := []string{"a", "a/b", "a/c", "a/c/d", "a/c/e", "b"}
	sort.Slice(paths, func(i, j int) bool { return pathorder.Less('/', paths[i], paths[j]) })
	assert.Equal(t, []string{"a", "a/b", "a/c", "a/c/d", "a/c/e", "b"}, paths)
}

func TestSuccessor(t *testing.T) {
	assert.Equal(t, "foo\x01", pathorder.Successor('/', "foo"))
	// A trailing separator is stripped before the marker is appended.
	assert.Equal(t, "\x01", pathorder.Successor('/', "/"))
}

func TestSuccessorOrdering(t *testing.T) {
	sep := byte('/')
	prefix := "a/c"
	succ := pathorder.Successor(sep, prefix)

	descendant := "a/c/zzzzzz"
	sibling := "a/d"

	assert.True(t, pathorder.Less(sep, prefix, succ))
	assert.True(t, pathorder.Less(sep, descendant, succ))
	assert.True(t, pathorder.Less(sep, succ, sibling))
}
