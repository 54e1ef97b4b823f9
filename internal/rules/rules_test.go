package rules_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agedu-go/ageidx/internal/rules"
)

func TestEvaluateScenarioD(t *testing.T) {
	// Scenario D from spec.md §8.
	m, err := rules.New([]rules.Rule{
		{Wildcard: "*/tmp/*", Scope: rules.ScopeFullPath, Action: rules.ActionExclude},
		{Wildcard: "*/tmp/keep", Scope: rules.ScopeFullPath, Action: rules.ActionInclude},
	})
	require.NoError(t, err)

	require.Equal(t, rules.ActionExclude, m.Evaluate("a/tmp/x", "x"))
	require.Equal(t, rules.ActionInclude, m.Evaluate("a/tmp/keep", "keep"))
	// A file under the kept directory still matches "*/tmp/*" ('*'
	// crosses '/'), and the keep rule names the directory's exact path,
	// so it does not match "a/tmp/keep/y": the last match is the exclude.
	require.Equal(t, rules.ActionExclude, m.Evaluate("a/tmp/keep/y", "y"))
}

func TestEvaluateLastMatchWins(t *testing.T) {
	m, err := rules.New([]rules.Rule{
		{Wildcard: "*.log", Scope: rules.ScopeFilename, Action: rules.ActionExclude},
		{Wildcard: "important.log", Scope: rules.ScopeFilename, Action: rules.ActionInclude},
	})
	require.NoError(t, err)

	require.Equal(t, rules.ActionInclude, m.Evaluate("a/important.log", "important.log"))
	require.Equal(t, rules.ActionExclude, m.Evaluate("a/other.log", "other.log"))
}

func TestEvaluateDefaultInclude(t *testing.T) {
	m, err := rules.New(nil)
	require.NoError(t, err)
	require.Equal(t, rules.ActionInclude, m.Evaluate("anything", "anything"))
}

func TestGlobCrossesSeparator(t *testing.T) {
	// Full-path wildcards must let '*' cross '/', unlike path.Match.
	m, err := rules.New([]rules.Rule{
		{Wildcard: "*/tmp/*", Scope: rules.ScopeFullPath, Action: rules.ActionExclude},
	})
	require.NoError(t, err)
	require.Equal(t, rules.ActionExclude, m.Evaluate("a/b/c/tmp/x", "x"))
}

func TestValidateRejectsEmptyWildcard(t *testing.T) {
	_, err := rules.New([]rules.Rule{{Wildcard: "", Scope: rules.ScopeFilename}})
	require.Error(t, err)
}

func TestValidateRejectsBadScope(t *testing.T) {
	_, err := rules.New([]rules.Rule{{Wildcard: "*", Scope: "nonsense"}})
	require.Error(t, err)
}

func TestCharacterClass(t *testing.T) {
	m, err := rules.New([]rules.Rule{
		{Wildcard: "file[0-9].txt", Scope: rules.ScopeFilename, Action: rules.ActionExclude},
	})
	require.NoError(t, err)
	require.Equal(t, rules.ActionExclude, m.Evaluate("a/file3.txt", "file3.txt"))
	require.Equal(t, rules.ActionInclude, m.Evaluate("a/fileA.txt", "fileA.txt"))
}
