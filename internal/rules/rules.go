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

// Package rules implements the scanner's inclusion/exclusion/prune wildcard
// model from spec.md §4.1: an ordered list of (wildcard, scope, action)
// rules, evaluated in order, where the last match wins.
package rules

import (
	"fmt"
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
)

// Scope selects what a rule's wildcard is matched against.
type Scope string

// The two scopes a rule can apply to.
const (
	ScopeFilename Scope = "filename"
	ScopeFullPath Scope = "fullpath"
)

// Action is the effect a matching rule has on an entry.
type Action int

// The three actions a rule can take, matching spec.md §4.1.
const (
	ActionInclude Action = iota
	ActionExclude
	ActionPrune
)

// Rule is one (wildcard, scope, action) triple, in the order it was
// supplied on the command line.
type Rule struct {
	Wildcard string `validate:"required"`
	Scope    Scope  `validate:"oneof=filename fullpath"`
	Action   Action
}

var validate = validator.New()

// Validate rejects a rule with an empty wildcard or an unrecognized scope,
// the way api/rosetta/validator.go validates request structs before they
// reach the business logic.
func (r Rule) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid scan rule %+v: %w", r, err)
	}
	return nil
}

// Matcher evaluates an ordered rule list against scan entries. It memoizes
// glob match results keyed by an xxhash digest of the (wildcard, value)
// pair, since the same small set of wildcards gets evaluated against every
// entry in a large tree.
type Matcher struct {
	rules []Rule
	mu    sync.Mutex
	cache map[uint64]bool
}

// New compiles an ordered rule list into a Matcher. Every rule is
// validated, and every invalid one is reported at once rather than
// stopping at the first, so a long --include/--exclude command line
// doesn't need to be fixed one flag at a time.
func New(ruleList []Rule) (*Matcher, error) {
	var errs *multierror.Error
	for i, r := range ruleList {
		if err := r.Validate(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("rule %d: %w", i, err))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &Matcher{
		rules: ruleList,
		cache: make(map[uint64]bool),
	}, nil
}

// Evaluate returns the action for a full pathname and its final path
// component (the filename), by iterating the rules in order and
// remembering the last one that matched, per spec.md §4.1. It defaults to
// ActionInclude when no rule matches.
func (m *Matcher) Evaluate(fullPath, filename string) Action {
	action := ActionInclude
	for _, r := range m.rules {
		subject := filename
		if r.Scope == ScopeFullPath {
			subject = fullPath
		}
		if m.match(r.Wildcard, subject) {
			action = r.Action
		}
	}
	return action
}

func (m *Matcher) match(wildcard, value string) bool {
	key := digest(wildcard, value)

	m.mu.Lock()
	if hit, ok := m.cache[key]; ok {
		m.mu.Unlock()
		return hit
	}
	m.mu.Unlock()

	ok := globMatch(wildcard, value)

	m.mu.Lock()
	m.cache[key] = ok
	m.mu.Unlock()

	return ok
}

// globMatch implements fnmatch-style glob matching without FNM_PATHNAME:
// "*" and "?" match the path separator like any other byte, which is what
// lets a full-path wildcard such as "*/tmp/*" match an arbitrarily deep
// "a/b/tmp/x" (agedu.c calls fnmatch with flags 0, never FNM_PATHNAME).
// path.Match from the standard library cannot be used here because it
// always treats '/' as a segment boundary that "*" may not cross.
func globMatch(pattern, name string) bool {
	// Classic recursive glob match, with the recursive case on '*'
	// collapsed into a loop so a run of stars does not blow the stack.
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			pattern = pattern[1:]
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if globMatch(pattern, name[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(name) == 0 {
				return false
			}
			pattern = pattern[1:]
			name = name[1:]
		case '[':
			class, rest, ok := parseClass(pattern)
			if !ok || len(name) == 0 || !class(name[0]) {
				return false
			}
			pattern = rest
			name = name[1:]
		default:
			if len(name) == 0 || name[0] != pattern[0] {
				return false
			}
			pattern = pattern[1:]
			name = name[1:]
		}
	}
	return len(name) == 0
}

// parseClass parses a leading "[...]" character class, returning a
// predicate for membership and the remainder of the pattern after it.
func parseClass(pattern string) (pred func(byte) bool, rest string, ok bool) {
	end := 1
	negate := false
	if end < len(pattern) && (pattern[end] == '^' || pattern[end] == '!') {
		negate = true
		end++
	}
	start := end
	for end < len(pattern) && pattern[end] != ']' {
		end++
	}
	if end >= len(pattern) {
		return nil, pattern, false
	}
	set := pattern[start:end]
	pred = func(c byte) bool {
		match := false
		for i := 0; i < len(set); i++ {
			if i+2 < len(set) && set[i+1] == '-' {
				if set[i] <= c && c <= set[i+2] {
					match = true
				}
				i += 2
				continue
			}
			if set[i] == c {
				match = true
			}
		}
		if negate {
			return !match
		}
		return match
	}
	return pred, pattern[end+1:], true
}

func digest(wildcard, value string) uint64 {
	h := xxhash.New64()
	_, _ = h.WriteString(wildcard)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(value)
	return h.Sum64()
}
