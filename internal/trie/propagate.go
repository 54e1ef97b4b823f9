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

// slot identifies which field of a paused atimeFrame a completing child
// call's result should be folded into once it returns.
type slot int

const (
	slotMax slot = iota
	slotSubdir
)

// atimeFrame is one Switch node's in-progress fixup, mirroring one
// activation record of fake_atime_recurse. stage tracks which part of the
// original function body this frame is paused in:
//
//	0 - scanning children in reverse, recursing into every non-bare,
//	    non-separator child and folding its result into max
//	1 - resolving the subdir value from the separator child (or from
//	    lastSeenPathsep/max if there is none)
//	2 - applying subdir to the bare child's leaf, if any
//	3 - done; fold max into the parent and pop
type atimeFrame struct {
	sw              switchView
	lastSeenPathsep bool
	i               int
	max             uint64
	subdir          uint64
	bareIndex       int
	slashIndex      int
	stage           int
	pendingSlot     slot
}

// PropagateDirAtimes overwrites every directory leaf's atime with the
// maximum atime found anywhere in its subtree, so that "most recently
// touched" queries against a directory reflect its contents rather than
// just the directory inode itself (spec.md §4.1's directory-atime rule).
// mapped must be writable (the index file mapped MAP_SHARED, not
// MAP_PRIVATE) and root must be the trie's root offset.
//
// Direct port of fake_atime_recurse/trie_fake_dir_atimes from
// original_source/trie.c. The reference implementation recurses on the C
// call stack; this uses an explicit stack instead, since directory nesting
// depth is attacker/input controlled and otherwise unbounded.
func PropagateDirAtimes(mapped []byte, root int64, sep byte) {
	var stack []atimeFrame

	call := func(off int64, lastSeenPathsep bool) (value uint64, isLeaf bool) {
		for nodeTag(mapped, off) == tagString {
			st := decodeString(mapped[off:])
			frag := st.Fragment()
			lastSeenPathsep = len(frag) > 0 && frag[len(frag)-1] == sep
			off = st.Subnode()
		}
		if nodeTag(mapped, off) == tagLeaf {
			return decodeLeaf(mapped[off:]).Atime, true
		}
		stack = append(stack, atimeFrame{
			sw:              decodeSwitch(mapped[off:]),
			lastSeenPathsep: lastSeenPathsep,
			i:               decodeSwitch(mapped[off:]).Len() - 1,
			bareIndex:       -1,
			slashIndex:      -1,
		})
		return 0, false
	}

	if _, isLeaf := call(root, true); isLeaf {
		return
	}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		switch top.stage {
		case 0:
			if top.i < 0 {
				top.stage = 1
				continue
			}
			idx := top.i
			top.i--
			c := top.sw.Char(idx)
			switch {
			case c == 0:
				top.bareIndex = idx
			case c == sep:
				top.slashIndex = idx
			default:
				val, isLeaf := call(top.sw.SubOffset(idx), false)
				if isLeaf {
					if top.max < val {
						top.max = val
					}
				} else {
					top.pendingSlot = slotMax
				}
			}

		case 1:
			if top.slashIndex >= 0 {
				val, isLeaf := call(top.sw.SubOffset(top.slashIndex), true)
				if isLeaf {
					top.subdir = val
					if top.max < val {
						top.max = val
					}
					top.stage = 2
				} else {
					top.pendingSlot = slotSubdir
				}
			} else {
				if top.lastSeenPathsep {
					top.subdir = top.max
				} else {
					top.subdir = 0
				}
				top.stage = 2
			}

		case 2:
			if top.bareIndex >= 0 {
				leafOff := int(top.sw.SubOffset(top.bareIndex))
				atime := getUint64(mapped, leafOff+16)
				if atime < top.subdir {
					atime = top.subdir
					putUint64(mapped, leafOff+16, atime)
				}
				if top.max < atime {
					top.max = atime
				}
			}
			top.stage = 3

		case 3:
			result := top.max
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				break
			}
			parent := &stack[len(stack)-1]
			switch parent.pendingSlot {
			case slotMax:
				if parent.max < result {
					parent.max = result
				}
			case slotSubdir:
				parent.subdir = result
				if parent.max < result {
					parent.max = result
				}
				parent.stage = 2
			}
		}
	}
}
