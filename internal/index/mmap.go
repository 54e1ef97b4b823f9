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

package index

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapWritable grows f to size bytes (if it is currently smaller) and
// returns a read-write shared mapping of the whole file. Grounded on the
// go-git mmap package's unix.Mmap usage, generalized from its read-only
// PROT_READ mapping to PROT_READ|PROT_WRITE, matching agedu.c's own build
// loop, which maps the output file for both reading and writing.
func mapWritable(f *os.File, size int64) ([]byte, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() < size {
		if err := f.Truncate(size); err != nil {
			return nil, err
		}
	}
	return unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// mapReadOnly maps the whole of f, which must already have size bytes, for
// reading only.
func mapReadOnly(f *os.File, size int64) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
}

// remap unmaps mapped, grows f by at least delta bytes plus 10% slack (the
// same over-allocation agedu.c's main loop applies on every grow, to avoid
// remapping on every single Add), and returns a fresh mapping. Direct port
// of the munmap/lseek/write/mmap sequence around agedu.c's indexbuild_add
// call.
func remap(f *os.File, mapped []byte, newSize int64) ([]byte, int64, error) {
	if err := unix.Munmap(mapped); err != nil {
		return nil, 0, err
	}
	newSize += newSize / 10
	grown, err := mapWritable(f, newSize)
	if err != nil {
		return nil, 0, err
	}
	return grown, newSize, nil
}
