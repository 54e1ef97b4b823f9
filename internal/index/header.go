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

import "encoding/binary"

var ne = binary.NativeEndian

func putUint64(buf []byte, off int, v uint64) {
	ne.PutUint64(buf[off:off+8], v)
}

func getUint64(buf []byte, off int) uint64 {
	return ne.Uint64(buf[off : off+8])
}

// Header is the fixed-size record at the start of every index file,
// following the magic block. Direct port of struct trie_header. Every
// field is stored as a native-endian uint64 rather than the reference
// implementation's mix of off_t/int/size_t: spec.md's native-endian
// requirement is about byte order, not word width, and using one uniform
// width avoids the platform-dependent struct layout the C version has to
// paper over with its magic block in the first place.
type Header struct {
	Root       int64
	IndexRoot  int64
	Count      int64
	MaxPathLen int64
	PathSep    byte
}

// headerSize is five uint64 fields; PathSep is packed into the low byte
// of its own word to keep every field 8-byte aligned.
const headerSize = 5 * 8

// HeaderOffset is the file offset the header sits at: immediately after
// the magic block.
const HeaderOffset = magicSize

func encodeHeader(h Header) []byte {
	buf := make([]byte, headerSize)
	putUint64(buf, 0, uint64(h.Root))
	putUint64(buf, 8, uint64(h.IndexRoot))
	putUint64(buf, 16, uint64(h.Count))
	putUint64(buf, 24, uint64(h.MaxPathLen))
	putUint64(buf, 32, uint64(h.PathSep))
	return buf
}

func decodeHeader(buf []byte) Header {
	return Header{
		Root:       int64(getUint64(buf, 0)),
		IndexRoot:  int64(getUint64(buf, 8)),
		Count:      int64(getUint64(buf, 16)),
		MaxPathLen: int64(getUint64(buf, 24)),
		PathSep:    byte(getUint64(buf, 32)),
	}
}

// TrieStart is the first offset available to internal/trie.Builder: right
// after the header.
const TrieStart = HeaderOffset + headerSize
