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

// Package dump implements the text interchange format described in
// spec.md §6.2: one header line naming the path separator, then one line
// per scanned entry ("size atime escaped-path\n"). It is a thin adaptor
// over the same (path, Record) stream internal/scan produces, letting a
// scan be serialized, edited, or transported independently of the binary
// trie/AVL index. WriteLine and Reader's line parser are direct,
// renamed ports of dump_line and the dump-file parsing loop in
// original_source/agedu.c.
package dump

import (
	"bufio"
	"fmt"
	"io"
)

// headerPrefix opens every dump file's first line, followed by the path
// separator as two lowercase hex digits. Deliberately distinct from the
// reference implementation's "agedu dump file. pathsep=" string, the same
// way internal/index's magic block uses its own ident string: this is an
// independent format sharing the reference's technique, not a byte-exact
// clone of it.
const headerPrefix = "ageidx dump file. pathsep="

// WriteHeader writes the dump file's first line, recording sep so Reader
// can recover it without the caller needing to pass it out of band.
func WriteHeader(w io.Writer, sep byte) error {
	_, err := fmt.Fprintf(w, "%s%02x\n", headerPrefix, sep)
	return err
}

// WriteLine appends one entry. Direct port of dump_line: size and atime
// are written as decimal integers, and path is escaped byte-by-byte, with
// anything outside printable, 7-bit, non-'%' ASCII replaced by "%XX".
func WriteLine(w io.Writer, path string, size, atime uint64) error {
	if _, err := fmt.Fprintf(w, "%d %d ", size, atime); err != nil {
		return err
	}
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c >= ' ' && c < 127 && c != '%' {
			if _, err := w.Write([]byte{c}); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%%%02x", c); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte{'\n'})
	return err
}

// Reader parses a dump file produced by WriteHeader/WriteLine.
type Reader struct {
	sc   *bufio.Scanner
	sep  byte
	line int
}

// NewReader reads and parses the header line from r, and returns a Reader
// positioned to yield entries via Next.
func NewReader(r io.Reader) (*Reader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("dump: reading header: %w", err)
		}
		return nil, fmt.Errorf("dump: empty file, expected a header line")
	}
	header := sc.Text()
	if len(header) < len(headerPrefix)+2 || header[:len(headerPrefix)] != headerPrefix {
		return nil, fmt.Errorf("dump: header line not recognised")
	}
	var sep uint64
	if _, err := fmt.Sscanf(header[len(headerPrefix):], "%x", &sep); err != nil {
		return nil, fmt.Errorf("dump: header line not recognised: %w", err)
	}
	return &Reader{sc: sc, sep: byte(sep), line: 1}, nil
}

// Sep is the path separator recorded in the dump file's header line.
func (r *Reader) Sep() byte { return r.sep }

// Next parses the next entry line. ok is false once the file is
// exhausted; err is non-nil only on a malformed line or an I/O error, in
// which case ok is also false.
func (r *Reader) Next() (path string, size, atime uint64, ok bool, err error) {
	r.line++
	if !r.sc.Scan() {
		if serr := r.sc.Err(); serr != nil {
			return "", 0, 0, false, fmt.Errorf("dump: line %d: %w", r.line, serr)
		}
		return "", 0, 0, false, nil
	}
	line := r.sc.Text()

	i := 0
	size, i, err = scanUint(line, i, r.line)
	if err != nil {
		return "", 0, 0, false, err
	}
	atime, i, err = scanUint(line, i, r.line)
	if err != nil {
		return "", 0, 0, false, err
	}

	path, err = unescape(line[i:], r.line)
	if err != nil {
		return "", 0, 0, false, err
	}
	return path, size, atime, true, nil
}

// scanUint parses one space-terminated decimal field starting at i,
// mirroring the reference parser's "walk to the next space, NUL it, parse
// with strtoull" sequence.
func scanUint(line string, i int, lineNo int) (uint64, int, error) {
	start := i
	for i < len(line) && line[i] != ' ' {
		i++
	}
	if i >= len(line) || start == i {
		return 0, 0, fmt.Errorf("dump: line %d: expected at least three fields", lineNo)
	}
	var v uint64
	for _, c := range line[start:i] {
		if c < '0' || c > '9' {
			return 0, 0, fmt.Errorf("dump: line %d: expected a decimal number", lineNo)
		}
		v = v*10 + uint64(c-'0')
	}
	return v, i + 1, nil
}

// unescape reverses WriteLine's %XX escaping.
func unescape(s string, lineNo int) (string, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if c != '%' {
			out = append(out, c)
			i++
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("dump: line %d: unable to parse hex escape", lineNo)
		}
		hi, ok1 := hexDigit(s[i+1])
		lo, ok2 := hexDigit(s[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("dump: line %d: unable to parse hex escape", lineNo)
		}
		out = append(out, hi<<4|lo)
		i += 3
	}
	return string(out), nil
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}
