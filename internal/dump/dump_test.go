package dump_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agedu-go/ageidx/internal/dump"
)

type entry struct {
	path        string
	size, atime uint64
}

func writeAll(t *testing.T, w io.Writer, sep byte, entries []entry) {
	t.Helper()
	require.NoError(t, dump.WriteHeader(w, sep))
	for _, e := range entries {
		require.NoError(t, dump.WriteLine(w, e.path, e.size, e.atime))
	}
}

func readAll(t *testing.T, r *bytes.Reader) (byte, []entry) {
	t.Helper()
	rd, err := dump.NewReader(r)
	require.NoError(t, err)

	var got []entry
	for {
		path, size, atime, ok, err := rd.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, entry{path, size, atime})
	}
	return rd.Sep(), got
}

func TestRoundTripPlainPaths(t *testing.T) {
	entries := []entry{
		{"/home/alice/file.txt", 4096, 1000},
		{"/home/bob", 0, 2000},
		{"/var/log/syslog", 123456, 999999},
	}

	var buf bytes.Buffer
	writeAll(t, &buf, '/', entries)

	sep, got := readAll(t, bytes.NewReader(buf.Bytes()))
	require.Equal(t, byte('/'), sep)
	require.Equal(t, entries, got)
}

func TestRoundTripEscapesSpecialBytes(t *testing.T) {
	entries := []entry{
		{"/weird\x01name with space%percent", 1, 2},
		{"/tab\ttab\nnewline", 3, 4},
		{"/100%done", 5, 6},
		{string([]byte{'/', 0x7f, 0x80, 0xff}), 7, 8},
	}

	var buf bytes.Buffer
	writeAll(t, &buf, '/', entries)

	// The escaped form must be pure printable ASCII (plus the trailing
	// newline WriteLine itself adds): nothing %-escaped should ever
	// reach the wire as a raw control byte or raw '%'.
	for _, line := range bytes.Split(buf.Bytes(), []byte("\n")) {
		for _, b := range line {
			require.True(t, b == ' ' || (b > ' ' && b < 127), "unexpected raw byte %q", b)
		}
	}

	sep, got := readAll(t, bytes.NewReader(buf.Bytes()))
	require.Equal(t, byte('/'), sep)
	require.Equal(t, entries, got)
}

func TestRoundTripEmptyDump(t *testing.T) {
	var buf bytes.Buffer
	writeAll(t, &buf, '\\', nil)

	sep, got := readAll(t, bytes.NewReader(buf.Bytes()))
	require.Equal(t, byte('\\'), sep)
	require.Empty(t, got)
}

func TestNewReaderRejectsMissingHeader(t *testing.T) {
	_, err := dump.NewReader(bytes.NewReader([]byte("100 200 /just/a/path\n")))
	require.Error(t, err)
}

func TestNewReaderRejectsEmptyInput(t *testing.T) {
	_, err := dump.NewReader(bytes.NewReader(nil))
	require.Error(t, err)
}

func TestCompressedRoundTrip(t *testing.T) {
	entries := []entry{
		{"/home/alice/file.txt", 4096, 1000},
		{"/home/bob", 0, 2000},
	}

	var buf bytes.Buffer
	cw, err := dump.CompressWriter(&buf)
	require.NoError(t, err)
	writeAll(t, cw, '/', entries)
	require.NoError(t, cw.Close())

	dr, err := dump.DecompressReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer dr.Close()

	rd, err := dump.NewReader(dr)
	require.NoError(t, err)

	var got []entry
	for {
		path, size, atime, ok, err := rd.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, entry{path, size, atime})
	}
	require.Equal(t, entries, got)
}
