package scan_test

import (
	"os"
	"syscall"
	"testing"
)

// statDevIno pulls the (dev, ino) pair out of a file the same way the
// production scan code does, so the self-exclusion test does not need to
// import syscall into the main test body.
func statDevIno(t *testing.T, path string) (dev, ino uint64) {
	t.Helper()
	fi, err := os.Lstat(path)
	if err != nil {
		t.Fatal(err)
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		t.Fatal("no platform stat_t available")
	}
	return uint64(st.Dev), uint64(st.Ino)
}
