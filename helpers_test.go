package matchy_test

import (
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
)

var tempCounter int64

// newTempPath returns a fresh scratch file path under the OS temp dir.
func newTempPath() string {
	n := atomic.AddInt64(&tempCounter, 1)
	return filepath.Join(os.TempDir(), "matchy-test-"+strconv.FormatInt(n, 10)+".mdb")
}
