package sofile

import (
	"testing"

	"go.uber.org/goleak"
)

// zstd readers and writers run background goroutines until closed.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
