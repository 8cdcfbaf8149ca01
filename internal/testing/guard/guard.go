// Package guard flips the process into test mode so binaries imported by
// tests skip their runtime side effects.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("NEWSLINE_TEST_MODE") == "" {
			_ = os.Setenv("NEWSLINE_TEST_MODE", "1")
		}
	})
}
