// Package guard switches binaries into test mode when imported for side effects by a
// test, so entry points under test never dial Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

const testModeEnv = "SERAPAN_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(testModeEnv) == "" {
			_ = os.Setenv(testModeEnv, "1")
		}
	})
}
