// Package guard puts the process in test mode on import so entrypoints and
// config loading skip external services.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("HASHAVATAR_TEST_MODE") == "" {
			_ = os.Setenv("HASHAVATAR_TEST_MODE", "1")
		}
		if os.Getenv("STORE_DRIVER") == "" {
			_ = os.Setenv("STORE_DRIVER", "memory")
		}
	})
}
