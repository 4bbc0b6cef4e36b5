package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv, when truthy, makes the server and worker entrypoints exit
// before touching storage.
const TestModeEnv = "HASHAVATAR_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	return on
})

// InTestMode reports whether TestModeEnv was set when first checked.
func InTestMode() bool {
	return testMode()
}
