package app

import (
	"os"
	"sync"
)

// testModeEnv is set by the testing package so binaries linked into tests
// return before dialing Postgres or Redis.
const testModeEnv = "CAREPORTAL_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether the process should skip runtime side effects.
func InTestMode() bool {
	return testMode()
}
