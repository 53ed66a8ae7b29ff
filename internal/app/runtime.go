package app

import (
	"os"
	"strconv"
)

const testModeEnv = "STOCKPOOL_TEST_MODE"

// InTestMode reports whether STOCKPOOL_TEST_MODE asks the binaries to skip
// opening stores and listeners.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	return err == nil && on
}
