package logger

import "sync"

// ResetSetupLogOnceForTests lets a test run SetupLogger again.
func ResetSetupLogOnceForTests() {
	setupLogOnce = sync.Once{}
}
