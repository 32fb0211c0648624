package archive

// ResetInstalled clears the process-wide gate between tests.
func ResetInstalled() {
	installed.Store(nil)
}
