//go:build !windows

package config

// defaultExcludedPaths lists system locations that generate constant
// write noise and must never be inspected.
func defaultExcludedPaths() []string {
	return []string{
		"/proc",
		"/sys",
		"/dev",
		"/run",
		"/snap",
	}
}
