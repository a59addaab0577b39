//go:build windows

package config

// defaultExcludedPaths lists system locations that generate constant
// write noise and must never be inspected.
func defaultExcludedPaths() []string {
	return []string{
		`C:\Windows`,
		`C:\Program Files`,
		`C:\Program Files (x86)`,
		`C:\ProgramData\Microsoft`,
		`C:\$Recycle.Bin`,
	}
}
