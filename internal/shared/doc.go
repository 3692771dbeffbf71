// Package shared holds helpers used across the license core packages.
//
// The testutil subpackage provides:
//
//	- License fixtures per tier and the end-to-end professional license
//	- A scriptable fake license server client
//	- A static fingerprint provider and a manually advanced clock
//	- A capturing slog handler with assertion helpers
//
// Nothing in this package may import the components it helps test.
package shared
