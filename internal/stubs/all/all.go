// Package all imports all stub packages to ensure they register via init().
// Import this package in session setup to enable all stubs.
//
// Example:
//
//	import _ "github.com/zboralski/loris/internal/stubs/all"
package all

import (
	// Import all stub packages for side effects (init registration)
	_ "github.com/zboralski/loris/internal/stubs/crt"
	_ "github.com/zboralski/loris/internal/stubs/dl"
	_ "github.com/zboralski/loris/internal/stubs/gthread"
)
