// Package exitcodes defines the standard exit codes used by api-harness.
package exitcodes

// Exit code constants used by api-harness
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every phase passes
// * PhaseFailure (1): Used when one or more phases fail
// * RuntimeErr (2): Used for runtime errors such as panics, timeouts or an
//   unreachable mock server
const (
	Success      = 0 // All phases pass
	PhaseFailure = 1 // Phase failures
	RuntimeErr   = 2 // Runtime errors or timeouts
)
