package probe

import "time"

// Probe abstracts the OS-specific process primitives the supervisor needs.
// Implementations must be safe for concurrent use.
type Probe interface {
	// Exists reports whether a process with the given PID is running.
	Exists(pid int) bool
	// FindByName returns the PIDs of all running processes whose binary
	// name matches name.
	FindByName(name string) ([]int, error)
	// Terminate asks the process to exit, escalating to a forced kill when
	// it is still alive after grace. It reports whether the process is gone.
	Terminate(pid int, grace time.Duration) bool
}

// OS is the Probe for the build-target operating system.
type OS struct{}

var _ Probe = OS{}
