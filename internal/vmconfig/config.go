// Package vmconfig holds the ambient configuration the VM and
// executor pool are constructed from, generalizing the teacher's
// cmd/gnd/main.go flag-parsed startup options (script dir, log level)
// into the settings spec.md §5 and §9 call out by name: worker count,
// default signal fan-out, and execution mode.
package vmconfig

import "github.com/crtlang/crt/internal/logging"

// Mode selects the interpreter's execution mode (spec.md §4.5).
type Mode int

const (
	Eager Mode = iota
	Lazy
)

func (m Mode) String() string {
	if m == Eager {
		return "eager"
	}
	return "lazy"
}

// Config bundles the VM's tunables.
type Config struct {
	// Workers is the executor pool's thread-pool size. spec.md §5
	// sizes the reference implementation at 8.
	Workers int

	// DefaultFanout is N, the number of readiness signals pre-enrolled
	// for a synchronously or asynchronously produced slot before any
	// on-demand Consumer() allocation kicks in. spec.md §9 notes the
	// reference implementation hardcodes 4.
	DefaultFanout int

	// Mode selects Eager or Lazy interpretation.
	Mode Mode

	// LogLevel controls the VM's own logger verbosity.
	LogLevel logging.Level
}

// Default returns the configuration matching the values spec.md names
// for the reference implementation.
func Default() Config {
	return Config{
		Workers:       8,
		DefaultFanout: 4,
		Mode:          Lazy,
		LogLevel:      logging.Error,
	}
}
