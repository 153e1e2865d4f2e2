package emu

// Config contains settings that affect emulation behavior.
type Config struct {
	Trace    bool // log each CPU instruction's register state to stderr
	LimitFPS bool // throttle StepFrame callers to ~60 Hz (the windowed frontend paces itself instead)
}
