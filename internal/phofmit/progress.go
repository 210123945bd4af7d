package phofmit

// Progress receives coarse progress notifications from long-running phases.
// The CLI renders them as progress bars; the core never depends on how.
type Progress interface {
	// Start begins a phase. total is -1 when the number of steps is unknown.
	Start(phase string, total int)
	// Step advances the current phase by one unit; item names what was processed.
	Step(item string)
	// Finish ends the current phase.
	Finish()
}

// NopProgress discards progress notifications.
type NopProgress struct{}

func (NopProgress) Start(string, int) {}
func (NopProgress) Step(string)       {}
func (NopProgress) Finish()           {}
