package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain session packet queues
	PhasePreUpdate               // 1: dispatch last tick's events
	PhaseUpdate                  // 2: scheduled tasks (zone migration polls)
	PhasePostUpdate              // 3: derived state (metrics gauges)
	PhaseOutput                  // 4: flush session output buffers
	PhasePersist                 // 5: zone log + assignment snapshot flush
	PhaseCleanup                 // 6: end-of-tick housekeeping
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "Input"
	case PhasePreUpdate:
		return "PreUpdate"
	case PhaseUpdate:
		return "Update"
	case PhasePostUpdate:
		return "PostUpdate"
	case PhaseOutput:
		return "Output"
	case PhasePersist:
		return "Persist"
	case PhaseCleanup:
		return "Cleanup"
	default:
		return "Unknown"
	}
}

// System is the interface every game-loop system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
