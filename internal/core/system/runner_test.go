package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingSystem struct {
	name  string
	phase Phase
	log   *[]string
}

func (r *recordingSystem) Phase() Phase { return r.phase }

func (r *recordingSystem) Update(time.Duration) {
	*r.log = append(*r.log, r.name)
}

func TestRunner_PhaseOrder(t *testing.T) {
	t.Parallel()
	var log []string
	r := NewRunner()
	r.Register(&recordingSystem{name: "persist", phase: PhasePersist, log: &log})
	r.Register(&recordingSystem{name: "input", phase: PhaseInput, log: &log})
	r.Register(&recordingSystem{name: "update-a", phase: PhaseUpdate, log: &log})
	r.Register(&recordingSystem{name: "update-b", phase: PhaseUpdate, log: &log})

	r.Tick(200 * time.Millisecond)
	assert.Equal(t, []string{"input", "update-a", "update-b", "persist"}, log)

	log = log[:0]
	r.TickPhase(PhaseUpdate, time.Millisecond)
	assert.Equal(t, []string{"update-a", "update-b"}, log)
}

func TestRunner_DrivesScheduler(t *testing.T) {
	t.Parallel()
	r := NewRunner()
	s := NewScheduler()
	r.Register(s)

	calls := 0
	s.Every("poll", time.Second, func() { calls++ })
	for i := 0; i < 10; i++ {
		r.Tick(200 * time.Millisecond)
	}
	assert.Equal(t, 2, calls)
}
