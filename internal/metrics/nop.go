package metrics

import "time"

// NopMetrics discards everything. Used in tests and when metrics are disabled.
type NopMetrics struct{}

var _ Collector = (*NopMetrics)(nil)

func NewNop() *NopMetrics { return &NopMetrics{} }

func (n *NopMetrics) SetTrackedObjects(uint32, int)     {}
func (n *NopMetrics) IncZoneChanges(uint32)             {}
func (n *NopMetrics) IncInvalidZones(uint32)            {}
func (n *NopMetrics) ObservePoll(uint32, time.Duration) {}
func (n *NopMetrics) SetEngineRunning(uint32, bool)     {}
func (n *NopMetrics) SetSessions(int)                   {}
func (n *NopMetrics) IncPackets(byte)                   {}
func (n *NopMetrics) IncPersistFailures(string)         {}
