package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Records(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg, "test")
	require.NoError(t, err)

	p.SetTrackedObjects(3, 12)
	p.IncZoneChanges(3)
	p.IncZoneChanges(3)
	p.IncInvalidZones(3)
	p.SetEngineRunning(3, true)
	p.SetSessions(4)
	p.IncPackets(0x02)
	p.IncPersistFailures("zone_log")
	p.ObservePoll(3, 2*time.Millisecond)

	assert.Equal(t, 12.0, testutil.ToFloat64(p.trackedObjects.WithLabelValues("3")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.zoneChanges.WithLabelValues("3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.invalidZones.WithLabelValues("3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.engineRunning.WithLabelValues("3")))
	assert.Equal(t, 4.0, testutil.ToFloat64(p.sessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.packets.WithLabelValues("0x02")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.persistFails.WithLabelValues("zone_log")))

	p.SetEngineRunning(3, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(p.engineRunning.WithLabelValues("3")))
}

func TestPrometheus_DoubleRegistrationFails(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	_, err := NewPrometheus(reg, "dup")
	require.NoError(t, err)
	_, err = NewPrometheus(reg, "dup")
	assert.Error(t, err)
}

func TestHandler_Scrape(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg, "scrape")
	require.NoError(t, err)
	p.IncZoneChanges(1)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `scrape_grid_zone_changes_total{grid="1"} 1`))
}
