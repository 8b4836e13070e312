package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOperation(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.Operation("list_chats", "success", 10*time.Millisecond)
	m.Operation("list_chats", "success", 20*time.Millisecond)
	m.Operation("list_chats", "error", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("list_chats", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("list_chats", "error")))
}

func TestFragment(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.Fragment(2)
	m.Fragment(6)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fragments))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.streamed))
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.Operation("noop", "success", time.Second)
	m.Fragment(1)
}
