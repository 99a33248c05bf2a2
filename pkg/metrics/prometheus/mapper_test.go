package prometheus

import (
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/mapperd/pkg/metrics"
)

func TestNewMapperMetrics_NilWhenDisabled(t *testing.T) {
	metrics.InitRegistry(nil)
	if m := NewMapperMetrics(); m != nil {
		t.Error("expected nil metrics when registry disabled")
	}
}

func TestMapperMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *MapperMetrics
	m.SetRegistrySize(3)
	m.SetMapFlag("vol", "EXCLUSIVE", true)
	m.RecordCopyUp("completed", 0.1)
	m.RecordBlockerRPC("data", "READ", 0.01)
}

func TestNewMapperMetrics_RecordsAgainstRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	metrics.InitRegistry(reg)
	defer metrics.InitRegistry(nil)

	m := NewMapperMetrics()
	if m == nil {
		t.Fatal("expected non-nil metrics when registry enabled")
	}

	m.SetRegistrySize(2)
	m.SetMapFlag("vol1", "EXCLUSIVE", true)
	m.RecordCopyUp("completed", 0.05)
	m.RecordBlockerRPC("map", "ACQUIRE", 0.02)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected at least one registered metric family")
	}
}
