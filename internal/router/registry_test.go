package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_EligibleFor_FiltersByToolHealthAndLoad(t *testing.T) {
	reg := NewRegistry([]*Expert{
		searchExpert("supports-search", 1),
		{ID: "other-tool", SupportedTools: map[string]struct{}{"compare": {}}},
	})
	reg.SetState("supports-search", StateHealthy)
	reg.SetState("other-tool", StateHealthy)

	eligible := reg.EligibleFor("search")
	assert.Len(t, eligible, 1)
	assert.Equal(t, "supports-search", eligible[0].ID)
}

func TestRegistry_EligibleFor_ExcludesOverloadedExpert(t *testing.T) {
	reg := NewRegistry([]*Expert{searchExpert("e1", 1)})
	reg.SetState("e1", StateHealthy)
	reg.SetLoad("e1", 0.96, 10)

	assert.Empty(t, reg.EligibleFor("search"))
}

func TestHealthChecker_AppliesLoadThresholds(t *testing.T) {
	reg := NewRegistry([]*Expert{searchExpert("e1", 1), searchExpert("e2", 1), searchExpert("e3", 1)})
	reg.SetLoad("e1", 0.99, 0)
	reg.SetLoad("e2", 0.92, 0)
	reg.SetLoad("e3", 0.1, 0)

	hc := NewHealthChecker(reg, 5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	hc.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	hc.Stop()
	cancel()

	s1, _ := reg.Status("e1")
	s2, _ := reg.Status("e2")
	s3, _ := reg.Status("e3")
	assert.Equal(t, StateUnhealthy, s1.State)
	assert.Equal(t, StateDegraded, s2.State)
	assert.Equal(t, StateHealthy, s3.State)
}
