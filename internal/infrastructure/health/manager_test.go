package health

import (
	"fmt"
	"testing"
)

func TestHealthManager_Aggregation(t *testing.T) {
	hm := NewHealthManager(nil)

	// Initial state: Healthy (no checks)
	if !hm.IsHealthy() {
		t.Error("Empty health manager should be healthy")
	}

	hm.Register("comp1", func() error { return nil })
	if !hm.IsHealthy() {
		t.Error("Healthy component should not fail manager")
	}

	hm.Register("comp2", func() error { return fmt.Errorf("failed") })
	if hm.IsHealthy() {
		t.Error("Unhealthy component should fail manager")
	}

	status := hm.GetStatus()
	if status["comp1"] != "Healthy" {
		t.Errorf("Expected Healthy, got %s", status["comp1"])
	}
	if status["comp2"] != "Unhealthy: failed" {
		t.Errorf("Expected Unhealthy, got %s", status["comp2"])
	}
}

func TestHealthManager_OptionalChecks(t *testing.T) {
	hm := NewHealthManager(nil)
	hm.Register("orchestrator", func() error { return nil })
	hm.RegisterOptional("quote_cache", func() error { return fmt.Errorf("redis down") })

	if !hm.IsHealthy() {
		t.Error("Optional component must not fail manager")
	}
	if got := hm.GetStatus()["quote_cache"]; got != "Unhealthy: redis down" {
		t.Errorf("Expected optional component to be reported, got %q", got)
	}

	comps := hm.Components()
	if len(comps) != 2 || comps[0] != "orchestrator" || comps[1] != "quote_cache" {
		t.Errorf("Unexpected components %v", comps)
	}

	if known, err := hm.Check("quote_cache"); !known || err == nil {
		t.Errorf("Expected known failing check, got known=%v err=%v", known, err)
	}
	if known, _ := hm.Check("missing"); known {
		t.Error("Unknown component must report false")
	}
}
