package loadbalance

import (
	"testing"

	"myproto-go/registry"
)

func instances() []registry.DispatcherInstance {
	return []registry.DispatcherInstance{
		{Addr: "a:1", Weight: 1},
		{Addr: "b:1", Weight: 5},
		{Addr: "c:1", Weight: 10},
	}
}

func TestRoundRobinCyclesThroughInstances(t *testing.T) {
	b := &RoundRobinBalancer{}
	in := instances()
	seen := make(map[string]int)
	for i := 0; i < 30; i++ {
		pick, err := b.Pick(in)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		seen[pick.Addr]++
	}
	if len(seen) != len(in) {
		t.Fatalf("expected all %d instances to be picked, got %d", len(in), len(seen))
	}
}

func TestRoundRobinEmptyInstances(t *testing.T) {
	b := &RoundRobinBalancer{}
	if _, err := b.Pick(nil); err == nil {
		t.Fatal("expected an error for an empty instance list")
	}
}

func TestWeightedRandomFavorsHeavierInstances(t *testing.T) {
	b := &WeightedRandomBalancer{}
	in := instances()
	counts := make(map[string]int)
	for i := 0; i < 2000; i++ {
		pick, err := b.Pick(in)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		counts[pick.Addr]++
	}
	if counts["c:1"] <= counts["a:1"] {
		t.Fatalf("expected weight-10 instance to be picked more than weight-1, got c=%d a=%d", counts["c:1"], counts["a:1"])
	}
}

func TestWeightedRandomEmptyInstances(t *testing.T) {
	b := &WeightedRandomBalancer{}
	if _, err := b.Pick(nil); err == nil {
		t.Fatal("expected an error for an empty instance list")
	}
}

func TestConsistentHashIsStableForSameKey(t *testing.T) {
	b := NewConsistentHashBalancer()
	in := instances()
	for i := range in {
		b.Add(&in[i])
	}

	first, err := b.Pick("session-42")
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := b.Pick("session-42")
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		if again.Addr != first.Addr {
			t.Fatalf("expected the same key to always map to the same instance, got %s then %s", first.Addr, again.Addr)
		}
	}
}

func TestConsistentHashEmptyRing(t *testing.T) {
	b := NewConsistentHashBalancer()
	if _, err := b.Pick("anything"); err == nil {
		t.Fatal("expected an error when the ring has no instances")
	}
}

func TestConsistentHashDistributesAcrossInstances(t *testing.T) {
	b := NewConsistentHashBalancer()
	in := instances()
	for i := range in {
		b.Add(&in[i])
	}

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		pick, err := b.Pick(string(rune('a' + i%26)))
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		seen[pick.Addr] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected keys to spread across more than 1 instance, got %v", seen)
	}
}
