package loadbalance

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-dap/registry"
)

var testInstances = []registry.ServiceInstance{
	{Addr: ":8001", Weight: 10, Version: "1.0"},
	{Addr: ":8002", Weight: 5, Version: "1.0"},
	{Addr: ":8003", Weight: 10, Version: "1.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// Pick 3 times, should cycle through all instances
	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		inst, err := b.Pick("test.1", testInstances)
		require.NoError(t, err)
		results[i] = inst.Addr
	}
	assert.Equal(t, []string{":8001", ":8002", ":8003"}, results)

	// Pick again, should wrap around to first
	inst, err := b.Pick("test.1", testInstances)
	require.NoError(t, err)
	assert.Equal(t, results[0], inst.Addr)
}

func TestEmptyInstances(t *testing.T) {
	for _, b := range []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}, NewConsistentHashBalancer()} {
		_, err := b.Pick("test.1", nil)
		assert.ErrorIs(t, err, ErrNoInstances, b.Name())
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick("", testInstances)
		require.NoError(t, err)
		counts[inst.Addr]++
	}

	// Weight ratio is 10:5:10, so :8001 and :8003 should be ~2x of :8002
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	assert.InDelta(t, 2.0, ratio, 0.5)
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	inst, err := b.Pick("", []registry.ServiceInstance{{Addr: ":9000"}})
	require.NoError(t, err)
	assert.Equal(t, ":9000", inst.Addr)
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()

	// Same key should always map to the same instance
	inst1, err := b.Pick("test.1", testInstances)
	require.NoError(t, err)
	inst2, err := b.Pick("test.1", testInstances)
	require.NoError(t, err)
	assert.Equal(t, inst1.Addr, inst2.Addr)

	// Different keys should (likely) map to different instances
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, err := b.Pick(fmt.Sprintf("dataset-%d", i), testInstances)
		require.NoError(t, err)
		seen[inst.Addr] = true
	}
	assert.GreaterOrEqual(t, len(seen), 2)
}

func TestConsistentHashRebuildsOnMembershipChange(t *testing.T) {
	b := NewConsistentHashBalancer()
	only := []registry.ServiceInstance{testInstances[1]}

	inst, err := b.Pick("test.1", testInstances)
	require.NoError(t, err)
	assert.Contains(t, []string{":8001", ":8002", ":8003"}, inst.Addr)

	inst, err = b.Pick("test.1", only)
	require.NoError(t, err)
	assert.Equal(t, ":8002", inst.Addr)
}

func TestConsistentHashAdd(t *testing.T) {
	b := NewConsistentHashBalancer()
	_, err := b.Get("test.1")
	assert.ErrorIs(t, err, ErrNoInstances)

	b.Add(testInstances[0])
	inst, err := b.Get("test.1")
	require.NoError(t, err)
	assert.Equal(t, ":8001", inst.Addr)
}

func TestNew(t *testing.T) {
	for name, want := range map[string]string{
		"":                "RoundRobin",
		"weighted_random": "WeightedRandom",
		"ConsistentHash":  "ConsistentHash",
	} {
		b, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, want, b.Name())
	}
	_, err := New("fastest")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}
