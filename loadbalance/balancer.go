// Package loadbalance provides strategies for choosing which server answers
// a request when several publish the same dataset.
//
// Three strategies are implemented:
//   - RoundRobin:      Equal-capacity servers
//   - WeightedRandom:  Heterogeneous servers (different CPU/memory)
//   - ConsistentHash:  Keeps each dataset on the same server, so its reads stay warm
package loadbalance

import (
	"strings"

	"github.com/pkg/errors"

	"mini-dap/registry"
)

var (
	ErrNoInstances     = errors.New("no instances available")
	ErrUnknownStrategy = errors.New("unknown load balancing strategy")
)

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each request to select a target instance.
type Balancer interface {
	// Pick selects one instance from the available list. key identifies the
	// request (the dataset name); strategies without affinity ignore it.
	// Called on every request, so it must be goroutine-safe.
	Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer registered under name.
func New(name string) (Balancer, error) {
	switch strings.ToLower(name) {
	case "", "roundrobin", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weightedrandom", "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistenthash", "consistent_hash":
		return NewConsistentHashBalancer(), nil
	}
	return nil, errors.Wrapf(ErrUnknownStrategy, "%q", name)
}
