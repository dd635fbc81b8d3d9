package registry

import (
	"slices"
	"sync"

	"github.com/pkg/errors"
)

var ErrNoInstances = errors.New("no instances registered")

// StaticRegistry keeps instances in memory. It serves clients given a fixed
// server address and tests that run without etcd. TTLs are ignored.
type StaticRegistry struct {
	mu        sync.Mutex
	instances map[string][]ServiceInstance
	watchers  map[string][]chan []ServiceInstance
	fallback  []ServiceInstance
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		instances: make(map[string][]ServiceInstance),
		watchers:  make(map[string][]chan []ServiceInstance),
	}
}

// NewDirectRegistry answers every dataset with the given addresses.
func NewDirectRegistry(addrs ...string) *StaticRegistry {
	r := NewStaticRegistry()
	for _, a := range addrs {
		r.fallback = append(r.fallback, ServiceInstance{Addr: a, Weight: 1})
	}
	return r
}

func (r *StaticRegistry) Register(dataset string, instance ServiceInstance, ttl int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	insts := slices.DeleteFunc(r.instances[dataset], func(i ServiceInstance) bool {
		return i.Addr == instance.Addr
	})
	r.instances[dataset] = append(insts, instance)
	r.notify(dataset)
	return nil
}

func (r *StaticRegistry) Deregister(dataset string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[dataset] = slices.DeleteFunc(r.instances[dataset], func(i ServiceInstance) bool {
		return i.Addr == addr
	})
	r.notify(dataset)
	return nil
}

func (r *StaticRegistry) Discover(dataset string) ([]ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	insts := r.instances[dataset]
	if len(insts) == 0 {
		insts = r.fallback
	}
	if len(insts) == 0 {
		return nil, errors.Wrapf(ErrNoInstances, "dataset %q", dataset)
	}
	return slices.Clone(insts), nil
}

// Watch emits the instance list of dataset after every change. A slow
// watcher only sees the latest list.
func (r *StaticRegistry) Watch(dataset string) <-chan []ServiceInstance {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan []ServiceInstance, 1)
	r.watchers[dataset] = append(r.watchers[dataset], ch)
	return ch
}

func (r *StaticRegistry) notify(dataset string) {
	snapshot := slices.Clone(r.instances[dataset])
	for _, ch := range r.watchers[dataset] {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

// Close ends all watches.
func (r *StaticRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, chans := range r.watchers {
		for _, ch := range chans {
			close(ch)
		}
		delete(r.watchers, name)
	}
	return nil
}
