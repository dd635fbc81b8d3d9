package registry

// ServiceInstance is one server able to answer requests for a dataset.
type ServiceInstance struct {
	Addr    string
	Weight  int    // Weight for load balancing
	Version string // Server version, as answered by the version request
}

// Registry maps dataset names to the servers that publish them.
type Registry interface {
	Register(dataset string, instance ServiceInstance, ttl int64) error
	Deregister(dataset string, addr string) error
	Discover(dataset string) ([]ServiceInstance, error)
	Watch(dataset string) <-chan []ServiceInstance
	Close() error
}
