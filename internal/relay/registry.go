package relay

import (
	"sync"

	"github.com/teris-io/shortid"
)

// Registry tracks every live connection on this process, keyed by
// connection id. It owns the Client records; rooms only reference them.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Client),
	}
}

// NewConnectionId generates a per-process unique connection id.
func NewConnectionId() string {
	id, err := shortid.Generate()
	if err != nil {
		// shortid only fails on a misconfigured generator
		panic("shortid: " + err.Error())
	}
	return id
}

func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.id] = c
}

func (r *Registry) Unregister(connectionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connectionId)
}

func (r *Registry) Get(connectionId string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[connectionId]
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *Registry) All() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients := make([]*Client, 0, len(r.conns))
	for _, c := range r.conns {
		clients = append(clients, c)
	}
	return clients
}
