package agent

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry holds the eagerly-constructed agent set. Fields are typed rather
// than a name-keyed map so a missing agent is a compile error, not a nil
// lookup at dispatch time.
type Registry struct {
	Messages   SourceAgent
	Reports    SourceAgent
	Financials SourceAgent
	Industry   SourceAgent
	WebSearch  SourceAgent
}

// All returns the agents in a fixed dispatch order.
func (r *Registry) All() []SourceAgent {
	agents := make([]SourceAgent, 0, 5)
	for _, a := range []SourceAgent{r.Messages, r.Reports, r.Financials, r.Industry, r.WebSearch} {
		if a != nil {
			agents = append(agents, a)
		}
	}
	return agents
}

// ClientKey addresses one retrieval client configuration.
type ClientKey struct {
	EmbeddingModel string
	Namespace      string
	Project        string
}

func (k ClientKey) String() string {
	return k.EmbeddingModel + "/" + k.Namespace + "/" + k.Project
}

// RetrievalClient is the lifecycle contract for cached clients.
type RetrievalClient interface {
	Close() error
}

// ClientCache builds retrieval clients on demand and caches them by key.
// Concurrent first access for the same key runs the constructor once;
// everyone gets the same instance. Close releases every cached client.
type ClientCache struct {
	build func(ClientKey) (RetrievalClient, error)

	group singleflight.Group

	mu      sync.Mutex
	clients map[ClientKey]RetrievalClient
	closed  bool
}

// NewClientCache creates an empty cache around a constructor.
func NewClientCache(build func(ClientKey) (RetrievalClient, error)) *ClientCache {
	return &ClientCache{
		build:   build,
		clients: make(map[ClientKey]RetrievalClient),
	}
}

// Get returns the cached client for the key, constructing it if needed.
func (c *ClientCache) Get(key ClientKey) (RetrievalClient, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("agent: client cache closed")
	}
	if client, ok := c.clients[key]; ok {
		c.mu.Unlock()
		return client, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		client, err := c.build(key)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			_ = client.Close()
			return nil, fmt.Errorf("agent: client cache closed")
		}
		c.clients[key] = client
		return client, nil
	})
	if err != nil {
		return nil, fmt.Errorf("agent: build client %s: %w", key, err)
	}
	return v.(RetrievalClient), nil
}

// Close releases all cached clients. Subsequent Gets fail.
func (c *ClientCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	for key, client := range c.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("agent: close client %s: %w", key, err)
		}
	}
	c.clients = nil
	return firstErr
}
