package store

import (
	"context"
	"sync"
)

// MemoryClient implements Client in process memory. It backs local
// development and tests; the mutex gives it the same per-field atomicity
// the DynamoDB conditional write provides.
type MemoryClient struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

// NewMemoryClient creates an empty in-memory client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{data: make(map[string]map[string]string)}
}

func (c *MemoryClient) GetHash(_ context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash, ok := c.data[key]
	if !ok {
		return nil, nil
	}
	out := make(map[string]string, len(hash))
	for k, v := range hash {
		out[k] = v
	}
	return out, nil
}

func (c *MemoryClient) SetHashFields(_ context.Context, key string, fields map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash, ok := c.data[key]
	if !ok {
		hash = make(map[string]string, len(fields))
		c.data[key] = hash
	}
	for k, v := range fields {
		hash[k] = v
	}
	return nil
}

func (c *MemoryClient) DeleteHashFields(_ context.Context, key string, fields ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash, ok := c.data[key]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(hash, f)
	}
	return nil
}

func (c *MemoryClient) DeleteKey(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	return nil
}

func (c *MemoryClient) CompareAndSwapHashField(_ context.Context, key, field, prev, next string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash, ok := c.data[key]
	if !ok {
		return false, nil
	}
	if hash[field] != prev {
		return false, nil
	}
	hash[field] = next
	return true, nil
}
