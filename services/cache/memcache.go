package cache

import (
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheService keeps fetch-block entries in memcached. Blocks armed
// by one worker instance are honored by every instance sharing the
// server, and they lift themselves through expiration.
type MemcacheService struct {
	client *memcache.Client
}

// NewMemcacheService connects to the memcached server at serverAddr
func NewMemcacheService(serverAddr string) *MemcacheService {
	return &MemcacheService{
		client: memcache.New(serverAddr),
	}
}

// Get returns the block entry under key; a miss means the site is not
// currently blocked
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

// Set arms a block entry that expires once the block window passes.
// Memcached counts expiration in whole seconds, so sub-second windows
// round down.
func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	return m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(expiration / time.Second),
	})
}

// Delete lifts a block before its window is over
func (m *MemcacheService) Delete(key string) error {
	return m.client.Delete(key)
}
