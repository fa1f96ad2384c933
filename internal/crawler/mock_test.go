package crawler

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	cache map[string][]byte
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		cache: make(map[string][]byte),
	}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, &mockError{message: "cache miss"}
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.cache[key] = value
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	delete(m.cache, key)
	return nil
}

type mockError struct {
	message string
}

func (e *mockError) Error() string {
	return e.message
}

// stubFetcher serves canned pages per URL and records every fetch call
type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string // url -> page HTML
	errs  map[string]error  // url -> permanent failure
	calls []string

	// onFetch, when set, runs before each fetch attempt
	onFetch func(url string)
}

// Ensure stubFetcher implements Fetcher
var _ Fetcher = (*stubFetcher)(nil)

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		pages: make(map[string]string),
		errs:  make(map[string]error),
	}
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (io.Reader, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(url)
	}

	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if html, ok := f.pages[url]; ok {
		return strings.NewReader(html), nil
	}
	return nil, &FetchError{Kind: FetchNetwork, URL: url, Status: 404}
}

func (f *stubFetcher) fetchCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if call == url {
			count++
		}
	}
	return count
}

func (f *stubFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
