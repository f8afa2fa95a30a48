package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"attacknav/internal/config"
	"attacknav/internal/repository/sqlite"
	"attacknav/internal/transport"

	"github.com/stretchr/testify/require"
)

const (
	v1ID = "enterprise-attack-1"
	v2ID = "enterprise-attack-2"
)

var errOffline = errors.New("offline")

type fakeFetcher struct {
	mu      sync.Mutex
	data    map[string][]byte
	calls   map[string]int
	offline bool
}

func newFakeFetcher(t *testing.T) *fakeFetcher {
	t.Helper()
	f := &fakeFetcher{data: make(map[string][]byte), calls: make(map[string]int)}
	for _, name := range []string{"v1.json", "v2.json"} {
		data, err := os.ReadFile(filepath.Join("testdata", name))
		require.NoError(t, err)
		f.data["https://example.test/"+name] = data
	}
	return f
}

func (f *fakeFetcher) Fetch(_ context.Context, req transport.Request) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.URL]++
	if f.offline {
		return nil, errOffline
	}
	data, ok := f.data[req.URL]
	if !ok {
		return nil, &transport.TransportError{URL: req.URL, StatusCode: 404}
	}
	return data, nil
}

func (f *fakeFetcher) setOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func testVersions() []config.DomainVersion {
	return []config.DomainVersion{
		{ID: v1ID, Name: "Enterprise", Identifier: "enterprise-attack", Version: "1", VersionName: "ATT&CK v1", Data: []string{"https://example.test/v1.json"}},
		{ID: v2ID, Name: "Enterprise", Identifier: "enterprise-attack", Version: "2", VersionName: "ATT&CK v2", Data: []string{"https://example.test/v2.json"}},
	}
}

type testEnv struct {
	repo    *sqlite.Repository
	fetcher *fakeFetcher
	bus     *EventBus
	events  chan Event
	domains *DomainService
	layers  *LayerService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	env := &testEnv{
		repo:    repo,
		fetcher: newFakeFetcher(t),
		bus:     NewEventBus(),
		events:  make(chan Event, 64),
	}
	env.bus.Subscribe(env.events)
	env.domains = NewDomainService(testVersions(), env.fetcher, repo, env.bus, nil)
	env.layers = NewLayerService(repo, env.domains, env.bus, nil)
	return env
}

// drain returns the types of every event published so far
func (e *testEnv) drain() []EventType {
	var types []EventType
	for {
		select {
		case ev := <-e.events:
			types = append(types, ev.Type)
		default:
			return types
		}
	}
}
