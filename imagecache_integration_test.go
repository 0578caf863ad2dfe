//go:build integration

package imagecache_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pixelvault/imagecache"
)

// TestIntegrationAgainstRealOrigin drives New/Load/Remove against a real
// nginx container serving a static file with ETags enabled, the same
// shape as the teacher lineage's own registry-container integration test.
func TestIntegrationAgainstRealOrigin(t *testing.T) {
	ctx := context.Background()

	fixtureDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(fixtureDir, "a.png"), []byte("B1"), 0o644))

	req := testcontainers.ContainerRequest{
		Image:        "nginx:alpine",
		ExposedPorts: []string{"80/tcp"},
		Files: []testcontainers.ContainerFile{
			{
				HostFilePath:      fixtureDir,
				ContainerFilePath: "/usr/share/nginx/html",
			},
		},
		WaitingFor: wait.ForHTTP("/a.png").WithPort("80/tcp"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	defer container.Terminate(ctx) //nolint:errcheck

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "80")
	require.NoError(t, err)

	url := fmt.Sprintf("http://%s:%s/a.png", host, port.Port())

	var mu sync.Mutex
	var results []imagecache.Result
	cache, err := imagecache.New(t.TempDir(), func(res imagecache.Result) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, res)
	})
	require.NoError(t, err)
	defer cache.Close()

	cache.Load(url)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) >= 1
	}, 10*time.Second, 100*time.Millisecond)

	mu.Lock()
	first := results[0]
	mu.Unlock()
	require.Equal(t, "B1", string(first.Bytes))

	// A second load against an unchanged resource should yield a 304 and
	// deliver the same bytes from the already-warm cache.
	cache.Load(url)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) >= 3
	}, 10*time.Second, 100*time.Millisecond)

	require.NoError(t, cache.Remove(url))
}
