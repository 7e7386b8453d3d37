package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/shm-bbuf/pkg/health"
	"github.com/srediag/shm-bbuf/pkg/role"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

func TestFail(t *testing.T) {
	var out strings.Builder
	assert.Equal(t, 1, Fail(&out, "producer", errors.New("boom")))
	assert.Equal(t, "producer: boom\n", out.String())
}

func healthFixture(t *testing.T) (*prometheus.Registry, *shm.Region, *role.Producer) {
	reg, metrics, err := Instruments()
	require.NoError(t, err)
	region := shm.NewHeapRegion(shm.DefaultSize)
	config := role.DefaultConfig()
	config.Capacity, config.Total = 5, 10
	producer, err := role.NewProducer(region, config, role.WithMetrics(metrics))
	require.NoError(t, err)
	return reg, region, producer
}

func TestStartHealthUnset(t *testing.T) {
	t.Setenv(health.EnvAddr, "")
	reg, region, producer := healthFixture(t)
	assert.NoError(t, StartHealth(context.Background(), reg, region, producer))
}

func TestStartHealthServes(t *testing.T) {
	addr := freeAddr(t)
	t.Setenv(health.EnvAddr, addr)
	reg, region, producer := healthFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, StartHealth(ctx, reg, region, producer))

	for _, path := range []string{"/live", "/ready", "/metrics"} {
		resp, err := http.Get("http://" + addr + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestStartHealthAddressTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	t.Setenv(health.EnvAddr, ln.Addr().String())
	reg, region, producer := healthFixture(t)
	assert.Error(t, StartHealth(context.Background(), reg, region, producer))
}
