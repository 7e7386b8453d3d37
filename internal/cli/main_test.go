package cli

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/srediag/shm-bbuf/pkg/health"
	"github.com/srediag/shm-bbuf/pkg/role"
)

// envChild turns the test binary into a launched consumer: "consumer" runs
// Consumer, "fail" exits 1 before attaching.
const envChild = "BBUF_CLI_TEST_CHILD"

func TestMain(m *testing.M) {
	switch os.Getenv(envChild) {
	case "consumer":
		os.Exit(Consumer(context.Background(), nil, os.Stdout, os.Stderr))
	case "fail":
		os.Exit(Fail(os.Stderr, "consumer", errors.New("refused to start")))
	}
	os.Exit(m.Run())
}

// setEnv points both roles at a fresh region name and clears everything a
// launch would pick up from the caller's environment.
func setEnv(t *testing.T, name string) string {
	dir := t.TempDir()
	t.Setenv(role.EnvShmDir, dir)
	t.Setenv(role.EnvShmName, name)
	t.Setenv(role.EnvSpin, role.SpinYield)
	t.Setenv(EnvConsumer, "")
	t.Setenv(EnvConsumerHealthAddr, "")
	t.Setenv(health.EnvAddr, "")
	t.Setenv(envChild, "")
	return filepath.Join(dir, name)
}

// freeAddr returns a loopback address nothing listens on.
func freeAddr(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// syncBuffer is shared by the producer's trace and the copy of the child's
// output.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}
