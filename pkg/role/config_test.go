package role

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/shm-bbuf/pkg/flow"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

type ConfigTestSuite struct {
	suite.Suite
}

func (s *ConfigTestSuite) TestVerifyConfig() {
	config := DefaultConfig()
	s.Require().Nil(VerifyConfig(config))

	config.Name = ""
	s.Require().ErrorIs(VerifyConfig(config), shm.ErrInvalidArgument)
	config.Name = "a/b"
	s.Require().ErrorIs(VerifyConfig(config), shm.ErrInvalidArgument)
	config.Name = "/bbuf_test"
	s.Require().Nil(VerifyConfig(config))

	config.Size = 4098
	s.Require().ErrorIs(VerifyConfig(config), shm.ErrInvalidArgument)
	config.Size = 0
	s.Require().ErrorIs(VerifyConfig(config), shm.ErrInvalidArgument)
	config.Size = 8192

	config.Flow = flow.Variant(7)
	s.Require().ErrorIs(VerifyConfig(config), shm.ErrInvalidArgument)
	config.Flow = flow.VariantIndices

	config.Spin = "sometimes"
	s.Require().ErrorIs(VerifyConfig(config), shm.ErrInvalidArgument)
	config.Spin = "-1ms"
	s.Require().ErrorIs(VerifyConfig(config), shm.ErrInvalidArgument)
	config.Spin = "50us"
	s.Require().Nil(VerifyConfig(config))
}

func (s *ConfigTestSuite) TestConfigFromEnv() {
	s.T().Setenv(EnvShmName, "bbuf_env")
	s.T().Setenv(EnvShmDir, "/tmp")
	s.T().Setenv(EnvShmSize, "8192")
	s.T().Setenv(EnvFlow, "peterson")
	s.T().Setenv(EnvSpin, "yield")

	config, err := ConfigFromEnv()
	s.Require().NoError(err)
	s.Equal("bbuf_env", config.Name)
	s.Equal("/tmp", config.Dir)
	s.Equal(8192, config.Size)
	s.Equal(flow.VariantPeterson, config.Flow)
	s.Equal(SpinYield, config.Spin)
}

func (s *ConfigTestSuite) TestConfigFromEnvRejects() {
	s.T().Setenv(EnvShmSize, "big")
	_, err := ConfigFromEnv()
	s.ErrorIs(err, shm.ErrInvalidArgument)

	s.T().Setenv(EnvShmSize, "")
	s.T().Setenv(EnvFlow, "mutex")
	_, err = ConfigFromEnv()
	s.ErrorIs(err, shm.ErrInvalidArgument)
}

func (s *ConfigTestSuite) TestDefaults() {
	s.T().Setenv(EnvShmName, "")
	s.T().Setenv(EnvShmSize, "")
	s.T().Setenv(EnvFlow, "")
	s.T().Setenv(EnvSpin, "")
	config, err := ConfigFromEnv()
	s.Require().NoError(err)
	s.Equal(shm.DefaultName, config.Name)
	s.Equal(shm.DefaultSize, config.Size)
	s.Equal(flow.VariantCounter, config.Flow)
	s.Equal(SpinPure, config.Spin)
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func TestSpinner(t *testing.T) {
	for _, spin := range []string{"", "spin", "SPIN", "yield", "0s", "1ms"} {
		c := &Config{Spin: spin}
		sp, err := c.Spinner()
		require.NoError(t, err, spin)
		require.NotNil(t, sp, spin)
	}

	c := &Config{Spin: "1ms"}
	sp, err := c.Spinner()
	require.NoError(t, err)
	start := time.Now()
	n := 0
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	_, err = sp.Until(ctx, func() bool { n++; return n == 3 })
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Millisecond)
}

func TestParseProducerArgs(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.ParseProducerArgs([]string{"5", "10", "42"}))
	assert.Equal(t, 5, c.Capacity)
	assert.Equal(t, 10, c.Total)
	assert.Equal(t, int64(42), c.Seed)

	require.NoError(t, c.ParseProducerArgs([]string{"1000", "1", "-7"}))
	assert.Equal(t, int64(-7), c.Seed)

	cases := []struct {
		args []string
		msg  string
	}{
		{[]string{"5", "10"}, "invalid number of command-line arguments"},
		{[]string{"5", "10", "42", "1"}, "invalid number of command-line arguments"},
		{[]string{"five", "10", "42"}, "five is not a number"},
		{[]string{"5", "10x", "42"}, "10x is not a number"},
		{[]string{"5", "10", "99999999999"}, "99999999999 has too many digits"},
		{[]string{"0", "10", "42"}, "buffer size must be between 1 and 1000"},
		{[]string{"1001", "10", "42"}, "buffer size must be between 1 and 1000"},
		{[]string{"5", "0", "42"}, "item count must be greater than 0"},
	}
	for _, tc := range cases {
		c := DefaultConfig()
		err := c.ParseProducerArgs(tc.args)
		assert.ErrorIs(t, err, shm.ErrInvalidArgument, tc.args)
		assert.ErrorContains(t, err, tc.msg, tc.args)
		assert.Zero(t, c.Capacity, tc.args)
	}
}
