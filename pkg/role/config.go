package role

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/srediag/shm-bbuf/pkg/flow"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvShmName = "BBUF_SHM_NAME"
	EnvShmDir  = "BBUF_SHM_DIR"
	EnvShmSize = "BBUF_SHM_SIZE"
	EnvFlow    = "BBUF_FLOW"
	EnvSpin    = "BBUF_SPIN"
)

// Spin pacing names accepted by Config.Spin besides a duration.
const (
	SpinPure  = "spin"
	SpinYield = "yield"
)

// Config is what both roles must agree on, plus the producer's run arguments.
type Config struct {
	// Name identifies the region under Dir.
	Name string
	// Dir overrides /dev/shm.
	Dir string
	// Size is the region size in bytes the producer creates.
	Size int
	// Flow is the flow control discipline. The consumer cannot detect it from
	// the region, so both sides must be given the same one.
	Flow flow.Variant
	// Spin is SpinPure, SpinYield or a time.Duration string slept between polls.
	Spin string

	// Producer only. The consumer reads capacity and total from the header.
	Capacity int
	Total    int
	Seed     int64
}

// DefaultConfig returns the configuration both binaries start from.
func DefaultConfig() *Config {
	return &Config{
		Name: shm.DefaultName,
		Size: shm.DefaultSize,
		Flow: flow.VariantCounter,
		Spin: SpinPure,
	}
}

// VerifyConfig checks the fields shared by both roles.
func VerifyConfig(config *Config) error {
	name := strings.TrimPrefix(config.Name, "/")
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%w: invalid region name %q", shm.ErrInvalidArgument, config.Name)
	}
	if config.Size <= 0 || config.Size%4 != 0 {
		return fmt.Errorf("%w: region size %d is not a positive multiple of 4", shm.ErrInvalidArgument, config.Size)
	}
	if _, err := flow.ParseVariant(config.Flow.String()); err != nil {
		return err
	}
	if _, err := config.Spinner(); err != nil {
		return err
	}
	return nil
}

// ConfigFromEnv returns DefaultConfig overridden by the BBUF_* variables.
func ConfigFromEnv() (*Config, error) {
	config := DefaultConfig()
	if v := os.Getenv(EnvShmName); v != "" {
		config.Name = v
	}
	if v := os.Getenv(EnvShmDir); v != "" {
		config.Dir = v
	}
	if v := os.Getenv(EnvShmSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q: %w", shm.ErrInvalidArgument, EnvShmSize, v, err)
		}
		config.Size = n
	}
	if v := os.Getenv(EnvFlow); v != "" {
		variant, err := flow.ParseVariant(v)
		if err != nil {
			return nil, err
		}
		config.Flow = variant
	}
	if v := os.Getenv(EnvSpin); v != "" {
		config.Spin = v
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Spinner builds the busy-wait pacing named by Spin.
func (c *Config) Spinner() (*flow.Spinner, error) {
	switch strings.ToLower(c.Spin) {
	case "", SpinPure:
		return flow.NewSpinner(nil), nil
	case SpinYield:
		return flow.YieldSpinner(), nil
	}
	d, err := time.ParseDuration(c.Spin)
	if err != nil || d < 0 {
		return nil, fmt.Errorf("%w: spin pacing %q is neither %s, %s nor a duration",
			shm.ErrInvalidArgument, c.Spin, SpinPure, SpinYield)
	}
	if d == 0 {
		return flow.YieldSpinner(), nil
	}
	return flow.SleepSpinner(d), nil
}

// ParseProducerArgs fills Capacity, Total and Seed from the three producer
// arguments and checks their ranges.
func (c *Config) ParseProducerArgs(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: invalid number of command-line arguments", shm.ErrInvalidArgument)
	}
	var nums [3]int
	for i, arg := range args {
		n, err := strconv.ParseInt(arg, 10, 32)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return fmt.Errorf("%w: %s has too many digits", shm.ErrInvalidArgument, arg)
			}
			return fmt.Errorf("%w: %s is not a number", shm.ErrInvalidArgument, arg)
		}
		nums[i] = int(n)
	}
	if err := flow.ValidateArgs(nums[0], nums[1]); err != nil {
		return err
	}
	c.Capacity, c.Total, c.Seed = nums[0], nums[1], int64(nums[2])
	return nil
}
