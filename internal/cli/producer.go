package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/srediag/shm-bbuf/pkg/health"
	"github.com/srediag/shm-bbuf/pkg/role"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

const (
	// EnvConsumer names the consumer binary the producer launches.
	EnvConsumer = "BBUF_CONSUMER"
	// EnvConsumerHealthAddr is handed to the launched consumer as its
	// BBUF_HEALTH_ADDR. The producer's own address is never passed on.
	EnvConsumerHealthAddr = "BBUF_CONSUMER_HEALTH_ADDR"
)

// Producer is the body of the producer command:
//
//	producer <capacity> <count> <seed>
//
// It creates the region, writes the header and, when BBUF_CONSUMER is set,
// launches the consumer before producing. A consumer that exits with an error
// stops the producer, which then removes the region itself.
func Producer(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	const prog = "producer"
	config, err := role.ConfigFromEnv()
	if err != nil {
		return Fail(stderr, prog, err)
	}
	// nothing is created before the arguments are known to be valid
	if err := config.ParseProducerArgs(args); err != nil {
		return Fail(stderr, prog, err)
	}
	reg, metrics, err := Instruments()
	if err != nil {
		return Fail(stderr, prog, err)
	}

	region, err := shm.Create(ctx, shm.CreateOptions{Name: config.Name, Dir: config.Dir, Size: config.Size})
	if err != nil {
		return Fail(stderr, prog, err)
	}
	defer region.Close()

	trace := role.NewTraceWriter(stdout)
	producer, err := role.NewProducer(region, config, role.WithReporter(trace), role.WithMetrics(metrics))
	if err != nil {
		_ = region.Remove()
		return Fail(stderr, prog, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := StartHealth(ctx, reg, region, producer); err != nil {
		_ = region.Remove()
		return Fail(stderr, prog, err)
	}

	var child *process
	if path := os.Getenv(EnvConsumer); path != "" {
		trace.Println("Launching Consumer")
		child, err = launch(path, stdout, stderr)
		if err != nil {
			_ = region.Remove()
			return Fail(stderr, prog, fmt.Errorf("launch consumer: %w", err))
		}
		child.stopOnFailure(ctx, cancel)
	}

	trace.Println("Starting Producer")
	if err := producer.Run(ctx); err != nil {
		if child == nil {
			return Fail(stderr, prog, err)
		}
		if exitErr := child.exited(); exitErr != nil {
			err = fmt.Errorf("consumer exited early: %w", exitErr)
		} else {
			child.kill()
		}
		// no consumer is left to remove the region
		_ = region.Remove()
		return Fail(stderr, prog, err)
	}
	trace.Println("Producer Completed")

	if child == nil {
		return 0
	}
	trace.Println("Producer done and waiting for consumer")
	if err := child.wait(); err != nil {
		return Fail(stderr, prog, fmt.Errorf("consumer: %w", err))
	}
	trace.Println("Consumer Completed")
	return 0
}

// process is a launched consumer, reaped by its own goroutine.
type process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func launch(path string, stdout, stderr io.Writer) (*process, error) {
	cmd := exec.Command(path)
	cmd.Stdout, cmd.Stderr = stdout, stderr
	cmd.Env = consumerEnv(os.Environ())
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// consumerEnv is environ without the producer's health address, plus the
// consumer's own one when EnvConsumerHealthAddr is set.
func consumerEnv(environ []string) []string {
	env := make([]string, 0, len(environ)+1)
	for _, kv := range environ {
		if !strings.HasPrefix(kv, health.EnvAddr+"=") {
			env = append(env, kv)
		}
	}
	if addr := os.Getenv(EnvConsumerHealthAddr); addr != "" {
		env = append(env, health.EnvAddr+"="+addr)
	}
	return env
}

// stopOnFailure calls cancel if the consumer exits with an error before ctx
// is done.
func (p *process) stopOnFailure(ctx context.Context, cancel context.CancelFunc) {
	go func() {
		select {
		case <-p.done:
			if p.err != nil {
				cancel()
			}
		case <-ctx.Done():
		}
	}()
}

// exited returns the exit error of a consumer that has already failed.
func (p *process) exited() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *process) wait() error {
	<-p.done
	return p.err
}

func (p *process) kill() {
	_ = p.cmd.Process.Kill()
	<-p.done
}
