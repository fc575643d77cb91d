package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/MrWong99/toolhub/internal/tool"
)

// Launch defaults.
const (
	DefaultStartRetries  = 15
	DefaultRetryInterval = time.Second
	stopGrace            = 5 * time.Second
)

// LaunchConfig describes a tool subprocess the hub starts itself.
type LaunchConfig struct {
	// Command is the program and its arguments.
	Command []string

	// Env is appended to the hub's environment.
	Env []string

	// Port is where the child listens on 127.0.0.1.
	Port int

	// Retries and RetryInterval bound the wait for the child to report
	// SERVING. Defaults 15 and 1s.
	Retries       int
	RetryInterval time.Duration

	// Output receives the child's stdout and stderr. Default os.Stderr.
	Output io.Writer

	Client ClientConfig
}

// Launch starts the child process and waits until its health service reports
// SERVING. The returned client owns the process: closing the client stops
// it. A child that exits or never becomes healthy is an error.
func Launch(ctx context.Context, cfg LaunchConfig) (*Client, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("rpc: launch: command is empty")
	}
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultStartRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Stdout = cfg.Output
	cmd.Stderr = cfg.Output
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("rpc: start %s: %w", cfg.Command[0], err)
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	ccfg := cfg.Client
	if ccfg.Address == "" {
		ccfg.Address = net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Port))
	}
	c, err := Dial(ccfg)
	if err != nil {
		_ = stopProcess(cmd, exited)
		return nil, err
	}
	c.onClose = func() error { return stopProcess(cmd, exited) }

	if err := waitServing(ctx, c, cfg.Command[0], cfg.Retries, cfg.RetryInterval, exited); err != nil {
		_ = c.Close()
		return nil, err
	}
	slog.Info("rpc: subprocess serving", "command", cfg.Command[0], "addr", ccfg.Address, "pid", cmd.Process.Pid)
	return c, nil
}

// DialReady is [Dial] for a subprocess somebody else started: it probes
// until the health service reports SERVING, up to retries attempts interval
// apart (defaults 15 and 1s).
func DialReady(ctx context.Context, cfg ClientConfig, retries int, interval time.Duration) (*Client, error) {
	c, err := Dial(cfg)
	if err != nil {
		return nil, err
	}
	if err := waitServing(ctx, c, cfg.Address, retries, interval, nil); err != nil {
		_ = c.Close()
		return nil, err
	}
	slog.Info("rpc: subprocess serving", "addr", cfg.Address)
	return c, nil
}

// waitServing probes c until it serves. exited may be nil when the process
// is not ours.
func waitServing(ctx context.Context, c *Client, label string, retries int, interval time.Duration, exited chan error) error {
	if retries <= 0 {
		retries = DefaultStartRetries
	}
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for attempt := 1; ; attempt++ {
		if c.Probe(ctx) == tool.LivenessServing {
			return nil
		}
		if attempt >= retries {
			return fmt.Errorf("rpc: %s not serving after %d attempts", label, attempt)
		}
		select {
		case err := <-exited:
			exited <- err
			return fmt.Errorf("rpc: %s exited during startup: %v", label, err)
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// stopProcess interrupts the child and kills it if it does not exit within
// the grace period.
func stopProcess(cmd *exec.Cmd, exited chan error) error {
	select {
	case <-exited:
		return nil
	default:
	}
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		_ = cmd.Process.Kill()
	}
	select {
	case <-exited:
		return nil
	case <-time.After(stopGrace):
		slog.Warn("rpc: subprocess ignored interrupt, killing", "pid", cmd.Process.Pid)
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("rpc: kill subprocess: %w", err)
		}
		<-exited
		return nil
	}
}
