// Package positioning delivers position samples from an external fix
// source. The shipped implementation runs a gpspipe-style helper
// process and parses one fix per stdout line; anything that satisfies
// tracking.Provider can be dropped in instead.
package positioning

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/lakmal-w/campustrack/internal/geo"
	"github.com/lakmal-w/campustrack/internal/tracking"
)

// ParseErrorsThreshold is the number of consecutive unparseable lines
// tolerated before the watch is torn down.
const ParseErrorsThreshold = 5

// ErrTooManyParseErrors is returned when consecutive parse errors
// exceed the threshold.
var ErrTooManyParseErrors = errors.New("too many consecutive parse errors")

// Config describes the external fix source command.
type Config struct {
	// Command is the binary producing fixes on stdout, one per line.
	Command string `yaml:"command" validate:"required"`

	// Args are passed verbatim. For one-shot requests OneShotArgs are
	// used instead when set.
	Args        []string `yaml:"args"`
	OneShotArgs []string `yaml:"oneShotArgs"`
}

// WithLogger sets the provider logger.
func WithLogger(logger *slog.Logger) func(*PipeProvider) {
	return func(p *PipeProvider) {
		p.logger = logger.With(slog.String("command", p.config.Command))
	}
}

// WithParseErrorsThreshold overrides the consecutive parse error limit.
func WithParseErrorsThreshold(threshold uint8) func(*PipeProvider) {
	return func(p *PipeProvider) {
		p.parseErrorsThreshold = threshold
	}
}

// PipeProvider implements tracking.Provider over an external process
// writing fix lines to stdout.
type PipeProvider struct {
	config Config
	logger *slog.Logger

	parseErrorsThreshold uint8

	mu      sync.Mutex
	lastFix *tracking.PositionSample
}

// New creates a PipeProvider with a discard logger.
func New(config Config, options ...func(*PipeProvider)) (*PipeProvider, error) {
	if config.Command == "" {
		return nil, fmt.Errorf("positioning: command is required")
	}

	p := PipeProvider{
		config:               config,
		logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
		parseErrorsThreshold: ParseErrorsThreshold,
	}

	for _, option := range options {
		option(&p)
	}

	return &p, nil
}

// Watch starts the fix process and streams parsed samples until ctx is
// cancelled. Samples closer than opts.MinMoveDistance to the last
// emitted one are dropped at the source.
func (p *PipeProvider) Watch(ctx context.Context, opts tracking.WatchOptions) (<-chan tracking.PositionSample, <-chan error, error) {
	cmd := exec.CommandContext(ctx, p.config.Command, p.config.Args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("%w: starting %s: %w", tracking.ErrProviderUnavailable, p.config.Command, err)
	}

	samples := make(chan tracking.PositionSample)
	errs := make(chan error, 1)

	go func() {
		defer close(samples)
		defer close(errs)

		done := make(chan error, 3)

		go p.handleStdout(ctx, stdout, opts, samples, done)
		go p.handleStderr(stderr, done)
		go handleCmdWait(cmd, done)

		var failure error
		for i := 0; i < cap(done); i++ {
			if err := <-done; err != nil && failure == nil {
				failure = err
			}
		}

		if failure != nil && ctx.Err() == nil {
			errs <- failure
		}
	}()

	return samples, errs, nil
}

// Once returns a single fix. A fix younger than opts.MaxAge is served
// from cache; otherwise the one-shot command runs and the first parsed
// line wins, bounded by opts.Timeout.
func (p *PipeProvider) Once(ctx context.Context, opts tracking.WatchOptions) (tracking.PositionSample, error) {
	if opts.MaxAge > 0 {
		p.mu.Lock()
		cached := p.lastFix
		p.mu.Unlock()

		if cached != nil && time.Since(cached.Timestamp) <= opts.MaxAge {
			return *cached, nil
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	octx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := p.config.OneShotArgs
	if len(args) == 0 {
		args = p.config.Args
	}

	out, err := exec.CommandContext(octx, p.config.Command, args...).Output()
	if err != nil {
		if octx.Err() != nil {
			return tracking.PositionSample{}, fmt.Errorf("%w: %s", tracking.ErrProviderTimeout, p.config.Command)
		}
		return tracking.PositionSample{}, fmt.Errorf("%w: running %s: %w", tracking.ErrProviderUnavailable, p.config.Command, err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		sample, err := ParseFix(line)
		if err != nil {
			continue
		}

		sample.Source = tracking.SourcePeriodicGPS
		p.remember(sample)
		return sample, nil
	}

	return tracking.PositionSample{}, fmt.Errorf("%w: no fix in output", tracking.ErrProviderUnavailable)
}

func (p *PipeProvider) remember(sample tracking.PositionSample) {
	p.mu.Lock()
	cp := sample
	p.lastFix = &cp
	p.mu.Unlock()
}

func (p *PipeProvider) handleStdout(ctx context.Context, stdout io.Reader, opts tracking.WatchOptions, samples chan<- tracking.PositionSample, done chan<- error) {
	var parseErrors uint8
	var lastEmitted *geo.Point

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		sample, err := ParseFix(line)
		if err != nil {
			parseErrors++
			p.logger.Warn(fmt.Sprintf("error parsing fix: %s", err.Error()), slog.String("line", line))

			if parseErrors >= p.parseErrorsThreshold {
				done <- ErrTooManyParseErrors
				return
			}
			continue
		}

		parseErrors = 0

		if opts.MinMoveDistance > 0 && lastEmitted != nil &&
			geo.Distance(*lastEmitted, sample.Point()) < opts.MinMoveDistance {
			continue
		}

		pt := sample.Point()
		lastEmitted = &pt

		sample.Source = tracking.SourceContinuousGPS
		p.remember(sample)

		select {
		case samples <- sample:
		case <-ctx.Done():
			done <- nil
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: reading stdout: %w", tracking.ErrProviderUnavailable, err)
		return
	}

	done <- nil
}

func (p *PipeProvider) handleStderr(stderr io.Reader, done chan<- error) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		p.logger.Warn(fmt.Sprintf("%s >> %s", p.config.Command, line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("reading stderr: %w", err)
		return
	}

	done <- nil
}

func handleCmdWait(cmd *exec.Cmd, done chan<- error) {
	if err := cmd.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		done <- fmt.Errorf("%w: command exited: %w", tracking.ErrProviderUnavailable, err)
		return
	}

	done <- nil
}
