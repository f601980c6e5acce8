// Package action runs locator clicks on behalf of an agent, retrying
// transient failures.
package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/menta2k/screen-locator/pkg/locator"
	"github.com/menta2k/screen-locator/pkg/tasklog"
)

// Clicker is the part of a Locator the executor drives
type Clicker interface {
	ClickObject(ctx context.Context, req locator.ClickRequest) (locator.Result, error)
}

// Config controls the retry budget of an action
type Config struct {
	Attempts uint
	Delay    time.Duration
}

// DefaultConfig allows 5 attempts one second apart
func DefaultConfig() Config {
	return Config{Attempts: 5, Delay: time.Second}
}

// Executor retries whole ClickObject calls
type Executor struct {
	clicker Clicker
	config  Config
	sink    tasklog.Sink
	logger  *zap.Logger
}

// NewExecutor creates an executor with the default retry budget
func NewExecutor(clicker Clicker, sink tasklog.Sink, logger *zap.Logger) *Executor {
	return NewExecutorWithConfig(clicker, DefaultConfig(), sink, logger)
}

// NewExecutorWithConfig creates an executor with a custom retry budget
func NewExecutorWithConfig(clicker Clicker, config Config, sink tasklog.Sink, logger *zap.Logger) *Executor {
	if config.Attempts == 0 {
		config.Attempts = 1
	}
	if sink == nil {
		sink = tasklog.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{clicker: clicker, config: config, sink: sink, logger: logger}
}

// Click runs req until it succeeds, the budget is spent or ctx is done.
// Invalid arguments are returned after the first attempt.
func (e *Executor) Click(ctx context.Context, req locator.ClickRequest) (locator.Result, error) {
	log := e.logger.With(zap.String("task_id", req.TaskID))

	var result locator.Result
	err := retry.Do(
		func() error {
			res, err := e.clicker.ClickObject(ctx, req)
			if err != nil {
				if errors.Is(err, locator.ErrInvalidArgument) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			result = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(e.config.Attempts),
		retry.Delay(e.config.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("action failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
			e.post(ctx, req.TaskID, fmt.Sprintf("⚠️ Error taking action: %v -- retrying...", err))
		}),
	)
	if err != nil {
		log.Error("action failed", zap.Error(err))
		e.post(ctx, req.TaskID, fmt.Sprintf("❌ Failed to click '%s': %v", req.Description, err))
		return locator.Result{}, fmt.Errorf("click %q: %w", req.Description, err)
	}
	return result, nil
}

func (e *Executor) post(ctx context.Context, taskID, text string) {
	e.sink.PostMessage(ctx, tasklog.Message{
		TaskID: taskID,
		Role:   "assistant",
		Text:   text,
	})
}
