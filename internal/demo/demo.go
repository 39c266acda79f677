// Package demo drives a limiter in a tight loop and prints each decision.
package demo

import (
	"context"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/serroba/credit-limiter/internal/credit"
	"github.com/serroba/credit-limiter/internal/ratelimit"
)

// Config controls a demo run.
type Config struct {
	Key        string
	Iterations int
	Window     ratelimit.WindowSpec
	Acquire    bool          // print grants instead of remaining credits
	Wait       time.Duration // wait interval for Acquire
	MaxRetries int
	Color      bool // green for grants, red for denials
}

// DefaultConfig simulates 5 requests per second on a single key.
func DefaultConfig() Config {
	return Config{
		Key:        "test_key",
		Iterations: 100,
		Window:     ratelimit.WindowSpec{WindowSeconds: 1, Limit: 5},
		MaxRetries: credit.Unlimited,
	}
}

// Run requests a credit Iterations times, writing one line per request:
// the remaining credits, or the grant when cfg.Acquire is set.
func Run(ctx context.Context, out io.Writer, limiter ratelimit.Checker, requester *credit.Requester, cfg Config) error {
	grant, deny := color.New(color.FgGreen), color.New(color.FgRed)
	if cfg.Color {
		grant.EnableColor()
		deny.EnableColor()
	} else {
		grant.DisableColor()
		deny.DisableColor()
	}

	for range cfg.Iterations {
		if cfg.Acquire {
			granted, err := requester.Acquire(ctx, cfg.Key, cfg.Window,
				credit.WithWaitInterval(cfg.Wait),
				credit.WithMaxRetries(cfg.MaxRetries),
			)
			if err != nil {
				return err
			}

			if _, err := pick(granted, grant, deny).Fprintln(out, granted); err != nil {
				return err
			}

			continue
		}

		remaining, err := limiter.CheckAndConsume(ctx, cfg.Key, cfg.Window)
		if err != nil {
			return err
		}

		if _, err := pick(remaining >= 0, grant, deny).Fprintln(out, remaining); err != nil {
			return err
		}
	}

	return nil
}

func pick(ok bool, grant, deny *color.Color) *color.Color {
	if ok {
		return grant
	}

	return deny
}
