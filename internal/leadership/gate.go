/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package leadership

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Source reports leadership changes.
type Source interface {
	IsLeader() bool
	LeaderCh() <-chan bool
}

// Gate runs a worker only while this instance is the leader.
type Gate struct {
	source Source
	run    func(ctx context.Context) error
	name   string
	logger zerolog.Logger
}

// NewGate wraps run so it starts on acquiring leadership and stops on losing it.
func NewGate(source Source, name string, run func(ctx context.Context) error, logger zerolog.Logger) *Gate {
	return &Gate{
		source: source,
		run:    run,
		name:   name,
		logger: logger.With().Str("component", "leader_gate").Str("worker", name).Logger(),
	}
}

// Run blocks until ctx is cancelled. The worker is stopped before Run returns.
func (g *Gate) Run(ctx context.Context) error {
	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)

	start := func() {
		if cancel != nil {
			return
		}
		var workerCtx context.Context
		workerCtx, cancel = context.WithCancel(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.logger.Info().Msg("worker started")
			if err := g.run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				g.logger.Error().Err(err).Msg("worker exited")
			}
		}()
	}
	stop := func() {
		if cancel == nil {
			return
		}
		cancel()
		wg.Wait()
		cancel = nil
		g.logger.Info().Msg("worker stopped")
	}
	defer stop()

	if g.source.IsLeader() {
		start()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case leader := <-g.source.LeaderCh():
			if leader {
				start()
			} else {
				stop()
			}
		}
	}
}
