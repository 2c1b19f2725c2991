// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kube

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Agent registers a node and keeps it alive: periodic status heartbeats and,
// when a configmap name is configured, periodic configmap polls. The
// heartbeat and poll loops run as separate goroutines under one errgroup,
// but the transport underneath is strictly serial, so a mutex serializes the
// actual requests.
type Agent struct {
	c    *Client
	cfg  Config
	spec NodeSpec
	ts   *TimeSource

	onConfig WatchFunc

	mu sync.Mutex
}

// NewAgent builds an Agent over c. onConfig may be nil when cfg names no
// configmap.
func NewAgent(c *Client, cfg Config, spec NodeSpec, onConfig WatchFunc) *Agent {
	return &Agent{
		c:        c,
		cfg:      cfg.withDefaults(),
		spec:     spec,
		ts:       &TimeSource{},
		onConfig: onConfig,
	}
}

// Time exposes the agent's synchronized time source.
func (a *Agent) Time() *TimeSource { return a.ts }

// Run drives the agent until ctx is canceled. It first syncs the clock and
// registers the node, retrying at the status interval until registration
// succeeds, then runs the heartbeat and configmap loops. Per-tick failures
// are logged and retried on the next tick; only ctx cancellation ends Run.
func (a *Agent) Run(ctx context.Context) error {
	log := a.cfg.Logger

	if err := a.ts.Sync(a.c); err != nil {
		log.Warn("time sync failed, using local clock", "err", err)
	}
	for {
		node := BuildNode(a.spec, a.ts.Now())
		err := a.c.RegisterNode(node)
		if err == nil {
			break
		}
		log.Warn("node registration failed", "node", a.spec.Name, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.StatusInterval):
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.heartbeatLoop(ctx) })
	if a.cfg.ConfigMapName != "" {
		g.Go(func() error { return a.configLoop(ctx) })
	}
	return g.Wait()
}

func (a *Agent) heartbeatLoop(ctx context.Context) error {
	t := time.NewTicker(a.cfg.StatusInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		a.mu.Lock()
		status := &NodeStatus{Conditions: heartbeatConditions(a.ts.Now())}
		err := a.c.UpdateNodeStatus(a.spec.Name, status)
		a.mu.Unlock()
		if err != nil {
			a.cfg.Logger.Warn("status heartbeat failed",
				"node", a.spec.Name, "err", err)
		}
	}
}

func (a *Agent) configLoop(ctx context.Context) error {
	w := NewConfigMapWatcher(a.c, a.cfg.Namespace, a.cfg.ConfigMapName, a.onConfig)
	t := time.NewTicker(a.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		a.mu.Lock()
		_, err := w.PollOnce()
		a.mu.Unlock()
		if err != nil {
			a.cfg.Logger.Warn("configmap poll failed",
				"name", a.cfg.ConfigMapName, "err", err)
		}
	}
}
