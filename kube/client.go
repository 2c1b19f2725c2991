// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package kube implements the thin control-plane call-sites a constrained
// node agent performs against a Kubernetes API server: node registration,
// status heartbeats, configmap polling, and wall-clock derivation from
// response headers.
//
// The package carries no transport logic of its own; every call rides on a
// qhttp.Client. The transport never retries, so retry and pacing policy
// lives at this layer.
package kube

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"code.hybscloud.com/qhttp"
)

// Config describes the API server endpoint and the agent's identity.
type Config struct {
	// Host and Port locate the API server (or the TLS-terminating proxy in
	// front of it).
	Host string
	Port uint16

	// NodeName is this node's name in the cluster.
	NodeName string

	// Namespace scopes configmap lookups. Defaults to "default".
	Namespace string

	// ConfigMapName, when set, enables configmap polling in the Agent.
	ConfigMapName string

	// StatusInterval paces status heartbeats. Defaults to 30s.
	StatusInterval time.Duration

	// PollInterval paces configmap polls. Defaults to 60s.
	PollInterval time.Duration

	// RequestTimeout bounds each individual request cycle. Defaults to 10s.
	RequestTimeout time.Duration

	// Logger receives agent-level logs. Defaults to slog.Default().
	Logger *slog.Logger
}

func (cfg *Config) withDefaults() Config {
	out := *cfg
	if out.Namespace == "" {
		out.Namespace = "default"
	}
	if out.StatusInterval <= 0 {
		out.StatusInterval = 30 * time.Second
	}
	if out.PollInterval <= 0 {
		out.PollInterval = 60 * time.Second
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = 10 * time.Second
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Client talks JSON to one API server over a qhttp.Client.
type Client struct {
	http    *qhttp.Client
	host    string
	port    uint16
	timeout time.Duration
	log     *slog.Logger
}

// New returns a Client for the endpoint in cfg. Transport options (scheme,
// record layer, buffer sizes) pass through to the underlying qhttp.Client.
func New(drv qhttp.Driver, cfg Config, opts ...qhttp.Option) (*Client, error) {
	if drv == nil || cfg.Host == "" {
		return nil, qhttp.ErrInvalidArgument
	}
	c := cfg.withDefaults()
	return &Client{
		http:    qhttp.New(drv, opts...),
		host:    c.Host,
		port:    c.Port,
		timeout: c.RequestTimeout,
		log:     c.Logger,
	}, nil
}

// getJSON fetches path and decodes the body into out when out is non-nil.
// The response is returned even on *qhttp.StatusError so callers can
// inspect error bodies.
func (c *Client) getJSON(path string, out any) (*qhttp.Response, error) {
	resp, err := c.http.Get(c.host, c.port, path, c.timeout)
	if err != nil {
		return resp, err
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, fmt.Errorf("kube: decode %s: %w", path, err)
		}
	}
	return resp, nil
}

func (c *Client) postJSON(path string, in any) (*qhttp.Response, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("kube: encode %s: %w", path, err)
	}
	return c.http.Post(c.host, c.port, path, body, "application/json", c.timeout)
}

func (c *Client) patchJSON(path string, in any, contentType string) (*qhttp.Response, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("kube: encode %s: %w", path, err)
	}
	return c.http.Patch(c.host, c.port, path, body, contentType, c.timeout)
}
