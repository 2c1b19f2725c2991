// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kube_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.hybscloud.com/qhttp/kube"
)

func TestConfigMapWatcher_DetectsChanges(t *testing.T) {
	version := "1"
	c, p := newTestClient(t, func(received []byte) ([]byte, bool) {
		if _, ok := fullRequest(received); !ok {
			return nil, false
		}
		require.True(t, bytes.HasPrefix(received,
			[]byte("GET /api/v1/namespaces/default/configmaps/pico-config HTTP/1.1\r\n")),
			"request: %q", received)
		return reply("200 OK",
			`{"kind":"ConfigMap","metadata":{"name":"pico-config","resourceVersion":"`+
				version+`"},"data":{"interval":"30"}}`), true
	})

	var fired []*kube.ConfigMap
	w := kube.NewConfigMapWatcher(c, "default", "pico-config", func(cm *kube.ConfigMap) {
		fired = append(fired, cm)
	})

	// First successful poll always counts as a change.
	changed, err := w.PollOnce()
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, fired, 1)
	assert.Equal(t, "30", fired[0].Data["interval"])

	// Same version: no change, no callback.
	changed, err = w.PollOnce()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, fired, 1)

	// Version moves: change fires again.
	version = "2"
	changed, err = w.PollOnce()
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, fired, 2)
	assert.Equal(t, "2", fired[1].Metadata.ResourceVersion)

	assert.Zero(t, p.OpenHandles())
}

func TestConfigMapWatcher_FetchFailure(t *testing.T) {
	c, _ := newTestClient(t, func(received []byte) ([]byte, bool) {
		if _, ok := fullRequest(received); !ok {
			return nil, false
		}
		return reply("404 Not Found", `{"reason":"NotFound"}`), true
	})
	w := kube.NewConfigMapWatcher(c, "default", "missing", func(*kube.ConfigMap) {
		t.Fatalf("callback fired on fetch failure")
	})
	changed, err := w.PollOnce()
	assert.Error(t, err)
	assert.False(t, changed)
}

func TestConfigMapWatcher_NilCallback(t *testing.T) {
	c, _ := newTestClient(t, func(received []byte) ([]byte, bool) {
		if _, ok := fullRequest(received); !ok {
			return nil, false
		}
		return reply("200 OK",
			`{"kind":"ConfigMap","metadata":{"resourceVersion":"1"},"data":{}}`), true
	})
	w := kube.NewConfigMapWatcher(c, "default", "pico-config", nil)
	changed, err := w.PollOnce()
	require.NoError(t, err)
	assert.True(t, changed)
}
