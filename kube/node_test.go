// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kube_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.hybscloud.com/qhttp/kube"
)

func TestBuildNode_Shape(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	node := kube.BuildNode(kube.NodeSpec{
		Name:        "pico-1",
		InternalIP:  "10.0.0.7",
		KubeletPort: 10250,
	}, now)

	assert.Equal(t, "Node", node.Kind)
	assert.Equal(t, "v1", node.APIVersion)
	assert.Equal(t, "pico-1", node.Metadata.Name)
	assert.Equal(t, "arm", node.Metadata.Labels["kubernetes.io/arch"])
	assert.Equal(t, "rp2040-pico", node.Metadata.Labels["node.kubernetes.io/instance-type"])
	assert.Equal(t, "pico-1", node.Metadata.Labels["kubernetes.io/hostname"])

	require.Len(t, node.Status.Conditions, 5)
	ready := node.Status.Conditions[0]
	assert.Equal(t, "Ready", ready.Type)
	assert.Equal(t, "True", ready.Status)
	assert.Equal(t, "2026-08-31T12:00:00Z", ready.LastHeartbeatTime)
	for _, c := range node.Status.Conditions[1:] {
		assert.Equal(t, "False", c.Status, c.Type)
	}

	assert.Equal(t, map[string]string{"cpu": "1", "memory": "256Ki", "pods": "0"},
		node.Status.Capacity)
	assert.Equal(t, node.Status.Capacity, node.Status.Allocatable)
	require.NotNil(t, node.Status.DaemonEndpoints)
	assert.Equal(t, 10250, node.Status.DaemonEndpoints.KubeletEndpoint.Port)

	addrs := map[string]string{}
	for _, a := range node.Status.Addresses {
		addrs[a.Type] = a.Address
	}
	assert.Equal(t, "10.0.0.7", addrs["InternalIP"])
	assert.Equal(t, "pico-1", addrs["Hostname"])
}

func TestBuildNode_Overrides(t *testing.T) {
	node := kube.BuildNode(kube.NodeSpec{
		Name: "n", InternalIP: "10.0.0.1",
		Architecture: "arm64", InstanceType: "custom", CPU: "4", Memory: "1Gi",
	}, time.Now())
	assert.Equal(t, "arm64", node.Metadata.Labels["kubernetes.io/arch"])
	assert.Equal(t, "custom", node.Metadata.Labels["node.kubernetes.io/instance-type"])
	assert.Equal(t, "4", node.Status.Capacity["cpu"])
	assert.Equal(t, "1Gi", node.Status.Capacity["memory"])
	assert.Equal(t, "arm64", node.Status.NodeInfo.Architecture)
	// No kubelet port, no daemon endpoints block.
	assert.Nil(t, node.Status.DaemonEndpoints)
}

func TestBuildNode_JSONRoundTrip(t *testing.T) {
	node := kube.BuildNode(kube.NodeSpec{Name: "n", InternalIP: "10.0.0.1"}, time.Now())
	raw, err := json.Marshal(node)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "Node", m["kind"])
	// Empty optional blocks must not serialize at all.
	status := m["status"].(map[string]any)
	_, hasDE := status["daemonEndpoints"]
	assert.False(t, hasDE)
}

func TestRegisterNode(t *testing.T) {
	var posted []byte
	c, p := newTestClient(t, func(received []byte) ([]byte, bool) {
		body, ok := fullRequest(received)
		if !ok {
			return nil, false
		}
		require.True(t, bytes.HasPrefix(received, []byte("POST /api/v1/nodes HTTP/1.1\r\n")),
			"request: %q", received)
		posted = append(posted[:0], body...)
		return reply("201 Created", `{"kind":"Node"}`), true
	})
	node := kube.BuildNode(kube.NodeSpec{Name: "pico-1", InternalIP: "10.0.0.7"}, time.Now())
	require.NoError(t, c.RegisterNode(node))

	var sent kube.Node
	require.NoError(t, json.Unmarshal(posted, &sent))
	assert.Equal(t, "pico-1", sent.Metadata.Name)
	assert.Zero(t, p.OpenHandles())
}

func TestRegisterNode_ConflictTolerated(t *testing.T) {
	c, _ := newTestClient(t, func(received []byte) ([]byte, bool) {
		if _, ok := fullRequest(received); !ok {
			return nil, false
		}
		return reply("409 Conflict", `{"reason":"AlreadyExists"}`), true
	})
	node := kube.BuildNode(kube.NodeSpec{Name: "pico-1", InternalIP: "10.0.0.7"}, time.Now())
	assert.NoError(t, c.RegisterNode(node))
}

func TestRegisterNode_ServerErrorSurfaces(t *testing.T) {
	c, _ := newTestClient(t, func(received []byte) ([]byte, bool) {
		if _, ok := fullRequest(received); !ok {
			return nil, false
		}
		return reply("500 Internal Server Error", ""), true
	})
	node := kube.BuildNode(kube.NodeSpec{Name: "pico-1", InternalIP: "10.0.0.7"}, time.Now())
	assert.Error(t, c.RegisterNode(node))
}

func TestUpdateNodeStatus(t *testing.T) {
	var request []byte
	c, p := newTestClient(t, func(received []byte) ([]byte, bool) {
		if _, ok := fullRequest(received); !ok {
			return nil, false
		}
		request = append(request[:0], received...)
		return reply("200 OK", `{"kind":"Node"}`), true
	})
	status := &kube.NodeStatus{Conditions: []kube.NodeCondition{{Type: "Ready", Status: "True"}}}
	require.NoError(t, c.UpdateNodeStatus("pico-1", status))

	assert.True(t, bytes.HasPrefix(request,
		[]byte("PATCH /api/v1/nodes/pico-1/status HTTP/1.1\r\n")), "request: %q", request)
	assert.Contains(t, string(request), "Content-Type: application/merge-patch+json\r\n")
	body, _ := fullRequest(request)
	var patch struct {
		Status *kube.NodeStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body, &patch))
	require.NotNil(t, patch.Status)
	assert.Equal(t, "Ready", patch.Status.Conditions[0].Type)
	assert.Zero(t, p.OpenHandles())
}
