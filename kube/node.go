// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kube

import (
	"errors"
	"strconv"
	"time"

	"code.hybscloud.com/qhttp"
)

// ObjectMeta is the subset of Kubernetes object metadata this agent touches.
type ObjectMeta struct {
	Name            string            `json:"name,omitempty"`
	Namespace       string            `json:"namespace,omitempty"`
	Labels          map[string]string `json:"labels,omitempty"`
	ResourceVersion string            `json:"resourceVersion,omitempty"`
}

// NodeCondition is one entry of a node's condition list.
type NodeCondition struct {
	Type               string `json:"type"`
	Status             string `json:"status"`
	Reason             string `json:"reason,omitempty"`
	Message            string `json:"message,omitempty"`
	LastHeartbeatTime  string `json:"lastHeartbeatTime,omitempty"`
	LastTransitionTime string `json:"lastTransitionTime,omitempty"`
}

// NodeAddress is one entry of a node's address list.
type NodeAddress struct {
	Type    string `json:"type"`
	Address string `json:"address"`
}

// NodeSystemInfo identifies the node's hardware and software.
type NodeSystemInfo struct {
	MachineID               string `json:"machineID"`
	SystemUUID              string `json:"systemUUID"`
	BootID                  string `json:"bootID"`
	KernelVersion           string `json:"kernelVersion"`
	OSImage                 string `json:"osImage"`
	ContainerRuntimeVersion string `json:"containerRuntimeVersion"`
	KubeletVersion          string `json:"kubeletVersion"`
	KubeProxyVersion        string `json:"kubeProxyVersion"`
	OperatingSystem         string `json:"operatingSystem"`
	Architecture            string `json:"architecture"`
}

// DaemonEndpoints carries the kubelet endpoint port.
type DaemonEndpoints struct {
	KubeletEndpoint struct {
		Port int `json:"Port"`
	} `json:"kubeletEndpoint"`
}

// NodeStatus is the status block reported on registration and heartbeats.
type NodeStatus struct {
	Conditions      []NodeCondition   `json:"conditions,omitempty"`
	Addresses       []NodeAddress     `json:"addresses,omitempty"`
	Capacity        map[string]string `json:"capacity,omitempty"`
	Allocatable     map[string]string `json:"allocatable,omitempty"`
	NodeInfo        *NodeSystemInfo   `json:"nodeInfo,omitempty"`
	DaemonEndpoints *DaemonEndpoints  `json:"daemonEndpoints,omitempty"`
}

// Node is the API object POSTed on registration.
type Node struct {
	Kind       string     `json:"kind"`
	APIVersion string     `json:"apiVersion"`
	Metadata   ObjectMeta `json:"metadata"`
	Status     NodeStatus `json:"status"`
}

// NodeSpec is the handful of values that vary per device; BuildNode expands
// it into a full Node object.
type NodeSpec struct {
	Name         string
	InternalIP   string
	KubeletPort  int
	Architecture string // defaults to "arm"
	InstanceType string // defaults to "rp2040-pico"
	CPU          string // defaults to "1"
	Memory       string // defaults to "256Ki"
}

// BuildNode expands spec into the Node object a constrained device reports:
// Ready plus the four pressure conditions, internal/hostname addresses,
// fixed capacity, and static system info. now stamps the condition times.
func BuildNode(spec NodeSpec, now time.Time) *Node {
	arch := spec.Architecture
	if arch == "" {
		arch = "arm"
	}
	instance := spec.InstanceType
	if instance == "" {
		instance = "rp2040-pico"
	}
	cpu := spec.CPU
	if cpu == "" {
		cpu = "1"
	}
	mem := spec.Memory
	if mem == "" {
		mem = "256Ki"
	}
	resources := map[string]string{"cpu": cpu, "memory": mem, "pods": "0"}

	node := &Node{
		Kind:       "Node",
		APIVersion: "v1",
		Metadata: ObjectMeta{
			Name: spec.Name,
			Labels: map[string]string{
				"kubernetes.io/arch":               arch,
				"kubernetes.io/os":                 "linux",
				"kubernetes.io/hostname":           spec.Name,
				"node.kubernetes.io/instance-type": instance,
				"beta.kubernetes.io/arch":          arch,
				"beta.kubernetes.io/os":            "linux",
			},
		},
		Status: NodeStatus{
			Conditions: heartbeatConditions(now),
			Addresses: []NodeAddress{
				{Type: "InternalIP", Address: spec.InternalIP},
				{Type: "Hostname", Address: spec.Name},
			},
			Capacity:    resources,
			Allocatable: resources,
			NodeInfo: &NodeSystemInfo{
				MachineID:               instance,
				SystemUUID:              instance,
				BootID:                  instance,
				KernelVersion:           "5.15.0-" + arch,
				OSImage:                 "Pico SDK",
				ContainerRuntimeVersion: "mock://1.0.0",
				KubeletVersion:          "v1.34.0",
				KubeProxyVersion:        "v1.34.0",
				OperatingSystem:         "linux",
				Architecture:            arch,
			},
		},
	}
	if spec.KubeletPort > 0 {
		de := &DaemonEndpoints{}
		de.KubeletEndpoint.Port = spec.KubeletPort
		node.Status.DaemonEndpoints = de
	}
	return node
}

// heartbeatConditions returns the standard condition set with heartbeat
// timestamps at now (RFC 3339, UTC).
func heartbeatConditions(now time.Time) []NodeCondition {
	ts := now.UTC().Format(time.RFC3339)
	mk := func(typ, status, reason, message string) NodeCondition {
		return NodeCondition{
			Type: typ, Status: status, Reason: reason, Message: message,
			LastHeartbeatTime: ts,
		}
	}
	return []NodeCondition{
		mk("Ready", "True", "KubeletReady", "node is ready"),
		mk("MemoryPressure", "False", "KubeletHasSufficientMemory", ""),
		mk("DiskPressure", "False", "KubeletHasNoDiskPressure", ""),
		mk("PIDPressure", "False", "KubeletHasSufficientPID", ""),
		mk("NetworkUnavailable", "False", "RouteCreated", ""),
	}
}

// RegisterNode creates the node object. 409 Conflict means the node already
// exists and is tolerated; a status heartbeat will refresh it.
func (c *Client) RegisterNode(node *Node) error {
	_, err := c.postJSON("/api/v1/nodes", node)
	if err != nil {
		var se *qhttp.StatusError
		if errors.As(err, &se) && se.Code == 409 {
			c.log.Debug("node already registered", "node", node.Metadata.Name)
			return nil
		}
		return err
	}
	c.log.Info("node registered", "node", node.Metadata.Name)
	return nil
}

// UpdateNodeStatus merge-patches the node's status subresource with fresh
// heartbeat timestamps.
func (c *Client) UpdateNodeStatus(name string, status *NodeStatus) error {
	payload := struct {
		Status *NodeStatus `json:"status"`
	}{Status: status}
	path := "/api/v1/nodes/" + name + "/status"
	_, err := c.patchJSON(path, &payload, "application/merge-patch+json")
	if err != nil {
		return err
	}
	c.log.Debug("node status updated", "node", name,
		"conditions", strconv.Itoa(len(status.Conditions)))
	return nil
}
