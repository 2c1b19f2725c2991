// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kube

// ConfigMap is the subset of the API object the watcher consumes.
type ConfigMap struct {
	Kind       string            `json:"kind"`
	APIVersion string            `json:"apiVersion"`
	Metadata   ObjectMeta        `json:"metadata"`
	Data       map[string]string `json:"data"`
}

// WatchFunc receives a configmap whose resourceVersion moved since the last
// poll.
type WatchFunc func(cm *ConfigMap)

// ConfigMapWatcher polls one configmap and fires a callback on change. The
// API server's watch protocol is deliberately not used: a constrained client
// with Connection: close framing polls instead, keyed on resourceVersion.
type ConfigMapWatcher struct {
	c           *Client
	path        string
	lastVersion string
	onChange    WatchFunc
}

// NewConfigMapWatcher watches namespace/name on c, delivering changes to
// onChange.
func NewConfigMapWatcher(c *Client, namespace, name string, onChange WatchFunc) *ConfigMapWatcher {
	return &ConfigMapWatcher{
		c:        c,
		path:     "/api/v1/namespaces/" + namespace + "/configmaps/" + name,
		onChange: onChange,
	}
}

// PollOnce fetches the configmap and fires the callback when its
// resourceVersion differs from the previous poll. The first successful poll
// always counts as a change. A fetch failure (the configmap may not exist
// yet) is returned without firing.
func (w *ConfigMapWatcher) PollOnce() (changed bool, err error) {
	var cm ConfigMap
	if _, err := w.c.getJSON(w.path, &cm); err != nil {
		return false, err
	}
	if cm.Metadata.ResourceVersion == w.lastVersion {
		return false, nil
	}
	w.lastVersion = cm.Metadata.ResourceVersion
	w.c.log.Info("configmap changed", "path", w.path,
		"resourceVersion", cm.Metadata.ResourceVersion)
	if w.onChange != nil {
		w.onChange(&cm)
	}
	return true, nil
}
