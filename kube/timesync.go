// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kube

import (
	"errors"
	"fmt"
	"time"

	"code.hybscloud.com/qhttp"
)

// TimeSource derives wall-clock time for devices without a battery-backed
// clock by offsetting the local monotonic-ish clock against a server-stamped
// Date header. Unsynced it reports the local clock unchanged.
type TimeSource struct {
	offset time.Duration
	synced bool
}

// Now returns the current time adjusted by the last sync offset.
func (t *TimeSource) Now() time.Time { return time.Now().Add(t.offset) }

// Synced reports whether Sync has succeeded at least once.
func (t *TimeSource) Synced() bool { return t.synced }

// Sync fetches the server's Date header via c and records the offset.
func (t *TimeSource) Sync(c *Client) error {
	server, err := c.ServerTime()
	if err != nil {
		return err
	}
	t.offset = time.Until(server)
	t.synced = true
	return nil
}

// ServerTime reads the Date header from a lightweight GET against the API
// server root. The status code is irrelevant: an unauthenticated 401 still
// carries a perfectly good Date header, so only transport failures and a
// missing or malformed header are errors.
func (c *Client) ServerTime() (time.Time, error) {
	resp, err := c.http.Get(c.host, c.port, "/", c.timeout)
	if err != nil {
		var se *qhttp.StatusError
		if !errors.As(err, &se) {
			return time.Time{}, err
		}
	}
	if resp == nil {
		return time.Time{}, err
	}
	v, ok := resp.Get("Date")
	if !ok {
		return time.Time{}, errors.New("kube: no Date header in response")
	}
	return parseHTTPDate(v)
}

// httpDateLayouts are the three date forms RFC 9110 obliges recipients to
// accept. Everything current sends RFC 1123, so it goes first.
var httpDateLayouts = []string{time.RFC1123, time.RFC850, time.ANSIC}

func parseHTTPDate(v string) (time.Time, error) {
	for _, layout := range httpDateLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("kube: bad Date header %q", v)
}
