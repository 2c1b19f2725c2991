// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package kube_test

import (
	"bytes"
	"strconv"
	"testing"
	"time"

	"code.hybscloud.com/qhttp"
	"code.hybscloud.com/qhttp/kube"
)

// fullRequest reports whether received holds terminated headers plus any
// declared body, and returns the body view when it does.
func fullRequest(received []byte) ([]byte, bool) {
	i := bytes.Index(received, []byte("\r\n\r\n"))
	if i < 0 {
		return nil, false
	}
	cl := 0
	if j := bytes.Index(received, []byte("Content-Length: ")); j >= 0 {
		rest := received[j+len("Content-Length: "):]
		if k := bytes.IndexByte(rest, '\r'); k >= 0 {
			cl, _ = strconv.Atoi(string(rest[:k]))
		}
	}
	body := received[i+4:]
	if len(body) < cl {
		return nil, false
	}
	return body, true
}

func reply(status, body string, extraHeaders ...string) []byte {
	var b bytes.Buffer
	b.WriteString("HTTP/1.1 " + status + "\r\n")
	b.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	for _, h := range extraHeaders {
		b.WriteString(h + "\r\n")
	}
	b.WriteString("\r\n" + body)
	return b.Bytes()
}

func newTestClient(t *testing.T, serve qhttp.ServeFunc) (*kube.Client, *qhttp.Pipe) {
	t.Helper()
	p := qhttp.NewPipe(serve)
	c, err := kube.New(p, kube.Config{
		Host:           "127.0.0.1",
		Port:           6443,
		NodeName:       "pico-1",
		RequestTimeout: time.Second,
	}, qhttp.WithYield())
	if err != nil {
		t.Fatalf("kube.New: %v", err)
	}
	return c, p
}

func TestNew_Validation(t *testing.T) {
	p := qhttp.NewPipe(func([]byte) ([]byte, bool) { return nil, false })
	if _, err := kube.New(nil, kube.Config{Host: "h"}); err == nil {
		t.Fatalf("nil driver accepted")
	}
	if _, err := kube.New(p, kube.Config{}); err == nil {
		t.Fatalf("empty host accepted")
	}
}
