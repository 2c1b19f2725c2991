// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package qhttp

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildRequest_Get(t *testing.T) {
	dst := make([]byte, 512)
	n, err := buildRequest(dst, &Request{
		Method: MethodGet, Host: "10.0.0.1", Port: 6443, Path: "/api/v1/nodes",
	}, "agent/0.1")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got := string(dst[:n])
	want := "GET /api/v1/nodes HTTP/1.1\r\n" +
		"Host: 10.0.0.1:6443\r\n" +
		"User-Agent: agent/0.1\r\n" +
		"Accept: application/json\r\n" +
		"Connection: close\r\n" +
		"\r\n"
	if got != want {
		t.Fatalf("request mismatch:\ngot:  %q\nwant: %q", got, want)
	}
	if strings.Contains(got, "Content-Length") {
		t.Fatalf("GET carries Content-Length: %q", got)
	}
}

func TestBuildRequest_PostBodyFraming(t *testing.T) {
	dst := make([]byte, 512)
	body := []byte(`{"kind":"Node"}`)
	n, err := buildRequest(dst, &Request{
		Method: MethodPost, Host: "apiserver", Port: 443, Path: "/api/v1/nodes",
		Body: body,
	}, "agent/0.1")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got := string(dst[:n])
	if !strings.Contains(got, "Content-Type: application/json\r\n") {
		t.Fatalf("missing default content type: %q", got)
	}
	if !strings.Contains(got, "Content-Length: 15\r\n") {
		t.Fatalf("missing exact content length: %q", got)
	}
	if !strings.HasSuffix(got, "\r\n\r\n"+string(body)) {
		t.Fatalf("body not after blank line: %q", got)
	}
}

func TestBuildRequest_PatchContentType(t *testing.T) {
	dst := make([]byte, 512)
	n, err := buildRequest(dst, &Request{
		Method: MethodPatch, Host: "apiserver", Port: 443, Path: "/api/v1/nodes/n1/status",
		Body: []byte(`{}`), ContentType: "application/merge-patch+json",
	}, "agent/0.1")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got := string(dst[:n])
	if !strings.HasPrefix(got, "PATCH ") {
		t.Fatalf("method line: %q", got)
	}
	if !strings.Contains(got, "Content-Type: application/merge-patch+json\r\n") {
		t.Fatalf("content type not honored: %q", got)
	}
}

func TestBuildRequest_OverflowIsAllOrNothing(t *testing.T) {
	dst := make([]byte, 32)
	n, err := buildRequest(dst, &Request{
		Method: MethodGet, Host: "a-rather-long-hostname.example.com", Port: 443,
		Path: "/some/long/path/that/cannot/fit",
	}, "agent/0.1")
	if !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("err=%v want=ErrBufferTooSmall", err)
	}
	if n != 0 {
		t.Fatalf("n=%d want=0 on overflow", n)
	}
}

func TestBuildRequest_InvalidArguments(t *testing.T) {
	dst := make([]byte, 512)
	bad := []*Request{
		nil,
		{Method: MethodGet, Host: "", Port: 80, Path: "/"},
		{Method: MethodGet, Host: "h", Port: 0, Path: "/"},
		{Method: MethodGet, Host: "h", Port: 80, Path: ""},
		{Method: MethodGet, Host: "h", Port: 80, Path: "relative"},
		{Method: Method(9), Host: "h", Port: 80, Path: "/"},
		{Method: MethodGet, Host: "h", Port: 80, Path: "/", Body: []byte("x")},
	}
	for i, req := range bad {
		if _, err := buildRequest(dst, req, "ua"); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("case %d: err=%v want=ErrInvalidArgument", i, err)
		}
	}
}

func TestParseResponse_Basic(t *testing.T) {
	buf := []byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\nContent-Type: text/plain\r\n\r\nok")
	resp, err := ParseResponse(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("StatusCode=%d want=200", resp.StatusCode)
	}
	if resp.ContentLength != 2 {
		t.Fatalf("ContentLength=%d want=2", resp.ContentLength)
	}
	if string(resp.Body) != "ok" {
		t.Fatalf("Body=%q want=%q", resp.Body, "ok")
	}
	if resp.Chunked {
		t.Fatalf("Chunked=true want=false")
	}
	// Header view covers status line and headers, without the blank line.
	if !strings.HasPrefix(string(resp.Header), "HTTP/1.1 200 OK\r\n") ||
		strings.Contains(string(resp.Header), "\r\n\r\n") {
		t.Fatalf("Header view: %q", resp.Header)
	}
}

func TestParseResponse_NoContentLength(t *testing.T) {
	buf := []byte("HTTP/1.1 200 OK\r\n\r\nstreamed until close")
	resp, err := ParseResponse(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resp.ContentLength != -1 {
		t.Fatalf("ContentLength=%d want=-1", resp.ContentLength)
	}
	if string(resp.Body) != "streamed until close" {
		t.Fatalf("Body=%q", resp.Body)
	}
}

func TestParseResponse_ChunkedDetection(t *testing.T) {
	buf := []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: Chunked\r\n\r\n2\r\nok\r\n0\r\n\r\n")
	resp, err := ParseResponse(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !resp.Chunked {
		t.Fatalf("Chunked=false want=true")
	}
	// Detection only: the body is the raw chunk stream.
	if !strings.HasPrefix(string(resp.Body), "2\r\n") {
		t.Fatalf("Body=%q", resp.Body)
	}
}

func TestParseResponse_Malformed(t *testing.T) {
	cases := []string{
		"",
		"garbage with no line ending",
		// No status code on the status line.
		"HTTP/1.1\r\n\r\n",
		// Headers never terminate in a blank line.
		"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n",
	}
	for i, c := range cases {
		if _, err := ParseResponse([]byte(c)); !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("case %d: err=%v want=ErrMalformedResponse", i, err)
		}
	}
}

func TestResponseGet_CaseInsensitive(t *testing.T) {
	buf := []byte("HTTP/1.1 200 OK\r\ncontent-length: 2\r\nDate:  Mon, 02 Jan 2006 15:04:05 GMT \r\n\r\nok")
	resp, err := ParseResponse(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, name := range []string{"Content-Length", "content-length", "CONTENT-LENGTH"} {
		v, ok := resp.Get(name)
		if !ok || v != "2" {
			t.Fatalf("Get(%q)=%q,%v want=2,true", name, v, ok)
		}
	}
	// Value whitespace is trimmed on both sides.
	if v, ok := resp.Get("Date"); !ok || v != "Mon, 02 Jan 2006 15:04:05 GMT" {
		t.Fatalf("Get(Date)=%q,%v", v, ok)
	}
	if _, ok := resp.Get("X-Missing"); ok {
		t.Fatalf("Get on missing header reported ok")
	}
	// The status line must never match as a header.
	if _, ok := resp.Get("HTTP/1.1 200 OK"); ok {
		t.Fatalf("status line matched as header")
	}
}

func TestResponseComplete(t *testing.T) {
	cases := []struct {
		buf      string
		complete bool
	}{
		{"", false},
		{"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n", false}, // headers partial
		{"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\n", false},
		{"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\no", false},
		{"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok", true},
		{"HTTP/1.1 204 No Content\r\nContent-Length: 0\r\n\r\n", true},
		// No declared length: framed by close, never complete here.
		{"HTTP/1.1 200 OK\r\n\r\nbody", false},
		// Chunked: framed by close as well.
		{"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n0\r\n\r\n", false},
	}
	for i, tc := range cases {
		if got := responseComplete([]byte(tc.buf)); got != tc.complete {
			t.Fatalf("case %d: responseComplete=%v want=%v", i, got, tc.complete)
		}
	}
}

func TestMethod_String(t *testing.T) {
	if MethodGet.String() != "GET" || MethodPost.String() != "POST" ||
		MethodPatch.String() != "PATCH" || Method(9).String() != "" {
		t.Fatalf("method strings wrong")
	}
}
