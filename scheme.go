// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package qhttp

// Scheme selects the transport flavor for a client: SchemeHTTP is plain
// transport on port 80, SchemeHTTPS requires a record layer and a handshake
// phase before application IO, on port 443.
type Scheme uint8

const (
	SchemeHTTP Scheme = iota
	SchemeHTTPS
)

// String returns the scheme name as it appears in URLs.
func (s Scheme) String() string {
	if s == SchemeHTTPS {
		return "https"
	}
	return "http"
}

// DefaultPort returns the well-known port for the scheme, used when a
// request leaves Port zero.
func (s Scheme) DefaultPort() uint16 {
	if s == SchemeHTTPS {
		return 443
	}
	return 80
}

// Secure reports whether connections under this scheme must complete an
// encrypted-channel handshake before application data flows.
func (s Scheme) Secure() bool { return s == SchemeHTTPS }
