// Package natsrpc carries remote invocations over NATS.
//
// An invocation is a request on
//
//	<prefix>.wrpc.0.0.1.<instance>.<function>
//
// whose payload holds the encoded parameters. The client subscribes to a
// results inbox before sending and names it in the request headers. The
// server answers the request with an empty handshake whose reply subject is
// the inbox accepting any further parameter bytes, then streams results to
// the client's inbox. An empty message ends a stream in either direction.
package natsrpc

import (
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/wippyai/wasmbus/stream"
	"github.com/wippyai/wasmbus/transport"
)

// Protocol headers
const (
	HeaderResults    = "wrpc-results"
	HeaderError      = "wrpc-error"
	HeaderInvocation = "wrpc-invocation-id"
)

const protocol = "wrpc.0.0.1"

// Subject returns the invocation subject for a function
func Subject(prefix, instance, function string) string {
	return prefix + "." + protocol + "." + instance + "." + function
}

func resultSubject(inbox string) string {
	return inbox + ".r"
}

// pathSubject appends a path to base, rendering Wildcard as "*".
func pathSubject(base string, path stream.Path) string {
	if len(path) == 0 {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	for _, i := range path {
		b.WriteByte('.')
		if i == stream.Wildcard {
			b.WriteByte('*')
		} else {
			b.WriteString(strconv.Itoa(i))
		}
	}
	return b.String()
}

func toNATS(h transport.Header) nats.Header {
	out := make(nats.Header, len(h))
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func fromNATS(h nats.Header) transport.Header {
	out := make(transport.Header, len(h))
	for k, v := range h {
		for _, s := range v {
			out.Add(k, s)
		}
	}
	return out
}
