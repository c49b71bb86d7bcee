package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasmbus/host"
	"github.com/wippyai/wasmbus/secrets"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const yamlHost = `
lattice: prod
component_id: http-hello
invocation_timeout: 3s
links:
  default:
    wasi:keyvalue/store@0.2.0: kv-redis
  cached:
    wasi:keyvalue/store: kv-memory
components:
  echo: echo.wasm
config:
  greeting: hello
secrets:
  api-key: s3cret
  cert: base64:AAEC
`

const tomlHost = `
component_id = "http-hello"

[links.default]
"wasi:keyvalue/store" = "kv-redis"

[config]
greeting = "hello"

[messaging]
default = "nats://127.0.0.1:4222"
`

func TestLoadHostFileYAML(t *testing.T) {
	hf, err := loadHostFile(writeFile(t, "host.yaml", yamlHost))
	require.NoError(t, err)

	assert.Equal(t, "prod", hf.Lattice)
	assert.Equal(t, "http-hello", hf.ComponentID)
	assert.Equal(t, 3*time.Second, hf.timeout)
	assert.Equal(t, "hello", hf.Config["greeting"])
	assert.Equal(t, filepath.Join(hf.dir, "echo.wasm"), hf.componentPath("echo"))

	g := hf.graph()
	dest, _, ok := g.Lookup("default", "wasi:keyvalue/store")
	require.True(t, ok, "versioned instances are stored canonically")
	assert.Equal(t, "kv-redis", dest)
	dest, _, ok = g.Lookup("cached", "wasi:keyvalue/store")
	require.True(t, ok)
	assert.Equal(t, "kv-memory", dest)

	cache, err := hf.secrets()
	require.NoError(t, err)
	h, err := cache.Get("cert")
	require.NoError(t, err)
	v, err := cache.Reveal(h)
	require.NoError(t, err)
	assert.Equal(t, secrets.ValueBytes, v.Kind())
	b, _ := v.AsBytes()
	assert.Equal(t, []byte{0, 1, 2}, b)

	h, err = cache.Get("api-key")
	require.NoError(t, err)
	v, err = cache.Reveal(h)
	require.NoError(t, err)
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "s3cret", s)
}

func TestLoadHostFileTOML(t *testing.T) {
	hf, err := loadHostFile(writeFile(t, "host.toml", tomlHost))
	require.NoError(t, err)

	assert.Equal(t, host.DefaultLattice, hf.Lattice)
	assert.Equal(t, host.DefaultInvocationTimeout, hf.timeout)
	assert.Equal(t, "kv-redis", hf.Links["default"]["wasi:keyvalue/store"])
	assert.Equal(t, "nats://127.0.0.1:4222", hf.Messaging["default"])
}

func TestLoadHostFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"missing component", "h.yaml", "lattice: x\n", "component_id is required"},
		{"bad timeout", "h.yaml", "component_id: a\ninvocation_timeout: soon\n", "invocation_timeout"},
		{"negative timeout", "h.yaml", "component_id: a\ninvocation_timeout: -1s\n", "must be positive"},
		{"empty destination", "h.yaml", "component_id: a\nlinks:\n  default:\n    a:b/c: \"\"\n", "empty destination"},
		{"bad backend", "h.yaml", "component_id: a\nmessaging:\n  default: amqp://x\n", "unsupported backend"},
		{"bad extension", "h.json", "{}", "unsupported host file extension"},
		{"bad yaml", "h.yaml", "component_id: [", "parse YAML"},
		{"bad toml", "h.toml", "component_id = ", "parse TOML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadHostFile(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := loadHostFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read host file")
}
