package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/nats-io/nats.go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasmbus/config"
	"github.com/wippyai/wasmbus/host"
	"github.com/wippyai/wasmbus/link"
	"github.com/wippyai/wasmbus/pubsub"
	"github.com/wippyai/wasmbus/pubsub/natsps"
	"github.com/wippyai/wasmbus/pubsub/redisps"
	"github.com/wippyai/wasmbus/secrets"
	"github.com/wippyai/wasmbus/transport"
	"github.com/wippyai/wasmbus/transport/natsrpc"
	"github.com/wippyai/wasmbus/wazerort"
)

// hostFile is the on-disk description of one host and the component it
// acts for.
type hostFile struct {
	Lattice           string                       `yaml:"lattice" toml:"lattice"`
	ComponentID       string                       `yaml:"component_id" toml:"component_id"`
	InvocationTimeout string                       `yaml:"invocation_timeout" toml:"invocation_timeout"`
	NATSURL           string                       `yaml:"nats_url" toml:"nats_url"`
	Links             map[string]map[string]string `yaml:"links" toml:"links"`
	Components        map[string]string            `yaml:"components" toml:"components"`
	Config            map[string]string            `yaml:"config" toml:"config"`
	Secrets           map[string]string            `yaml:"secrets" toml:"secrets"`
	Messaging         map[string]string            `yaml:"messaging" toml:"messaging"`

	dir     string
	timeout time.Duration
}

// loadHostFile reads a YAML or TOML host file, chosen by extension.
func loadHostFile(path string) (*hostFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read host file: %w", err)
	}

	var hf hostFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &hf); err != nil {
			return nil, fmt.Errorf("parse TOML: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &hf); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported host file extension %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}

	hf.dir = filepath.Dir(path)
	if err := hf.validate(); err != nil {
		return nil, fmt.Errorf("invalid host file: %w", err)
	}
	return &hf, nil
}

func (hf *hostFile) validate() error {
	if hf.Lattice == "" {
		hf.Lattice = host.DefaultLattice
	}
	if hf.ComponentID == "" {
		return fmt.Errorf("component_id is required")
	}

	hf.timeout = host.DefaultInvocationTimeout
	if s := strings.TrimSpace(hf.InvocationTimeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse invocation_timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("invocation_timeout must be positive, got %s", d)
		}
		hf.timeout = d
	}

	for name, ifaces := range hf.Links {
		for instance, dest := range ifaces {
			if dest == "" {
				return fmt.Errorf("link %q: empty destination for %q", name, instance)
			}
		}
	}
	for name, url := range hf.Messaging {
		if !strings.HasPrefix(url, "nats://") && !strings.HasPrefix(url, "redis://") {
			return fmt.Errorf("messaging link %q: unsupported backend %q (want nats:// or redis://)", name, url)
		}
	}
	return nil
}

func (hf *hostFile) graph() *link.Graph {
	g := link.NewGraph()
	for name, ifaces := range hf.Links {
		for instance, dest := range ifaces {
			g.Put(name, link.Canonical(instance), dest)
		}
	}
	return g
}

func (hf *hostFile) secrets() (*secrets.Cache, error) {
	values := make(map[string]secrets.Value, len(hf.Secrets))
	for name, s := range hf.Secrets {
		if enc, ok := strings.CutPrefix(s, "base64:"); ok {
			b, err := base64.StdEncoding.DecodeString(enc)
			if err != nil {
				return nil, fmt.Errorf("secret %q: %w", name, err)
			}
			values[name] = secrets.NewBytes(b)
			continue
		}
		values[name] = secrets.NewString(s)
	}
	return secrets.NewCache(values), nil
}

func (hf *hostFile) componentPath(id string) string {
	p := hf.Components[id]
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(hf.dir, p)
}

// componentIDs returns the configured local components in sorted order.
func (hf *hostFile) componentIDs() []string {
	ids := make([]string, 0, len(hf.Components))
	for id := range hf.Components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// env is a running host assembled from a host file.
type env struct {
	file    *hostFile
	handler *host.Handler
	runtime *wazerort.Runtime
	nc      *nats.Conn
	pool    *pubsub.Pool
	log     *zap.Logger
}

// open connects the transports and compiles the local components
// described by hf.
func open(ctx context.Context, hf *hostFile, log *zap.Logger) (_ *env, err error) {
	e := &env{file: hf, pool: pubsub.NewPool(), log: log}
	defer func() {
		if err != nil {
			_ = e.Close(ctx)
		}
	}()

	var dialer transport.Dialer
	if hf.NATSURL != "" {
		e.nc, err = nats.Connect(hf.NATSURL, nats.Name("wasmbus "+hf.ComponentID))
		if err != nil {
			return nil, fmt.Errorf("connect to lattice: %w", err)
		}
		dialer = natsrpc.NewDialer(e.nc)
	}

	names := make([]string, 0, len(hf.Messaging))
	for name := range hf.Messaging {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		conn, err := connectBackend(ctx, hf.Messaging[name])
		if err != nil {
			return nil, fmt.Errorf("messaging link %q: %w", name, err)
		}
		e.pool.Put(name, conn)
	}

	sec, err := hf.secrets()
	if err != nil {
		return nil, err
	}

	opts := host.Options{
		Components:        host.NewRegistry(),
		Links:             hf.graph(),
		Config:            config.NewStore(config.NewBundle(hf.Config)),
		Secrets:           sec,
		Messaging:         e.pool,
		Dialer:            dialer,
		Lattice:           hf.Lattice,
		ComponentID:       hf.ComponentID,
		InvocationTimeout: hf.timeout,
	}
	e.handler = host.NewHandler(opts)

	if len(hf.Components) == 0 {
		return e, nil
	}

	e.runtime, err = wazerort.New(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, id := range hf.componentIDs() {
		wasm, err := os.ReadFile(hf.componentPath(id))
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", id, err)
		}
		copts := opts
		copts.ComponentID = id
		c, err := e.runtime.Compile(ctx, wasm, host.NewHandler(copts))
		if err != nil {
			return nil, err
		}
		opts.Components.Put(id, c)
		log.Debug("loaded component", zap.String("component_id", id), zap.String("path", hf.componentPath(id)))
	}
	return e, nil
}

func connectBackend(ctx context.Context, url string) (pubsub.Conn, error) {
	if strings.HasPrefix(url, "redis://") {
		return redisps.Connect(ctx, url)
	}
	return natsps.Connect(url)
}

func (e *env) Close(ctx context.Context) error {
	err := e.pool.Close()
	if e.runtime != nil {
		err = multierr.Append(err, e.runtime.Close(ctx))
	}
	if e.nc != nil {
		e.nc.Close()
	}
	return err
}
