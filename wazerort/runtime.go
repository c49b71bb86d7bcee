package wazerort

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbus/errors"
	"github.com/wippyai/wasmbus/host"
)

// HostModule is the import module name of the host functions
const HostModule = "wasmbus"

// Config holds configuration for runtime creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32
}

// Runtime compiles and instantiates components. Thread-safe.
type Runtime struct {
	rt         wazero.Runtime
	components []*Component
	mu         sync.Mutex
}

// New creates a runtime with WASI preview1 and the wasmbus host module.
// cfg may be nil.
func New(ctx context.Context, cfg *Config) (*Runtime, error) {
	rc := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rc)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "instantiate wasi")
	}
	if err := instantiateHostModule(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "instantiate host module")
	}
	return &Runtime{rt: rt}, nil
}

// Compile compiles wasm as the component h acts for. h is the component's
// own handler; each instance runs with a copy of it.
func (r *Runtime) Compile(ctx context.Context, wasm []byte, h *host.Handler) (*Component, error) {
	compiled, err := r.rt.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Component(h.ComponentID()).
			Cause(err).
			Detail("compile component").
			Build()
	}
	if _, ok := compiled.ExportedMemories()["memory"]; !ok {
		_ = compiled.Close(ctx)
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Component(h.ComponentID()).
			Detail("component does not export `memory`").
			Build()
	}
	if problem := checkAlloc(compiled.ExportedFunctions()["alloc"]); problem != "" {
		_ = compiled.Close(ctx)
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Component(h.ComponentID()).
			Detail("%s", problem).
			Build()
	}

	c := &Component{rt: r, compiled: compiled, handler: h}
	r.mu.Lock()
	r.components = append(r.components, c)
	r.mu.Unlock()

	Logger().Debug("compiled component",
		zap.String("component_id", h.ComponentID()),
		zap.Int("exports", len(compiled.ExportedFunctions())))
	return c, nil
}

// Close releases every compiled component and the wazero runtime.
// All instances must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	components := r.components
	r.components = nil
	r.mu.Unlock()

	var err error
	for _, c := range components {
		err = multierr.Append(err, c.compiled.Close(ctx))
	}
	return multierr.Append(err, r.rt.Close(ctx))
}

// Component is a compiled module bound to its handler
type Component struct {
	rt       *Runtime
	compiled wazero.CompiledModule
	handler  *host.Handler
}

var _ host.Component = (*Component)(nil)

// ID returns the component id
func (c *Component) ID() string { return c.handler.ComponentID() }

// Handler returns the component's own handler
func (c *Component) Handler() *host.Handler { return c.handler }

// Instantiate creates an anonymous instance that runs with h.
func (c *Component) Instantiate(ctx context.Context, h *host.Handler) (host.Instance, error) {
	mod, err := c.rt.rt.InstantiateModule(ctx, c.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Component(h.ComponentID()).
			Cause(err).
			Detail("instantiate component").
			Build()
	}
	alloc := mod.ExportedFunction("alloc")
	if alloc == nil {
		_ = mod.Close(ctx)
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Component(h.ComponentID()).
			Detail("component does not export `alloc`").
			Build()
	}
	return &Instance{mod: mod, alloc: alloc, handler: h}, nil
}

// checkAlloc describes what is wrong with the guest allocator, if anything.
// It must be alloc(i32) -> i32.
func checkAlloc(def api.FunctionDefinition) string {
	if def == nil {
		return "component does not export `alloc`"
	}
	params, results := def.ParamTypes(), def.ResultTypes()
	if len(params) != 1 || params[0] != api.ValueTypeI32 || len(results) != 1 || results[0] != api.ValueTypeI32 {
		return "component export `alloc` must have signature (i32) -> i32"
	}
	return ""
}

type handlerKey struct{}

func withHandler(ctx context.Context, h *host.Handler) context.Context {
	return context.WithValue(ctx, handlerKey{}, h)
}

func handlerFrom(ctx context.Context) *host.Handler {
	h, _ := ctx.Value(handlerKey{}).(*host.Handler)
	return h
}

func instantiateHostModule(ctx context.Context, rt wazero.Runtime) error {
	i32, i64 := api.ValueTypeI32, api.ValueTypeI64
	_, err := rt.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostLog), []api.ValueType{i32, i32, i32, i32, i32}, nil).
		Export("log").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostConfigGet), []api.ValueType{i32, i32}, []api.ValueType{i64}).
		Export("config_get").
		Instantiate(ctx)
	return err
}

func hostLog(ctx context.Context, mod api.Module, stack []uint64) {
	h := handlerFrom(ctx)
	if h == nil {
		return
	}
	level := host.LogLevel(api.DecodeU32(stack[0]))
	if level > host.LevelCritical {
		level = host.LevelCritical
	}
	mem := mod.Memory()
	if mem == nil {
		return
	}
	logCtx, _ := mem.Read(api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	msg, _ := mem.Read(api.DecodeU32(stack[3]), api.DecodeU32(stack[4]))
	h.Log(level, string(logCtx), string(msg))
}

func hostConfigGet(ctx context.Context, mod api.Module, stack []uint64) {
	keyPtr, keyLen := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
	stack[0] = 0
	h := handlerFrom(ctx)
	if h == nil {
		return
	}
	mem := mod.Memory()
	if mem == nil {
		return
	}
	key, ok := mem.Read(keyPtr, keyLen)
	if !ok {
		return
	}
	value, found := h.GetConfig(string(key))
	if !found || value == "" {
		return
	}
	ptr, err := writeGuest(ctx, mod, mod.ExportedFunction("alloc"), []byte(value))
	if err != nil {
		Logger().Warn("failed to return config value", zap.String("key", string(key)), zap.Error(err))
		return
	}
	stack[0] = pack(ptr, uint32(len(value)))
}
