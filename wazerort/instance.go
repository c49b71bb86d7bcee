package wazerort

import (
	"context"
	stderrors "errors"
	"io"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbus/errors"
	"github.com/wippyai/wasmbus/host"
	"github.com/wippyai/wasmbus/link"
)

// Instance is one instantiation of a Component. Calls on an instance are
// serialized by the caller; the host creates a fresh instance per
// invocation.
type Instance struct {
	mod     api.Module
	alloc   api.Function
	handler *host.Handler
}

var _ host.Instance = (*Instance)(nil)

// Call runs instance#function with the bytes read from r as parameters and
// writes the results to w.
func (i *Instance) Call(ctx context.Context, instance, function string, r io.Reader, w io.Writer) error {
	fn := i.export(instance, function)
	if fn == nil {
		return errors.New(errors.PhaseRuntime, errors.KindNotFound).
			Interface(instance).
			Component(i.handler.ComponentID()).
			Detail("component does not export `%s#%s`", instance, function).
			Build()
	}

	params, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindTransport, err, "read parameters")
	}

	ctx = withHandler(ctx, i.handler)
	ptr, err := writeGuest(ctx, i.mod, i.alloc, params)
	if err != nil {
		return i.trap(instance, function, err)
	}

	out, err := fn.Call(ctx, uint64(ptr), uint64(len(params)))
	if err != nil {
		return i.trap(instance, function, err)
	}
	if len(out) != 1 {
		return errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Interface(instance).
			Component(i.handler.ComponentID()).
			Detail("`%s#%s` returned %d values, want 1", instance, function, len(out)).
			Build()
	}

	resPtr, resLen := unpack(out[0])
	if resLen == 0 {
		return nil
	}
	mem := i.mod.Memory()
	if mem == nil {
		return errors.NotFound(errors.PhaseRuntime, "export", "memory")
	}
	results, ok := mem.Read(resPtr, resLen)
	if !ok {
		return errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Interface(instance).
			Component(i.handler.ComponentID()).
			Detail("results out of range: ptr=%d len=%d", resPtr, resLen).
			Build()
	}
	if _, err := w.Write(results); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindTransport, err, "write results")
	}
	return nil
}

// Close releases the instance.
func (i *Instance) Close(ctx context.Context) error {
	return i.mod.Close(ctx)
}

func (i *Instance) export(instance, function string) api.Function {
	names := []string{instance + "#" + function}
	if c := link.Canonical(instance); c != instance {
		names = append(names, c+"#"+function)
	}
	names = append(names, function)
	for _, name := range names {
		if fn := i.mod.ExportedFunction(name); fn != nil {
			return fn
		}
	}
	return nil
}

func (i *Instance) trap(instance, function string, err error) error {
	var exit *sys.ExitError
	if stderrors.As(err, &exit) && exit.ExitCode() == 0 {
		return nil
	}
	Logger().Debug("guest trapped",
		zap.String("component_id", i.handler.ComponentID()),
		zap.String("instance", instance),
		zap.String("function", function),
		zap.Error(err))
	return errors.New(errors.PhaseRuntime, errors.KindTrap).
		Interface(instance).
		Component(i.handler.ComponentID()).
		Cause(err).
		Detail("`%s#%s` trapped", instance, function).
		Build()
}

// writeGuest copies data into memory obtained from the guest's allocator.
func writeGuest(ctx context.Context, mod api.Module, alloc api.Function, data []byte) (uint32, error) {
	if alloc == nil {
		return 0, errors.NotFound(errors.PhaseRuntime, "export", "alloc")
	}
	res, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, err
	}
	if len(res) != 1 {
		return 0, errors.InvalidInput(errors.PhaseRuntime, "alloc returned no pointer")
	}
	mem := mod.Memory()
	if mem == nil {
		return 0, errors.NotFound(errors.PhaseRuntime, "export", "memory")
	}
	ptr := api.DecodeU32(res[0])
	if len(data) > 0 && !mem.Write(ptr, data) {
		return 0, errors.InvalidInput(errors.PhaseRuntime, "allocation out of range")
	}
	return ptr, nil
}

func pack(ptr, n uint32) uint64 { return uint64(ptr)<<32 | uint64(n) }

func unpack(v uint64) (ptr, n uint32) { return uint32(v >> 32), uint32(v) }
