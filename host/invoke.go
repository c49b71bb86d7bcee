package host

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbus/errors"
	"github.com/wippyai/wasmbus/link"
	"github.com/wippyai/wasmbus/stream"
	"github.com/wippyai/wasmbus/transport"
)

// Invoke calls function of instance on whatever the handler's links resolve
// it to. target, when not link.TargetNone, pins the interface used for the
// lookup in place of instance.
//
// On the local path the returned outgoing stream has already been closed
// after params were written, and passing index paths is an Unsupported
// error. The callee runs concurrently with the caller: Invoke returns
// instantiation errors directly, but a failure of the call itself is
// reported as the read error of incoming once the results written so far
// have been consumed. Drain incoming to observe it.
//
// On the remote path the caller closes outgoing once any additional
// parameter bytes are written. The handler's invocation timeout and ctx
// bound the whole call, including reads from incoming.
func (h *Handler) Invoke(ctx context.Context, target link.Target, instance, function string, params []byte, paths ...stream.Path) (*stream.Outgoing, *stream.Incoming, error) {
	lookup := link.Derive(target, instance)
	res, err := link.Resolve(h.targets, h.links, lookup, h.componentID)
	if err != nil {
		name := h.targets.Get(lookup)
		h.log.Warn("failed to resolve link",
			zap.String("instance", instance),
			zap.String("target_instance", lookup),
			zap.String("link_name", name),
			zap.Error(err))
		kind, _ := errors.KindOf(err)
		return nil, nil, errors.New(errors.PhaseDispatch, kind).
			Link(name).
			Interface(instance).
			Component(h.componentID).
			Cause(err).
			Detail("failed to call `%s` in instance `%s` (failed to find a configured link with name `%s` from component `%s`, please check your configuration)",
				function, instance, name, h.componentID).
			Build()
	}

	if comp, ok := h.components.Get(res.Destination); ok {
		return h.invokeLocal(ctx, comp, res, instance, function, params, paths)
	}
	return h.invokeRemote(ctx, res, instance, function, params, paths)
}

func (h *Handler) invokeLocal(ctx context.Context, comp Component, res link.Resolution, instance, function string, params []byte, paths []stream.Path) (*stream.Outgoing, *stream.Incoming, error) {
	h.log.Debug("invoking local component",
		zap.String("destination", res.Destination),
		zap.String("instance", instance),
		zap.String("function", function),
		zap.Int("paths", len(paths)))

	if len(paths) > 0 {
		return nil, nil, errors.New(errors.PhaseDispatch, errors.KindUnsupported).
			Interface(instance).
			Component(h.componentID).
			Value(paths).
			Detail("index paths are not supported when invoking local component `%s`", res.Destination).
			Build()
	}

	hostW, guestR := stream.Pipe()
	guestW, hostR := stream.Pipe()

	// The slot is empty, so the whole request goes in as one chunk.
	if _, err := hostW.Write(params); err != nil {
		return nil, nil, err
	}
	_ = hostW.Close()

	inst, err := comp.Instantiate(ctx, comp.Handler().CopyForNew())
	if err != nil {
		_ = guestR.Close()
		return nil, nil, err
	}

	go func() {
		err := inst.Call(ctx, instance, function, guestR, guestW)
		if err != nil {
			h.log.Debug("local call failed",
				zap.String("destination", res.Destination),
				zap.String("function", function),
				zap.Error(err))
		}
		_ = guestR.Close()
		_ = guestW.CloseWithError(err)
		if cerr := inst.Close(context.WithoutCancel(ctx)); cerr != nil {
			h.log.Warn("failed to close instance",
				zap.String("destination", res.Destination),
				zap.Error(cerr))
		}
	}()

	return stream.LocalOutgoing(hostW), stream.LocalIncoming(hostR), nil
}

func (h *Handler) invokeRemote(ctx context.Context, res link.Resolution, instance, function string, params []byte, paths []stream.Path) (*stream.Outgoing, *stream.Incoming, error) {
	prefix := transport.Session(h.lattice, res.Destination)
	if h.dialer == nil {
		return nil, nil, errors.New(errors.PhaseDispatch, errors.KindClosed).
			Link(res.LinkName).
			Interface(instance).
			Component(h.componentID).
			Detail("no lattice transport to reach `%s`", prefix).
			Build()
	}

	hdr := transport.Header{}
	transport.InjectTrace(ctx, hdr)
	hdr.Set(transport.HeaderSourceID, h.componentID)
	hdr.Set(transport.HeaderLinkName, res.LinkName)

	inv, err := h.dialer.Dial(prefix)
	if err != nil {
		return nil, nil, errors.Wrap(errors.PhaseDispatch, errors.KindTransport, err, "dial `"+prefix+"`")
	}

	h.log.Debug("invoking remote target",
		zap.String("session", prefix),
		zap.String("instance", instance),
		zap.String("function", function),
		zap.Int("paths", len(paths)))

	sink, src, err := transport.WithTimeout(inv, h.timeout).Invoke(ctx, hdr, instance, function, params, paths...)
	if err != nil {
		return nil, nil, errors.New(errors.PhaseDispatch, errors.KindTransport).
			Link(res.LinkName).
			Interface(instance).
			Component(h.componentID).
			Cause(err).
			Detail("failed to invoke `%s` in `%s` on `%s`", function, instance, prefix).
			Build()
	}
	return stream.RemoteOutgoing(sink), stream.RemoteIncoming(src), nil
}
