package host

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbus/config"
	"github.com/wippyai/wasmbus/errors"
	"github.com/wippyai/wasmbus/link"
	"github.com/wippyai/wasmbus/pubsub"
	"github.com/wippyai/wasmbus/secrets"
	"github.com/wippyai/wasmbus/transport"
)

const (
	// DefaultLattice is used when Options.Lattice is empty.
	DefaultLattice = "default"
	// DefaultInvocationTimeout bounds remote invocations when
	// Options.InvocationTimeout is zero.
	DefaultInvocationTimeout = 10 * time.Second
)

// Options configures a Handler. Nil tables are replaced by empty ones.
type Options struct {
	Components *Registry
	Links      *link.Graph
	Config     *config.Store
	Secrets    *secrets.Cache
	Messaging  *pubsub.Pool
	// Dialer opens remote sessions. Without one every remote call fails
	// with a closed error.
	Dialer            transport.Dialer
	Lattice           string
	ComponentID       string
	InvocationTimeout time.Duration
}

// Handler is the invocation context of one component instance.
// Thread-safe.
type Handler struct {
	components *Registry
	links      *link.Graph
	config     *config.Store
	secrets    *secrets.Cache
	messaging  *pubsub.Pool
	dialer     transport.Dialer
	targets    *link.Targets
	log        *zap.Logger

	lattice     string
	componentID string
	timeout     time.Duration
}

// NewHandler creates a handler with an empty Target Table.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		components:  opts.Components,
		links:       opts.Links,
		config:      opts.Config,
		secrets:     opts.Secrets,
		messaging:   opts.Messaging,
		dialer:      opts.Dialer,
		targets:     link.NewTargets(),
		lattice:     opts.Lattice,
		componentID: opts.ComponentID,
		timeout:     opts.InvocationTimeout,
	}
	if h.components == nil {
		h.components = NewRegistry()
	}
	if h.links == nil {
		h.links = link.NewGraph()
	}
	if h.config == nil {
		h.config = config.NewStore(nil)
	}
	if h.secrets == nil {
		h.secrets = secrets.NewCache(nil)
	}
	if h.messaging == nil {
		h.messaging = pubsub.NewPool()
	}
	if h.lattice == "" {
		h.lattice = DefaultLattice
	}
	if h.timeout == 0 {
		h.timeout = DefaultInvocationTimeout
	}
	h.log = Logger().With(zap.String("component_id", h.componentID))
	return h
}

// CopyForNew returns a handler for a new instance of the same component.
// All shared handles are kept; the Target Table is reset to empty.
func (h *Handler) CopyForNew() *Handler {
	c := *h
	c.targets = link.NewTargets()
	return &c
}

func (h *Handler) Lattice() string { return h.lattice }

func (h *Handler) ComponentID() string { return h.componentID }

func (h *Handler) InvocationTimeout() time.Duration { return h.timeout }

// Targets returns the handler's own Target Table.
func (h *Handler) Targets() *link.Targets { return h.targets }

func (h *Handler) Links() *link.Graph { return h.links }

func (h *Handler) Components() *Registry { return h.components }

func (h *Handler) Messaging() *pubsub.Pool { return h.messaging }

func (h *Handler) Config() *config.Store { return h.config }

func (h *Handler) Secrets() *secrets.Cache { return h.secrets }

// Logger returns the handler's logger, tagged with the component id.
func (h *Handler) Logger() *zap.Logger { return h.log }

// SelectLink makes name the active link for ifaces without checking the
// link graph. Selecting link.DefaultName removes the overrides.
func (h *Handler) SelectLink(name string, ifaces ...link.Interface) {
	h.targets.Select(name, ifaces...)
}

// SetLinkName makes name the active link for ifaces if the link graph
// already wires every one of them under name. Otherwise nothing changes.
func (h *Handler) SetLinkName(name string, ifaces ...link.Interface) error {
	if err := link.SelectValidated(h.targets, h.links, name, ifaces...); err != nil {
		h.log.Debug("rejected link name",
			zap.String("link_name", name),
			zap.Error(err))
		return err
	}
	return nil
}

// Resolve returns where a call to instance would be dispatched.
func (h *Handler) Resolve(target link.Target, instance string) (link.Resolution, error) {
	return link.Resolve(h.targets, h.links, link.Derive(target, instance), h.componentID)
}

// GetConfig returns a single runtime config value.
func (h *Handler) GetConfig(key string) (string, bool) {
	return h.config.Get(key)
}

// GetAllConfig returns every runtime config value.
func (h *Handler) GetAllConfig() map[string]string {
	return h.config.GetAll()
}

// GetSecret returns a handle for name, or a not-found error.
func (h *Handler) GetSecret(name string) (secrets.Handle, error) {
	return h.secrets.Get(name)
}

// RevealSecret returns the value behind a handle obtained from GetSecret.
func (h *Handler) RevealSecret(s secrets.Handle) (secrets.Value, error) {
	return h.secrets.Reveal(s)
}

// InvocationErrorKind classifies a transport failure for error reporting.
func (h *Handler) InvocationErrorKind(err error) errors.InvocationErrorKind {
	return errors.Classify(err)
}

// LogLevel is a guest logging level
type LogLevel uint8

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
)

var levelNames = [...]string{"trace", "debug", "info", "warn", "error", "critical"}

func (l LogLevel) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLogLevel parses a level name, case-insensitively. "warning" is
// accepted for warn.
func ParseLogLevel(s string) (LogLevel, error) {
	s = strings.ToLower(s)
	if s == "warning" {
		return LevelWarn, nil
	}
	for i, name := range levelNames {
		if s == name {
			return LogLevel(i), nil
		}
	}
	return 0, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Value(s).
		Detail("unknown log level %q", s).
		Build()
}

// Log emits a guest log line. Trace is written at debug and critical at
// error; the original level is kept in the "level" field.
func (h *Handler) Log(level LogLevel, context, message string) {
	fields := []zap.Field{
		zap.String("level", level.String()),
		zap.String("context", context),
	}
	switch level {
	case LevelTrace, LevelDebug:
		h.log.Debug(message, fields...)
	case LevelInfo:
		h.log.Info(message, fields...)
	case LevelWarn:
		h.log.Warn(message, fields...)
	default:
		h.log.Error(message, fields...)
	}
}
