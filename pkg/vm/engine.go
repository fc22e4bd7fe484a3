package vm

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
	"github.com/rs/zerolog"

	"github.com/daimatz/jvmengine/pkg/classfile"
	"github.com/daimatz/jvmengine/pkg/trace"
)

// DefaultMaxDepth is the default limit on interpreted call nesting.
const DefaultMaxDepth = 1024

// Construction selects what `new` pushes.
type Construction int

const (
	// Deferred pushes a placeholder and allocates when the constructor runs.
	Deferred Construction = iota
	// Eager allocates an uninitialized instance at `new`.
	Eager
)

func (c Construction) String() string {
	if c == Eager {
		return "eager"
	}
	return "deferred"
}

// ParseConstruction parses "deferred" or "eager".
func ParseConstruction(s string) (Construction, error) {
	switch strings.ToLower(s) {
	case "", "deferred":
		return Deferred, nil
	case "eager":
		return Eager, nil
	}
	return Deferred, fmt.Errorf("unknown construction policy %q", s)
}

// Options configures an Engine.
type Options struct {
	Construction Construction
	// Recursive interprets called methods whose bytecode is available
	// instead of delegating them to the host.
	Recursive bool
	MaxDepth  int
	// Verbose enables trace events.
	Verbose bool
	Logger  zerolog.Logger
	Trace   trace.Sink
}

func DefaultOptions() Options {
	return Options{
		Construction: Deferred,
		Recursive:    true,
		MaxDepth:     DefaultMaxDepth,
		Logger:       zerolog.Nop(),
	}
}

// Engine interprets bytecode against a host object model. An Engine may be
// shared by several Threads.
type Engine struct {
	host     ObjectModel
	provider ClassProvider
	opts     Options
	log      zerolog.Logger
	monitors *MonitorTable

	mu        sync.Mutex
	resolvers map[*Class]*Resolver

	seq atomic.Uint64

	// active maps a goroutine id to the thread delegating a call on it.
	active sync.Map
}

// NewEngine creates an engine. If host has an Attach(*Engine) method it is
// called so the host can run bytecode through the engine.
func NewEngine(host ObjectModel, provider ClassProvider, opts Options) *Engine {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	e := &Engine{
		host:      host,
		provider:  provider,
		opts:      opts,
		log:       opts.Logger,
		monitors:  NewMonitorTable(),
		resolvers: make(map[*Class]*Resolver),
	}
	if a, ok := host.(interface{ Attach(*Engine) }); ok {
		a.Attach(e)
	}
	return e
}

func (e *Engine) Host() ObjectModel       { return e.host }
func (e *Engine) Options() Options        { return e.opts }
func (e *Engine) Monitors() *MonitorTable { return e.monitors }
func (e *Engine) Logger() *zerolog.Logger { return &e.log }

// NewThread creates a call controller for one logical thread of control.
// A thread created while another is delegating a call on the same
// goroutine continues its depth count.
func (e *Engine) NewThread() *Thread {
	t := newThread(e)
	if p, ok := e.active.Load(goid.Get()); ok {
		t.base = p.(*Thread).Depth()
	}
	return t
}

// delegating marks t as the thread delegating on the current goroutine
// until the returned function is called.
func (e *Engine) delegating(t *Thread) func() {
	g := goid.Get()
	prev, had := e.active.Load(g)
	e.active.Store(g, t)
	return func() {
		if had {
			e.active.Store(g, prev)
		} else {
			e.active.Delete(g)
		}
	}
}

// Run loads className, resolves the method and interprets it on a fresh
// thread. args are in whole form, receiver first for instance methods.
func (e *Engine) Run(className, methodName, descriptor string, args []Value) (Value, bool, error) {
	cls, err := e.host.LoadClass(className)
	if err != nil {
		return Value{}, false, fmt.Errorf("loading %s: %w", className, err)
	}
	m, err := e.host.ResolveMethod(cls, methodName, descriptor)
	if err != nil {
		return Value{}, false, fmt.Errorf("resolving %s.%s%s: %w", className, methodName, descriptor, err)
	}
	t := e.NewThread()
	v, ok, err := t.Invoke(m, args, InvokeOptions{
		Virtual:   !m.IsStatic() && !m.IsConstructor(),
		Recursive: true,
	})
	if err != nil && isFatal(err) {
		e.log.Error().Err(err).Str("thread", t.ID).Str("method", m.String()).Msg("fatal engine fault")
	}
	return v, ok, err
}

// code returns the bytecode of m, or ok=false when it cannot be obtained.
func (e *Engine) code(m *Method) (*classfile.ClassFile, *classfile.CodeAttribute, bool) {
	if e.provider == nil || m.IsNative() || m.IsAbstract() {
		return nil, nil, false
	}
	cf, ok := e.provider.ClassFile(m.Class)
	if !ok || cf == nil {
		return nil, nil, false
	}
	mi := cf.FindMethod(m.Name, m.Descriptor)
	if mi == nil || mi.Code == nil {
		return nil, nil, false
	}
	return cf, mi.Code, true
}

func (e *Engine) resolver(cf *classfile.ClassFile, c *Class) *Resolver {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.resolvers[c]
	if !ok {
		r = NewResolver(cf, c, e.host)
		e.resolvers[c] = r
	}
	return r
}

func (e *Engine) tracing() bool {
	return e.opts.Verbose && e.opts.Trace != nil
}

// emit delivers ev to the trace sink. Sink failures never reach the caller.
func (e *Engine) emit(ev trace.Event) {
	if !e.tracing() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Debug().Interface("panic", r).Msg("trace sink panicked")
		}
	}()
	ev.Seq = e.seq.Add(1)
	if err := e.opts.Trace.Emit(ev); err != nil {
		e.log.Debug().Err(err).Msg("trace sink failed")
	}
}
