// Package native implements a handful of runtime library classes in Go.
// Instances of these classes are plain Go values carried in vm.Value
// references; their methods are registered in a Registry keyed by owner
// class, name and descriptor.
package native

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/daimatz/jvmengine/pkg/vm"
)

// Func implements one method. recv is null for static methods and args are
// in whole form.
type Func func(recv vm.Value, args []vm.Value) (vm.Value, error)

// Key identifies a method as "owner.name+descriptor".
func Key(owner, name, descriptor string) string {
	return owner + "." + name + descriptor
}

// Signature describes a registered method.
type Signature struct {
	Name       string
	Descriptor string
	Static     bool
}

type entry struct {
	fn     Func
	static bool
}

// Registry is a concurrency-safe table of native methods.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]map[string]entry)}
}

func (r *Registry) add(owner, name, descriptor string, e entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	methods, ok := r.classes[owner]
	if !ok {
		methods = make(map[string]entry)
		r.classes[owner] = methods
	}
	methods[name+descriptor] = e
}

// Register adds an instance method.
func (r *Registry) Register(owner, name, descriptor string, fn Func) {
	r.add(owner, name, descriptor, entry{fn: fn})
}

// RegisterStatic adds a static method.
func (r *Registry) RegisterStatic(owner, name, descriptor string, fn Func) {
	r.add(owner, name, descriptor, entry{fn: fn, static: true})
}

func (r *Registry) Lookup(owner, name, descriptor string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.classes[owner][name+descriptor]
	return e.fn, ok
}

// Methods lists the methods registered for owner, sorted by name and
// descriptor.
func (r *Registry) Methods(owner string) []Signature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sigs := make([]Signature, 0, len(r.classes[owner]))
	for key, e := range r.classes[owner] {
		i := strings.IndexByte(key, '(')
		sigs = append(sigs, Signature{Name: key[:i], Descriptor: key[i:], Static: e.static})
	}
	slices.SortFunc(sigs, func(a, b Signature) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Descriptor, b.Descriptor))
	})
	return sigs
}

// Len returns the number of registered methods.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, methods := range r.classes {
		n += len(methods)
	}
	return n
}

// Standard returns a registry with every class of this package registered.
func Standard() *Registry {
	r := NewRegistry()
	RegisterObject(r)
	RegisterString(r)
	RegisterPrintStream(r)
	RegisterInteger(r)
	RegisterHashMap(r)
	RegisterStringBuilder(r)
	RegisterMath(r)
	return r
}

// Allocate returns a fresh instance for the classes whose state lives in
// Go, or ok=false for every other class.
func Allocate(className string) (obj any, ok bool) {
	switch className {
	case "java/util/HashMap":
		return NewHashMap(), true
	case "java/lang/StringBuilder":
		return &StringBuilder{}, true
	}
	return nil, false
}

// ClassName maps a Go-backed instance to its runtime class name.
func ClassName(obj any) (string, bool) {
	switch obj.(type) {
	case string:
		return "java/lang/String", true
	case *Integer:
		return "java/lang/Integer", true
	case *HashMap:
		return "java/util/HashMap", true
	case *StringBuilder:
		return "java/lang/StringBuilder", true
	case *PrintStream:
		return "java/io/PrintStream", true
	}
	return "", false
}

// receiver extracts the Go instance behind a method receiver.
func receiver[T any](v vm.Value) (T, error) {
	obj, ok := v.Ref().(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("receiver %s is not a %T", v, zero)
	}
	return obj, nil
}
