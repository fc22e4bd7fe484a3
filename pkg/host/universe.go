// Package host is the reference object model and class provider for the
// engine. Classes come from a class path and from a small synthetic
// runtime library whose methods are implemented in Go by package native.
package host

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
	"github.com/rs/zerolog"

	"github.com/daimatz/jvmengine/pkg/classfile"
	"github.com/daimatz/jvmengine/pkg/classpath"
	"github.com/daimatz/jvmengine/pkg/native"
	"github.com/daimatz/jvmengine/pkg/vm"
)

// Universe implements vm.ObjectModel and vm.ClassProvider.
type Universe struct {
	loader  classpath.Loader
	natives *native.Registry
	log     zerolog.Logger
	stdout  io.Writer
	stderr  io.Writer

	engine atomic.Pointer[vm.Engine]

	mu      sync.Mutex
	inited  *sync.Cond
	classes map[string]*vm.Class
	loading map[string]int64
}

type Option func(*Universe)

func WithStdout(w io.Writer) Option { return func(u *Universe) { u.stdout = w } }

func WithStderr(w io.Writer) Option { return func(u *Universe) { u.stderr = w } }

func WithLogger(l zerolog.Logger) Option { return func(u *Universe) { u.log = l } }

// WithNatives replaces the standard native method registry.
func WithNatives(r *native.Registry) Option { return func(u *Universe) { u.natives = r } }

// New creates a universe loading classes from loader, which may be nil
// when only the built-in classes are needed.
func New(loader classpath.Loader, opts ...Option) *Universe {
	u := &Universe{
		loader:  loader,
		log:     zerolog.Nop(),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		classes: make(map[string]*vm.Class),
		loading: make(map[string]int64),
	}
	u.inited = sync.NewCond(&u.mu)
	for _, o := range opts {
		o(u)
	}
	if u.natives == nil {
		u.natives = native.Standard()
	}
	u.registerNatives(u.natives)
	return u
}

// Attach lets the universe run class initializers and bytecode methods
// through e. NewEngine calls it.
func (u *Universe) Attach(e *vm.Engine) { u.engine.Store(e) }

func (u *Universe) Natives() *native.Registry { return u.natives }

// classInfo is the host data of a loaded class.
type classInfo struct {
	cf        *classfile.ClassFile
	synthetic bool
	fields    map[string]*vm.Field
	methods   map[string]*vm.Method

	mu      sync.Mutex
	statics map[*vm.Field]vm.Value

	// Guarded by Universe.mu.
	state     initState
	initOwner int64
}

func infoOf(c *vm.Class) *classInfo {
	info, _ := c.Data.(*classInfo)
	return info
}

func noClassDef(name string) *vm.Fault {
	return vm.NewFault("java/lang/NoClassDefFoundError", name)
}

// LoadClass returns the class named name, defining it on first use.
// Array classes are created on demand; names in the built-in library take
// precedence over the class path.
func (u *Universe) LoadClass(name string) (*vm.Class, error) {
	u.mu.Lock()
	if c, ok := u.classes[name]; ok {
		u.mu.Unlock()
		return c, nil
	}
	gid := goid.Get()
	if owner, ok := u.loading[name]; ok && owner == gid {
		u.mu.Unlock()
		return nil, vm.NewFault("java/lang/ClassCircularityError", name)
	}
	u.loading[name] = gid
	u.mu.Unlock()

	c, err := u.define(name)

	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.loading, name)
	if err != nil {
		return nil, err
	}
	if prev, ok := u.classes[name]; ok {
		return prev, nil
	}
	u.classes[name] = c
	u.log.Debug().Str("class", name).Msg("class loaded")
	return c, nil
}

func (u *Universe) define(name string) (*vm.Class, error) {
	if strings.HasPrefix(name, "[") {
		return u.defineArray(name)
	}
	if bi, ok := builtins[name]; ok {
		return u.defineClass(u.synthesize(name, bi), true)
	}
	if u.loader == nil {
		return nil, noClassDef(name)
	}
	cf, err := u.loader.LoadClass(name)
	if errors.Is(err, classpath.ErrClassNotFound) {
		return nil, noClassDef(name)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	return u.defineClass(cf, false)
}

func (u *Universe) defineArray(name string) (*vm.Class, error) {
	elem := name[1:]
	if strings.HasPrefix(elem, "L") && strings.HasSuffix(elem, ";") {
		if _, err := u.LoadClass(elem[1 : len(elem)-1]); err != nil {
			return nil, err
		}
	} else if strings.HasPrefix(elem, "[") {
		if _, err := u.LoadClass(elem); err != nil {
			return nil, err
		}
	} else if _, err := classfile.ParseFieldType(elem); err != nil || len(elem) != 1 {
		return nil, noClassDef(name)
	}

	object, err := u.LoadClass("java/lang/Object")
	if err != nil {
		return nil, err
	}
	c := &vm.Class{Name: name, Super: object, Flags: classfile.AccPublic | classfile.AccFinal | classfile.AccAbstract}
	for _, i := range []string{"java/lang/Cloneable", "java/io/Serializable"} {
		ic, err := u.LoadClass(i)
		if err != nil {
			return nil, err
		}
		c.Interfaces = append(c.Interfaces, ic)
	}
	return c, nil
}

func (u *Universe) defineClass(cf *classfile.ClassFile, synthetic bool) (*vm.Class, error) {
	name, err := cf.ClassName()
	if err != nil {
		return nil, err
	}
	c := &vm.Class{Name: name, Flags: cf.AccessFlags}
	if super := cf.SuperClassName(); super != "" {
		if c.Super, err = u.LoadClass(super); err != nil {
			return nil, err
		}
	}
	ifaces, err := cf.InterfaceNames()
	if err != nil {
		return nil, err
	}
	for _, n := range ifaces {
		ic, err := u.LoadClass(n)
		if err != nil {
			return nil, err
		}
		c.Interfaces = append(c.Interfaces, ic)
	}

	info := &classInfo{
		cf:        cf,
		synthetic: synthetic,
		fields:    make(map[string]*vm.Field, len(cf.Fields)),
		methods:   make(map[string]*vm.Method, len(cf.Methods)),
		statics:   make(map[*vm.Field]vm.Value),
	}
	for _, fi := range cf.Fields {
		f := &vm.Field{Class: c, Name: fi.Name, Descriptor: fi.Descriptor, Flags: fi.AccessFlags}
		info.fields[fi.Name+fi.Descriptor] = f
		if f.IsStatic() {
			v, err := initialValue(cf, &fi)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", name, fi.Name, err)
			}
			info.statics[f] = v
		}
	}
	for _, mi := range cf.Methods {
		info.methods[mi.Name+mi.Descriptor] = &vm.Method{Class: c, Name: mi.Name, Descriptor: mi.Descriptor, Flags: mi.AccessFlags}
	}
	if synthetic {
		info.state = initialized
		if setup, ok := staticSetup[name]; ok {
			setup(u, info)
		}
	}
	c.Data = info
	return c, nil
}

// ClassFile returns the class file of c, initializing c first. A class
// whose initialization failed reports no class file so that calls are
// delegated to Invoke, which reports the failure.
func (u *Universe) ClassFile(c *vm.Class) (*classfile.ClassFile, bool) {
	info := infoOf(c)
	if info == nil {
		return nil, false
	}
	if err := u.initialize(c); err != nil {
		return nil, false
	}
	return info.cf, true
}

// ResolveField finds a field declared by c, its superinterfaces or its
// superclasses.
func (u *Universe) ResolveField(c *vm.Class, name, descriptor string) (*vm.Field, error) {
	if f := findField(c, name+descriptor); f != nil {
		return f, nil
	}
	return nil, vm.NewFault("java/lang/NoSuchFieldError", name)
}

func findField(c *vm.Class, key string) *vm.Field {
	for ; c != nil; c = c.Super {
		if info := infoOf(c); info != nil {
			if f, ok := info.fields[key]; ok {
				return f
			}
		}
		for _, i := range c.Interfaces {
			if f := findField(i, key); f != nil {
				return f
			}
		}
	}
	return nil
}

// ResolveMethod finds a method declared by c or its superclasses, then by
// its superinterfaces.
func (u *Universe) ResolveMethod(c *vm.Class, name, descriptor string) (*vm.Method, error) {
	key := name + descriptor
	for k := c; k != nil; k = k.Super {
		if info := infoOf(k); info != nil {
			if m, ok := info.methods[key]; ok {
				return m, nil
			}
		}
	}
	if m := findInterfaceMethod(c, key); m != nil {
		return m, nil
	}
	if c.IsInterface() {
		if object, err := u.LoadClass("java/lang/Object"); err == nil {
			if m, ok := infoOf(object).methods[key]; ok {
				return m, nil
			}
		}
	}
	return nil, vm.NewFault("java/lang/NoSuchMethodError", c.Name+"."+key)
}

// findInterfaceMethod prefers a concrete default method over an abstract
// declaration.
func findInterfaceMethod(c *vm.Class, key string) *vm.Method {
	var abstract *vm.Method
	var visit func(k *vm.Class) *vm.Method
	visit = func(k *vm.Class) *vm.Method {
		for ; k != nil; k = k.Super {
			for _, i := range k.Interfaces {
				if info := infoOf(i); info != nil {
					if m, ok := info.methods[key]; ok {
						if !m.IsAbstract() {
							return m
						}
						if abstract == nil {
							abstract = m
						}
					}
				}
				if m := visit(i); m != nil {
					return m
				}
			}
		}
		return nil
	}
	if m := visit(c); m != nil {
		return m
	}
	return abstract
}
