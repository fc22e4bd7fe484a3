package vm

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/daimatz/jvmengine/pkg/classfile"
)

// testObject is an instance in the fake object universe.
type testObject struct {
	class  *Class
	fields map[string]Value
	msg    string
}

type testLookup struct{ caller *Class }

type testMethodType string

type testHandle struct {
	name string
	fn   func(args []Value) (Value, error)
}

type testCallSite struct{ target Value }

type native struct {
	flags uint16
	fn    func(recv Value, args []Value) (Value, error)
}

// testHost is a small in-memory ObjectModel and ClassProvider. Classes are
// either defined from a classfile.Builder or come from the built-in set.
type testHost struct {
	engine *Engine

	mu      sync.Mutex
	classes map[string]*Class
	files   map[*Class]*classfile.ClassFile
	statics map[string]Value
	natives map[string]native
	calls   []string
}

var builtinClasses = [][2]string{
	{"java/lang/Object", ""},
	{"java/lang/String", "java/lang/Object"},
	{"java/lang/Class", "java/lang/Object"},
	{"java/lang/Throwable", "java/lang/Object"},
	{"java/lang/Exception", "java/lang/Throwable"},
	{"java/lang/Error", "java/lang/Throwable"},
	{"java/lang/RuntimeException", "java/lang/Exception"},
	{"java/lang/ArithmeticException", "java/lang/RuntimeException"},
	{"java/lang/NullPointerException", "java/lang/RuntimeException"},
	{"java/lang/ClassCastException", "java/lang/RuntimeException"},
	{"java/lang/IllegalStateException", "java/lang/RuntimeException"},
	{"java/lang/IllegalArgumentException", "java/lang/RuntimeException"},
	{"java/lang/IllegalMonitorStateException", "java/lang/RuntimeException"},
	{"java/lang/NegativeArraySizeException", "java/lang/RuntimeException"},
	{"java/lang/ArrayStoreException", "java/lang/RuntimeException"},
	{"java/lang/IndexOutOfBoundsException", "java/lang/RuntimeException"},
	{"java/lang/ArrayIndexOutOfBoundsException", "java/lang/IndexOutOfBoundsException"},
	{"java/lang/IncompatibleClassChangeError", "java/lang/Error"},
	{"java/lang/InstantiationError", "java/lang/IncompatibleClassChangeError"},
	{"java/lang/NoSuchMethodError", "java/lang/IncompatibleClassChangeError"},
	{"java/lang/NoSuchFieldError", "java/lang/IncompatibleClassChangeError"},
	{"java/lang/StackOverflowError", "java/lang/Error"},
	{"java/lang/Runnable", ""},
}

func newHost() *testHost {
	h := &testHost{
		classes: make(map[string]*Class),
		files:   make(map[*Class]*classfile.ClassFile),
		statics: make(map[string]Value),
		natives: make(map[string]native),
	}
	for _, c := range builtinClasses {
		cls := &Class{Name: c[0], Super: h.classes[c[1]]}
		if c[0] == "java/lang/Runnable" {
			cls.Flags = classfile.AccInterface | classfile.AccAbstract
		}
		h.classes[c[0]] = cls
	}
	noop := func(Value, []Value) (Value, error) { return Value{}, nil }
	h.native("java/lang/Object.<init>()V", 0, noop)
	h.native("java/lang/Throwable.<init>()V", 0, noop)
	h.native("java/lang/Throwable.<init>(Ljava/lang/String;)V", 0, func(recv Value, args []Value) (Value, error) {
		if s, ok := args[0].Ref().(string); ok {
			recv.Ref().(*testObject).msg = s
		}
		return Value{}, nil
	})
	return h
}

func (h *testHost) Attach(e *Engine) { h.engine = e }

// native registers a host-implemented method keyed by Class.name+descriptor.
func (h *testHost) native(key string, flags uint16, fn func(recv Value, args []Value) (Value, error)) {
	h.natives[key] = native{flags: flags | classfile.AccNative, fn: fn}
}

// define registers the class assembled by b.
func (h *testHost) define(b *classfile.Builder) *Class {
	cf := b.Build()
	name, err := cf.ClassName()
	if err != nil {
		panic(err)
	}
	cls := &Class{Name: name, Flags: cf.AccessFlags}
	if super := cf.SuperClassName(); super != "" {
		s, err := h.LoadClass(super)
		if err != nil {
			panic(err)
		}
		cls.Super = s
	}
	ifaces, err := cf.InterfaceNames()
	if err != nil {
		panic(err)
	}
	for _, n := range ifaces {
		i, err := h.LoadClass(n)
		if err != nil {
			panic(err)
		}
		cls.Interfaces = append(cls.Interfaces, i)
	}
	h.mu.Lock()
	h.classes[name] = cls
	h.files[cls] = cf
	h.mu.Unlock()
	return cls
}

func (h *testHost) ClassFile(c *Class) (*classfile.ClassFile, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cf, ok := h.files[c]
	return cf, ok
}

func (h *testHost) LoadClass(name string) (*Class, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.classes[name]; ok {
		return c, nil
	}
	if strings.HasPrefix(name, "[") {
		c := &Class{Name: name, Super: h.classes["java/lang/Object"]}
		h.classes[name] = c
		return c, nil
	}
	return nil, NewFault("java/lang/NoClassDefFoundError", name)
}

func (h *testHost) ClassOf(v Value) (*Class, error) {
	switch v.Kind() {
	case KindArray:
		a, _ := v.Array()
		return a.Class, nil
	case KindPlaceholder:
		p, _ := v.Placeholder()
		return p.Class, nil
	case KindRef:
		switch r := v.Ref().(type) {
		case *testObject:
			return r.class, nil
		case string:
			return h.LoadClass("java/lang/String")
		case *Class:
			return h.LoadClass("java/lang/Class")
		}
		return h.LoadClass("java/lang/Object")
	}
	return nil, fmt.Errorf("no class for %s", v)
}

func (h *testHost) ResolveField(c *Class, name, descriptor string) (*Field, error) {
	for k := c; k != nil; k = k.Super {
		cf, ok := h.ClassFile(k)
		if !ok {
			continue
		}
		if fi := cf.FindField(name, descriptor); fi != nil {
			return &Field{Class: k, Name: name, Descriptor: descriptor, Flags: fi.AccessFlags}, nil
		}
	}
	return nil, NewFault("java/lang/NoSuchFieldError", name)
}

func (h *testHost) ResolveMethod(c *Class, name, descriptor string) (*Method, error) {
	for k := c; k != nil; k = k.Super {
		if cf, ok := h.ClassFile(k); ok {
			if mi := cf.FindMethod(name, descriptor); mi != nil {
				return &Method{Class: k, Name: name, Descriptor: descriptor, Flags: mi.AccessFlags}, nil
			}
		}
		if n, ok := h.natives[k.Name+"."+name+descriptor]; ok {
			return &Method{Class: k, Name: name, Descriptor: descriptor, Flags: n.flags}, nil
		}
	}
	return nil, NewFault("java/lang/NoSuchMethodError", c.Name+"."+name+descriptor)
}

func zeroValue(t classfile.FieldType) Value {
	switch t {
	case "Z":
		return BoolValue(false)
	case "B":
		return ByteValue(0)
	case "C":
		return CharValue(0)
	case "S":
		return ShortValue(0)
	case "I":
		return IntValue(0)
	case "J":
		return LongValue(0)
	case "F":
		return FloatValue(0)
	case "D":
		return DoubleValue(0)
	}
	return NullValue()
}

func (h *testHost) GetField(obj Value, f *Field) (Value, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var v Value
	var ok bool
	if f.IsStatic() {
		v, ok = h.statics[f.Class.Name+"."+f.Name]
	} else {
		v, ok = obj.Ref().(*testObject).fields[f.Name]
	}
	if !ok {
		return zeroValue(f.Type()), nil
	}
	return v, nil
}

func (h *testHost) SetField(obj Value, f *Field, v Value) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f.IsStatic() {
		h.statics[f.Class.Name+"."+f.Name] = v
		return nil
	}
	obj.Ref().(*testObject).fields[f.Name] = v
	return nil
}

func (h *testHost) Invoke(receiver Value, m *Method, args []Value) (Value, error) {
	h.mu.Lock()
	h.calls = append(h.calls, m.String())
	n, ok := h.natives[m.String()]
	h.mu.Unlock()
	if ok {
		return n.fn(receiver, args)
	}
	// Bytecode methods delegated by a non-recursive engine run on a fresh thread.
	all := args
	if !m.IsStatic() {
		all = append([]Value{receiver}, args...)
	}
	v, _, err := h.engine.NewThread().Invoke(m, all, InvokeOptions{Recursive: true})
	return v, err
}

func (h *testHost) AllocateUninitialized(c *Class) (Value, error) {
	return RefValue(&testObject{class: c, fields: make(map[string]Value)}), nil
}

func (h *testHost) IsInstanceOf(v Value, c *Class) (bool, error) {
	cls, err := h.ClassOf(v)
	if err != nil {
		return false, err
	}
	return cls.IsSubclassOf(c), nil
}

func (h *testHost) NewThrowable(className, message string) (Value, error) {
	c, err := h.LoadClass(className)
	if err != nil {
		c = &Class{Name: className, Super: h.classes["java/lang/RuntimeException"]}
	}
	return RefValue(&testObject{class: c, fields: make(map[string]Value), msg: message}), nil
}

func (h *testHost) NewLookup(caller *Class) (Value, error) {
	return RefValue(&testLookup{caller: caller}), nil
}

func (h *testHost) MethodType(descriptor string) (Value, error) {
	return RefValue(testMethodType(descriptor)), nil
}

func (h *testHost) CreateCallableHandle(kind RefKind, m *Method) (Value, error) {
	return RefValue(&testHandle{name: m.String(), fn: func(args []Value) (Value, error) {
		if kind == RefInvokeStatic {
			return h.Invoke(NullValue(), m, args)
		}
		return h.Invoke(args[0], m, args[1:])
	}}), nil
}

func (h *testHost) InvokeHandle(handle Value, args []Value) (Value, error) {
	mh, ok := handle.Ref().(*testHandle)
	if !ok {
		return Value{}, fmt.Errorf("not a method handle: %s", handle)
	}
	return mh.fn(args)
}

func (h *testHost) DynamicInvoker(callSite Value) (Value, error) {
	cs, ok := callSite.Ref().(*testCallSite)
	if !ok {
		return Value{}, fmt.Errorf("not a call site: %s", callSite)
	}
	return cs.target, nil
}

func (h *testHost) called(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c == key {
			n++
		}
	}
	return n
}

func codeAttr(code []byte, handlers ...classfile.ExceptionHandler) *classfile.CodeAttribute {
	return &classfile.CodeAttribute{MaxStack: 16, MaxLocals: 16, Code: code, ExceptionHandlers: handlers}
}

func newTestEngine(h *testHost, opts Options) *Engine {
	return NewEngine(h, h, opts)
}

// runStatic defines class Test with a static method run of the given
// descriptor and runs it.
func runStatic(t *testing.T, desc string, code []byte, args ...Value) (Value, error) {
	t.Helper()
	return runBuilt(t, desc, func(*classfile.Builder) []byte { return code }, args...)
}

// runBuilt is runStatic for code that refers to constant pool entries;
// asm adds them to the builder and returns the bytecode.
func runBuilt(t *testing.T, desc string, asm func(b *classfile.Builder) []byte, args ...Value) (Value, error) {
	t.Helper()
	return runIn(t, newHost(), DefaultOptions(), desc, asm, args...)
}

// runIn defines Test.run in h and runs it on a new engine with opts.
func runIn(t *testing.T, h *testHost, opts Options, desc string, asm func(b *classfile.Builder) []byte, args ...Value) (Value, error) {
	t.Helper()
	b := classfile.NewBuilder("Test", "java/lang/Object")
	b.Method(classfile.AccPublic|classfile.AccStatic, "run", desc, codeAttr(asm(b)))
	h.define(b)
	v, _, err := newTestEngine(h, opts).Run("Test", "run", desc, args)
	return v, err
}

// op16 encodes an instruction with a two-byte index operand.
func op16(op byte, index uint16) []byte {
	return []byte{op, byte(index >> 8), byte(index)}
}

func bytecode(parts ...[]byte) []byte {
	var code []byte
	for _, p := range parts {
		code = append(code, p...)
	}
	return code
}

// execFrame runs code as a static ()V method on a frame the test can
// inspect afterwards.
func execFrame(t *testing.T, code []byte, handlers ...classfile.ExceptionHandler) (*Frame, error) {
	t.Helper()
	h := newHost()
	b := classfile.NewBuilder("Test", "java/lang/Object")
	attr := codeAttr(code, handlers...)
	b.Method(classfile.AccStatic, "run", "()V", attr)
	cls := h.define(b)
	e := newTestEngine(h, DefaultOptions())
	m, err := h.ResolveMethod(cls, "run", "()V")
	if err != nil {
		t.Fatal(err)
	}
	cf, _ := h.ClassFile(cls)
	th := e.NewThread()
	f := NewFrame(th, m, int(attr.MaxLocals), int(attr.MaxStack), nil, 0)
	_, err = newExecutor(th, f, attr, e.resolver(cf, cls)).Run()
	return f, err
}

// executeAndGetInt runs code as a static method taking the given int
// locals and returning int.
func executeAndGetInt(t *testing.T, code []byte, locals ...int32) int32 {
	t.Helper()
	args := make([]Value, len(locals))
	for i, l := range locals {
		args[i] = IntValue(l)
	}
	v, err := runStatic(t, "("+strings.Repeat("I", len(locals))+")I", code, args...)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	x, ok := v.EffectiveInt()
	if !ok {
		t.Fatalf("expected int result, got %s", v)
	}
	return x
}

// executeAndGetErr runs code as a static ()I method and returns its error.
func executeAndGetErr(t *testing.T, code []byte) error {
	t.Helper()
	_, err := runStatic(t, "()I", code)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	return err
}
