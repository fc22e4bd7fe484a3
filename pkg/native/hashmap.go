package native

import (
	"strings"
	"sync"

	"github.com/daimatz/jvmengine/pkg/vm"
)

// HashMap represents a java.util.HashMap. Keys are compared with
// Object.equals semantics for strings and boxed integers and by identity
// otherwise. Iteration follows insertion order.
type HashMap struct {
	mu      sync.Mutex
	entries map[any]*mapEntry
	order   []any
}

type mapEntry struct {
	key, value vm.Value
}

type nullKey struct{}

func NewHashMap() *HashMap {
	return &HashMap{entries: make(map[any]*mapEntry)}
}

func mapKey(v vm.Value) any {
	if v.IsNull() {
		return nullKey{}
	}
	if i, ok := v.Ref().(*Integer); ok {
		return i.Value
	}
	return v.Ref()
}

// Get returns the value for key, or null.
func (m *HashMap) Get(key vm.Value) vm.Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[mapKey(key)]; ok {
		return e.value
	}
	return vm.NullValue()
}

// Put stores a key-value pair and returns the previous value, or null.
func (m *HashMap) Put(key, value vm.Value) vm.Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := mapKey(key)
	if e, ok := m.entries[k]; ok {
		old := e.value
		e.value = value
		return old
	}
	m.entries[k] = &mapEntry{key: key, value: value}
	m.order = append(m.order, k)
	return vm.NullValue()
}

func (m *HashMap) ContainsKey(key vm.Value) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[mapKey(key)]
	return ok
}

// Remove deletes key and returns its value, or null.
func (m *HashMap) Remove(key vm.Value) vm.Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := mapKey(key)
	e, ok := m.entries[k]
	if !ok {
		return vm.NullValue()
	}
	delete(m.entries, k)
	for i, o := range m.order {
		if o == k {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return e.value
}

func (m *HashMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *HashMap) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
	m.order = nil
}

func (m *HashMap) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range m.order {
		if i > 0 {
			b.WriteString(", ")
		}
		e := m.entries[k]
		b.WriteString(Format(e.key))
		b.WriteByte('=')
		b.WriteString(Format(e.value))
	}
	b.WriteByte('}')
	return b.String()
}

// RegisterHashMap registers java/util/HashMap. Interface calls through
// java/util/Map dispatch here by class.
func RegisterHashMap(r *Registry) {
	const owner = "java/util/HashMap"
	hm := func(fn func(m *HashMap, args []vm.Value) vm.Value) Func {
		return func(recv vm.Value, args []vm.Value) (vm.Value, error) {
			m, err := receiver[*HashMap](recv)
			if err != nil {
				return vm.Value{}, err
			}
			return fn(m, args), nil
		}
	}
	nop := hm(func(*HashMap, []vm.Value) vm.Value { return vm.Value{} })
	r.Register(owner, "<init>", "()V", nop)
	r.Register(owner, "<init>", "(I)V", nop)

	r.Register(owner, "put", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;", hm(func(m *HashMap, args []vm.Value) vm.Value {
		return m.Put(args[0], args[1])
	}))
	r.Register(owner, "get", "(Ljava/lang/Object;)Ljava/lang/Object;", hm(func(m *HashMap, args []vm.Value) vm.Value {
		return m.Get(args[0])
	}))
	r.Register(owner, "getOrDefault", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;", hm(func(m *HashMap, args []vm.Value) vm.Value {
		if !m.ContainsKey(args[0]) {
			return args[1]
		}
		return m.Get(args[0])
	}))
	r.Register(owner, "containsKey", "(Ljava/lang/Object;)Z", hm(func(m *HashMap, args []vm.Value) vm.Value {
		return vm.BoolValue(m.ContainsKey(args[0]))
	}))
	r.Register(owner, "remove", "(Ljava/lang/Object;)Ljava/lang/Object;", hm(func(m *HashMap, args []vm.Value) vm.Value {
		return m.Remove(args[0])
	}))
	r.Register(owner, "size", "()I", hm(func(m *HashMap, _ []vm.Value) vm.Value {
		return vm.IntValue(int32(m.Len()))
	}))
	r.Register(owner, "isEmpty", "()Z", hm(func(m *HashMap, _ []vm.Value) vm.Value {
		return vm.BoolValue(m.Len() == 0)
	}))
	r.Register(owner, "clear", "()V", hm(func(m *HashMap, _ []vm.Value) vm.Value {
		m.Clear()
		return vm.Value{}
	}))
	r.Register(owner, "toString", "()Ljava/lang/String;", hm(func(m *HashMap, _ []vm.Value) vm.Value {
		return vm.RefValue(m.String())
	}))
}
