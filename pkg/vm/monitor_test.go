package vm

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/daimatz/jvmengine/pkg/classfile"
)

func TestMonitorReentrant(t *testing.T) {
	m := newMonitor()
	m.Enter()
	m.Enter()
	if err := m.Exit(); err != nil {
		t.Fatalf("first exit: %v", err)
	}
	if !m.Locked() {
		t.Error("monitor released after one of two exits")
	}
	if err := m.Exit(); err != nil {
		t.Fatalf("second exit: %v", err)
	}
	if m.Locked() {
		t.Error("monitor still held")
	}
	if err := m.Exit(); !errors.Is(err, ErrNotOwner) {
		t.Errorf("exit of free monitor: expected ErrNotOwner, got %v", err)
	}
}

func TestMonitorReentrantBlocksOtherGoroutines(t *testing.T) {
	m := newMonitor()
	m.Enter()
	m.Enter()

	acquired := make(chan struct{})
	go func() {
		m.Enter()
		close(acquired)
		_ = m.Exit()
	}()

	select {
	case <-acquired:
		t.Fatal("second goroutine entered a held monitor")
	case <-time.After(50 * time.Millisecond):
	}

	// 1 回目の exit ではまだ保持している
	if err := m.Exit(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-acquired:
		t.Fatal("waiter acquired the monitor after one of two exits")
	case <-time.After(50 * time.Millisecond):
	}

	if err := m.Exit(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken after the last exit")
	}
}

func TestMonitorExitByNonOwner(t *testing.T) {
	m := newMonitor()
	m.Enter()
	defer func() { _ = m.Exit() }()

	errc := make(chan error)
	go func() { errc <- m.Exit() }()
	if err := <-errc; !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
}

func TestMonitorTableCreatesOneMonitorPerKey(t *testing.T) {
	table := NewMonitorTable()
	key := &testObject{}

	var wg sync.WaitGroup
	got := make([]*Monitor, 32)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = table.Get(key)
		}()
	}
	wg.Wait()
	for i := range got {
		if got[i] != got[0] {
			t.Fatalf("goroutine %d got a different monitor", i)
		}
	}
	if n := table.Len(); n != 1 {
		t.Errorf("Len: got %d, want 1", n)
	}
	// Strings are compared by contents, so equal strings share a monitor.
	if table.Get(strings.Join([]string{"ab", "c"}, "")) != table.Get("abc") {
		t.Error("equal strings got different monitors")
	}
	if err := table.Exit(&testObject{}); !errors.Is(err, ErrNotOwner) {
		t.Errorf("exit of unknown key: expected ErrNotOwner, got %v", err)
	}
}

func TestMonitorInstructions(t *testing.T) {
	t.Run("enter and exit", func(t *testing.T) {
		h := newHost()
		e := newTestEngine(h, DefaultOptions())
		b := classfile.NewBuilder("Test", "java/lang/Object")
		lock := byte(b.String("lock"))
		// ldc "lock", dup, astore_0, monitorenter, aload_0, monitorexit, iconst_1, ireturn
		b.Method(classfile.AccStatic, "run", "()I", codeAttr([]byte{0x12, lock, 0x59, 0x4B, 0xC2, 0x2A, 0xC3, 0x04, 0xAC}))
		h.define(b)
		v, _, err := e.Run("Test", "run", "()I", nil)
		if err != nil || v.Int() != 1 {
			t.Fatalf("got %s, %v", v, err)
		}
		if e.Monitors().Get("lock").Locked() {
			t.Error("monitor left locked")
		}
	})

	t.Run("exit without enter", func(t *testing.T) {
		_, err := runBuilt(t, "()V", func(b *classfile.Builder) []byte {
			return []byte{0x12, byte(b.String("lock")), 0xC3, 0xB1}
		})
		expectFault(t, err, "java/lang/IllegalMonitorStateException")
	})

	t.Run("enter null", func(t *testing.T) {
		_, err := runStatic(t, "()V", []byte{0x01, 0xC2, 0xB1})
		expectFault(t, err, "java/lang/NullPointerException")
	})
}

func TestSynchronizedMethods(t *testing.T) {
	// static synchronized int run() { return Natives.work() <tail> }
	setup := func(tail []byte) (*testHost, *Engine, *Class) {
		h := newHost()
		h.define(classfile.NewBuilder("Natives", "java/lang/Object"))
		b := classfile.NewBuilder("Test", "java/lang/Object")
		body := bytecode(op16(0xB8, b.Methodref("Natives", "work", "()I")), tail)
		b.Method(classfile.AccStatic|classfile.AccSynchronized, "run", "()I", codeAttr(body))
		cls := h.define(b)
		return h, newTestEngine(h, DefaultOptions()), cls
	}

	t.Run("static method locks its class", func(t *testing.T) {
		h, e, cls := setup([]byte{0xAC})
		h.native("Natives.work()I", classfile.AccStatic, func(Value, []Value) (Value, error) {
			if e.Monitors().Get(cls).Locked() {
				return IntValue(1), nil
			}
			return IntValue(0), nil
		})
		v, _, err := e.Run("Test", "run", "()I", nil)
		if err != nil || v.Int() != 1 {
			t.Fatalf("got %s, %v", v, err)
		}
		if e.Monitors().Get(cls).Locked() {
			t.Error("class monitor left locked")
		}
	})

	t.Run("released on fault", func(t *testing.T) {
		// work(), iconst_0, idiv, ireturn
		h, e, cls := setup([]byte{0x03, 0x6C, 0xAC})
		h.native("Natives.work()I", classfile.AccStatic, func(Value, []Value) (Value, error) {
			return IntValue(1), nil
		})
		_, _, err := e.Run("Test", "run", "()I", nil)
		expectFault(t, err, "java/lang/ArithmeticException")
		if e.Monitors().Get(cls).Locked() {
			t.Error("class monitor left locked after fault")
		}
	})

	t.Run("mutual exclusion across threads", func(t *testing.T) {
		h, e, _ := setup([]byte{0xAC})
		var active, peak atomic.Int32
		h.native("Natives.work()I", classfile.AccStatic, func(Value, []Value) (Value, error) {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			return IntValue(n), nil
		})

		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, errs[i] = e.Run("Test", "run", "()I", nil)
			}()
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				t.Fatal(err)
			}
		}
		if p := peak.Load(); p != 1 {
			t.Errorf("peak concurrency inside synchronized method: got %d, want 1", p)
		}
	})
}
