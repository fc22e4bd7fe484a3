package host

import (
	"errors"
	"fmt"

	"github.com/petermattis/goid"

	"github.com/daimatz/jvmengine/pkg/vm"
)

type initState int

const (
	uninitialized initState = iota
	initializing
	initialized
	initFailed
)

// initialize runs the static initializer of c once, superclass first. A
// goroutine already initializing c proceeds immediately; others wait for
// it to finish.
func (u *Universe) initialize(c *vm.Class) error {
	info := infoOf(c)
	if info == nil {
		return nil
	}
	gid := goid.Get()

	u.mu.Lock()
	for info.state == initializing && info.initOwner != gid {
		u.inited.Wait()
	}
	switch info.state {
	case initialized, initializing:
		u.mu.Unlock()
		return nil
	case initFailed:
		u.mu.Unlock()
		return vm.NewFault("java/lang/NoClassDefFoundError", "Could not initialize class "+c.Name)
	}
	info.state = initializing
	info.initOwner = gid
	u.mu.Unlock()

	err := u.runInitializer(c, info)

	u.mu.Lock()
	if err != nil {
		info.state = initFailed
	} else {
		info.state = initialized
	}
	u.inited.Broadcast()
	u.mu.Unlock()
	return err
}

func (u *Universe) runInitializer(c *vm.Class, info *classInfo) error {
	if c.Super != nil && !c.IsInterface() {
		if err := u.initialize(c.Super); err != nil {
			return err
		}
	}
	clinit, ok := info.methods["<clinit>()V"]
	if !ok {
		return nil
	}
	e := u.engine.Load()
	if e == nil {
		return fmt.Errorf("initializing %s: no engine attached", c.Name)
	}
	u.log.Debug().Str("class", c.Name).Msg("running static initializer")
	_, _, err := e.NewThread().Invoke(clinit, nil, vm.InvokeOptions{Recursive: true})
	if err == nil {
		return nil
	}
	var f *vm.Fault
	if !errors.As(err, &f) {
		return err
	}
	if cls, lerr := u.LoadClass(f.Class); lerr == nil && isError(cls) {
		return f
	}
	wrapped := vm.NewFault("java/lang/ExceptionInInitializerError", f.Error())
	wrapped.Cause = f
	return wrapped
}

func isError(c *vm.Class) bool {
	for ; c != nil; c = c.Super {
		if c.Name == "java/lang/Error" {
			return true
		}
	}
	return false
}
