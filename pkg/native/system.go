package native

import (
	"fmt"
	"io"
	"sync"
	"unicode/utf16"

	"github.com/daimatz/jvmengine/pkg/vm"
)

// PrintStream represents a java.io.PrintStream.
type PrintStream struct {
	mu     sync.Mutex
	Writer io.Writer
}

func NewPrintStream(w io.Writer) *PrintStream {
	return &PrintStream{Writer: w}
}

// Print writes s. Write errors set no error state; PrintStream never throws.
func (ps *PrintStream) Print(s string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	_, _ = io.WriteString(ps.Writer, s)
}

// Println writes s followed by a newline.
func (ps *PrintStream) Println(s string) {
	ps.Print(s + "\n")
}

// printed renders a print/println argument. char[] prints its characters.
func printed(v vm.Value) string {
	if a, ok := v.Array(); ok && a.Elem == vm.ElemChar {
		return string(utf16.Decode(a.Chars()))
	}
	return Format(v)
}

// RegisterPrintStream registers java/io/PrintStream.
func RegisterPrintStream(r *Registry) {
	const owner = "java/io/PrintStream"
	r.Register(owner, "println", "()V", func(recv vm.Value, _ []vm.Value) (vm.Value, error) {
		ps, err := receiver[*PrintStream](recv)
		if err != nil {
			return vm.Value{}, err
		}
		ps.Println("")
		return vm.Value{}, nil
	})
	for _, name := range []string{"print", "println"} {
		newline := name == "println"
		fn := func(recv vm.Value, args []vm.Value) (vm.Value, error) {
			ps, err := receiver[*PrintStream](recv)
			if err != nil {
				return vm.Value{}, err
			}
			if len(args) != 1 {
				return vm.Value{}, fmt.Errorf("%s: got %d arguments", name, len(args))
			}
			s := printed(args[0])
			if newline {
				ps.Println(s)
			} else {
				ps.Print(s)
			}
			return vm.Value{}, nil
		}
		for _, t := range []string{"Ljava/lang/String;", "Ljava/lang/Object;", "I", "J", "C", "Z", "F", "D", "[C"} {
			r.Register(owner, name, "("+t+")V", fn)
		}
	}
}
