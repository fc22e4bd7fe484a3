package vm

import (
	"errors"
	"testing"

	"github.com/daimatz/jvmengine/pkg/classfile"
)

// definePoint defines
//
//	class Point { int x; Point(int x) { super(); this.x = x; } }
func definePoint(h *testHost) *Class {
	b := classfile.NewBuilder("Point", "java/lang/Object")
	b.Field(0, "x", "I")
	objInit := b.Methodref("java/lang/Object", "<init>", "()V")
	x := b.Fieldref("Point", "x", "I")
	b.Method(classfile.AccPublic, "<init>", "(I)V", codeAttr(bytecode(
		[]byte{0x2A},        // aload_0
		op16(0xB7, objInit), // invokespecial Object.<init>
		[]byte{0x2A, 0x1B},  // aload_0, iload_1
		op16(0xB5, x),       // putfield x
		[]byte{0xB1},        // return
	)))
	return h.define(b)
}

func expectFault(t *testing.T, err error, class string) *Fault {
	t.Helper()
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("expected %s fault, got %v", class, err)
	}
	if f.Class != class {
		t.Fatalf("expected %s fault, got %s", class, f)
	}
	return f
}

func TestConstruction(t *testing.T) {
	// Point p = new Point(7) with an extra alias of the new reference in a
	// local and another on the stack; returns p.x + alias.x.
	makePoint := func(b *classfile.Builder) []byte {
		pt := b.Class("Point")
		ctor := b.Methodref("Point", "<init>", "(I)V")
		x := b.Fieldref("Point", "x", "I")
		return bytecode(
			op16(0xBB, pt),     // 0: new Point
			[]byte{0x59, 0x4B}, // 3: dup, astore_0
			[]byte{0x59},       // 5: dup
			[]byte{0x10, 0x07}, // 6: bipush 7
			op16(0xB7, ctor),   // 8: invokespecial Point.<init>(I)V
			op16(0xB4, x),      // 11: getfield x (stack alias)
			[]byte{0x2A},       // 14: aload_0
			op16(0xB4, x),      // 15: getfield x (local alias)
			[]byte{0x60, 0xAC}, // 18: iadd, ireturn
		)
	}

	for _, c := range []Construction{Deferred, Eager} {
		t.Run(c.String(), func(t *testing.T) {
			h := newHost()
			definePoint(h)
			opts := DefaultOptions()
			opts.Construction = c
			v, err := runIn(t, h, opts, "()I", makePoint)
			if err != nil {
				t.Fatal(err)
			}
			if v.Int() != 14 {
				t.Errorf("got %d, want 14", v.Int())
			}
		})
	}

	t.Run("deferred field access before construction is fatal", func(t *testing.T) {
		h := newHost()
		definePoint(h)
		_, err := runIn(t, h, DefaultOptions(), "()I", func(b *classfile.Builder) []byte {
			return bytecode(op16(0xBB, b.Class("Point")), op16(0xB4, b.Fieldref("Point", "x", "I")), []byte{0xAC})
		})
		if !errors.Is(err, ErrFatal) {
			t.Errorf("expected fatal error, got %v", err)
		}
	})

	t.Run("eager field access before construction reads the default", func(t *testing.T) {
		h := newHost()
		definePoint(h)
		opts := DefaultOptions()
		opts.Construction = Eager
		v, err := runIn(t, h, opts, "()I", func(b *classfile.Builder) []byte {
			return bytecode(op16(0xBB, b.Class("Point")), op16(0xB4, b.Fieldref("Point", "x", "I")), []byte{0xAC})
		})
		if err != nil || v.Int() != 0 {
			t.Errorf("got %s, %v", v, err)
		}
	})

	t.Run("returning an unconstructed object is fatal", func(t *testing.T) {
		h := newHost()
		definePoint(h)
		_, err := runIn(t, h, DefaultOptions(), "()Ljava/lang/Object;", func(b *classfile.Builder) []byte {
			return bytecode(op16(0xBB, b.Class("Point")), []byte{0xB0})
		})
		if !errors.Is(err, ErrFatal) {
			t.Errorf("expected fatal error, got %v", err)
		}
	})

	t.Run("new interface", func(t *testing.T) {
		_, err := runBuilt(t, "()V", func(b *classfile.Builder) []byte {
			return bytecode(op16(0xBB, b.Class("java/lang/Runnable")), []byte{0xB1})
		})
		expectFault(t, err, "java/lang/InstantiationError")
	})
}

func TestFields(t *testing.T) {
	staticField := func(desc string) func(b *classfile.Builder) uint16 {
		return func(b *classfile.Builder) uint16 {
			b.Field(classfile.AccStatic, "f", desc)
			return b.Fieldref("Test", "f", desc)
		}
	}

	t.Run("static long", func(t *testing.T) {
		v, err := runBuilt(t, "()J", func(b *classfile.Builder) []byte {
			f := staticField("J")(b)
			// lconst_1, putstatic, getstatic, getstatic, ladd, lreturn
			return bytecode([]byte{0x0A}, op16(0xB3, f), op16(0xB2, f), op16(0xB2, f), []byte{0x61, 0xAD})
		})
		if err != nil || v.Long() != 2 {
			t.Errorf("got %s, %v", v, err)
		}
	})

	t.Run("static boolean accepts 1", func(t *testing.T) {
		v, err := runBuilt(t, "()Z", func(b *classfile.Builder) []byte {
			f := staticField("Z")(b)
			return bytecode([]byte{0x04}, op16(0xB3, f), op16(0xB2, f), []byte{0xAC})
		})
		if err != nil || v.Kind() != KindBoolean || !v.Bool() {
			t.Errorf("got %s, %v", v, err)
		}
	})

	t.Run("static boolean rejects 2", func(t *testing.T) {
		_, err := runBuilt(t, "()V", func(b *classfile.Builder) []byte {
			f := staticField("Z")(b)
			return bytecode([]byte{0x05}, op16(0xB3, f), []byte{0xB1})
		})
		expectFault(t, err, "java/lang/IllegalArgumentException")
	})

	t.Run("static byte narrows", func(t *testing.T) {
		v, err := runBuilt(t, "()I", func(b *classfile.Builder) []byte {
			f := staticField("B")(b)
			return bytecode([]byte{0x11, 0x01, 0x01}, op16(0xB3, f), op16(0xB2, f), []byte{0xAC})
		})
		if err != nil || v.Int() != 1 {
			t.Errorf("got %s, %v", v, err)
		}
	})

	t.Run("getstatic of instance field", func(t *testing.T) {
		h := newHost()
		definePoint(h)
		_, err := runIn(t, h, DefaultOptions(), "()I", func(b *classfile.Builder) []byte {
			return bytecode(op16(0xB2, b.Fieldref("Point", "x", "I")), []byte{0xAC})
		})
		expectFault(t, err, "java/lang/IncompatibleClassChangeError")
	})

	t.Run("getfield on null", func(t *testing.T) {
		h := newHost()
		definePoint(h)
		_, err := runIn(t, h, DefaultOptions(), "()I", func(b *classfile.Builder) []byte {
			return bytecode([]byte{0x01}, op16(0xB4, b.Fieldref("Point", "x", "I")), []byte{0xAC})
		})
		expectFault(t, err, "java/lang/NullPointerException")
	})

	t.Run("missing field", func(t *testing.T) {
		_, err := runBuilt(t, "()I", func(b *classfile.Builder) []byte {
			return bytecode(op16(0xB2, b.Fieldref("Test", "nope", "I")), []byte{0xAC})
		})
		expectFault(t, err, "java/lang/NoSuchFieldError")
	})
}

func TestTypeChecks(t *testing.T) {
	h := newHost()
	definePoint(h)

	t.Run("checkcast failure", func(t *testing.T) {
		_, err := runIn(t, h, DefaultOptions(), "()V", func(b *classfile.Builder) []byte {
			return bytecode([]byte{0x12, byte(b.String("s"))}, op16(0xC0, b.Class("Point")), []byte{0xB1})
		})
		f := expectFault(t, err, "java/lang/ClassCastException")
		if f.Message != "class java.lang.String cannot be cast to class Point" {
			t.Errorf("message: got %q", f.Message)
		}
	})

	tests := []struct {
		name string
		asm  func(b *classfile.Builder) []byte
		want int32
	}{
		{"checkcast null passes", func(b *classfile.Builder) []byte {
			return bytecode([]byte{0x01}, op16(0xC0, b.Class("Point")), []byte{0x57, 0x04, 0xAC})
		}, 1},
		{"instanceof superclass", func(b *classfile.Builder) []byte {
			return bytecode([]byte{0x12, byte(b.String("s"))}, op16(0xC1, b.Class("java/lang/Object")), []byte{0xAC})
		}, 1},
		{"instanceof unrelated", func(b *classfile.Builder) []byte {
			return bytecode([]byte{0x12, byte(b.String("s"))}, op16(0xC1, b.Class("Point")), []byte{0xAC})
		}, 0},
		{"instanceof null", func(b *classfile.Builder) []byte {
			return bytecode([]byte{0x01}, op16(0xC1, b.Class("java/lang/Object")), []byte{0xAC})
		}, 0},
		// ldc "a", ldc "a", if_acmpeq +5, iconst_0, ireturn, iconst_1, ireturn
		{"if_acmpeq same constant", func(b *classfile.Builder) []byte {
			s := byte(b.String("a"))
			return []byte{0x12, s, 0x12, s, 0xA5, 0x00, 0x05, 0x03, 0xAC, 0x04, 0xAC}
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := runIn(t, h, DefaultOptions(), "()I", tt.asm)
			if err != nil {
				t.Fatal(err)
			}
			if v.Int() != tt.want {
				t.Errorf("got %d, want %d", v.Int(), tt.want)
			}
		})
	}
}

func TestArrays(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want int32
	}{
		// iconst_3, newarray int, dup, iconst_1, bipush 42, iastore, iconst_1, iaload, ireturn
		{"int array", []byte{0x06, 0xBC, 0x0A, 0x59, 0x04, 0x10, 0x2A, 0x4F, 0x04, 0x2E, 0xAC}, 42},
		{"arraylength", []byte{0x06, 0xBC, 0x0A, 0xBE, 0xAC}, 3},
		{"zero length", []byte{0x03, 0xBC, 0x0A, 0xBE, 0xAC}, 0},
		// boolean arrays keep the low bit: store 3, load 1
		{"boolean array", []byte{0x04, 0xBC, 0x04, 0x59, 0x03, 0x06, 0x54, 0x03, 0x33, 0xAC}, 1},
		{"byte array", []byte{0x04, 0xBC, 0x08, 0x59, 0x03, 0x11, 0x00, 0xFF, 0x54, 0x03, 0x33, 0xAC}, -1},
		{"char array", []byte{0x04, 0xBC, 0x05, 0x59, 0x03, 0x02, 0x55, 0x03, 0x34, 0xAC}, 65535},
		{"short array", []byte{0x04, 0xBC, 0x09, 0x59, 0x03, 0x02, 0x56, 0x03, 0x35, 0xAC}, -1},
		// iconst_1, newarray long, dup, iconst_0, lconst_1, lastore, iconst_0, laload, l2i, ireturn
		{"long array", []byte{0x04, 0xBC, 0x0B, 0x59, 0x03, 0x0A, 0x50, 0x03, 0x2F, 0x88, 0xAC}, 1},
		{"double array", []byte{0x04, 0xBC, 0x07, 0x59, 0x03, 0x0F, 0x52, 0x03, 0x31, 0x8E, 0xAC}, 1},
		{"float array default", []byte{0x04, 0xBC, 0x06, 0x03, 0x30, 0x8B, 0xAC}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := executeAndGetInt(t, tt.code); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}

	faults := []struct {
		name    string
		code    []byte
		class   string
		message string
	}{
		{"index past end", []byte{0x06, 0xBC, 0x0A, 0x06, 0x2E, 0xAC},
			"java/lang/ArrayIndexOutOfBoundsException", "Index 3 out of bounds for length 3"},
		{"negative index", []byte{0x06, 0xBC, 0x0A, 0x02, 0x2E, 0xAC},
			"java/lang/ArrayIndexOutOfBoundsException", "Index -1 out of bounds for length 3"},
		{"negative size", []byte{0x02, 0xBC, 0x0A, 0xAC},
			"java/lang/NegativeArraySizeException", "-1"},
		{"arraylength of null", []byte{0x01, 0xBE, 0xAC},
			"java/lang/NullPointerException", "arraylength on null array"},
		{"iaload of null", []byte{0x01, 0x03, 0x2E, 0xAC},
			"java/lang/NullPointerException", "iaload on null array"},
	}
	for _, tt := range faults {
		t.Run(tt.name, func(t *testing.T) {
			f := expectFault(t, executeAndGetErr(t, tt.code), tt.class)
			if f.Message != tt.message {
				t.Errorf("message: got %q, want %q", f.Message, tt.message)
			}
		})
	}

	t.Run("element kind mismatch is fatal", func(t *testing.T) {
		// iconst_1, newarray long, iconst_0, iaload
		err := executeAndGetErr(t, []byte{0x04, 0xBC, 0x0B, 0x03, 0x2E, 0xAC})
		if !errors.Is(err, ErrFatal) {
			t.Errorf("expected fatal error, got %v", err)
		}
	})

	t.Run("invalid atype is fatal", func(t *testing.T) {
		err := executeAndGetErr(t, []byte{0x04, 0xBC, 0x03, 0xBE, 0xAC})
		if !errors.Is(err, ErrFatal) {
			t.Errorf("expected fatal error, got %v", err)
		}
	})
}

func TestReferenceArrays(t *testing.T) {
	h := newHost()
	definePoint(h)

	t.Run("aastore of incompatible value", func(t *testing.T) {
		_, err := runIn(t, h, DefaultOptions(), "()V", func(b *classfile.Builder) []byte {
			return bytecode(
				[]byte{0x05}, op16(0xBD, b.Class("Point")), // iconst_2, anewarray Point
				[]byte{0x03, 0x12, byte(b.String("s"))}, // iconst_0, ldc "s"
				[]byte{0x53, 0xB1},                      // aastore, return
			)
		})
		f := expectFault(t, err, "java/lang/ArrayStoreException")
		if f.Message != "java.lang.String" {
			t.Errorf("message: got %q", f.Message)
		}
	})

	t.Run("aastore into Object array", func(t *testing.T) {
		v, err := runIn(t, h, DefaultOptions(), "()Ljava/lang/Object;", func(b *classfile.Builder) []byte {
			return bytecode(
				[]byte{0x04}, op16(0xBD, b.Class("java/lang/Object")), // iconst_1, anewarray Object
				[]byte{0x59, 0x03, 0x12, byte(b.String("s")), 0x53}, // dup, iconst_0, ldc "s", aastore
				[]byte{0x03, 0x32, 0xB0},                            // iconst_0, aaload, areturn
			)
		})
		if err != nil {
			t.Fatal(err)
		}
		if s, _ := v.Ref().(string); s != "s" {
			t.Errorf("got %s", v)
		}
	})

	t.Run("anewarray class", func(t *testing.T) {
		v, err := runIn(t, h, DefaultOptions(), "()Ljava/lang/Object;", func(b *classfile.Builder) []byte {
			return bytecode([]byte{0x04}, op16(0xBD, b.Class("Point")), []byte{0xB0})
		})
		if err != nil {
			t.Fatal(err)
		}
		a, ok := v.Array()
		if !ok || a.Class.Name != "[LPoint;" || a.Component == nil || a.Component.Name != "Point" || a.Len() != 1 {
			t.Errorf("got %s", v)
		}
	})
}

func TestMultiANewArray(t *testing.T) {
	multi := func(desc string, dims byte, counts ...byte) func(b *classfile.Builder) []byte {
		return func(b *classfile.Builder) []byte {
			return bytecode(counts, op16(0xC5, b.Class(desc)), []byte{dims, 0xB0})
		}
	}

	t.Run("int[2][3]", func(t *testing.T) {
		v, err := runBuilt(t, "()Ljava/lang/Object;", multi("[[I", 2, 0x05, 0x06))
		if err != nil {
			t.Fatal(err)
		}
		outer, ok := v.Array()
		if !ok || outer.Len() != 2 || outer.Class.Name != "[[I" {
			t.Fatalf("outer: got %s", v)
		}
		for i := 0; i < 2; i++ {
			inner, ok := outer.Load(i).Array()
			if !ok || inner.Len() != 3 || inner.Elem != ElemInt {
				t.Errorf("inner %d: got %s", i, outer.Load(i))
			}
		}
		a, _ := outer.Load(0).Array()
		b, _ := outer.Load(1).Array()
		if a == b {
			t.Error("subarrays share storage")
		}
	})

	t.Run("partial dimensions leave nulls", func(t *testing.T) {
		v, err := runBuilt(t, "()Ljava/lang/Object;", multi("[[[J", 2, 0x05, 0x05))
		if err != nil {
			t.Fatal(err)
		}
		outer, _ := v.Array()
		inner, ok := outer.Load(1).Array()
		if !ok || inner.Len() != 2 || !inner.Load(0).IsNull() {
			t.Errorf("got %s", outer.Load(1))
		}
	})

	t.Run("zero outer length", func(t *testing.T) {
		v, err := runBuilt(t, "()Ljava/lang/Object;", multi("[[I", 2, 0x03, 0x06))
		if err != nil {
			t.Fatal(err)
		}
		if a, _ := v.Array(); a.Len() != 0 {
			t.Errorf("got %s", v)
		}
	})

	t.Run("negative count", func(t *testing.T) {
		_, err := runBuilt(t, "()Ljava/lang/Object;", multi("[[I", 2, 0x05, 0x02))
		expectFault(t, err, "java/lang/NegativeArraySizeException")
	})

	t.Run("more dimensions than the type", func(t *testing.T) {
		_, err := runBuilt(t, "()Ljava/lang/Object;", multi("[I", 2, 0x05, 0x05))
		if !errors.Is(err, ErrFatal) {
			t.Errorf("expected fatal error, got %v", err)
		}
	})
}
