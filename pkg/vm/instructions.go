package vm

import (
	"fmt"
	"math"
)

// execute executes a single decoded instruction.
// Returns (returnValue, done, error).
func (e *Executor) execute(op Opcode) (Value, bool, error) {
	frame := e.frame
	s := e.stream
	var err error

	switch op {
	case OpNop:
		// do nothing

	// --- Constants ---
	case OpAconstNull:
		frame.Push(NullValue())
	case OpIconstM1, OpIconst0, OpIconst1, OpIconst2, OpIconst3, OpIconst4, OpIconst5:
		frame.Push(IntValue(int32(op) - int32(OpIconst0)))
	case OpLconst0, OpLconst1:
		frame.PushLong(int64(op - OpLconst0))
	case OpFconst0, OpFconst1, OpFconst2:
		frame.Push(FloatValue(float32(op - OpFconst0)))
	case OpDconst0, OpDconst1:
		frame.PushDouble(float64(op - OpDconst0))
	case OpBipush:
		frame.Push(IntValue(int32(s.ReadI8())))
	case OpSipush:
		frame.Push(IntValue(int32(s.ReadI16())))
	case OpLdc:
		err = e.ldc(uint16(s.ReadU8()), false)
	case OpLdcW:
		err = e.ldc(s.ReadU16(), false)
	case OpLdc2W:
		err = e.ldc(s.ReadU16(), true)

	// --- Local variable loads ---
	case OpIload, OpFload, OpAload:
		err = e.load(int(s.ReadU8()), 1)
	case OpLload, OpDload:
		err = e.load(int(s.ReadU8()), 2)
	case OpIload0, OpIload1, OpIload2, OpIload3:
		err = e.load(int(op-OpIload0), 1)
	case OpLload0, OpLload1, OpLload2, OpLload3:
		err = e.load(int(op-OpLload0), 2)
	case OpFload0, OpFload1, OpFload2, OpFload3:
		err = e.load(int(op-OpFload0), 1)
	case OpDload0, OpDload1, OpDload2, OpDload3:
		err = e.load(int(op-OpDload0), 2)
	case OpAload0, OpAload1, OpAload2, OpAload3:
		err = e.load(int(op-OpAload0), 1)

	// --- Local variable stores ---
	case OpIstore, OpFstore, OpAstore:
		e.store(int(s.ReadU8()), 1)
	case OpLstore, OpDstore:
		e.store(int(s.ReadU8()), 2)
	case OpIstore0, OpIstore1, OpIstore2, OpIstore3:
		e.store(int(op-OpIstore0), 1)
	case OpLstore0, OpLstore1, OpLstore2, OpLstore3:
		e.store(int(op-OpLstore0), 2)
	case OpFstore0, OpFstore1, OpFstore2, OpFstore3:
		e.store(int(op-OpFstore0), 1)
	case OpDstore0, OpDstore1, OpDstore2, OpDstore3:
		e.store(int(op-OpDstore0), 2)
	case OpAstore0, OpAstore1, OpAstore2, OpAstore3:
		e.store(int(op-OpAstore0), 1)

	// --- Arrays ---
	case OpIaload, OpLaload, OpFaload, OpDaload, OpAaload, OpBaload, OpCaload, OpSaload:
		err = e.arrayLoad(op)
	case OpIastore, OpLastore, OpFastore, OpDastore, OpAastore, OpBastore, OpCastore, OpSastore:
		err = e.arrayStore(op)

	// --- Stack manipulation ---
	case OpPop:
		frame.Pop()
	case OpPop2:
		frame.Pop()
		frame.Pop()
	case OpDup:
		frame.Push(frame.Peek())
	case OpDupX1:
		v1 := frame.Pop()
		v2 := frame.Pop()
		frame.Push(v1)
		frame.Push(v2)
		frame.Push(v1)
	case OpDupX2:
		v1 := frame.Pop()
		v2 := frame.Pop()
		v3 := frame.Pop()
		frame.Push(v1)
		frame.Push(v3)
		frame.Push(v2)
		frame.Push(v1)
	case OpDup2:
		v1 := frame.Pop()
		v2 := frame.Pop()
		frame.Push(v2)
		frame.Push(v1)
		frame.Push(v2)
		frame.Push(v1)
	case OpDup2X1:
		v1 := frame.Pop()
		v2 := frame.Pop()
		v3 := frame.Pop()
		frame.Push(v2)
		frame.Push(v1)
		frame.Push(v3)
		frame.Push(v2)
		frame.Push(v1)
	case OpDup2X2:
		v1 := frame.Pop()
		v2 := frame.Pop()
		v3 := frame.Pop()
		v4 := frame.Pop()
		frame.Push(v2)
		frame.Push(v1)
		frame.Push(v4)
		frame.Push(v3)
		frame.Push(v2)
		frame.Push(v1)
	case OpSwap:
		v1 := frame.Pop()
		v2 := frame.Pop()
		frame.Push(v1)
		frame.Push(v2)

	// --- Arithmetic ---
	case OpIadd, OpIsub, OpImul, OpIdiv, OpIrem, OpIand, OpIor, OpIxor, OpIshl, OpIshr, OpIushr:
		err = e.intOp(op)
	case OpLadd, OpLsub, OpLmul, OpLdiv, OpLrem, OpLand, OpLor, OpLxor:
		err = e.longOp(op)
	case OpLshl, OpLshr, OpLushr:
		e.longShift(op)
	case OpFadd, OpFsub, OpFmul, OpFdiv, OpFrem:
		e.floatOp(op)
	case OpDadd, OpDsub, OpDmul, OpDdiv, OpDrem:
		e.doubleOp(op)
	case OpIneg:
		frame.Push(IntValue(-e.popInt()))
	case OpLneg:
		frame.PushLong(-frame.PopLong())
	case OpFneg:
		frame.Push(FloatValue(-e.popFloat()))
	case OpDneg:
		frame.PushDouble(-frame.PopDouble())
	case OpIinc:
		err = e.iinc(int(s.ReadU8()), int32(s.ReadI8()))

	// --- Conversions ---
	case OpI2l, OpI2f, OpI2d, OpL2i, OpL2f, OpL2d, OpF2i, OpF2l, OpF2d,
		OpD2i, OpD2l, OpD2f, OpI2b, OpI2c, OpI2s:
		e.convert(op)

	// --- Comparisons ---
	case OpLcmp:
		b := frame.PopLong()
		a := frame.PopLong()
		frame.Push(IntValue(compare(a, b)))
	case OpFcmpl, OpFcmpg:
		b := e.popFloat()
		a := e.popFloat()
		frame.Push(IntValue(compareFloat(float64(a), float64(b), op == OpFcmpg)))
	case OpDcmpl, OpDcmpg:
		b := frame.PopDouble()
		a := frame.PopDouble()
		frame.Push(IntValue(compareFloat(a, b, op == OpDcmpg)))

	// --- Branches ---
	case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle:
		offset := int(s.ReadI16())
		if intCond(op-OpIfeq, e.popInt(), 0) {
			e.jump(offset)
		}
	case OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple:
		offset := int(s.ReadI16())
		b := e.popInt()
		a := e.popInt()
		if intCond(op-OpIfIcmpeq, a, b) {
			e.jump(offset)
		}
	case OpIfAcmpeq, OpIfAcmpne:
		offset := int(s.ReadI16())
		b := e.popRef()
		a := e.popRef()
		if a.Same(b) == (op == OpIfAcmpeq) {
			e.jump(offset)
		}
	case OpIfnull, OpIfnonnull:
		offset := int(s.ReadI16())
		v := e.popRef()
		if v.IsNull() == (op == OpIfnull) {
			e.jump(offset)
		}
	case OpGoto:
		e.jump(int(s.ReadI16()))
	case OpGotoW:
		e.jump(int(s.ReadI32()))
	case OpJsr:
		offset := int(s.ReadI16())
		frame.Push(returnAddressValue(s.Pos()))
		e.jump(offset)
	case OpJsrW:
		offset := int(s.ReadI32())
		frame.Push(returnAddressValue(s.Pos()))
		e.jump(offset)
	case OpRet:
		err = e.ret(int(s.ReadU8()))
	case OpTableswitch:
		err = e.tableswitch()
	case OpLookupswitch:
		e.lookupswitch()

	// --- Returns ---
	case OpIreturn:
		v := frame.Pop()
		if _, ok := v.EffectiveInt(); !ok {
			return Value{}, false, fmt.Errorf("ireturn: expected int, got %s", v.Kind())
		}
		return v, true, nil
	case OpLreturn:
		return LongValue(frame.PopLong()), true, nil
	case OpFreturn:
		return FloatValue(e.popFloat()), true, nil
	case OpDreturn:
		return DoubleValue(frame.PopDouble()), true, nil
	case OpAreturn:
		v := e.popRef()
		if _, ok := v.Placeholder(); ok {
			return Value{}, false, fmt.Errorf("areturn: returning an unconstructed %s", v)
		}
		return v, true, nil
	case OpReturn:
		return Value{}, true, nil

	// --- Fields ---
	case OpGetstatic:
		err = e.getstatic(s.ReadU16())
	case OpPutstatic:
		err = e.putstatic(s.ReadU16())
	case OpGetfield:
		err = e.getfield(s.ReadU16())
	case OpPutfield:
		err = e.putfield(s.ReadU16())

	// --- Invocation ---
	case OpInvokevirtual, OpInvokespecial, OpInvokestatic:
		err = e.invoke(op, s.ReadU16())
	case OpInvokeinterface:
		index := s.ReadU16()
		s.ReadU8() // count
		s.ReadU8() // 0
		err = e.invoke(op, index)
	case OpInvokedynamic:
		index := s.ReadU16()
		if s.ReadU16() != 0 {
			return Value{}, false, fmt.Errorf("invokedynamic: nonzero reserved bytes")
		}
		err = e.invokeDynamic(index)

	// --- Objects ---
	case OpNew:
		err = e.newObject(s.ReadU16())
	case OpNewarray:
		err = e.newArray(ElemKind(s.ReadU8()))
	case OpAnewarray:
		err = e.anewArray(s.ReadU16())
	case OpMultianewarray:
		index := s.ReadU16()
		err = e.multiANewArray(index, int(s.ReadU8()))
	case OpArraylength:
		var a *Array
		if a, err = e.array(e.popRef()); err == nil {
			frame.Push(IntValue(int32(a.Len())))
		}
	case OpAthrow:
		err = e.athrow()
	case OpCheckcast:
		err = e.checkcast(s.ReadU16())
	case OpInstanceof:
		err = e.instanceOf(s.ReadU16())
	case OpMonitorenter:
		err = e.monitorEnter()
	case OpMonitorexit:
		err = e.monitorExit()

	case OpWide:
		err = e.wide()

	default:
		if op.Reserved() {
			return Value{}, false, fmt.Errorf("%w %s", ErrUnsupportedOpcode, op)
		}
		return Value{}, false, fmt.Errorf("%w 0x%02X", ErrInvalidOpcode, byte(op))
	}

	return Value{}, false, err
}

func (e *Executor) ldc(index uint16, wide bool) error {
	c, err := e.resolver.Resolve(index)
	if err != nil {
		return err
	}
	v, err := HostValue(c)
	if err != nil {
		return err
	}
	if v.IsWide() != wide {
		return fmt.Errorf("constant #%d (%s) cannot be loaded by %s", index, v.Kind(), e.op)
	}
	e.frame.PushValue(v)
	return nil
}

// load pushes one slot, or two for long and double.
func (e *Executor) load(index, slots int) error {
	for i := 0; i < slots; i++ {
		v, err := e.frame.GetLocal(index + i)
		if err != nil {
			return err
		}
		e.frame.Push(v)
	}
	return nil
}

func (e *Executor) store(index, slots int) {
	if slots == 2 {
		hi := e.frame.Pop()
		lo := e.frame.Pop()
		e.frame.SetLocal(index, lo)
		e.frame.SetLocal(index+1, hi)
		return
	}
	e.frame.SetLocal(index, e.frame.Pop())
}

func (e *Executor) iinc(index int, delta int32) error {
	v, err := e.frame.GetLocal(index)
	if err != nil {
		return err
	}
	x, ok := v.EffectiveInt()
	if !ok {
		return fmt.Errorf("iinc: local %d holds %s", index, v.Kind())
	}
	e.frame.SetLocal(index, IntValue(x+delta))
	return nil
}

func (e *Executor) ret(index int) error {
	v, err := e.frame.GetLocal(index)
	if err != nil {
		return err
	}
	if v.Kind() != KindReturnAddress {
		return fmt.Errorf("ret: local %d holds %s", index, v.Kind())
	}
	e.stream.Seek(int(v.bits))
	return nil
}

func (e *Executor) tableswitch() error {
	s := e.stream
	s.Align4()
	def := s.ReadI32()
	low := s.ReadI32()
	high := s.ReadI32()
	if high < low {
		return fmt.Errorf("tableswitch: high %d < low %d", high, low)
	}
	index := e.popInt()
	if index < low || index > high {
		e.jump(int(def))
		return nil
	}
	s.Seek(s.Pos() + (int(index)-int(low))*4)
	e.jump(int(s.ReadI32()))
	return nil
}

func (e *Executor) lookupswitch() {
	s := e.stream
	s.Align4()
	def := s.ReadI32()
	npairs := s.ReadI32()
	key := e.popInt()
	for i := int32(0); i < npairs; i++ {
		match := s.ReadI32()
		offset := s.ReadI32()
		if key == match {
			e.jump(int(offset))
			return
		}
	}
	e.jump(int(def))
}

func (e *Executor) wide() error {
	s := e.stream
	op := Opcode(s.ReadU8())
	index := int(s.ReadU16())
	switch op {
	case OpIload, OpFload, OpAload:
		return e.load(index, 1)
	case OpLload, OpDload:
		return e.load(index, 2)
	case OpIstore, OpFstore, OpAstore:
		e.store(index, 1)
	case OpLstore, OpDstore:
		e.store(index, 2)
	case OpIinc:
		return e.iinc(index, int32(s.ReadI16()))
	case OpRet:
		return e.ret(index)
	default:
		return fmt.Errorf("wide: cannot modify %s", op)
	}
	return nil
}

func (e *Executor) monitorEnter() error {
	v := e.popRef()
	if v.IsNull() {
		return throw("java/lang/NullPointerException", "monitorenter on null")
	}
	e.engine.monitors.Enter(v.Ref())
	return nil
}

func (e *Executor) monitorExit() error {
	v := e.popRef()
	if v.IsNull() {
		return throw("java/lang/NullPointerException", "monitorexit on null")
	}
	if err := e.engine.monitors.Exit(v.Ref()); err != nil {
		return throw("java/lang/IllegalMonitorStateException", "%v", err)
	}
	return nil
}

func compare[T int64 | float64](a, b T) int32 {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}

// compareFloat implements fcmp<op> and dcmp<op>; NaN yields 1 for the g
// variants and -1 for the l variants.
func compareFloat(a, b float64, nanIsGreater bool) int32 {
	if math.IsNaN(a) || math.IsNaN(b) {
		if nanIsGreater {
			return 1
		}
		return -1
	}
	return compare(a, b)
}

// intCond evaluates the condition at offset c from ifeq / if_icmpeq:
// eq, ne, lt, ge, gt, le.
func intCond(c Opcode, a, b int32) bool {
	switch c {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a >= b
	case 4:
		return a > b
	default:
		return a <= b
	}
}
