package vm

import "math"

func divideByZero() *Fault {
	return NewFault("java/lang/ArithmeticException", "/ by zero")
}

func (e *Executor) intOp(op Opcode) error {
	b := e.popInt()
	a := e.popInt()
	var r int32
	switch op {
	case OpIadd:
		r = a + b
	case OpIsub:
		r = a - b
	case OpImul:
		r = a * b
	case OpIdiv:
		if b == 0 {
			return divideByZero()
		}
		// MinInt32 / -1 wraps to MinInt32.
		r = a / b
	case OpIrem:
		if b == 0 {
			return divideByZero()
		}
		r = a % b
	case OpIand:
		r = a & b
	case OpIor:
		r = a | b
	case OpIxor:
		r = a ^ b
	case OpIshl:
		r = a << (uint32(b) & 0x1f)
	case OpIshr:
		r = a >> (uint32(b) & 0x1f)
	case OpIushr:
		r = int32(uint32(a) >> (uint32(b) & 0x1f))
	}
	e.frame.Push(IntValue(r))
	return nil
}

func (e *Executor) longOp(op Opcode) error {
	b := e.frame.PopLong()
	a := e.frame.PopLong()
	var r int64
	switch op {
	case OpLadd:
		r = a + b
	case OpLsub:
		r = a - b
	case OpLmul:
		r = a * b
	case OpLdiv:
		if b == 0 {
			return divideByZero()
		}
		r = a / b
	case OpLrem:
		if b == 0 {
			return divideByZero()
		}
		r = a % b
	case OpLand:
		r = a & b
	case OpLor:
		r = a | b
	case OpLxor:
		r = a ^ b
	}
	e.frame.PushLong(r)
	return nil
}

// longShift pops an int shift distance and a long.
func (e *Executor) longShift(op Opcode) {
	n := uint32(e.popInt()) & 0x3f
	a := e.frame.PopLong()
	switch op {
	case OpLshl:
		a <<= n
	case OpLshr:
		a >>= n
	case OpLushr:
		a = int64(uint64(a) >> n)
	}
	e.frame.PushLong(a)
}

func (e *Executor) floatOp(op Opcode) {
	b := e.popFloat()
	a := e.popFloat()
	var r float32
	switch op {
	case OpFadd:
		r = a + b
	case OpFsub:
		r = a - b
	case OpFmul:
		r = a * b
	case OpFdiv:
		r = a / b
	case OpFrem:
		r = float32(math.Mod(float64(a), float64(b)))
	}
	e.frame.Push(FloatValue(r))
}

func (e *Executor) doubleOp(op Opcode) {
	b := e.frame.PopDouble()
	a := e.frame.PopDouble()
	var r float64
	switch op {
	case OpDadd:
		r = a + b
	case OpDsub:
		r = a - b
	case OpDmul:
		r = a * b
	case OpDdiv:
		r = a / b
	case OpDrem:
		r = math.Mod(a, b)
	}
	e.frame.PushDouble(r)
}

func (e *Executor) convert(op Opcode) {
	f := e.frame
	switch op {
	case OpI2l:
		f.PushLong(int64(e.popInt()))
	case OpI2f:
		f.Push(FloatValue(float32(e.popInt())))
	case OpI2d:
		f.PushDouble(float64(e.popInt()))
	case OpL2i:
		f.Push(IntValue(int32(f.PopLong())))
	case OpL2f:
		f.Push(FloatValue(float32(f.PopLong())))
	case OpL2d:
		f.PushDouble(float64(f.PopLong()))
	case OpF2i:
		f.Push(IntValue(toInt32(float64(e.popFloat()))))
	case OpF2l:
		f.PushLong(toInt64(float64(e.popFloat())))
	case OpF2d:
		f.PushDouble(float64(e.popFloat()))
	case OpD2i:
		f.Push(IntValue(toInt32(f.PopDouble())))
	case OpD2l:
		f.PushLong(toInt64(f.PopDouble()))
	case OpD2f:
		f.Push(FloatValue(float32(f.PopDouble())))
	case OpI2b:
		f.Push(IntValue(int32(int8(e.popInt()))))
	case OpI2c:
		f.Push(IntValue(int32(uint16(e.popInt()))))
	case OpI2s:
		f.Push(IntValue(int32(int16(e.popInt()))))
	}
}

// toInt32 converts with saturation; NaN becomes 0.
func toInt32(x float64) int32 {
	switch {
	case math.IsNaN(x):
		return 0
	case x >= math.MaxInt32:
		return math.MaxInt32
	case x <= math.MinInt32:
		return math.MinInt32
	}
	return int32(x)
}

func toInt64(x float64) int64 {
	switch {
	case math.IsNaN(x):
		return 0
	case x >= math.MaxInt64:
		return math.MaxInt64
	case x <= math.MinInt64:
		return math.MinInt64
	}
	return int64(x)
}
