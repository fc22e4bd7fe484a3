package vm

import "fmt"

// streamError is raised by out-of-range reads; the run loop recovers it.
type streamError struct {
	pos, want, size int
}

func (e streamError) Error() string {
	return fmt.Sprintf("instruction stream: read of %d bytes at %d past end %d", e.want, e.pos, e.size)
}

// Stream is a cursor over one method's bytecode.
type Stream struct {
	code []byte
	pos  int
}

func NewStream(code []byte) *Stream {
	return &Stream{code: code}
}

func (s *Stream) Pos() int  { return s.pos }
func (s *Stream) Len() int  { return len(s.code) }
func (s *Stream) EOF() bool { return s.pos >= len(s.code) }

// Seek moves the cursor to an absolute offset.
func (s *Stream) Seek(pos int) {
	if pos < 0 || pos >= len(s.code) {
		panic(streamError{pos: pos, want: 0, size: len(s.code)})
	}
	s.pos = pos
}

func (s *Stream) need(n int) {
	if s.pos+n > len(s.code) {
		panic(streamError{pos: s.pos, want: n, size: len(s.code)})
	}
}

func (s *Stream) ReadU8() uint8 {
	s.need(1)
	v := s.code[s.pos]
	s.pos++
	return v
}

func (s *Stream) ReadI8() int8 { return int8(s.ReadU8()) }

func (s *Stream) ReadU16() uint16 {
	s.need(2)
	v := uint16(s.code[s.pos])<<8 | uint16(s.code[s.pos+1])
	s.pos += 2
	return v
}

func (s *Stream) ReadI16() int16 { return int16(s.ReadU16()) }

func (s *Stream) ReadI32() int32 {
	s.need(4)
	v := uint32(s.code[s.pos])<<24 | uint32(s.code[s.pos+1])<<16 | uint32(s.code[s.pos+2])<<8 | uint32(s.code[s.pos+3])
	s.pos += 4
	return int32(v)
}

// Align4 skips switch padding. Alignment is relative to the start of the code.
func (s *Stream) Align4() {
	for s.pos%4 != 0 {
		s.ReadU8()
	}
}
