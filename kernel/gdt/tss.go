package gdt

import (
	"encoding/binary"

	"github.com/sebastos1/osdev/kernel"
)

const (
	tssSize = 104

	// Field offsets within the packed 64-bit TSS. RSP0-2 start at
	// offset 4 and are left zeroed as the kernel never leaves ring 0.
	tssISTOffset       = 36
	tssIOMapBaseOffset = 102

	// numIST is the number of interrupt stack table slots.
	numIST = 7
)

var errInvalidISTIndex = &kernel.Error{Module: "gdt", Message: "interrupt stack table index out of range"}

// TaskStateSegment is the 64-bit TSS. Hardware task switching does not exist
// in long mode; the TSS only provides the privilege-level stacks (RSP0-2) and
// the interrupt stack table. The structure is packed so its 64-bit fields are
// not naturally aligned; it is therefore kept as a byte array.
type TaskStateSegment [tssSize]byte

// init clears the TSS and points the I/O permission bitmap past the end of
// the segment so every port access from ring 3 faults.
func (tss *TaskStateSegment) init() {
	*tss = TaskStateSegment{}
	binary.LittleEndian.PutUint16(tss[tssIOMapBaseOffset:], tssSize)
}

// SetIST stores stackTop in the interrupt stack table slot index (0-6). The
// CPU refers to the same slot as IST index+1 in interrupt gates.
func (tss *TaskStateSegment) SetIST(index uint8, stackTop uintptr) *kernel.Error {
	if index >= numIST {
		panicFn(errInvalidISTIndex)
		return errInvalidISTIndex
	}

	binary.LittleEndian.PutUint64(tss[tssISTOffset+8*int(index):], uint64(stackTop))
	return nil
}

// IST returns the stack top stored in interrupt stack table slot index or 0
// if index is out of range.
func (tss *TaskStateSegment) IST(index uint8) uintptr {
	if index >= numIST {
		return 0
	}

	return uintptr(binary.LittleEndian.Uint64(tss[tssISTOffset+8*int(index):]))
}
