package gate

import (
	"encoding/binary"
	"io"
	"unsafe"

	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/cpu"
	"github.com/sebastos1/osdev/kernel/kfmt"
)

// Registers contains a snapshot of all register values when an exception or
// interrupt occurs. The layout matches the stack frame assembled by the gate
// entry stubs.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	// Vector is the interrupt number that caused the entry.
	Vector uint64

	// Info contains the error code pushed by the CPU for exceptions that
	// provide one and 0 for everything else.
	Info uint64

	// The return frame used by IRETQ
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", r.R14, r.R15)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "VEC = %16x ERR = %16x\n", r.Vector, r.Info)
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", r.RIP, r.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", r.RSP, r.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", r.RFlags)
}

// InterruptNumber describes an x86 interrupt/exception/trap slot.
type InterruptNumber uint8

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = InterruptNumber(0)

	// Debug occurs on single-step traps and hardware breakpoints.
	Debug = InterruptNumber(1)

	// NMI (non-maskable-interrupt) is a hardware interrupt that indicates
	// issues with RAM or unrecoverable hardware problems. It may also be
	// raised by the CPU when a watchdog timer is enabled.
	NMI = InterruptNumber(2)

	// Breakpoint occurs when the CPU executes an INT3 instruction.
	Breakpoint = InterruptNumber(3)

	// Overflow occurs when an overflow occurs (e.g result of division
	// cannot fit into the registers used).
	Overflow = InterruptNumber(4)

	// BoundRangeExceeded occurs when the BOUND instruction is invoked with
	// an index out of range.
	BoundRangeExceeded = InterruptNumber(5)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = InterruptNumber(6)

	// DeviceNotAvailable occurs when the CPU attempts to execute an
	// FPU/MMX/SSE instruction while no FPU is available or while
	// FPU/MMX/SSE support has been disabled by manipulating the CR0
	// register.
	DeviceNotAvailable = InterruptNumber(7)

	// DoubleFault occurs when an unhandled exception occurs or when an
	// exception occurs within a running exception handler.
	DoubleFault = InterruptNumber(8)

	// InvalidTSS occurs when the TSS points to an invalid task segment
	// selector.
	InvalidTSS = InterruptNumber(10)

	// SegmentNotPresent occurs when the CPU attempts to invoke a present
	// gate with an invalid stack segment selector.
	SegmentNotPresent = InterruptNumber(11)

	// StackSegmentFault occurs when attempting to push/pop from a
	// non-canonical stack address or when the stack base/limit (set in
	// GDT) checks fail.
	StackSegmentFault = InterruptNumber(12)

	// GPFException occurs when a general protection fault occurs.
	GPFException = InterruptNumber(13)

	// PageFaultException occurs when a page directory table (PDT) or one
	// of its entries is not present or when a privilege and/or RW
	// protection check fails.
	PageFaultException = InterruptNumber(14)

	// FloatingPointException occurs while invoking an FP instruction while:
	//  - CR0.NE = 1 OR
	//  - an unmasked FP exception is pending
	FloatingPointException = InterruptNumber(16)

	// AlignmentCheck occurs when alignment checks are enabled and an
	// unaligned memory access is performed.
	AlignmentCheck = InterruptNumber(17)

	// MachineCheck occurs when the CPU detects internal errors such as
	// memory-, bus- or cache-related errors.
	MachineCheck = InterruptNumber(18)

	// SIMDFloatingPointException occurs when an unmasked SSE exception
	// occurs while CR4.OSXMMEXCPT is set to 1. If the OSXMMEXCPT bit is
	// not set, SIMD FP exceptions cause InvalidOpcode exceptions instead.
	SIMDFloatingPointException = InterruptNumber(19)

	// IRQBase is the first vector used by the remapped 8259 PIC pair. The
	// 16 PIC lines occupy vectors IRQBase to IRQBase+15.
	IRQBase = InterruptNumber(32)
)

// hasErrorCode returns true if the CPU pushes an error code to the stack
// before invoking the handler for this vector.
func (n InterruptNumber) hasErrorCode() bool {
	switch n {
	case DoubleFault, InvalidTSS, SegmentNotPresent, StackSegmentFault,
		GPFException, PageFaultException, AlignmentCheck, 21, 29, 30:
		return true
	default:
		return false
	}
}

const (
	// numGates is the number of entries in the IDT.
	numGates = 256

	// maxIST is the largest interrupt stack table index a gate may refer
	// to. Index 0 means that the CPU keeps using the current stack.
	maxIST = 7

	// gateTypeInterrupt marks a present, ring-0, 64-bit interrupt gate.
	// Interrupt gates clear RFLAGS.IF on entry.
	gateTypeInterrupt = 0x8e
)

// idtEntry is the 16-byte long mode gate descriptor.
type idtEntry struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	flags      uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

// offset returns the handler address encoded in the entry.
func (e *idtEntry) offset() uintptr {
	return uintptr(e.offsetLow) | uintptr(e.offsetMid)<<16 | uintptr(e.offsetHigh)<<32
}

var (
	idt      [numGates]idtEntry
	handlers [numGates]func(*Registers)

	// idtDescriptor holds the 16-bit limit and 64-bit base address that
	// LIDT expects.
	idtDescriptor [10]byte

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	codeSegmentFn = cpu.CodeSegment
	lidtFn        = lidt
	panicFn       = kfmt.Panic

	errInvalidISTIndex    = &kernel.Error{Module: "gate", Message: "interrupt stack table index out of range"}
	errUnhandledInterrupt = &kernel.Error{Module: "gate", Message: "unhandled interrupt"}
)

// Init loads the IDT into the CPU. Gates that have not been registered via
// HandleInterrupt are non-present; the CPU raises a GPF if one of them fires.
// Init must be called after the GDT has been loaded.
func Init() {
	binary.LittleEndian.PutUint16(idtDescriptor[0:], uint16(unsafe.Sizeof(idt)-1))
	binary.LittleEndian.PutUint64(idtDescriptor[2:], uint64(uintptr(unsafe.Pointer(&idt[0]))))
	lidtFn(uintptr(unsafe.Pointer(&idtDescriptor[0])))
}

// HandleInterrupt ensures that the provided handler will be invoked when a
// particular interrupt number occurs. The value of the ist argument selects
// the interrupt stack table slot that the CPU switches to before invoking the
// handler (if 0 then IST is not used).
//
// The installed gate captures the code segment selector that is active when
// HandleInterrupt is called.
func HandleInterrupt(intNumber InterruptNumber, ist uint8, handler func(*Registers)) {
	if ist > maxIST {
		panicFn(errInvalidISTIndex)
		return
	}

	entryAddr := gateEntryAddr(uint8(intNumber))
	idt[intNumber] = idtEntry{
		offsetLow:  uint16(entryAddr),
		selector:   codeSegmentFn(),
		ist:        ist,
		flags:      gateTypeInterrupt,
		offsetMid:  uint16(entryAddr >> 16),
		offsetHigh: uint32(entryAddr >> 32),
	}
	handlers[intNumber] = handler
}

// dispatchInterrupt is invoked by the interrupt gate entrypoints to route
// an incoming interrupt to the registered handler.
func dispatchInterrupt(regs *Registers) {
	if handler := handlers[uint8(regs.Vector)]; handler != nil {
		handler(regs)
		return
	}

	kfmt.Printf("\nunhandled interrupt %d (error code: 0x%x)\n", regs.Vector, regs.Info)
	kfmt.Printf("Registers:\n")
	regs.DumpTo(kfmt.GetOutputSink())
	panicFn(errUnhandledInterrupt)
}

// lidt loads the IDT described by the pseudo-descriptor at descriptorAddr.
func lidt(descriptorAddr uintptr)

// gateEntryAddr returns the address of the generated entry stub for vector.
func gateEntryAddr(vector uint8) uintptr

// gateCommon is the shared interrupt entry routine implemented in assembly.
func gateCommon()
