package vmm

import (
	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/cpu"
	"github.com/sebastos1/osdev/kernel/gate"
	"github.com/sebastos1/osdev/kernel/kfmt"
)

// Page fault error code bits.
const (
	pfProtectionViolation = 1 << iota
	pfWrite
	pfUser
	pfReservedBit
	pfInstructionFetch
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	handleInterruptFn = gate.HandleInterrupt
	readCR2Fn         = cpu.ReadCR2

	errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "page/gpf fault"}
)

func installFaultHandlers() {
	handleInterruptFn(gate.PageFaultException, 0, pageFaultHandler)
	handleInterruptFn(gate.GPFException, 0, generalProtectionFaultHandler)
}

// pageFaultHandler is invoked when a page table entry is not present or when
// a RW, NX or privilege check fails. Pages are never faulted in on demand so
// all page faults are fatal.
func pageFaultHandler(regs *gate.Registers) {
	faultAddress := uintptr(readCR2Fn())

	kfmt.Printf("\nPage fault while accessing address: 0x%16x\nReason: ", faultAddress)
	switch {
	case regs.Info&pfReservedBit != 0:
		kfmt.Printf("page table has reserved bit set")
	case regs.Info&pfInstructionFetch != 0:
		kfmt.Printf("instruction fetch from non-executable page")
	case regs.Info&(pfProtectionViolation|pfWrite) == pfProtectionViolation|pfWrite:
		kfmt.Printf("page protection violation (write)")
	case regs.Info&pfProtectionViolation != 0:
		kfmt.Printf("page protection violation (read)")
	case regs.Info&pfWrite != 0:
		kfmt.Printf("write to non-present page")
	default:
		kfmt.Printf("read from non-present page")
	}

	if regs.Info&pfUser != 0 {
		kfmt.Printf(" in user-mode")
	}

	kfmt.Printf("\n\nRegisters:\n")
	regs.DumpTo(kfmt.GetOutputSink())

	panicFn(errUnrecoverableFault)
}

// generalProtectionFaultHandler is invoked for various reasons:
// - segment errors (privilege, type or limit violations)
// - executing privileged instructions outside ring-0
// - attempts to access reserved or unimplemented CPU registers
// - dereferencing a non-canonical address
func generalProtectionFaultHandler(regs *gate.Registers) {
	kfmt.Printf("\nGeneral protection fault (error code: 0x%x)\n", regs.Info)
	kfmt.Printf("Registers:\n")
	regs.DumpTo(kfmt.GetOutputSink())

	panicFn(errUnrecoverableFault)
}
