// Package cpu wraps the privileged amd64 instructions used by the kernel.
// Everything that touches a control register, a descriptor table register or
// an I/O port lives behind one of the functions below.
package cpu

const (
	// msrEFER is the extended feature enable register.
	msrEFER = uint32(0xc0000080)

	// eferNXE enables the no-execute page protection bit.
	eferNXE = uint64(1 << 11)

	// cr0WP forces supervisor writes to honour read-only pages.
	cr0WP = uint64(1 << 16)

	// rflagsIF is the interrupt enable flag.
	rflagsIF = uint64(1 << 9)
)

var (
	readMSRFn  = ReadMSR
	writeMSRFn = WriteMSR
	readCR0Fn  = ReadCR0
	writeCR0Fn = WriteCR0
	flagsFn    = Flags
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// InterruptsEnabled returns true if the interrupt flag is set in RFLAGS.
func InterruptsEnabled() bool {
	return flagsFn()&rflagsIF != 0
}

// Flags returns the contents of the RFLAGS register.
func Flags() uint64

// Halt disables interrupts and stops instruction execution. Halt never
// returns.
func Halt()

// WaitForInterrupt enables interrupts and halts the CPU until the next
// interrupt arrives.
func WaitForInterrupt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// FlushTLB flushes all non-global TLB entries by reloading CR3.
func FlushTLB()

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the value stored in the CR2 register.
func ReadCR2() uint64

// ReadCR0 returns the value stored in the CR0 register.
func ReadCR0() uint64

// WriteCR0 loads val into the CR0 register.
func WriteCR0(val uint64)

// ReadMSR returns the contents of the model specific register msr.
func ReadMSR(msr uint32) uint64

// WriteMSR stores val into the model specific register msr.
func WriteMSR(msr uint32, val uint64)

// CodeSegment returns the selector currently loaded in the CS register.
func CodeSegment() uint16

// EnableNXE sets the no-execute enable bit in the EFER register. Page table
// entries using FlagNoExecute cause a reserved bit fault unless NXE is set.
func EnableNXE() {
	writeMSRFn(msrEFER, readMSRFn(msrEFER)|eferNXE)
}

// EnableWriteProtect sets the write-protect bit in CR0 so that ring 0 code
// cannot write to pages that are mapped read-only.
func EnableWriteProtect() {
	writeCR0Fn(readCR0Fn() | cr0WP)
}

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8
