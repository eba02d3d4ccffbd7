// Package gdt builds and loads the global descriptor table (GDT) and the task
// state segment (TSS). In long mode segmentation is mostly disabled but the
// CPU still needs a code segment descriptor to run in and a TSS to find the
// interrupt stack table (IST).
package gdt

// PrivilegeLevel describes a CPU protection ring.
type PrivilegeLevel uint16

const (
	// Ring0 is the most privileged level; the kernel runs here.
	Ring0 PrivilegeLevel = 0

	// Ring3 is the least privileged level.
	Ring3 PrivilegeLevel = 3
)

// Selector is a segment selector as loaded into CS or passed to LTR. Bits 0-1
// hold the requested privilege level, bit 2 selects the GDT (0) or LDT (1)
// and bits 3-15 hold the descriptor index.
type Selector uint16

// NewSelector returns a GDT selector for the descriptor at index.
func NewSelector(index uint16, rpl PrivilegeLevel) Selector {
	return Selector(index<<3 | uint16(rpl&3))
}

// Index returns the descriptor table index encoded in the selector.
func (s Selector) Index() uint16 {
	return uint16(s) >> 3
}

// RPL returns the requested privilege level encoded in the selector.
func (s Selector) RPL() PrivilegeLevel {
	return PrivilegeLevel(s & 3)
}
