// Package mm defines the physical frame and virtual page types shared by the
// physical and virtual memory managers.
package mm

import (
	"math"

	"github.com/sebastos1/osdev/kernel"
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by frame allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns a pointer to the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns a Frame that corresponds to
// the given physical address. This function can handle
// both page-aligned and not aligned addresses. in the
// latter case, the input address will be rounded down
// to the frame that contains it.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(uintptr(PageSize - 1))) >> PageShift)
}

// FrameAllocatorFn is a function that can allocate physical frames. Code that
// needs frames (e.g. for new page tables) receives the allocator as an
// argument instead of reaching for a global one.
type FrameAllocatorFn func() (Frame, *kernel.Error)

// Page describes a virtual memory page index.
type Page uintptr

// Address returns a pointer to the virtual memory address pointed to by this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// TableIndex returns the index of the entry that maps this page in the page
// table at the given level. Levels are numbered from 4 (the root table) down
// to 1 (the table whose entries point to frames).
func (p Page) TableIndex(level int) uintptr {
	return (uintptr(p) >> (uintptr(level-1) * tableIndexBits)) & (EntriesPerTable - 1)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it.
//
// Since pages are numbered from the sign-extended address, callers should
// first make sure that virtAddr passes IsCanonical.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(uintptr(PageSize - 1))) >> PageShift)
}

// IsCanonical returns true if virtAddr lies outside the non-canonical hole of
// the 48-bit address space.
func IsCanonical(virtAddr uintptr) bool {
	return virtAddr < canonicalLowEnd || virtAddr >= canonicalHighStart
}
