package vmm

import (
	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/mm"
)

var (
	// ErrInvalidStackSize is returned when requesting a stack with zero pages.
	ErrInvalidStackSize = &kernel.Error{Module: "vmm", Message: "stack size must be at least one page"}

	// ErrStackRangeExhausted is returned when the stack allocator range
	// cannot fit the requested stack and its guard page.
	ErrStackRangeExhausted = &kernel.Error{Module: "vmm", Message: "stack allocator range exhausted"}
)

// Stack describes a mapped stack. Stacks grow down from Top towards Bottom;
// the page right below Bottom is left unmapped so an overflow faults instead
// of silently corrupting memory.
type Stack struct {
	// Top is the address right after the highest stack byte.
	Top uintptr

	// Bottom is the address of the lowest stack byte.
	Bottom uintptr
}

// StackAllocator carves stacks out of a virtual page range.
type StackAllocator struct {
	// The range [start, end) of pages that have not been handed out yet.
	start, end mm.Page
}

// NewStackAllocator returns a StackAllocator for the page range [start, end).
func NewStackAllocator(start, end mm.Page) StackAllocator {
	return StackAllocator{start: start, end: end}
}

// AllocStack reserves a guard page followed by pages RW pages from the
// allocator range and maps the latter using allocFn for the backing frames.
// If the request cannot be satisfied an error is returned, any pages mapped
// so far are unmapped again and the allocator range is left unchanged. The
// frames backing those pages are not reclaimed.
func (alloc *StackAllocator) AllocStack(active ActivePageTable, pages uintptr, allocFn mm.FrameAllocatorFn) (Stack, *kernel.Error) {
	if pages == 0 {
		return Stack{}, ErrInvalidStackSize
	}

	guardPage := alloc.start
	firstPage := guardPage + 1
	lastPage := firstPage + mm.Page(pages-1)
	if lastPage >= alloc.end || lastPage < firstPage {
		return Stack{}, ErrStackRangeExhausted
	}

	for page := firstPage; page <= lastPage; page++ {
		if err := active.Map(page, FlagRW|FlagNoExecute, allocFn); err != nil {
			for mapped := firstPage; mapped < page; mapped++ {
				active.Unmap(mapped)
			}
			return Stack{}, err
		}
	}

	alloc.start = lastPage + 1
	return Stack{
		Top:    (lastPage + 1).Address(),
		Bottom: firstPage.Address(),
	}, nil
}
