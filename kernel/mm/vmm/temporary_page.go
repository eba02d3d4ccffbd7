package vmm

import (
	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/mm"
)

var (
	errTinyAllocatorExhausted = &kernel.Error{Module: "vmm", Message: "temporary page allocator has no frames left"}
	errTemporaryPageInUse     = &kernel.Error{Module: "vmm", Message: "temporary page is already mapped"}
)

// tinyAllocator hands out a fixed set of frames that were reserved up front.
// Three frames are enough to create the P3, P2 and P1 tables needed for
// mapping a single page.
type tinyAllocator struct {
	frames [pageLevels - 1]mm.Frame
}

func newTinyAllocator(allocFn mm.FrameAllocatorFn) (tinyAllocator, *kernel.Error) {
	var (
		alloc tinyAllocator
		err   *kernel.Error
	)

	for i := range alloc.frames {
		if alloc.frames[i], err = allocFn(); err != nil {
			return alloc, err
		}
	}

	return alloc, nil
}

// allocFrame implements mm.FrameAllocatorFn.
func (alloc *tinyAllocator) allocFrame() (mm.Frame, *kernel.Error) {
	for i, frame := range alloc.frames {
		if frame.Valid() {
			alloc.frames[i] = mm.InvalidFrame
			return frame, nil
		}
	}

	return mm.InvalidFrame, errTinyAllocatorExhausted
}

// TemporaryPage is a virtual page that is used to access arbitrary physical
// frames, such as the tables of an inactive page table hierarchy. Any page
// tables required for mapping it come from a private tiny allocator.
type TemporaryPage struct {
	page      mm.Page
	allocator tinyAllocator
}

// NewTemporaryPage creates a TemporaryPage for page and reserves the frames
// for its tiny allocator using allocFn.
func NewTemporaryPage(page mm.Page, allocFn mm.FrameAllocatorFn) (TemporaryPage, *kernel.Error) {
	alloc, err := newTinyAllocator(allocFn)
	if err != nil {
		return TemporaryPage{}, err
	}

	return TemporaryPage{page: page, allocator: alloc}, nil
}

// Map maps frame to the temporary page in the active page table and returns
// its virtual address. The temporary page must not be mapped already.
func (tp *TemporaryPage) Map(frame mm.Frame, active ActivePageTable) (uintptr, *kernel.Error) {
	if _, mapped := active.TranslatePage(tp.page); mapped {
		panicFn(errTemporaryPageInUse)
		return 0, errTemporaryPageInUse
	}

	if err := active.MapTo(tp.page, frame, FlagRW, tp.allocator.allocFrame); err != nil {
		return 0, err
	}

	return tp.page.Address(), nil
}

// Unmap removes the temporary page mapping from the active page table.
func (tp *TemporaryPage) Unmap(active ActivePageTable) *kernel.Error {
	return active.Unmap(tp.page)
}
