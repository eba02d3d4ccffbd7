package pmm

import (
	"unsafe"

	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/mm"
	"github.com/sebastos1/osdev/multiboot"
)

var (
	errBootAllocOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}

	// visitMemRegionsFn is overridden by tests.
	visitMemRegionsFn = multiboot.VisitMemRegions
)

// BumpAllocator implements a rudimentary physical memory allocator that hands
// out frames in strictly increasing order and never reuses them.
//
// The allocator uses the memory region information provided by the
// bootloader to locate available memory. It always works on the available
// region with the lowest start address that still contains unallocated frames
// and skips over the frames occupied by the kernel image and the multiboot
// info data.
//
// Allocated frames cannot be freed.
type BumpAllocator struct {
	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// nextFrame is the frame that will be examined by the next call to
	// AllocFrame.
	nextFrame mm.Frame

	// The inclusive frame range of the region that is currently being
	// used for allocations.
	regionStart, regionEnd mm.Frame
	haveRegion             bool

	// Keep track of kernel and multiboot info locations so we exclude
	// these ranges.
	kernelStartAddr, kernelEndAddr   uintptr
	kernelStartFrame, kernelEndFrame mm.Frame
	infoStartFrame, infoEndFrame     mm.Frame
}

// Init sets up the allocator state. The kernel image occupies the physical
// range [kernelStart, kernelEnd) and the multiboot info data the range
// [infoStart, infoEnd); frames overlapping either range are never returned.
func (alloc *BumpAllocator) Init(kernelStart, kernelEnd, infoStart, infoEnd uintptr) {
	alloc.allocCount = 0
	alloc.nextFrame = 0
	alloc.kernelStartAddr, alloc.kernelEndAddr = kernelStart, kernelEnd
	alloc.kernelStartFrame, alloc.kernelEndFrame = frameRange(kernelStart, kernelEnd)
	alloc.infoStartFrame, alloc.infoEndFrame = frameRange(infoStart, infoEnd)

	alloc.chooseNextRegion()
}

// frameRange returns the inclusive frame range that overlaps the physical
// address range [start, end). The start address is rounded down and the end
// address is rounded up to the nearest page. For empty ranges the returned
// first frame is greater than the last one.
func frameRange(start, end uintptr) (mm.Frame, mm.Frame) {
	if end <= start {
		return mm.Frame(1), mm.Frame(0)
	}

	return mm.FrameFromAddress(start), mm.FrameFromAddress(mm.PageAlignUp(end)) - 1
}

// chooseNextRegion selects the available region with the lowest start
// address whose last frame is not below nextFrame. If nextFrame points before
// the selected region, it is advanced to the region's first frame.
func (alloc *BumpAllocator) chooseNextRegion() {
	alloc.haveRegion = false

	visitor := func(region *multiboot.MemoryMapEntry) bool {
		// Ignore reserved regions and regions smaller than a single page
		if region.Type != multiboot.MemAvailable || region.Length < uint64(mm.PageSize) {
			return true
		}

		// Reported addresses may not be page-aligned; round up to get
		// the start frame and round down to get the end frame
		pageSizeMinus1 := uint64(mm.PageSize - 1)
		regionStartFrame := mm.Frame(((region.PhysAddress + pageSizeMinus1) & ^pageSizeMinus1) >> mm.PageShift)
		regionEndFrame := mm.Frame(((region.PhysAddress+region.Length) & ^pageSizeMinus1)>>mm.PageShift) - 1

		if regionEndFrame < regionStartFrame || regionEndFrame < alloc.nextFrame {
			return true
		}

		if !alloc.haveRegion || regionStartFrame < alloc.regionStart {
			alloc.regionStart, alloc.regionEnd = regionStartFrame, regionEndFrame
			alloc.haveRegion = true
		}
		return true
	}

	visitMemRegionsFn(
		*(*multiboot.MemRegionVisitor)(noEscape(unsafe.Pointer(&visitor))),
	)

	if alloc.haveRegion && alloc.nextFrame < alloc.regionStart {
		alloc.nextFrame = alloc.regionStart
	}
}

// AllocFrame reserves the next available free frame. Each returned frame is
// strictly greater than the frames returned by earlier calls.
//
// AllocFrame returns an error if no more memory can be allocated.
func (alloc *BumpAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	for alloc.haveRegion {
		frame := alloc.nextFrame

		switch {
		case frame > alloc.regionEnd:
			alloc.chooseNextRegion()
		case frame >= alloc.kernelStartFrame && frame <= alloc.kernelEndFrame:
			alloc.nextFrame = alloc.kernelEndFrame + 1
		case frame >= alloc.infoStartFrame && frame <= alloc.infoEndFrame:
			alloc.nextFrame = alloc.infoEndFrame + 1
		default:
			alloc.nextFrame++
			alloc.allocCount++
			return frame, nil
		}
	}

	return mm.InvalidFrame, errBootAllocOutOfMemory
}

// AllocCount returns the number of frames handed out so far.
func (alloc *BumpAllocator) AllocCount() uint64 {
	return alloc.allocCount
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
