// Package pmm provides the physical frame allocator used by the kernel.
package pmm

import (
	"unsafe"

	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/kfmt"
	"github.com/sebastos1/osdev/kernel/mm"
	"github.com/sebastos1/osdev/multiboot"
)

var (
	// bootMemAllocator is the frame allocator used by the kernel. It is
	// handed to the virtual memory code as a mm.FrameAllocatorFn.
	bootMemAllocator BumpAllocator

	// infoRangeFn is overridden by tests.
	infoRangeFn = multiboot.InfoRange

	memMapWriter = kfmt.PrefixWriter{Prefix: []byte("[boot_mem_alloc] ")}
)

// Init sets up the kernel physical memory allocation sub-system. The kernel
// image is expected to occupy the physical range [kernelStart, kernelEnd).
// Unless quiet is set, Init also prints the system memory map.
func Init(kernelStart, kernelEnd uintptr, quiet bool) *kernel.Error {
	infoStart, infoEnd := infoRangeFn()
	bootMemAllocator.Init(kernelStart, kernelEnd, infoStart, infoEnd)

	if !quiet {
		bootMemAllocator.printMemoryMap()
	}

	if !bootMemAllocator.haveRegion {
		return errBootAllocOutOfMemory
	}

	return nil
}

// AllocFrame reserves a physical frame using the kernel frame allocator.
func AllocFrame() (mm.Frame, *kernel.Error) {
	return bootMemAllocator.AllocFrame()
}

// printMemoryMap scans the memory region information provided by the
// bootloader and prints out the system's memory map.
func (alloc *BumpAllocator) printMemoryMap() {
	var (
		totalFree mm.Size
		w         = &memMapWriter
	)

	kfmt.Fprintf(w, "system memory map:\n")
	visitor := func(region *multiboot.MemoryMapEntry) bool {
		kfmt.Fprintf(w, "  [0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())

		if region.Type == multiboot.MemAvailable {
			totalFree += mm.Size(region.Length)
		}
		return true
	}
	visitMemRegionsFn(
		*(*multiboot.MemRegionVisitor)(noEscape(unsafe.Pointer(&visitor))),
	)

	kfmt.Fprintf(w, "available memory: %dKb\n", uint64(totalFree/mm.Kb))
	kfmt.Fprintf(w, "kernel loaded at 0x%x - 0x%x\n", alloc.kernelStartAddr, alloc.kernelEndAddr)
	kfmt.Fprintf(w, "size: %d bytes, reserved pages: %d\n",
		uint64(alloc.kernelEndAddr-alloc.kernelStartAddr),
		uint64(alloc.kernelEndFrame-alloc.kernelStartFrame+1),
	)
}
