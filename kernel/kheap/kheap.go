package kheap

import (
	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/kfmt"
	"github.com/sebastos1/osdev/kernel/mm"
)

// kernelHeap is the heap used by the kernel once Init has been called.
var kernelHeap Heap

// Init sets up the kernel heap over the mapped region [start, start+size).
func Init(start, size uintptr) *kernel.Error {
	if err := kernelHeap.Init(start, size); err != nil {
		return err
	}

	kfmt.Printf("[kheap] heap at 0x%x (size: %dKb)\n", start, uint64(size/uintptr(mm.Kb)))
	return nil
}

// Alloc allocates size bytes aligned to align from the kernel heap. It
// returns 0 if the heap is exhausted.
func Alloc(size, align uintptr) uintptr {
	return kernelHeap.Alloc(size, align)
}

// Free releases a block previously returned by Alloc.
func Free(ptr uintptr) {
	kernelHeap.Free(ptr)
}

// Stats returns the kernel heap utilization.
func Stats() HeapStats {
	return kernelHeap.Stats()
}
