// Package vmm manages the kernel's 4-level page tables through a recursive
// P4 mapping.
package vmm

import (
	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/mm"
)

var (
	// remapTheKernelFn is used by tests.
	remapTheKernelFn = RemapTheKernel

	// kernelStacks hands out kernel stacks from the range reserved at
	// kernelStackStart.
	kernelStacks StackAllocator
)

// Init remaps the kernel into a fresh page table hierarchy, installs the
// paging-related exception handlers and returns the allocator that kernel
// stacks should be carved from. The supplied allocFn is used for all frames
// needed while remapping.
func Init(allocFn mm.FrameAllocatorFn) (*StackAllocator, *kernel.Error) {
	if err := remapTheKernelFn(allocFn); err != nil {
		return nil, err
	}

	// Install arch-specific handlers for vmm-related faults.
	installFaultHandlers()

	firstStackPage := mm.PageFromAddress(kernelStackStart)
	kernelStacks = NewStackAllocator(firstStackPage, firstStackPage+kernelStackPages)
	return &kernelStacks, nil
}
