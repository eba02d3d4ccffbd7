package vmm

import "github.com/sebastos1/osdev/kernel/mm"

const (
	// pageLevels indicates the number of page levels supported by the amd64 architecture.
	pageLevels = 4

	// ptePhysPageMask is a mask that allows us to extract the physical memory
	// address pointed to by a page table entry. For this particular architecture,
	// bits 12-51 contain the physical memory address.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// recursiveEntryIndex is the P4 entry that points back to the P4
	// itself. Following it one or more times lets the kernel reach every
	// page table of the active hierarchy through virtual addresses.
	recursiveEntryIndex = mm.EntriesPerTable - 1

	// pageNumberMask keeps the 36 page number bits that select a page
	// table entry at each of the 4 levels.
	pageNumberMask = uintptr(1<<36 - 1)

	// tempPageNumber is the page used by RemapTheKernel for temporary
	// mappings of page table frames. It lies in an otherwise unused part
	// of the lower half.
	tempPageNumber = mm.Page(0xcafebabe)

	// kernelStackStart and kernelStackPages describe the virtual range
	// handed to the kernel stack allocator.
	kernelStackStart = uintptr(0x0000555555550000)
	kernelStackPages = 100
)

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set if when using 2Mb pages instead of 4K pages.
	FlagHugePage

	// FlagGlobal if set, prevents the TLB from flushing the cached memory address
	// for this page when the swapping page tables by updating the CR3 register.
	FlagGlobal

	// FlagNoExecute if set, indicates that a page contains non-executable code.
	// It only has an effect once EFER.NXE has been enabled.
	FlagNoExecute PageTableEntryFlag = 1 << 63
)
