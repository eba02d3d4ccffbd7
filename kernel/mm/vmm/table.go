package vmm

import (
	"unsafe"

	"github.com/sebastos1/osdev/kernel/mm"
)

var (
	// ptePtrFn returns a pointer to the supplied entry address. It is
	// used by tests to override the generated page table entry pointers so
	// the table accessors can be tested without an MMU. When compiling the
	// kernel this function will be automatically inlined.
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(entryAddr)
	}
)

// tableAddr returns the virtual address of the page table at the given level
// (4 for the P4, 1 for a P1) that is walked by the MMU when translating page.
//
// The address is built on top of the recursive P4 entry: each remaining
// recursion step makes the MMU stop one level earlier, so the P4 of the
// active hierarchy lives at 0xfffffffffffff000 and the P1 for page p at
// 0xffffff8000000000 | (p >> 9) << 12.
func tableAddr(level int, page mm.Page) uintptr {
	recursion := ^uintptr(0) << (mm.PageShift + uintptr(9*(pageLevels-level)))
	return recursion | ((uintptr(page)&pageNumberMask)>>uintptr(9*level))<<mm.PageShift
}

// entryAt returns a pointer to the entry at index of the page table mapped at
// the virtual address table.
func entryAt(table uintptr, index uintptr) *pageTableEntry {
	return (*pageTableEntry)(ptePtrFn(table + (index << mm.PointerShift)))
}

// zeroTable clears every entry of the page table mapped at the virtual
// address table.
func zeroTable(table uintptr) {
	for index := uintptr(0); index < mm.EntriesPerTable; index++ {
		*entryAt(table, index) = 0
	}
}
