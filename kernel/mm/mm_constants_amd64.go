package mm

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)). The pointer
	// size for this architecture is defined as (1 << PointerShift).
	PointerShift = uintptr(3)

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)

	// EntriesPerTable is the number of entries in each page table level.
	EntriesPerTable = 512

	// tableIndexBits is the number of page number bits that select an
	// entry in each page table level.
	tableIndexBits = 9

	// canonicalLowEnd and canonicalHighStart delimit the hole in the
	// 48-bit virtual address space. Addresses inside the hole fault with
	// a GPF when dereferenced.
	canonicalLowEnd    = uintptr(0x0000800000000000)
	canonicalHighStart = uintptr(0xffff800000000000)
)
