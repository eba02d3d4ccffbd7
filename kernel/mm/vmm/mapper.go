package vmm

import (
	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/cpu"
	"github.com/sebastos1/osdev/kernel/kfmt"
	"github.com/sebastos1/osdev/kernel/mm"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	flushTLBEntryFn = cpu.FlushTLBEntry
	panicFn         = kfmt.Panic

	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errNoHugePageSupport   = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errPageAlreadyMapped   = &kernel.Error{Module: "vmm", Message: "page is already mapped"}
	errNonCanonicalAddress = &kernel.Error{Module: "vmm", Message: "virtual address is not canonical"}
)

// ActivePageTable provides access to the page table hierarchy that is
// currently loaded in CR3. All accesses go through the recursive P4 entry so
// ActivePageTable carries no state of its own.
type ActivePageTable struct{}

// TranslatePage returns the frame that page is mapped to. The second return
// value is false if page is not mapped or if it is part of a huge page.
func (ActivePageTable) TranslatePage(page mm.Page) (mm.Frame, bool) {
	for level := pageLevels; level > 0; level-- {
		pte := entryAt(tableAddr(level, page), page.TableIndex(level))
		if !pte.HasFlags(FlagPresent) || pte.HasFlags(FlagHugePage) {
			return mm.InvalidFrame, false
		}

		if level == 1 {
			return pte.Frame(), true
		}
	}

	return mm.InvalidFrame, false
}

// Translate returns the physical address that corresponds to the supplied
// virtual address. The second return value is false if the address is not
// mapped.
func (pt ActivePageTable) Translate(virtAddr uintptr) (uintptr, bool) {
	frame, ok := pt.TranslatePage(mm.PageFromAddress(virtAddr))
	if !ok {
		return 0, false
	}

	return frame.Address() + PageOffset(virtAddr), true
}

// MapTo establishes a mapping between a virtual page and a physical memory
// frame. Missing intermediate page tables are allocated using allocFn and
// cleared before use. The leaf entry is always flagged as present.
//
// Mapping a page that is already mapped is a programming error; MapTo panics
// and leaves the page tables untouched.
func (ActivePageTable) MapTo(page mm.Page, frame mm.Frame, flags PageTableEntryFlag, allocFn mm.FrameAllocatorFn) *kernel.Error {
	if !mm.IsCanonical(page.Address()) {
		panicFn(errNonCanonicalAddress)
		return errNonCanonicalAddress
	}

	for level := pageLevels; level > 1; level-- {
		pte := entryAt(tableAddr(level, page), page.TableIndex(level))

		if pte.HasFlags(FlagPresent | FlagHugePage) {
			panicFn(errNoHugePageSupport)
			return errNoHugePageSupport
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it and clear its contents.
		if !pte.HasFlags(FlagPresent) {
			tableFrame, err := allocFn()
			if err != nil {
				return err
			}

			pte.Set(tableFrame, FlagPresent|FlagRW)
			zeroTable(tableAddr(level-1, page))
		}
	}

	pte := entryAt(tableAddr(1, page), page.TableIndex(1))
	if !pte.IsUnused() {
		panicFn(errPageAlreadyMapped)
		return errPageAlreadyMapped
	}

	pte.Set(frame, flags|FlagPresent)
	flushTLBEntryFn(page.Address())
	return nil
}

// Map allocates a frame using allocFn and maps page to it.
func (pt ActivePageTable) Map(page mm.Page, flags PageTableEntryFlag, allocFn mm.FrameAllocatorFn) *kernel.Error {
	frame, err := allocFn()
	if err != nil {
		return err
	}

	return pt.MapTo(page, frame, flags, allocFn)
}

// IdentityMap maps frame to the page with the same number.
func (pt ActivePageTable) IdentityMap(frame mm.Frame, flags PageTableEntryFlag, allocFn mm.FrameAllocatorFn) *kernel.Error {
	return pt.MapTo(mm.Page(frame), frame, flags, allocFn)
}

// MapRegion maps pageCount consecutive pages starting at startPage to freshly
// allocated frames.
func (pt ActivePageTable) MapRegion(startPage mm.Page, pageCount uintptr, flags PageTableEntryFlag, allocFn mm.FrameAllocatorFn) *kernel.Error {
	for page := startPage; page < startPage+mm.Page(pageCount); page++ {
		if err := pt.Map(page, flags, allocFn); err != nil {
			return err
		}
	}

	return nil
}

// Unmap removes a mapping previously installed via a call to MapTo and
// flushes the TLB entry for page. The frame that page pointed to is not
// released.
func (ActivePageTable) Unmap(page mm.Page) *kernel.Error {
	for level := pageLevels; level > 1; level-- {
		pte := entryAt(tableAddr(level, page), page.TableIndex(level))

		// Next table is not present; this is an invalid mapping
		if !pte.HasFlags(FlagPresent) {
			return ErrInvalidMapping
		}

		if pte.HasFlags(FlagHugePage) {
			return errNoHugePageSupport
		}
	}

	pte := entryAt(tableAddr(1, page), page.TableIndex(1))
	if !pte.HasFlags(FlagPresent) {
		return ErrInvalidMapping
	}

	*pte = 0
	flushTLBEntryFn(page.Address())
	return nil
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & (mm.PageSize - 1)
}
