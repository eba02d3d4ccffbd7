package vmm

import (
	"unsafe"

	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/kfmt"
	"github.com/sebastos1/osdev/kernel/mm"
	"github.com/sebastos1/osdev/multiboot"
)

// vgaTextBufferAddr is the physical address of the VGA text mode buffer.
const vgaTextBufferAddr = uintptr(0xb8000)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	visitElfSectionsFn = multiboot.VisitElfSections
	infoRangeFn        = multiboot.InfoRange

	errUnalignedSection = &kernel.Error{Module: "vmm", Message: "kernel ELF section is not page-aligned"}
)

// RemapTheKernel builds a new page table hierarchy that identity-maps the
// kernel ELF sections, the VGA text buffer and the multiboot info data, and
// switches to it. Section permissions follow their ELF flags: writable
// sections are mapped RW and non-executable sections are mapped NX.
//
// The page that identity-maps the previous P4 frame is unmapped afterwards so
// it acts as a guard page.
func RemapTheKernel(allocFn mm.FrameAllocatorFn) *kernel.Error {
	var active ActivePageTable

	tmpPage, err := NewTemporaryPage(tempPageNumber, allocFn)
	if err != nil {
		return err
	}

	frame, err := allocFn()
	if err != nil {
		return err
	}

	newTable, err := NewInactivePageTable(frame, active, &tmpPage)
	if err != nil {
		return err
	}

	var mapErr *kernel.Error
	err = active.With(newTable, &tmpPage, func(mapper ActivePageTable) {
		visitor := func(_ string, secFlags multiboot.ElfSectionFlag, secAddress uintptr, secSize uint64) {
			// Bail out if we have encountered an error; also ignore
			// sections that are not loaded in memory
			if mapErr != nil || secFlags&multiboot.ElfSectionAllocated == 0 {
				return
			}

			if secAddress&(mm.PageSize-1) != 0 {
				mapErr = errUnalignedSection
				panicFn(mapErr)
				return
			}

			flags := FlagPresent
			if (secFlags & multiboot.ElfSectionWritable) != 0 {
				flags |= FlagRW
			}
			if (secFlags & multiboot.ElfSectionExecutable) == 0 {
				flags |= FlagNoExecute
			}

			lastFrame := mm.FrameFromAddress(secAddress + uintptr(secSize-1))
			for curFrame := mm.FrameFromAddress(secAddress); curFrame <= lastFrame; curFrame++ {
				if mapErr = mapper.IdentityMap(curFrame, flags, allocFn); mapErr != nil {
					return
				}
			}
		}

		// Use the noescape hack to prevent the compiler from leaking the visitor
		// function literal to the heap.
		visitElfSectionsFn(
			*(*multiboot.ElfSectionVisitor)(noEscape(unsafe.Pointer(&visitor))),
		)
		if mapErr != nil {
			return
		}

		if mapErr = mapper.IdentityMap(mm.FrameFromAddress(vgaTextBufferAddr), FlagPresent|FlagRW, allocFn); mapErr != nil {
			return
		}

		infoStart, infoEnd := infoRangeFn()
		if infoEnd <= infoStart {
			return
		}

		lastFrame := mm.FrameFromAddress(infoEnd - 1)
		for curFrame := mm.FrameFromAddress(infoStart); curFrame <= lastFrame; curFrame++ {
			if mapErr = mapper.IdentityMap(curFrame, FlagPresent, allocFn); mapErr != nil {
				return
			}
		}
	})

	switch {
	case err != nil:
		return err
	case mapErr != nil:
		return mapErr
	}

	oldTable := active.Switch(newTable)
	kfmt.Printf("[vmm] switched to new page table (P4 frame: 0x%x)\n", uint64(newTable.P4))

	// Turn the old P4 page into a guard page
	if err = active.Unmap(mm.Page(oldTable.P4)); err != nil {
		return err
	}
	kfmt.Printf("[vmm] guard page at 0x%x\n", oldTable.P4.Address())

	return nil
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
