package vmm

import (
	"testing"

	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/mm"
	"github.com/sebastos1/osdev/multiboot"
)

type elfSection struct {
	name    string
	flags   multiboot.ElfSectionFlag
	address uintptr
	size    uint64
}

func mockElfSections(sections []elfSection) func() {
	origVisit := visitElfSectionsFn
	visitElfSectionsFn = func(visitor multiboot.ElfSectionVisitor) {
		for _, sec := range sections {
			visitor(sec.name, sec.flags, sec.address, sec.size)
		}
	}
	return func() { visitElfSectionsFn = origVisit }
}

func mockInfoRange(start, end uintptr) func() {
	origInfoRange := infoRangeFn
	infoRangeFn = func() (uintptr, uintptr) { return start, end }
	return func() { infoRangeFn = origInfoRange }
}

func TestRemapTheKernel(t *testing.T) {
	// The bootstrap P4 lives inside the kernel .data section
	m := newFakeMMU(0x104, 0x1000)
	defer m.install()()

	var panicErr interface{}
	defer mockPanic(&panicErr)()

	defer mockElfSections([]elfSection{
		{".text", multiboot.ElfSectionAllocated | multiboot.ElfSectionExecutable, 0x100000, 0x3000},
		{".rodata", multiboot.ElfSectionAllocated, 0x103000, 0x1000},
		{".data", multiboot.ElfSectionAllocated | multiboot.ElfSectionWritable, 0x104000, 0x1800},
		{".bss", multiboot.ElfSectionAllocated | multiboot.ElfSectionWritable, 0x106000, 0x2000},
		{".comment", 0, 0, 0x100},
	})()
	defer mockInfoRange(0x200000, 0x200000+1352)()

	if err := RemapTheKernel(m.allocFrame); err != nil {
		t.Fatal(err)
	}

	if panicErr != nil {
		t.Fatalf("unexpected panic: %v", panicErr)
	}

	if m.root == mm.Frame(0x104) {
		t.Fatal("expected a new P4 to be loaded")
	}

	specs := []struct {
		page      mm.Page
		expMapped bool
		expFlags  PageTableEntryFlag
	}{
		// .text
		{0x100, true, FlagPresent},
		{0x102, true, FlagPresent},
		// .rodata
		{0x103, true, FlagPresent | FlagNoExecute},
		// .data; the first page held the old P4 and is now a guard page
		{0x104, false, 0},
		{0x105, true, FlagPresent | FlagRW | FlagNoExecute},
		// .bss
		{0x106, true, FlagPresent | FlagRW | FlagNoExecute},
		{0x107, true, FlagPresent | FlagRW | FlagNoExecute},
		{0x108, false, 0},
		// VGA text buffer
		{0xb8, true, FlagPresent | FlagRW},
		// multiboot info
		{0x200, true, FlagPresent},
		{0x201, false, 0},
		// sections not loaded in memory are ignored
		{0, false, 0},
		{tempPageNumber, false, 0},
	}

	const checkedFlags = FlagPresent | FlagRW | FlagNoExecute
	for specIndex, spec := range specs {
		pte := m.leafEntry(m.root, spec.page)
		if !spec.expMapped {
			if pte != nil {
				t.Errorf("[spec %d] expected page 0x%x to be unmapped", specIndex, uintptr(spec.page))
			}
			continue
		}

		if pte == nil {
			t.Errorf("[spec %d] expected page 0x%x to be mapped", specIndex, uintptr(spec.page))
			continue
		}

		if pte.Frame() != mm.Frame(spec.page) {
			t.Errorf("[spec %d] expected page 0x%x to be identity-mapped; got frame 0x%x", specIndex, uintptr(spec.page), uintptr(pte.Frame()))
		}

		if got := PageTableEntryFlag(uintptr(*pte)) & checkedFlags; got != spec.expFlags {
			t.Errorf("[spec %d] expected page 0x%x to have flags 0x%x; got 0x%x", specIndex, uintptr(spec.page), uintptr(spec.expFlags), uintptr(got))
		}
	}

	if pte := m.tables[0x104][recursiveEntryIndex]; pte.Frame() != mm.Frame(0x104) {
		t.Errorf("expected recursive entry of the old P4 to be restored; got 0x%x", uintptr(pte))
	}
}

func TestRemapTheKernelErrors(t *testing.T) {
	t.Run("unaligned section", func(t *testing.T) {
		m := newFakeMMU(0x104, 0x1000)
		defer m.install()()

		var panicErr interface{}
		defer mockPanic(&panicErr)()

		defer mockElfSections([]elfSection{
			{".text", multiboot.ElfSectionAllocated | multiboot.ElfSectionExecutable, 0x100800, 0x1000},
		})()
		defer mockInfoRange(0, 0)()

		if err := RemapTheKernel(m.allocFrame); err != errUnalignedSection {
			t.Fatalf("expected errUnalignedSection; got %v", err)
		}

		if panicErr != errUnalignedSection {
			t.Fatalf("expected panic with errUnalignedSection; got %v", panicErr)
		}

		if m.root != mm.Frame(0x104) {
			t.Fatal("expected active P4 to remain unchanged")
		}
	})

	t.Run("frame allocation failure", func(t *testing.T) {
		m := newFakeMMU(0x104, 0x1000)
		defer m.install()()

		expErr := &kernel.Error{Module: "test", Message: "out of memory"}
		allocFn := func() (mm.Frame, *kernel.Error) { return mm.InvalidFrame, expErr }

		if err := RemapTheKernel(allocFn); err != expErr {
			t.Fatalf("expected error %v; got %v", expErr, err)
		}

		if m.root != mm.Frame(0x104) {
			t.Fatal("expected active P4 to remain unchanged")
		}
	})
}
