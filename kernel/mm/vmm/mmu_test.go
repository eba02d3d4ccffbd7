package vmm

import (
	"fmt"
	"unsafe"

	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/mm"
)

type fakeTable [mm.EntriesPerTable]pageTableEntry

// fakeMMU emulates the address translation performed by the CPU for page
// table accesses. Frames are backed by Go arrays and identified by made-up
// frame numbers; entry addresses are translated by walking the fake tables
// starting from the emulated CR3 so the recursive P4 entry behaves exactly
// as it does on hardware.
type fakeMMU struct {
	tables    map[mm.Frame]*fakeTable
	root      mm.Frame
	nextFrame mm.Frame

	allocCount      int
	tlbEntryFlushes []uintptr
	tlbFlushes      int
}

// newFakeMMU returns a fakeMMU with an empty, recursively mapped P4 at
// rootFrame. Frames handed out by allocFrame start at firstFreeFrame.
func newFakeMMU(rootFrame, firstFreeFrame mm.Frame) *fakeMMU {
	m := &fakeMMU{
		tables:    make(map[mm.Frame]*fakeTable),
		root:      rootFrame,
		nextFrame: firstFreeFrame,
	}

	m.tables[rootFrame] = new(fakeTable)
	m.tables[rootFrame][recursiveEntryIndex].Set(rootFrame, FlagPresent|FlagRW)
	return m
}

// allocFrame implements mm.FrameAllocatorFn. Every frame is backed by a
// table filled with junk so tests can detect missing table initialization.
func (m *fakeMMU) allocFrame() (mm.Frame, *kernel.Error) {
	frame := m.nextFrame
	m.nextFrame++
	m.allocCount++

	table := new(fakeTable)
	for i := range table {
		table[i] = pageTableEntry(0xbadf00d000 | uintptr(FlagPresent))
	}
	m.tables[frame] = table

	return frame, nil
}

func (m *fakeMMU) table(frame mm.Frame) *fakeTable {
	table, ok := m.tables[frame]
	if !ok {
		panic(fmt.Sprintf("fake MMU: frame 0x%x is not backed by memory", uintptr(frame)))
	}
	return table
}

// leafEntry walks the fake tables from root and returns the leaf entry for
// page, or nil if page is not mapped.
func (m *fakeMMU) leafEntry(root mm.Frame, page mm.Page) *pageTableEntry {
	frame := root
	for level := pageLevels; level > 0; level-- {
		table, ok := m.tables[frame]
		if !ok {
			return nil
		}

		pte := &table[page.TableIndex(level)]
		if !pte.HasFlags(FlagPresent) {
			return nil
		}

		if level == 1 {
			return pte
		}
		frame = pte.Frame()
	}

	return nil
}

func (m *fakeMMU) ptePtr(entryAddr uintptr) unsafe.Pointer {
	pte := m.leafEntry(m.root, mm.PageFromAddress(entryAddr))
	if pte == nil {
		panic(fmt.Sprintf("fake MMU: page fault while accessing 0x%x", entryAddr))
	}

	return unsafe.Pointer(&m.table(pte.Frame())[PageOffset(entryAddr)>>mm.PointerShift])
}

// snapshot returns a deep copy of all fake tables.
func (m *fakeMMU) snapshot() map[mm.Frame]fakeTable {
	out := make(map[mm.Frame]fakeTable, len(m.tables))
	for frame, table := range m.tables {
		out[frame] = *table
	}
	return out
}

// install redirects the page table accessors and the CPU hooks of this
// package to the fake MMU. The returned function restores the originals.
func (m *fakeMMU) install() func() {
	origPtePtr := ptePtrFn
	origActivePDT := activePDTFn
	origSwitchPDT := switchPDTFn
	origFlushTLBEntry := flushTLBEntryFn
	origFlushTLB := flushTLBFn
	origInterruptsEnabled := interruptsEnabledFn
	origDisableInterrupts := disableInterruptsFn
	origEnableInterrupts := enableInterruptsFn

	ptePtrFn = m.ptePtr
	activePDTFn = func() uintptr { return m.root.Address() }
	switchPDTFn = func(addr uintptr) { m.root = mm.FrameFromAddress(addr) }
	flushTLBEntryFn = func(addr uintptr) { m.tlbEntryFlushes = append(m.tlbEntryFlushes, addr) }
	flushTLBFn = func() { m.tlbFlushes++ }
	interruptsEnabledFn = func() bool { return false }
	disableInterruptsFn = func() {}
	enableInterruptsFn = func() {}

	return func() {
		ptePtrFn = origPtePtr
		activePDTFn = origActivePDT
		switchPDTFn = origSwitchPDT
		flushTLBEntryFn = origFlushTLBEntry
		flushTLBFn = origFlushTLB
		interruptsEnabledFn = origInterruptsEnabled
		disableInterruptsFn = origDisableInterrupts
		enableInterruptsFn = origEnableInterrupts
	}
}

// mockPanic replaces panicFn with a function that records its argument. The
// returned function restores the original panicFn.
func mockPanic(got *interface{}) func() {
	origPanic := panicFn
	panicFn = func(e interface{}) { *got = e }
	return func() { panicFn = origPanic }
}
