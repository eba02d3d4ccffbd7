package vmm

import (
	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/cpu"
	"github.com/sebastos1/osdev/kernel/mm"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	activePDTFn         = cpu.ActivePDT
	switchPDTFn         = cpu.SwitchPDT
	flushTLBFn          = cpu.FlushTLB
	interruptsEnabledFn = cpu.InterruptsEnabled
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
)

// InactivePageTable is a page table hierarchy that is not loaded in CR3.
type InactivePageTable struct {
	// P4 is the frame that holds the top-level table.
	P4 mm.Frame
}

// NewInactivePageTable turns frame into an empty P4 table whose last entry
// maps the table itself. The frame is accessed through tmpPage.
func NewInactivePageTable(frame mm.Frame, active ActivePageTable, tmpPage *TemporaryPage) (InactivePageTable, *kernel.Error) {
	table, err := tmpPage.Map(frame, active)
	if err != nil {
		return InactivePageTable{}, err
	}

	zeroTable(table)
	entryAt(table, recursiveEntryIndex).Set(frame, FlagPresent|FlagRW)

	if err = tmpPage.Unmap(active); err != nil {
		return InactivePageTable{}, err
	}

	return InactivePageTable{P4: frame}, nil
}

// With temporarily points the recursive entry of the active P4 to the P4 of
// table and invokes fn. While fn runs, every ActivePageTable operation that
// goes through the recursive mapping modifies table instead of the active
// hierarchy. Code and data keep being translated by the active tables.
//
// Interrupts are disabled for the duration of the call.
func (pt ActivePageTable) With(table InactivePageTable, tmpPage *TemporaryPage, fn func(ActivePageTable)) *kernel.Error {
	restoreIF := interruptsEnabledFn()
	disableInterruptsFn()
	defer func() {
		if restoreIF {
			enableInterruptsFn()
		}
	}()

	// Keep the active P4 reachable so the recursive entry can be
	// restored once its target has been overwritten.
	backup := mm.FrameFromAddress(activePDTFn())
	backupP4, err := tmpPage.Map(backup, pt)
	if err != nil {
		return err
	}

	entryAt(tableAddr(pageLevels, 0), recursiveEntryIndex).Set(table.P4, FlagPresent|FlagRW)
	flushTLBFn()

	fn(pt)

	entryAt(backupP4, recursiveEntryIndex).Set(backup, FlagPresent|FlagRW)
	flushTLBFn()

	return tmpPage.Unmap(pt)
}

// Switch loads table into CR3 and returns the previously active table.
func (ActivePageTable) Switch(table InactivePageTable) InactivePageTable {
	old := InactivePageTable{P4: mm.FrameFromAddress(activePDTFn())}
	switchPDTFn(table.P4.Address())
	return old
}
