// Package kmain contains the kernel entrypoint and the boot sequence that
// brings up segmentation, paging, interrupts and the kernel heap.
package kmain

import (
	"github.com/sebastos1/osdev/device/keyboard"
	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/cpu"
	"github.com/sebastos1/osdev/kernel/gate"
	"github.com/sebastos1/osdev/kernel/gdt"
	"github.com/sebastos1/osdev/kernel/hal"
	"github.com/sebastos1/osdev/kernel/irq"
	"github.com/sebastos1/osdev/kernel/kfmt"
	"github.com/sebastos1/osdev/kernel/kheap"
	"github.com/sebastos1/osdev/kernel/mm"
	"github.com/sebastos1/osdev/kernel/mm/pmm"
	"github.com/sebastos1/osdev/kernel/mm/vmm"
	"github.com/sebastos1/osdev/multiboot"
)

const (
	// heapStart is the virtual address where the kernel heap is mapped.
	heapStart = uintptr(0x4444_4444_0000)

	heapFlags = vmm.FlagPresent | vmm.FlagRW | vmm.FlagNoExecute
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// scancodes is filled by the keyboard interrupt handler and drained by
	// the idle loop.
	scancodes keyboard.Queue
	keys      keyboard.Decoder

	mapRegionFn        = vmm.ActivePageTable{}.MapRegion
	kheapInitFn        = kheap.Init
	echoFn             = echo
	waitForInterruptFn = cpu.WaitForInterrupt
)

// Kmain is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function is invoked by the rt0 assembly code after setting up a
// minimal g0 struct that allows Go code using the 4K stack allocated by the
// assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by the
// bootloader as well as the physical addresses for the kernel start/end. A
// zero range makes the kernel derive its extents from the ELF sections.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	hal.DetectHardware()
	kfmt.Printf("Starting osdev\n")

	cfg := parseBootConfig()

	if kernelStart == 0 && kernelEnd == 0 {
		kernelStart, kernelEnd = multiboot.KernelRange()
	}

	var err *kernel.Error
	if err = pmm.Init(kernelStart, kernelEnd, cfg.quiet); err != nil {
		kfmt.Panic(err)
	}

	cpu.EnableNXE()
	cpu.EnableWriteProtect()

	gdt.Init()

	stacks, err := vmm.Init(pmm.AllocFrame)
	if err != nil {
		kfmt.Panic(err)
	}

	doubleFaultStack, err := stacks.AllocStack(vmm.ActivePageTable{}, cfg.kstackPages, pmm.AllocFrame)
	if err != nil {
		kfmt.Panic(err)
	}
	gdt.SetDoubleFaultStack(doubleFaultStack.Top)

	gate.Init()
	irq.Init(irq.Config{TimerHz: cfg.timerHz})
	irq.SetScancodeSink(pushScancode)
	irq.Enable()

	if err = initHeap(cfg.heapKb); err != nil {
		kfmt.Panic(err)
	}

	stats := kheap.Stats()
	kfmt.Printf("[kheap] %d bytes free in %d block(s)\n", uint64(stats.FreeBytes), stats.FreeBlocks)

	idle()

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}

// idle echoes keyboard input and halts the CPU until the next interrupt.
func idle() {
	for {
		drainScancodes()
		waitForInterruptFn()
	}
}

// initHeap maps heapKb kilobytes (rounded up to a page) at heapStart and hands
// the region to the kernel heap.
func initHeap(heapKb uint32) *kernel.Error {
	size := mm.PageAlignUp(uintptr(heapKb) * uintptr(mm.Kb))
	pageCount := size >> mm.PageShift

	if err := mapRegionFn(mm.PageFromAddress(heapStart), pageCount, heapFlags, pmm.AllocFrame); err != nil {
		return err
	}

	return kheapInitFn(heapStart, size)
}

// pushScancode is registered as the keyboard interrupt sink.
func pushScancode(code uint8) {
	scancodes.Push(code)
}

// drainScancodes decodes the queued scancodes and echoes printable
// characters, newlines and backspaces.
func drainScancodes() {
	for {
		code, ok := scancodes.Pop()
		if !ok {
			return
		}

		ch, ok := keys.Decode(code)
		if !ok {
			continue
		}

		if ch == '\n' || ch == '\b' || (ch >= 0x20 && ch <= 0x7e) {
			echoFn(ch)
		}
	}
}

func echo(ch byte) {
	if term := hal.ActiveTTY(); term != nil {
		term.WriteByte(ch)
	}
}
