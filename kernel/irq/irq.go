// Package irq routes the legacy PC interrupt sources (8259 PIC pair, PIT
// and PS/2 keyboard) and the fatal CPU exceptions that are not owned by the
// memory manager.
package irq

import (
	"github.com/sebastos1/osdev/kernel/cpu"
	"github.com/sebastos1/osdev/kernel/gate"
	"github.com/sebastos1/osdev/kernel/gdt"
	"github.com/sebastos1/osdev/kernel/kfmt"
)

const (
	// Line masks applied by Enable. A set bit disables a line. The primary
	// keeps IRQ 0 (timer), 1 (keyboard) and 2 (cascade) enabled.
	primaryLineMask   = 0xf8
	secondaryLineMask = 0xff

	// doubleFaultIST is the gate IST value for the double fault handler.
	// Gates number IST slots from 1; 0 means no stack switch.
	doubleFaultIST = gdt.DoubleFaultISTIndex + 1
)

var (
	pics = NewControllerPair(uint8(gate.IRQBase), uint8(gate.IRQBase)+linesPerController)

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	handleInterruptFn  = gate.HandleInterrupt
	enableInterruptsFn = cpu.EnableInterrupts
	panicFn            = kfmt.Panic
)

// Config holds the tunables of the interrupt subsystem.
type Config struct {
	// TimerHz is the requested PIT rate.
	TimerHz uint32
}

// Init installs the handlers for the divide error and double fault
// exceptions and for the timer and keyboard interrupts. The IDT must be
// loaded (gate.Init) and the double fault stack registered with the TSS
// before interrupts can fire.
func Init(cfg Config) {
	timerHz = cfg.TimerHz

	handleInterruptFn(gate.DivideByZero, 0, divideErrorHandler)
	handleInterruptFn(gate.DoubleFault, doubleFaultIST, doubleFaultHandler)
	handleInterruptFn(TimerVector, 0, timerHandler)
	handleInterruptFn(KeyboardVector, 0, keyboardHandler)
}

// Enable remaps the PIC pair, programs the PIT, unmasks the timer and
// keyboard lines and finally enables interrupts.
func Enable() {
	pics.Init()
	timerHz = ProgramTimer(timerHz)
	pics.SetMasks(primaryLineMask, secondaryLineMask)
	enableInterruptsFn()

	kfmt.Printf("[irq] interrupts enabled (timer: %dHz)\n", timerHz)
}

// SetScancodeSink registers fn to receive every scancode read from the
// keyboard. fn runs in interrupt context.
func SetScancodeSink(fn func(uint8)) {
	scancodeSink = fn
}
