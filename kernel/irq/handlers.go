package irq

import (
	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/gate"
	"github.com/sebastos1/osdev/kernel/kfmt"
)

const (
	// TimerVector is raised by the PIT on IRQ 0.
	TimerVector = gate.IRQBase

	// KeyboardVector is raised by the PS/2 controller on IRQ 1.
	KeyboardVector = gate.IRQBase + 1

	keyboardDataPort = 0x60
)

var (
	errDivideError = &kernel.Error{Module: "irq", Message: "divide error"}
	errDoubleFault = &kernel.Error{Module: "irq", Message: "double fault"}

	// scancodeSink receives the raw scancodes read by the keyboard handler.
	scancodeSink func(uint8)
)

func timerHandler(_ *gate.Registers) {
	ticks.Add(1)
	pics.NotifyEndOfInterrupt(uint8(TimerVector))
}

func keyboardHandler(_ *gate.Registers) {
	scancode := portReadByteFn(keyboardDataPort)
	if scancodeSink != nil {
		scancodeSink(scancode)
	}

	pics.NotifyEndOfInterrupt(uint8(KeyboardVector))
}

func divideErrorHandler(regs *gate.Registers) {
	kfmt.Printf("\nDivide error at RIP 0x%16x\n", regs.RIP)
	kfmt.Printf("Registers:\n")
	regs.DumpTo(kfmt.GetOutputSink())

	panicFn(errDivideError)
}

// doubleFaultHandler runs on its own IST stack so it works even when the
// fault was caused by a kernel stack overflow.
func doubleFaultHandler(regs *gate.Registers) {
	kfmt.Printf("\nDouble fault (error code: 0x%x)\n", regs.Info)
	kfmt.Printf("Registers:\n")
	regs.DumpTo(kfmt.GetOutputSink())

	panicFn(errDoubleFault)
}
