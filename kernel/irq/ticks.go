package irq

import (
	"sync/atomic"

	"github.com/sebastos1/osdev/kernel/cpu"
)

var (
	// ticks counts timer interrupts since Enable.
	ticks atomic.Uint64

	// timerHz is the rate the PIT was programmed with.
	timerHz uint32

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	waitForInterruptFn = cpu.WaitForInterrupt
)

// Ticks returns the number of timer interrupts serviced so far.
func Ticks() uint64 {
	return ticks.Load()
}

// BusySleep blocks for at least ms milliseconds by halting until enough timer
// ticks have elapsed. Interrupts are enabled while waiting.
func BusySleep(ms uint64) {
	if ms == 0 || timerHz == 0 {
		return
	}

	// Round up so that short sleeps last at least one full tick.
	deadline := Ticks() + (ms*uint64(timerHz)+999)/1000 + 1
	for Ticks() < deadline {
		waitForInterruptFn()
	}
}
