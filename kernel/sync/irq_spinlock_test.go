package sync

import (
	"testing"

	"github.com/sebastos1/osdev/kernel/cpu"
)

func TestIRQSpinlock(t *testing.T) {
	defer func() {
		interruptsEnabledFn = cpu.InterruptsEnabled
		disableInterruptsFn = cpu.DisableInterrupts
		enableInterruptsFn = cpu.EnableInterrupts
	}()

	var interruptFlag bool
	interruptsEnabledFn = func() bool { return interruptFlag }
	disableInterruptsFn = func() { interruptFlag = false }
	enableInterruptsFn = func() { interruptFlag = true }

	specs := []struct {
		initialIF bool
	}{
		{true},
		{false},
	}

	for specIndex, spec := range specs {
		var l IRQSpinlock
		interruptFlag = spec.initialIF

		l.Acquire()
		if interruptFlag {
			t.Errorf("[spec %d] expected interrupts to be disabled while the lock is held", specIndex)
		}

		if l.TryToAcquire() {
			t.Errorf("[spec %d] expected TryToAcquire to fail while the lock is held", specIndex)
		}

		if interruptFlag {
			t.Errorf("[spec %d] expected a failed TryToAcquire to keep interrupts disabled", specIndex)
		}

		l.Release()
		if interruptFlag != spec.initialIF {
			t.Errorf("[spec %d] expected interrupt flag to be restored to %t after Release; got %t", specIndex, spec.initialIF, interruptFlag)
		}

		if !l.TryToAcquire() {
			t.Errorf("[spec %d] expected TryToAcquire to succeed on a free lock", specIndex)
		}
		l.Release()

		if interruptFlag != spec.initialIF {
			t.Errorf("[spec %d] expected interrupt flag to be restored to %t after TryToAcquire/Release; got %t", specIndex, spec.initialIF, interruptFlag)
		}
	}
}
