package sync

import "github.com/sebastos1/osdev/kernel/cpu"

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	interruptsEnabledFn = cpu.InterruptsEnabled
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
)

// IRQSpinlock is a Spinlock that keeps interrupts disabled while it is held.
// Locks that are shared between regular kernel code and interrupt handlers
// must use IRQSpinlock; otherwise an interrupt arriving while the lock is held
// would spin forever on a lock that can only be released by the code it
// preempted.
type IRQSpinlock struct {
	lock Spinlock

	// restoreIF is set when interrupts were enabled at the time the lock
	// was acquired.
	restoreIF bool
}

// Acquire disables interrupts and then blocks until the lock is acquired.
func (l *IRQSpinlock) Acquire() {
	enabled := interruptsEnabledFn()
	disableInterruptsFn()
	l.lock.Acquire()
	l.restoreIF = enabled
}

// TryToAcquire attempts to acquire the lock without blocking. If the lock is
// not available, the interrupt flag is left untouched and TryToAcquire
// returns false.
func (l *IRQSpinlock) TryToAcquire() bool {
	enabled := interruptsEnabledFn()
	disableInterruptsFn()
	if !l.lock.TryToAcquire() {
		if enabled {
			enableInterruptsFn()
		}
		return false
	}

	l.restoreIF = enabled
	return true
}

// Release unlocks the lock and re-enables interrupts if they were enabled
// when the lock was acquired.
func (l *IRQSpinlock) Release() {
	restore := l.restoreIF
	l.restoreIF = false
	l.lock.Release()

	if restore {
		enableInterruptsFn()
	}
}
