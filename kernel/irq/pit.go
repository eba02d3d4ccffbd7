package irq

const (
	// pitBaseFrequency is the frequency (Hz) of the PIT input clock.
	pitBaseFrequency = 1193182

	pitChannel0Port = 0x40
	pitCommandPort  = 0x43

	// pitModeRateGenerator selects channel 0, lobyte/hibyte access and
	// mode 3 (square wave generator).
	pitModeRateGenerator = 0x36

	// The divisor is a 16-bit value so the timer rate is limited to this
	// range.
	minTimerHz = 19
	maxTimerHz = 65535
)

// timerDivisor returns the PIT divisor for the requested rate together with
// the rate that was actually applied after clamping.
func timerDivisor(hz uint32) (uint16, uint32) {
	switch {
	case hz < minTimerHz:
		hz = minTimerHz
	case hz > maxTimerHz:
		hz = maxTimerHz
	}

	return uint16(pitBaseFrequency / hz), hz
}

// ProgramTimer configures PIT channel 0 to fire IRQ 0 at hz times per second
// and returns the applied rate.
func ProgramTimer(hz uint32) uint32 {
	divisor, hz := timerDivisor(hz)

	portWriteByteFn(pitCommandPort, pitModeRateGenerator)
	portWriteByteFn(pitChannel0Port, uint8(divisor))
	portWriteByteFn(pitChannel0Port, uint8(divisor>>8))

	return hz
}
