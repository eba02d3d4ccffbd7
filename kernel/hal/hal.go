// Package hal detects the display hardware and wires the system terminal to
// the kernel output sink.
package hal

import (
	"io"

	"github.com/sebastos1/osdev/device"
	"github.com/sebastos1/osdev/device/tty"
	"github.com/sebastos1/osdev/device/video/console"
	"github.com/sebastos1/osdev/kernel/kfmt"
)

var (
	vgaConsole console.VgaTextConsole
	vt         tty.VT

	// drivers lists the drivers in initialization order.
	drivers = [...]device.Driver{&vgaConsole, &vt}

	activeConsole console.Device
	activeTTY     *tty.VT

	driverLog kfmt.PrefixWriter
	prefixBuf prefixBuffer

	probeConsoleFn = console.Probe
)

// ActiveTTY returns the currently active TTY or nil if no terminal is attached
// to a console.
func ActiveTTY() *tty.VT {
	return activeTTY
}

// DetectHardware probes for the text console and initializes the console and
// terminal drivers. Once both are up, the terminal becomes the kfmt output
// sink and receives any output that was buffered so far.
func DetectHardware() {
	probeConsoleFn(&vgaConsole)
	vt.Init(tty.DefaultTabWidth, tty.DefaultScrollback)

	probe(drivers[:])
}

// probe initializes each driver and invokes onDriverInit for each driver that
// initialized successfully.
func probe(list []device.Driver) {
	for _, drv := range list {
		prefixBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&prefixBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		driverLog.Prefix = prefixBuf.Bytes()

		if err := drv.DriverInit(&driverLog); err != nil {
			kfmt.Fprintf(&driverLog, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&driverLog, "initialized\n")
		onDriverInit(drv)
	}
}

// onDriverInit is invoked by probe() whenever a driver is successfully
// initialized. The first console and the first terminal become active and
// get linked together.
func onDriverInit(drv device.Driver) {
	switch drvImpl := drv.(type) {
	case console.Device:
		if activeConsole != nil {
			return
		}

		activeConsole = drvImpl
		if activeTTY != nil {
			linkTTYToConsole()
		}
	case *tty.VT:
		if activeTTY != nil {
			return
		}

		activeTTY = drvImpl
		if activeConsole != nil {
			linkTTYToConsole()
		}
	}
}

// linkTTYToConsole connects the active TTY device to the active console device
// and syncs their contents.
func linkTTYToConsole() {
	activeTTY.AttachTo(activeConsole)
	kfmt.SetOutputSink(activeTTY)

	// Sync terminal contents with console
	activeTTY.SetState(tty.StateActive)
}

// prefixBuffer is a fixed-size io.Writer used to render driver log prefixes.
type prefixBuffer struct {
	buf [64]byte
	n   int
}

func (b *prefixBuffer) Write(p []byte) (int, error) {
	n := copy(b.buf[b.n:], p)
	b.n += n
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (b *prefixBuffer) Reset() {
	b.n = 0
}

func (b *prefixBuffer) Bytes() []byte {
	return b.buf[:b.n]
}
