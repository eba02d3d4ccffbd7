package irq

import "github.com/sebastos1/osdev/kernel/cpu"

const (
	primaryCommandPort   = 0x20
	primaryDataPort      = 0x21
	secondaryCommandPort = 0xa0
	secondaryDataPort    = 0xa1

	// ioWaitPort is an unused port; writing to it takes long enough for
	// the PIC to settle between initialization words.
	ioWaitPort = 0x80

	// icw1Init starts the initialization sequence in cascade mode and
	// announces that ICW4 will follow.
	icw1Init = 0x11

	// icw4Mode8086 selects 8086/88 mode.
	icw4Mode8086 = 0x01

	// cmdEndOfInterrupt is the non-specific EOI command.
	cmdEndOfInterrupt = 0x20

	linesPerController = 8
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte
)

// Controller is a single 8259 programmable interrupt controller.
type Controller struct {
	offset      uint8
	commandPort uint16
	dataPort    uint16
}

// handles returns true if vector is one of the 8 vectors raised by the
// controller.
func (c *Controller) handles(vector uint8) bool {
	return int(vector) >= int(c.offset) && int(vector) < int(c.offset)+linesPerController
}

func (c *Controller) command(cmd uint8) {
	portWriteByteFn(c.commandPort, cmd)
}

func (c *Controller) data(val uint8) {
	portWriteByteFn(c.dataPort, val)
}

func (c *Controller) mask() uint8 {
	return portReadByteFn(c.dataPort)
}

// ControllerPair is the chained pair of 8259 PICs found on PC compatibles. The
// secondary controller is attached to line 2 of the primary.
type ControllerPair struct {
	primary   Controller
	secondary Controller
}

// NewControllerPair returns a ControllerPair that raises vectors starting at
// primaryOffset for IRQ 0-7 and at secondaryOffset for IRQ 8-15.
func NewControllerPair(primaryOffset, secondaryOffset uint8) ControllerPair {
	return ControllerPair{
		primary:   Controller{offset: primaryOffset, commandPort: primaryCommandPort, dataPort: primaryDataPort},
		secondary: Controller{offset: secondaryOffset, commandPort: secondaryCommandPort, dataPort: secondaryDataPort},
	}
}

// Init remaps both controllers to their vector offsets. The interrupt masks
// that were active before the call are restored afterwards.
func (p *ControllerPair) Init() {
	primaryMask := p.primary.mask()
	secondaryMask := p.secondary.mask()

	p.primary.command(icw1Init)
	p.secondary.command(icw1Init)
	ioWait()

	p.primary.data(p.primary.offset)
	p.secondary.data(p.secondary.offset)
	ioWait()

	// The primary gets a bitmask of the line the secondary is wired to;
	// the secondary gets its cascade identity.
	p.primary.data(1 << 2)
	p.secondary.data(2)
	ioWait()

	p.primary.data(icw4Mode8086)
	p.secondary.data(icw4Mode8086)
	ioWait()

	p.SetMasks(primaryMask, secondaryMask)
}

// SetMasks updates the interrupt masks of both controllers. A set bit
// disables the corresponding line.
func (p *ControllerPair) SetMasks(primaryMask, secondaryMask uint8) {
	p.primary.data(primaryMask)
	p.secondary.data(secondaryMask)
}

// Handles returns true if vector is raised by one of the two controllers.
func (p *ControllerPair) Handles(vector uint8) bool {
	return p.primary.handles(vector) || p.secondary.handles(vector)
}

// NotifyEndOfInterrupt acknowledges the interrupt with the given vector.
// Interrupts raised by the secondary controller must be acknowledged on both
// controllers. Vectors that neither controller raises are ignored.
func (p *ControllerPair) NotifyEndOfInterrupt(vector uint8) {
	if !p.Handles(vector) {
		return
	}

	if p.secondary.handles(vector) {
		p.secondary.command(cmdEndOfInterrupt)
	}
	p.primary.command(cmdEndOfInterrupt)
}

func ioWait() {
	portWriteByteFn(ioWaitPort, 0)
}
