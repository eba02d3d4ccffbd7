package irq

import "github.com/sebastos1/osdev/kernel/cpu"

type portWrite struct {
	port uint16
	val  uint8
}

// fakePorts records port writes and serves port reads from a map.
type fakePorts struct {
	writes []portWrite
	reads  []uint16
	values map[uint16]uint8
}

func (p *fakePorts) install() func() {
	portWriteByteFn = func(port uint16, val uint8) {
		p.writes = append(p.writes, portWrite{port, val})
	}
	portReadByteFn = func(port uint16) uint8 {
		p.reads = append(p.reads, port)
		return p.values[port]
	}

	return func() {
		portWriteByteFn = cpu.PortWriteByte
		portReadByteFn = cpu.PortReadByte
	}
}

// writesTo returns the values written to port, in order.
func (p *fakePorts) writesTo(port uint16) []uint8 {
	var out []uint8
	for _, w := range p.writes {
		if w.port == port {
			out = append(out, w.val)
		}
	}
	return out
}
