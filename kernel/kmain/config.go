package kmain

import (
	"github.com/sebastos1/osdev/kernel/kfmt"
	"github.com/sebastos1/osdev/multiboot"
)

const (
	defaultTimerHz     = 100
	defaultHeapKb      = 100
	defaultKStackPages = 4

	maxHeapKb      = 1 << 20
	maxKStackPages = 64
)

// bootConfig holds the kernel options that can be set on the boot command
// line using key=value pairs.
type bootConfig struct {
	// timerHz is the PIT interrupt rate. The irq package clamps it to the
	// rates the PIT can generate.
	timerHz uint32

	// heapKb is the kernel heap size in kilobytes.
	heapKb uint32

	// kstackPages is the size of the double fault stack in pages.
	kstackPages uintptr

	// quiet suppresses the memory map dump.
	quiet bool
}

var (
	// activeConfig is populated by parseBootConfig. It is a package-level
	// variable so the command line visitor does not need a closure.
	activeConfig bootConfig

	visitCmdLineFn = multiboot.VisitCmdLine
)

func defaultBootConfig() bootConfig {
	return bootConfig{
		timerHz:     defaultTimerHz,
		heapKb:      defaultHeapKb,
		kstackPages: defaultKStackPages,
	}
}

// parseBootConfig applies the boot command line options on top of the
// defaults. Unknown options are ignored; malformed values keep the default.
func parseBootConfig() bootConfig {
	activeConfig = defaultBootConfig()
	visitCmdLineFn(visitBootOption)

	kfmt.Printf("[kmain] boot config: timer_hz=%d heap_kb=%d kstack_pages=%d quiet=%t\n",
		activeConfig.timerHz, activeConfig.heapKb, uint64(activeConfig.kstackPages), activeConfig.quiet,
	)
	return activeConfig
}

func visitBootOption(key, value string) bool {
	var ok = true

	switch key {
	case "timer_hz":
		activeConfig.timerHz, ok = parseUint32(value, 1, 1<<32-1, activeConfig.timerHz)
	case "heap_kb":
		activeConfig.heapKb, ok = parseUint32(value, 1, maxHeapKb, activeConfig.heapKb)
	case "kstack_pages":
		var pages uint32
		pages, ok = parseUint32(value, 1, maxKStackPages, uint32(activeConfig.kstackPages))
		activeConfig.kstackPages = uintptr(pages)
	case "quiet":
		switch value {
		case key, "1", "true", "on":
			activeConfig.quiet = true
		case "0", "false", "off":
			activeConfig.quiet = false
		default:
			ok = false
		}
	}

	if !ok {
		kfmt.Printf("[kmain] ignoring malformed boot option %s=%s\n", key, value)
	}

	return true
}

// parseUint32 parses a decimal value in the [lo, hi] range. If value is
// malformed or out of range, parseUint32 returns def and false.
func parseUint32(value string, lo, hi, def uint32) (uint32, bool) {
	if len(value) == 0 {
		return def, false
	}

	var res uint64
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch < '0' || ch > '9' {
			return def, false
		}

		res = res*10 + uint64(ch-'0')
		if res > uint64(hi) {
			return def, false
		}
	}

	if res < uint64(lo) {
		return def, false
	}

	return uint32(res), true
}
