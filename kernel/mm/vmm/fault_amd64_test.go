package vmm

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/sebastos1/osdev/kernel/gate"
	"github.com/sebastos1/osdev/kernel/kfmt"
)

func TestPageFaultHandler(t *testing.T) {
	defer func(origReadCR2 func() uint64) {
		kfmt.SetOutputSink(nil)
		readCR2Fn = origReadCR2
	}(readCR2Fn)

	var panicErr interface{}
	defer mockPanic(&panicErr)()

	specs := []struct {
		errCode   uint64
		expReason string
	}{
		{0, "read from non-present page"},
		{1, "page protection violation (read)"},
		{2, "write to non-present page"},
		{3, "page protection violation (write)"},
		{4, "read from non-present page in user-mode"},
		{7, "page protection violation (write) in user-mode"},
		{8, "page table has reserved bit set"},
		{16, "instruction fetch from non-executable page"},
		{17, "instruction fetch from non-executable page"},
	}

	readCR2Fn = func() uint64 { return 0xbadf00d000 }

	var (
		regs gate.Registers
		buf  bytes.Buffer
	)

	kfmt.SetOutputSink(&buf)
	for specIndex, spec := range specs {
		t.Run(fmt.Sprint(specIndex), func(t *testing.T) {
			buf.Reset()
			panicErr = nil

			regs.Info = spec.errCode
			pageFaultHandler(&regs)

			if panicErr != errUnrecoverableFault {
				t.Fatalf("expected panic with errUnrecoverableFault; got %v", panicErr)
			}

			got := buf.String()
			if !strings.Contains(got, "0x000000badf00d000") {
				t.Errorf("expected output to include the faulting address; got:\n%s", got)
			}

			if exp := "Reason: " + spec.expReason + "\n"; !strings.Contains(got, exp) {
				t.Errorf("expected output to contain %q; got:\n%s", exp, got)
			}

			if !strings.Contains(got, "Registers:\nRAX = ") {
				t.Errorf("expected output to include a register dump; got:\n%s", got)
			}
		})
	}
}

func TestGeneralProtectionFaultHandler(t *testing.T) {
	defer kfmt.SetOutputSink(nil)

	var panicErr interface{}
	defer mockPanic(&panicErr)()

	var (
		regs gate.Registers
		buf  bytes.Buffer
	)

	kfmt.SetOutputSink(&buf)

	regs.Info = 0x18
	generalProtectionFaultHandler(&regs)

	if panicErr != errUnrecoverableFault {
		t.Fatalf("expected panic with errUnrecoverableFault; got %v", panicErr)
	}

	exp := "\nGeneral protection fault (error code: 0x18)\nRegisters:\nRAX = "
	if got := buf.String(); !strings.HasPrefix(got, exp) {
		t.Fatalf("expected output to start with %q; got:\n%s", exp, got)
	}
}

func TestInstallFaultHandlers(t *testing.T) {
	defer func() { handleInterruptFn = gate.HandleInterrupt }()

	installed := make(map[gate.InterruptNumber]uint8)
	handleInterruptFn = func(intNumber gate.InterruptNumber, ist uint8, _ func(*gate.Registers)) {
		installed[intNumber] = ist
	}

	installFaultHandlers()

	for _, intNumber := range []gate.InterruptNumber{gate.PageFaultException, gate.GPFException} {
		ist, ok := installed[intNumber]
		if !ok {
			t.Errorf("expected a handler for interrupt %d to be installed", intNumber)
			continue
		}

		if ist != 0 {
			t.Errorf("expected handler for interrupt %d to use the current stack; got IST %d", intNumber, ist)
		}
	}
}
