package cpu

import "testing"

func TestEnableNXE(t *testing.T) {
	defer func() {
		readMSRFn = ReadMSR
		writeMSRFn = WriteMSR
	}()

	var (
		msrValue = uint64(0x500)
		writeMSR uint32
	)

	readMSRFn = func(msr uint32) uint64 {
		if msr != msrEFER {
			t.Errorf("expected EnableNXE to read MSR 0x%x; got 0x%x", msrEFER, msr)
		}
		return msrValue
	}
	writeMSRFn = func(msr uint32, val uint64) {
		writeMSR = msr
		msrValue = val
	}

	EnableNXE()

	if writeMSR != msrEFER {
		t.Fatalf("expected EnableNXE to write MSR 0x%x; got 0x%x", msrEFER, writeMSR)
	}

	if exp := uint64(0x500) | eferNXE; msrValue != exp {
		t.Fatalf("expected EFER to be 0x%x; got 0x%x", exp, msrValue)
	}
}

func TestEnableWriteProtect(t *testing.T) {
	defer func() {
		readCR0Fn = ReadCR0
		writeCR0Fn = WriteCR0
	}()

	cr0 := uint64(0x80000011)
	readCR0Fn = func() uint64 { return cr0 }
	writeCR0Fn = func(val uint64) { cr0 = val }

	EnableWriteProtect()

	if exp := uint64(0x80010011); cr0 != exp {
		t.Fatalf("expected CR0 to be 0x%x; got 0x%x", exp, cr0)
	}
}

func TestInterruptsEnabled(t *testing.T) {
	defer func() {
		flagsFn = Flags
	}()

	specs := []struct {
		rflags uint64
		exp    bool
	}{
		{0x0002, false},
		{0x0202, true},
		{0x0246, true},
		{0x0046, false},
	}

	for specIndex, spec := range specs {
		flagsFn = func() uint64 { return spec.rflags }

		if got := InterruptsEnabled(); got != spec.exp {
			t.Errorf("[spec %d] expected InterruptsEnabled to return %t; got %t", specIndex, spec.exp, got)
		}
	}
}
