package pmm

import (
	"testing"

	"github.com/sebastos1/osdev/kernel/mm"
	"github.com/sebastos1/osdev/multiboot"
)

// qemuMemRegions mirrors the memory map reported by qemu with 128M of RAM.
var qemuMemRegions = []multiboot.MemoryMapEntry{
	{PhysAddress: 0, Length: 654336, Type: multiboot.MemAvailable},
	{PhysAddress: 654336, Length: 1024, Type: multiboot.MemReserved},
	{PhysAddress: 983040, Length: 65536, Type: multiboot.MemReserved},
	{PhysAddress: 1048576, Length: 133038080, Type: multiboot.MemAvailable},
	{PhysAddress: 134086656, Length: 131072, Type: multiboot.MemReserved},
	{PhysAddress: 4294705152, Length: 262144, Type: multiboot.MemReserved},
}

func mockMemRegions(regions []multiboot.MemoryMapEntry) func(multiboot.MemRegionVisitor) {
	return func(visitor multiboot.MemRegionVisitor) {
		for i := range regions {
			entry := regions[i]
			if !visitor(&entry) {
				return
			}
		}
	}
}

func TestBumpAllocator(t *testing.T) {
	defer func() {
		visitMemRegionsFn = multiboot.VisitMemRegions
	}()
	visitMemRegionsFn = mockMemRegions(qemuMemRegions)

	specs := []struct {
		kernelStart, kernelEnd uintptr
		infoStart, infoEnd     uintptr
		expAllocCount          uint64
	}{
		{
			// the kernel is loaded in a reserved memory region
			0xa0000, 0xa0000,
			0, 0,
			// region 1 extents get rounded to [0, 9f000] and provides 159 frames [0 to 158]
			// region 2 uses the original extents [100000 - 7fe0000] and provides 32480 frames [256-32735]
			159 + 32480,
		},
		{
			// the kernel is loaded at the beginning of region 1 taking 2.5 pages
			0x0, 0x2800,
			0, 0,
			// frames 0, 1 and 2 (round up kernel end) are used by the kernel
			159 - 3 + 32480,
		},
		{
			// the kernel is loaded at the end of region 1 taking 2.5 pages
			0x9c800, 0x9f000,
			0, 0,
			// frames 156, 157 and 158 (round down kernel start) are used by the kernel
			159 - 3 + 32480,
		},
		{
			// the kernel (after rounding) uses the entire region 1
			0x123, 0x9fc00,
			0, 0,
			32480,
		},
		{
			// the kernel is loaded at region 2 start + 2K taking 1.5 pages
			0x100800, 0x102000,
			0, 0,
			// frames 256 (kernel start rounded down) and 257 are used by the kernel
			159 + 32480 - 2,
		},
		{
			// the kernel occupies the first 1M of region 2 and the
			// multiboot info straddles frames 9 and 10
			0x100000, 0x200000,
			0x9f00, 0xa100,
			159 - 2 + 32480 - 256,
		},
		{
			// kernel and multiboot info ranges overlap
			0x100000, 0x200000,
			0x1ff000, 0x201000,
			159 + 32480 - 257,
		},
	}

	for specIndex, spec := range specs {
		var alloc BumpAllocator
		alloc.Init(spec.kernelStart, spec.kernelEnd, spec.infoStart, spec.infoEnd)

		kernelStartFrame, kernelEndFrame := frameRange(spec.kernelStart, spec.kernelEnd)
		infoStartFrame, infoEndFrame := frameRange(spec.infoStart, spec.infoEnd)

		var lastFrame mm.Frame
		for {
			frame, err := alloc.AllocFrame()
			if err != nil {
				if err != errBootAllocOutOfMemory {
					t.Errorf("[spec %d] [frame %d] unexpected allocator error: %v", specIndex, alloc.AllocCount(), err)
				}
				if frame != mm.InvalidFrame {
					t.Errorf("[spec %d] expected InvalidFrame to be returned on error; got %d", specIndex, frame)
				}
				break
			}

			if !frame.Valid() {
				t.Errorf("[spec %d] [frame %d] expected Valid() to return true", specIndex, alloc.AllocCount())
			}

			if alloc.AllocCount() > 1 && frame <= lastFrame {
				t.Errorf("[spec %d] expected frame %d to be greater than previously allocated frame %d", specIndex, frame, lastFrame)
			}
			lastFrame = frame

			if frame >= kernelStartFrame && frame <= kernelEndFrame {
				t.Errorf("[spec %d] allocated frame %d overlaps the kernel image", specIndex, frame)
			}

			if frame >= infoStartFrame && frame <= infoEndFrame {
				t.Errorf("[spec %d] allocated frame %d overlaps the multiboot info", specIndex, frame)
			}

			if frame.Address() >= 654336 && frame.Address() < 1048576 {
				t.Errorf("[spec %d] allocated frame %d belongs to a reserved region", specIndex, frame)
			}
		}

		if got := alloc.AllocCount(); got != spec.expAllocCount {
			t.Errorf("[spec %d] expected allocator to allocate %d frames; allocated %d", specIndex, spec.expAllocCount, got)
		}

		// Exhausted allocators keep failing
		if _, err := alloc.AllocFrame(); err != errBootAllocOutOfMemory {
			t.Errorf("[spec %d] expected errBootAllocOutOfMemory after exhaustion; got %v", specIndex, err)
		}
	}
}

func TestBumpAllocatorRegionOrder(t *testing.T) {
	defer func() {
		visitMemRegionsFn = multiboot.VisitMemRegions
	}()

	// Regions are not reported in address order; unaligned extents are
	// trimmed to whole frames and sub-page regions are ignored.
	visitMemRegionsFn = mockMemRegions([]multiboot.MemoryMapEntry{
		{PhysAddress: 0x10000, Length: 0x2000, Type: multiboot.MemAvailable},
		{PhysAddress: 0x3000, Length: 0x800, Type: multiboot.MemAvailable},
		{PhysAddress: 0x5800, Length: 0x2000, Type: multiboot.MemAvailable},
		{PhysAddress: 0x1000, Length: 0x1000, Type: multiboot.MemAcpiReclaimable},
	})

	var alloc BumpAllocator
	alloc.Init(0, 0, 0, 0)

	expFrames := []mm.Frame{6, 0x10, 0x11}
	for i, exp := range expFrames {
		got, err := alloc.AllocFrame()
		if err != nil {
			t.Fatalf("[frame %d] unexpected error: %v", i, err)
		}

		if got != exp {
			t.Errorf("[frame %d] expected allocated frame to be %d; got %d", i, exp, got)
		}
	}

	if _, err := alloc.AllocFrame(); err != errBootAllocOutOfMemory {
		t.Fatalf("expected errBootAllocOutOfMemory; got %v", err)
	}
}

func TestBumpAllocatorNoMemory(t *testing.T) {
	defer func() {
		visitMemRegionsFn = multiboot.VisitMemRegions
	}()
	visitMemRegionsFn = mockMemRegions([]multiboot.MemoryMapEntry{
		{PhysAddress: 0, Length: 0x100000, Type: multiboot.MemReserved},
	})

	var alloc BumpAllocator
	alloc.Init(0, 0, 0, 0)

	if frame, err := alloc.AllocFrame(); err != errBootAllocOutOfMemory || frame != mm.InvalidFrame {
		t.Fatalf("expected (InvalidFrame, errBootAllocOutOfMemory); got (%d, %v)", frame, err)
	}
}

func TestFrameRange(t *testing.T) {
	specs := []struct {
		start, end        uintptr
		expFirst, expLast mm.Frame
	}{
		{0, 0, 1, 0},
		{0x2000, 0x1000, 1, 0},
		{0, 1, 0, 0},
		{0x1fff, 0x2001, 1, 2},
		{0x100000, 0x200000, 256, 511},
	}

	for specIndex, spec := range specs {
		first, last := frameRange(spec.start, spec.end)
		if first != spec.expFirst || last != spec.expLast {
			t.Errorf("[spec %d] expected frame range [%d, %d]; got [%d, %d]", specIndex, spec.expFirst, spec.expLast, first, last)
		}
	}
}
