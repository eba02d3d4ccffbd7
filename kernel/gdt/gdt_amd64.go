package gdt

import (
	"encoding/binary"
	"unsafe"

	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/kfmt"
)

// Descriptor is an 8-byte GDT entry. System descriptors such as the TSS
// descriptor occupy two consecutive entries.
type Descriptor uint64

const (
	descExecutable       Descriptor = 1 << 43
	descUserSegment      Descriptor = 1 << 44
	descPresent          Descriptor = 1 << 47
	descLongMode         Descriptor = 1 << 53
	descTypeTSSAvailable Descriptor = 0x9 << 40

	// maxDescriptors is the number of 8-byte slots in the GDT.
	maxDescriptors = 8

	// DoubleFaultISTIndex is the interrupt stack table slot that holds the
	// double fault stack.
	DoubleFaultISTIndex = 0
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	lgdtFn           = lgdt
	reloadSegmentsFn = reloadSegments
	ltrFn            = ltr
	panicFn          = kfmt.Panic

	errTableFull = &kernel.Error{Module: "gdt", Message: "descriptor table is full"}

	table Table
	tss   TaskStateSegment

	codeSelector, tssSelector Selector

	// gdtDescriptor holds the 16-bit limit and 64-bit base address that
	// LGDT expects.
	gdtDescriptor [10]byte
)

// KernelCodeSegment returns a present ring 0 code segment descriptor for
// 64-bit mode. Base and limit are ignored in long mode.
func KernelCodeSegment() Descriptor {
	return descUserSegment | descPresent | descExecutable | descLongMode
}

// TSSSegment returns the low and high halves of the system descriptor that
// points to tss.
func TSSSegment(tss *TaskStateSegment) (Descriptor, Descriptor) {
	var (
		base  = uint64(uintptr(unsafe.Pointer(tss)))
		limit = uint64(unsafe.Sizeof(*tss) - 1)
	)

	low := Descriptor(limit&0xffff) |
		Descriptor(base&0xffffff)<<16 |
		descTypeTSSAvailable |
		descPresent |
		Descriptor((limit>>16)&0xf)<<48 |
		Descriptor((base>>24)&0xff)<<56

	return low, Descriptor(base >> 32)
}

// Table is a fixed-size global descriptor table.
type Table struct {
	entries [maxDescriptors]Descriptor
	next    uint16
}

// addUserSegment appends a code or data segment descriptor and returns its
// selector.
func (t *Table) addUserSegment(desc Descriptor) Selector {
	if int(t.next) >= len(t.entries) {
		panicFn(errTableFull)
		return 0
	}

	index := t.next
	t.entries[index] = desc
	t.next++
	return NewSelector(index, Ring0)
}

// addSystemSegment appends a two-slot system descriptor and returns its
// selector.
func (t *Table) addSystemSegment(low, high Descriptor) Selector {
	if int(t.next)+2 > len(t.entries) {
		panicFn(errTableFull)
		return 0
	}

	index := t.next
	t.entries[index] = low
	t.entries[index+1] = high
	t.next += 2
	return NewSelector(index, Ring0)
}

// Build populates the GDT with the null descriptor, the kernel code segment
// and the TSS descriptor, in that order, and returns the code and TSS
// selectors. The double fault stack is stored in IST slot
// DoubleFaultISTIndex; it may be zero and set later via
// SetDoubleFaultStack.
func Build(doubleFaultStackTop uintptr) (Selector, Selector) {
	table = Table{}
	tss.init()
	tss.SetIST(DoubleFaultISTIndex, doubleFaultStackTop)

	table.addUserSegment(0)
	codeSelector = table.addUserSegment(KernelCodeSegment())
	tssSelector = table.addSystemSegment(TSSSegment(&tss))

	return codeSelector, tssSelector
}

// Load activates the GDT populated by Build. It reloads CS through a far
// return, clears the data segment registers and loads the task register.
func Load() {
	binary.LittleEndian.PutUint16(gdtDescriptor[0:], uint16(unsafe.Sizeof(table.entries)-1))
	binary.LittleEndian.PutUint64(gdtDescriptor[2:], uint64(uintptr(unsafe.Pointer(&table.entries[0]))))

	lgdtFn(uintptr(unsafe.Pointer(&gdtDescriptor[0])))
	reloadSegmentsFn(codeSelector)
	ltrFn(tssSelector)
}

// Init builds and loads the GDT. It must run before the IDT is loaded since
// interrupt gates capture the code selector that is active when they are
// installed.
func Init() {
	Build(0)
	Load()

	kfmt.Printf("[gdt] loaded (code selector: 0x%x, tss selector: 0x%x)\n", uint16(codeSelector), uint16(tssSelector))
}

// SetDoubleFaultStack stores stackTop in the IST slot used by the double
// fault handler. The TSS is read by the CPU when the exception fires so the
// slot may be populated after Load.
func SetDoubleFaultStack(stackTop uintptr) {
	tss.SetIST(DoubleFaultISTIndex, stackTop)
	kfmt.Printf("[gdt] double fault stack top: 0x%x\n", tss.IST(DoubleFaultISTIndex))
}

// lgdt loads the GDT described by the pseudo-descriptor at descriptorAddr.
func lgdt(descriptorAddr uintptr)

// reloadSegments loads codeSelector into CS and the null selector into DS,
// ES and SS.
func reloadSegments(codeSelector Selector)

// ltr loads selector into the task register.
func ltr(selector Selector)

// segmentsReloaded is the far-return target used by reloadSegments.
func segmentsReloaded()
