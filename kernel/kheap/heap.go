// Package kheap implements the kernel heap: a first-fit free list allocator
// that carves blocks out of a pre-mapped virtual memory region.
//
// Every block starts with a header that records the payload size, a used flag
// and, for free blocks, the address of the next free block. Freed blocks are
// pushed to the head of the free list and are never merged with their
// neighbors.
package kheap

import (
	"unsafe"

	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/kfmt"
	"github.com/sebastos1/osdev/kernel/sync"
)

const (
	// chunkSize is the allocation granularity and the minimum alignment of
	// every payload.
	chunkSize = 16

	// headerSize is the size of a block header; payloads start right after
	// it.
	headerSize = unsafe.Sizeof(header{})

	// headerMagic tags valid headers.
	headerMagic = uintptr(0x6b686561705f6864)
)

var (
	// panicFn is mocked by tests.
	panicFn = kfmt.Panic

	errInvalidHeapRange  = &kernel.Error{Module: "kheap", Message: "heap range is too small or not aligned"}
	errUnownedFree       = &kernel.Error{Module: "kheap", Message: "freed address does not belong to an allocated block"}
	errCorruptedFreeList = &kernel.Error{Module: "kheap", Message: "free list points outside the heap"}
)

type header struct {
	// size of the payload that follows the header.
	size uintptr

	// next is the address of the next free block header or 0. It is only
	// meaningful while the block is free.
	next uintptr

	used  uintptr
	magic uintptr
}

// HeapStats describes the heap utilization.
type HeapStats struct {
	// Size is the total size of the heap region in bytes.
	Size uintptr

	// FreeBytes is the sum of the payload sizes of all free blocks.
	FreeBytes uintptr

	// FreeBlocks is the length of the free list.
	FreeBlocks int

	// UsedBlocks is the number of outstanding allocations.
	UsedBlocks int
}

// Heap is a free list allocator over the region [start, end).
type Heap struct {
	irqLock sync.IRQSpinlock

	// lock guards the fields below. It points to irqLock so the heap can
	// be used from interrupt handlers; tests swap it for a plain
	// Spinlock.
	lock interface {
		Acquire()
		Release()
	}

	start, end uintptr
	head       uintptr
	usedBlocks int
}

// Init installs a single free block that spans the region [start,
// start+size). The region must already be mapped and start must be aligned
// to chunkSize.
func (h *Heap) Init(start, size uintptr) *kernel.Error {
	size &^= chunkSize - 1
	if start&(chunkSize-1) != 0 || size < headerSize+chunkSize || start+size < start {
		return errInvalidHeapRange
	}

	h.lock = &h.irqLock
	h.start, h.end = start, start+size
	h.head = start
	h.usedBlocks = 0

	*(*header)(unsafe.Pointer(start)) = header{
		size:  size - headerSize,
		magic: headerMagic,
	}

	return nil
}

// headerAt returns the header stored at addr after checking that a header at
// that address lies entirely within the heap and is chunk-aligned.
func (h *Heap) headerAt(addr uintptr) *header {
	if addr < h.start || addr >= h.end || h.end-addr < headerSize || (addr-h.start)&(chunkSize-1) != 0 {
		return nil
	}

	return (*header)(unsafe.Pointer(addr))
}

// Alloc returns the address of a zeroed block of at least size bytes whose
// address is a multiple of align. Alignments below chunkSize are raised to
// chunkSize; align must be a power of two. Alloc returns 0 if no free block
// is large enough.
func (h *Heap) Alloc(size, align uintptr) uintptr {
	if align < chunkSize {
		align = chunkSize
	}
	if h.lock == nil || align&(align-1) != 0 || size > h.end-h.start {
		return 0
	}

	payloadSize := (size + chunkSize - 1) &^ (chunkSize - 1)
	if payloadSize == 0 {
		payloadSize = chunkSize
	}

	h.lock.Acquire()
	defer h.lock.Release()

	var prev *header
	for addr := h.head; addr != 0; {
		node := h.headerAt(addr)
		if node == nil || node.magic != headerMagic {
			panicFn(errCorruptedFreeList)
			return 0
		}

		if node.size >= payloadSize {
			payload := allocFrom(addr, node, payloadSize, align)
			if payload != 0 {
				// allocFrom returns the node payload when the whole
				// node is consumed; take it off the list.
				if payload == addr+headerSize {
					if prev == nil {
						h.head = node.next
					} else {
						prev.next = node.next
					}
					node.next = 0
				}

				h.usedBlocks++
				kernel.Memset(payload, 0, payloadSize)
				return payload
			}
		}

		prev, addr = node, node.next
	}

	return 0
}

// allocFrom tries to satisfy an allocation from the free block at nodeAddr.
// The block is split if a new header and at least one chunk can stay behind;
// the allocated part is then carved from the tail of the block. Otherwise the
// entire block is used if its payload has the requested alignment.
func allocFrom(nodeAddr uintptr, node *header, payloadSize, align uintptr) uintptr {
	var (
		nodePayload = nodeAddr + headerSize
		nodeEnd     = nodePayload + node.size
		payload     = (nodeEnd - payloadSize) &^ (align - 1)
	)

	if payload >= nodePayload && payload-nodePayload >= headerSize+chunkSize {
		blockAddr := payload - headerSize
		*(*header)(unsafe.Pointer(blockAddr)) = header{
			size:  nodeEnd - payload,
			used:  1,
			magic: headerMagic,
		}
		node.size = blockAddr - nodePayload
		return payload
	}

	if nodePayload&(align-1) == 0 {
		node.used = 1
		return nodePayload
	}

	return 0
}

// Free returns the block whose payload starts at ptr to the free list.
// Passing an address that was not returned by Alloc, or freeing a block
// twice, is an assertion.
func (h *Heap) Free(ptr uintptr) {
	if h.lock == nil {
		panicFn(errUnownedFree)
		return
	}

	h.lock.Acquire()
	defer h.lock.Release()

	var block *header
	if ptr >= h.start+headerSize {
		block = h.headerAt(ptr - headerSize)
	}

	if block == nil || block.magic != headerMagic || block.used != 1 {
		panicFn(errUnownedFree)
		return
	}

	block.used = 0
	block.next = h.head
	h.head = ptr - headerSize
	h.usedBlocks--
}

// Stats returns the current heap utilization.
func (h *Heap) Stats() HeapStats {
	if h.lock == nil {
		return HeapStats{}
	}

	h.lock.Acquire()
	defer h.lock.Release()

	stats := HeapStats{
		Size:       h.end - h.start,
		UsedBlocks: h.usedBlocks,
	}

	for addr := h.head; addr != 0; {
		node := h.headerAt(addr)
		if node == nil {
			break
		}

		stats.FreeBlocks++
		stats.FreeBytes += node.size
		addr = node.next
	}

	return stats
}
