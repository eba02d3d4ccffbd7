package console

import (
	"io"
	"unsafe"

	"github.com/sebastos1/osdev/kernel"
	"github.com/sebastos1/osdev/kernel/kfmt"
	"github.com/sebastos1/osdev/multiboot"
)

const (
	// DefaultFramebufferAddr is the physical address of the VGA text mode
	// framebuffer when the bootloader does not report one.
	DefaultFramebufferAddr = uintptr(0xb8000)

	// DefaultColumns and DefaultRows describe VGA mode 0x3.
	DefaultColumns = uint32(80)
	DefaultRows    = uint32(25)

	numColors = 16
)

var (
	getFramebufferInfoFn = multiboot.GetFramebufferInfo

	errNoFramebuffer = &kernel.Error{Module: "vga_text_console", Message: "framebuffer address not set"}
)

// VgaTextConsole implements an EGA-compatible text console using VGA mode
// 0x3. The console supports the 16 default EGA colors.
//
// Each character in the console framebuffer is represented using two bytes,
// a byte for the character ASCII code and a byte that encodes the foreground
// and background colors (4 bits for each).
//
// The default settings for the console are:
//   - light gray text (color 7) on black background (color 0).
//   - space as the clear character
//
// The framebuffer must be reachable at its physical address; the boot page
// tables and the remapped kernel tables both identity-map it.
type VgaTextConsole struct {
	width  uint32
	height uint32

	fbPhysAddr uintptr
	fb         []uint16

	defaultFg uint8
	defaultBg uint8
	clearChar uint16
}

// Init sets up the console geometry and framebuffer address. The framebuffer
// is attached by DriverInit.
func (cons *VgaTextConsole) Init(columns, rows uint32, fbPhysAddr uintptr) {
	cons.width = columns
	cons.height = rows
	cons.fbPhysAddr = fbPhysAddr
	cons.fb = nil
	cons.clearChar = uint16(' ')

	// light gray text on black background
	cons.defaultFg = 7
	cons.defaultBg = 0
}

// Probe initializes cons using the EGA text framebuffer reported by the
// bootloader. If the bootloader reports no framebuffer or a graphics one, the
// console falls back to an 80x25 buffer at 0xb8000 and Probe returns false.
func Probe(cons *VgaTextConsole) bool {
	fbInfo := getFramebufferInfoFn()
	if fbInfo == nil || fbInfo.Type != multiboot.FramebufferTypeEGA {
		cons.Init(DefaultColumns, DefaultRows, DefaultFramebufferAddr)
		return false
	}

	cons.Init(fbInfo.Width, fbInfo.Height, uintptr(fbInfo.PhysAddr))
	return true
}

// Dimensions returns the console width and height in the specified dimension.
func (cons *VgaTextConsole) Dimensions(dim Dimension) (uint32, uint32) {
	switch dim {
	case Characters:
		return cons.width, cons.height
	default:
		return cons.width * 8, cons.height * 16
	}
}

// DefaultColors returns the default foreground and background colors
// used by this console.
func (cons *VgaTextConsole) DefaultColors() (fg uint8, bg uint8) {
	return cons.defaultFg, cons.defaultBg
}

// Fill sets the contents of the specified rectangular region to the requested
// color. Both x and y coordinates are 1-based.
func (cons *VgaTextConsole) Fill(x, y, width, height uint32, fg, bg uint8) {
	var (
		clr                  = (((uint16(bg) << 4) | uint16(fg)) << 8) | cons.clearChar
		rowOffset, colOffset uint32
	)

	// clip rectangle
	if x == 0 {
		x = 1
	} else if x >= cons.width {
		x = cons.width
	}

	if y == 0 {
		y = 1
	} else if y >= cons.height {
		y = cons.height
	}

	if x+width-1 > cons.width {
		width = cons.width - x + 1
	}

	if y+height-1 > cons.height {
		height = cons.height - y + 1
	}

	rowOffset = ((y - 1) * cons.width) + (x - 1)
	for ; height > 0; height, rowOffset = height-1, rowOffset+cons.width {
		for colOffset = rowOffset; colOffset < rowOffset+width; colOffset++ {
			cons.fb[colOffset] = clr
		}
	}
}

// Scroll the console contents to the specified direction. The caller
// is responsible for updating (e.g. clear or replace) the contents of
// the region that was scrolled.
func (cons *VgaTextConsole) Scroll(dir ScrollDir, lines uint32) {
	if lines == 0 || lines > cons.height {
		return
	}

	var i uint32
	offset := lines * cons.width

	switch dir {
	case ScrollDirUp:
		for ; i < (cons.height-lines)*cons.width; i++ {
			cons.fb[i] = cons.fb[i+offset]
		}
	case ScrollDirDown:
		for i = cons.height*cons.width - 1; i >= lines*cons.width; i-- {
			cons.fb[i] = cons.fb[i-offset]
		}
	}
}

// Write a char to the specified location. If fg or bg exceed the supported
// colors for this console, they will be set to their default value. Both x and
// y coordinates are 1-based
func (cons *VgaTextConsole) Write(ch byte, fg, bg uint8, x, y uint32) {
	if x < 1 || x > cons.width || y < 1 || y > cons.height {
		return
	}

	if fg >= numColors {
		fg = cons.defaultFg
	}
	if bg >= numColors {
		bg = cons.defaultBg
	}

	cons.fb[((y-1)*cons.width)+(x-1)] = (((uint16(bg) << 4) | uint16(fg)) << 8) | uint16(ch)
}

// DriverName returns the name of this driver.
func (cons *VgaTextConsole) DriverName() string {
	return "vga_text_console"
}

// DriverVersion returns the version of this driver.
func (cons *VgaTextConsole) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit overlays the console framebuffer on top of its physical address.
func (cons *VgaTextConsole) DriverInit(w io.Writer) *kernel.Error {
	if cons.fbPhysAddr == 0 {
		return errNoFramebuffer
	}

	cons.fb = unsafe.Slice((*uint16)(unsafe.Pointer(cons.fbPhysAddr)), cons.width*cons.height)

	kfmt.Fprintf(w, "framebuffer at 0x%x (%dx%d)\n", cons.fbPhysAddr, cons.width, cons.height)
	return nil
}
