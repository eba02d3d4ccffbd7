package keyboard

const (
	scancodeRelease    = 0x80
	scancodeExtended   = 0xe0
	scancodeLeftShift  = 0x2a
	scancodeRightShift = 0x36
	scancodeCapsLock   = 0x3a
)

// Scancode set 1 make codes mapped to a US layout; zero entries produce no
// character.
const (
	keymapLower = "\x00\x1b1234567890-=\b\tqwertyuiop[]\n\x00asdfghjkl;'`\x00\\zxcvbnm,./\x00*\x00 "
	keymapUpper = "\x00\x1b!@#$%^&*()_+\b\tQWERTYUIOP{}\n\x00ASDFGHJKL:\"~\x00|ZXCVBNM<>?\x00*\x00 "
)

// Decoder translates scancode set 1 bytes into ASCII characters while
// tracking the shift and caps lock state.
type Decoder struct {
	shift    bool
	capsLock bool
	extended bool
}

// Decode feeds a scancode to the decoder. It returns the decoded character and
// true if the scancode completes a key press that maps to a character.
func (d *Decoder) Decode(code uint8) (byte, bool) {
	if code == scancodeExtended {
		d.extended = true
		return 0, false
	}

	// Extended keys (arrows, keypad enter, right ctrl/alt) are not mapped.
	if d.extended {
		d.extended = false
		return 0, false
	}

	released := code&scancodeRelease != 0
	code &^= scancodeRelease

	switch code {
	case scancodeLeftShift, scancodeRightShift:
		d.shift = !released
		return 0, false
	case scancodeCapsLock:
		if !released {
			d.capsLock = !d.capsLock
		}
		return 0, false
	}

	if released || int(code) >= len(keymapLower) {
		return 0, false
	}

	ch := keymapLower[code]
	upper := d.shift
	if d.capsLock && ch >= 'a' && ch <= 'z' {
		upper = !upper
	}
	if upper {
		ch = keymapUpper[code]
	}

	return ch, ch != 0
}
