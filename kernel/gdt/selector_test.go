package gdt

import "testing"

func TestSelector(t *testing.T) {
	specs := []struct {
		index uint16
		rpl   PrivilegeLevel
		exp   Selector
	}{
		{0, Ring0, 0x00},
		{1, Ring0, 0x08},
		{2, Ring0, 0x10},
		{3, Ring3, 0x1b},
		{0x1fff, Ring3, 0xfffb},
	}

	for specIndex, spec := range specs {
		sel := NewSelector(spec.index, spec.rpl)
		if sel != spec.exp {
			t.Errorf("[spec %d] expected selector to be 0x%x; got 0x%x", specIndex, spec.exp, sel)
		}

		if got := sel.Index(); got != spec.index {
			t.Errorf("[spec %d] expected Index() to return %d; got %d", specIndex, spec.index, got)
		}

		if got := sel.RPL(); got != spec.rpl {
			t.Errorf("[spec %d] expected RPL() to return %d; got %d", specIndex, spec.rpl, got)
		}

		// The table indicator bit always selects the GDT
		if sel&0x4 != 0 {
			t.Errorf("[spec %d] expected table indicator bit to be clear", specIndex)
		}
	}
}
