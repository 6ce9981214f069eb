package sim

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/avatarproxy/avatar/go/models"
	"github.com/avatarproxy/avatar/go/models/cpu"
)

func page(addr uint64, data []byte) snapPage {
	return snapPage{
		snapPageHead: snapPageHead{Addr: addr, Size: uint64(len(data)), Prot: cpu.PROT_ALL, Desc: "ram"},
		Data:         data,
	}
}

// expects Restore to fail and leave target untouched
func restoreFails(t *testing.T, name string, target *Target, snap []byte) {
	pc, _ := target.GetRegister("pc")
	before := target.Mem.Mappings()
	if err := target.Restore(bytes.NewReader(snap)); err == nil {
		t.Fatalf("%s: snapshot accepted", name)
	}
	if after, _ := target.GetRegister("pc"); after != pc {
		t.Errorf("%s: pc changed to %#x", name, after)
	}
	after := target.Mem.Mappings()
	if len(after) != len(before) {
		t.Fatalf("%s: mappings changed:\n%s", name, after)
	}
	for i := range after {
		if after[i].Addr != before[i].Addr || after[i].Size != before[i].Size {
			t.Fatalf("%s: mappings changed:\n%s", name, after)
		}
	}
}

func TestRestoreHugeLength(t *testing.T) {
	target := newTarget(t)
	var head bytes.Buffer
	models.NewStrucStream(&head, binary.BigEndian).Pack(&snapHeader{
		Magic:   snapMagic,
		Version: snapVersion,
		Length:  1 << 62,
	})
	restoreFails(t, "huge length", target, head.Bytes())

	// plausible length, but the body is missing
	head.Reset()
	models.NewStrucStream(&head, binary.BigEndian).Pack(&snapHeader{
		Magic:   snapMagic,
		Version: snapVersion,
		Length:  1 << 20,
	})
	restoreFails(t, "short body", target, head.Bytes())
}

func TestRestoreValidatesPages(t *testing.T) {
	target := newTarget(t)
	target.SetRegister("pc", 0x42)
	regs := []snapReg{{Name: "pc", Value: 0x100}}
	cases := map[string][]snapPage{
		"overlap":      {page(0x1000, make([]byte, 0x100)), page(0x1080, make([]byte, 0x10))},
		"past 4g":      {page(0xfffffff0, make([]byte, 0x20))},
		"empty":        {page(0x1000, nil)},
		"bad prot":     {{snapPageHead: snapPageHead{Addr: 0x1000, Size: 4, Prot: 0x80}, Data: make([]byte, 4)}},
		"good and bad": {page(0x3000, []byte("ok")), page(0x100000000, []byte("high"))},
	}
	for name, pages := range cases {
		var buf bytes.Buffer
		if err := writeSnapshot(&buf, regs, pages); err != nil {
			t.Fatal(err)
		}
		restoreFails(t, name, target, buf.Bytes())
	}

	var buf bytes.Buffer
	if err := writeSnapshot(&buf, []snapReg{{Name: "r99", Value: 1}}, []snapPage{page(0x3000, []byte("ok"))}); err != nil {
		t.Fatal(err)
	}
	restoreFails(t, "unknown register", target, buf.Bytes())
}

func TestRestoreUsesPageSizes(t *testing.T) {
	target := newTarget(t)
	// the header claims more page data than the body has
	p := page(0x3000, []byte("abcd"))
	p.Size = 0x1000
	var buf bytes.Buffer
	if err := writeSnapshot(&buf, nil, []snapPage{p}); err != nil {
		t.Fatal(err)
	}
	restoreFails(t, "truncated page", target, buf.Bytes())
}
