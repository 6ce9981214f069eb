package sim

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"sort"

	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/avatarproxy/avatar/go/debug"
	"github.com/avatarproxy/avatar/go/models"
	"github.com/avatarproxy/avatar/go/models/cpu"
)

// snapshot format, all big endian:
//
// header
//   "AVSS", uint32(version), uint32(gdb crc32 of body), uint64(body length)
// body, snappy stream compressed
//   uint32(register count), uint32(page count)
//   1..regs: uint8(name length), name, uint64(value)
//   1..pages: uint64(addr), uint64(size), uint32(prot), uint16(desc length), desc, <size bytes>

const (
	snapMagic   = "AVSS"
	snapVersion = 1

	snapHeaderSize = 20
	// upper bound for the compressed and the decompressed body
	snapMaxSize = 1 << 30
)

type snapHeader struct {
	Magic   string `struc:"[4]byte"`
	Version uint32
	Crc     uint32
	Length  uint64
}

type snapCounts struct {
	Regs  uint32
	Pages uint32
}

type snapReg struct {
	NameLen int `struc:"uint8,sizeof=Name"`
	Name    string
	Value   uint64
}

// page contents follow the header on the stream
type snapPageHead struct {
	Addr    uint64
	Size    uint64
	Prot    uint32
	DescLen int `struc:"uint16,sizeof=Desc"`
	Desc    string
}

type snapPage struct {
	snapPageHead
	Data []byte
}

// Save writes registers and mapped memory to w.
func (t *Target) Save(w io.Writer) error {
	ctx := t.Regs.ContextSave(nil)
	var regs []snapReg
	for _, name := range t.Regs.Names() {
		regs = append(regs, snapReg{Name: name, Value: ctx[name]})
	}
	var pages []snapPage
	for _, p := range t.Mem.Mappings() {
		pages = append(pages, snapPage{
			snapPageHead: snapPageHead{Addr: p.Addr, Size: p.Size, Prot: uint32(p.Prot), Desc: p.Desc},
			Data:         p.Data,
		})
	}
	return writeSnapshot(w, regs, pages)
}

func writeSnapshot(w io.Writer, regs []snapReg, pages []snapPage) error {
	var zbuf bytes.Buffer
	s := models.NewStrucStream(&zbuf, binary.BigEndian)
	s.Pack(&snapCounts{Regs: uint32(len(regs)), Pages: uint32(len(pages))})
	for i := range regs {
		s.Pack(&regs[i])
	}
	for i := range pages {
		if s.Pack(&pages[i].snapPageHead) == nil {
			zbuf.Write(pages[i].Data)
		}
	}
	if err := s.Err(); err != nil {
		return err
	}
	var body bytes.Buffer
	z := snappy.NewBufferedWriter(&body)
	if _, err := zbuf.WriteTo(z); err != nil {
		return errors.Wrap(err, "snapshot compression failed")
	}
	if err := z.Close(); err != nil {
		return errors.Wrap(err, "snapshot compression failed")
	}

	var head bytes.Buffer
	hs := models.NewStrucStream(&head, binary.BigEndian)
	hs.Pack(&snapHeader{
		Magic:   snapMagic,
		Version: snapVersion,
		Crc:     debug.CRC32(body.Bytes()),
		Length:  uint64(body.Len()),
	})
	if err := hs.Err(); err != nil {
		return err
	}
	if _, err := head.WriteTo(w); err != nil {
		return errors.Wrap(err, "snapshot write failed")
	}
	_, err := body.WriteTo(w)
	return errors.Wrap(err, "snapshot write failed")
}

// Restore replaces registers and memory with a snapshot written by Save.
func (t *Target) Restore(r io.Reader) error {
	raw := make([]byte, snapHeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return errors.Wrap(err, "snapshot truncated")
	}
	var head snapHeader
	if err := models.NewStrucStream(bytes.NewBuffer(raw), binary.BigEndian).Unpack(&head); err != nil {
		return err
	}
	if head.Magic != snapMagic {
		return errors.New("not a snapshot")
	}
	if head.Version != snapVersion {
		return errors.Errorf("unsupported snapshot version %d", head.Version)
	}
	if head.Length > snapMaxSize {
		return errors.Errorf("snapshot body too large: %d bytes", head.Length)
	}
	body, err := io.ReadAll(io.LimitReader(r, int64(head.Length)))
	if err != nil {
		return errors.Wrap(err, "snapshot read failed")
	}
	if uint64(len(body)) != head.Length {
		return errors.New("snapshot truncated")
	}
	if crc := debug.CRC32(body); crc != head.Crc {
		return errors.Errorf("snapshot crc mismatch: %08x != %08x", crc, head.Crc)
	}
	data, err := io.ReadAll(io.LimitReader(snappy.NewReader(bytes.NewReader(body)), snapMaxSize+1))
	if err != nil {
		return errors.Wrap(err, "snapshot decompression failed")
	}
	if len(data) > snapMaxSize {
		return errors.New("snapshot body too large")
	}
	buf := bytes.NewBuffer(data)
	s := models.NewStrucStream(buf, binary.BigEndian)

	var counts snapCounts
	if err := s.Unpack(&counts); err != nil {
		return err
	}
	regs := make(map[string]uint64)
	for i := uint32(0); i < counts.Regs; i++ {
		var reg snapReg
		if err := s.Unpack(&reg); err != nil {
			return err
		}
		regs[reg.Name] = reg.Value
	}
	var pages []snapPage
	for i := uint32(0); i < counts.Pages; i++ {
		var p snapPage
		if err := s.Unpack(&p.snapPageHead); err != nil {
			return err
		}
		if p.Size > uint64(buf.Len()) {
			return errors.Errorf("snapshot page %#x truncated", p.Addr)
		}
		p.Data = buf.Next(int(p.Size))
		pages = append(pages, p)
	}
	if err := t.checkPages(pages); err != nil {
		return err
	}
	// nothing below can fail once the pages and registers are validated
	if err := t.Regs.ContextRestore(regs); err != nil {
		return err
	}
	for _, p := range t.Mem.Mappings() {
		t.Mem.MemUnmap(p.Addr, p.Size)
	}
	for _, p := range pages {
		if _, err := t.Mem.MemMapDesc(p.Addr, p.Size, int(p.Prot), p.Desc); err != nil {
			return err
		}
		if err := t.Mem.MemWrite(p.Addr, p.Data); err != nil {
			return err
		}
	}
	return nil
}

// checkPages rejects empty, out of range and overlapping pages. It sorts pages by address.
func (t *Target) checkPages(pages []snapPage) error {
	mask := ^uint64(0) >> (64 - t.Mem.Bits())
	sort.Slice(pages, func(i, j int) bool { return pages[i].Addr < pages[j].Addr })
	for i, p := range pages {
		end := p.Addr + p.Size
		if p.Size == 0 || end < p.Addr || end-1 > mask {
			return errors.Errorf("snapshot page %#x+%#x out of range", p.Addr, p.Size)
		}
		if uint64(len(p.Data)) != p.Size {
			return errors.Errorf("snapshot page %#x has %d data bytes", p.Addr, len(p.Data))
		}
		if p.Prot&^uint32(cpu.PROT_ALL) != 0 {
			return errors.Errorf("snapshot page %#x has invalid prot %#x", p.Addr, p.Prot)
		}
		if i > 0 && pages[i-1].Addr+pages[i-1].Size > p.Addr {
			return errors.Errorf("snapshot pages %#x and %#x overlap", pages[i-1].Addr, p.Addr)
		}
	}
	return nil
}

func (t *Target) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create snapshot")
	}
	if err := t.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (t *Target) RestoreFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open snapshot")
	}
	defer f.Close()
	return t.Restore(f)
}
