package debug

import (
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/avatarproxy/avatar/go/models"
	"github.com/avatarproxy/avatar/go/models/cpu"
)

var errDetached = errors.New("detached")

// packetSize is advertised in qSupported. An 'm' reply is hex, so reads
// are capped at half of it.
const (
	packetSize = 0x4000
	maxMemRead = packetSize / 2
)

// Gdbstub serves a Target to gdb over the remote serial protocol.
type Gdbstub struct {
	Target models.Target
	Arch   *models.Arch
	Log    zerolog.Logger
}

func NewGdbstub(target models.Target, arch *models.Arch, log zerolog.Logger) *Gdbstub {
	return &Gdbstub{Target: target, Arch: arch, Log: log}
}

// Run serves one connection and closes it.
func (d *Gdbstub) Run(c net.Conn) {
	d.Log.Info().Str("remote", c.RemoteAddr().String()).Msg("gdb stub connected")
	if err := d.Serve(c); err != nil {
		d.Log.Error().Err(err).Msg("gdb stub error")
	}
	c.Close()
}

// Serve handles packets until the peer detaches, kills, or disconnects.
func (d *Gdbstub) Serve(rw io.ReadWriter) error {
	c := NewConn(rw)
	c.Log = d.Log
	for {
		pkt, err := c.ReadPacket()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if pkt == "\x03" {
			// execution is synchronous, so the target is already stopped
			continue
		}
		resp, err := d.Handle(pkt)
		if err == errDetached {
			return c.WritePacket("OK")
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		for _, r := range resp {
			if err := c.WritePacket(r); err != nil {
				return err
			}
		}
	}
}

// fill registers have no backing value and are sent as zeros
func (d *Gdbstub) fmtreg(num int, val uint64) (string, error) {
	size := d.Arch.GdbSize(num)
	if _, fill := d.Arch.GdbFill[num]; fill {
		return strings.Repeat("00", size), nil
	}
	p, err := cpu.PackUint(d.Arch.Order, size, nil, val)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(p), nil
}

func errReply(code int) []string {
	return []string{fmt.Sprintf("E%02x", code)}
}

// Handle answers one packet. Replies are returned in send order, usually one.
func (d *Gdbstub) Handle(pkt string) ([]string, error) {
	if pkt == "" {
		return []string{""}, nil
	}
	t, a := d.Target, d.Arch
	b, rest := pkt[0], pkt[1:]
	switch b {
	case '?': // last signal
		return []string{"S05"}, nil
	case 'g': // read regs
		var out strings.Builder
		for num := 0; num <= a.GdbMax(); num++ {
			var val uint64
			if name, ok := a.GdbName(num); ok {
				var err error
				if val, err = t.GetRegister(name); err != nil {
					d.Log.Debug().Err(err).Str("reg", name).Msg("register read failed")
					return errReply(1), nil
				}
			}
			reg, err := d.fmtreg(num, val)
			if err != nil {
				return errReply(1), nil
			}
			out.WriteString(reg)
		}
		return []string{out.String()}, nil
	case 'G': // write regs
		data, err := hex.DecodeString(rest)
		if err != nil {
			return errReply(1), nil
		}
		for num := 0; num <= a.GdbMax() && len(data) > 0; num++ {
			size := a.GdbSize(num)
			if len(data) < size {
				return errReply(1), nil
			}
			if name, ok := a.GdbName(num); ok {
				val, _ := cpu.UnpackUint(a.Order, size, data)
				if err := t.SetRegister(name, val); err != nil {
					return errReply(1), nil
				}
			}
			data = data[size:]
		}
		return []string{"OK"}, nil
	case 'p': // read one reg
		num, err := strconv.ParseUint(rest, 16, 16)
		if err != nil {
			return errReply(1), nil
		}
		var val uint64
		if name, ok := a.GdbName(int(num)); ok {
			if val, err = t.GetRegister(name); err != nil {
				return errReply(1), nil
			}
		} else if _, fill := a.GdbFill[int(num)]; !fill {
			return errReply(1), nil
		}
		reg, err := d.fmtreg(int(num), val)
		if err != nil {
			return errReply(1), nil
		}
		return []string{reg}, nil
	case 'P': // write one reg
		tmp := strings.SplitN(rest, "=", 2)
		if len(tmp) != 2 {
			return errReply(1), nil
		}
		num, err := strconv.ParseUint(tmp[0], 16, 16)
		if err != nil {
			return errReply(1), nil
		}
		name, ok := a.GdbName(int(num))
		if !ok {
			return errReply(1), nil
		}
		raw, err := hex.DecodeString(tmp[1])
		if err != nil || len(raw) > 8 {
			return errReply(1), nil
		}
		val, _ := cpu.UnpackUint(a.Order, len(raw), raw)
		if err := t.SetRegister(name, val); err != nil {
			return errReply(1), nil
		}
		return []string{"OK"}, nil
	case 'm': // read memory
		addr, size, err := ParseRange(rest)
		if err != nil || size > maxMemRead || models.CheckRange(addr, size) != nil {
			return errReply(1), nil
		}
		mem, err := models.ReadMemory(t, a.Order, addr, size)
		if err != nil {
			d.Log.Debug().Err(err).Msg("memory read failed")
			return errReply(14), nil
		}
		return []string{hex.EncodeToString(mem)}, nil
	case 'M': // write memory
		tmp := strings.SplitN(rest, ":", 2)
		if len(tmp) != 2 {
			return errReply(1), nil
		}
		addr, size, err := ParseRange(tmp[0])
		if err != nil {
			return errReply(1), nil
		}
		data, err := hex.DecodeString(tmp[1])
		if err != nil || uint64(len(data)) != size || models.CheckRange(addr, size) != nil {
			return errReply(1), nil
		}
		if err := models.WriteMemory(t, a.Order, addr, data); err != nil {
			d.Log.Debug().Err(err).Msg("memory write failed")
			return errReply(14), nil
		}
		return []string{"OK"}, nil
	case 'c': // continue
		if err := t.Cont(); err != nil {
			d.Log.Debug().Err(err).Msg("continue failed")
			return errReply(1), nil
		}
		return []string{"S05"}, nil
	case 'H', 'T': // thread ops
		return []string{"OK"}, nil
	case 'D': // detach
		return nil, errDetached
	case 'k': // kill
		return nil, io.EOF
	case 'q':
		return d.query(rest)
	}
	d.Log.Debug().Str("packet", pkt).Msg("unknown command")
	return []string{""}, nil
}

func (d *Gdbstub) query(q string) ([]string, error) {
	cmd, args := q, ""
	if i := strings.IndexAny(q, ":,"); i >= 0 {
		cmd, args = q[:i], q[i+1:]
	}
	switch cmd {
	case "Supported":
		return []string{fmt.Sprintf("PacketSize=%x", packetSize)}, nil
	case "Attached":
		return []string{"1"}, nil
	case "C":
		return []string{"QC1"}, nil
	case "fThreadInfo":
		return []string{"m1"}, nil
	case "sThreadInfo":
		return []string{"l"}, nil
	case "Symbol":
		return []string{"OK"}, nil
	case "CRC":
		addr, size, err := ParseRange(args)
		if err != nil || models.CheckRange(addr, size) != nil {
			return errReply(1), nil
		}
		mem, err := models.ReadMemory(d.Target, d.Arch.Order, addr, size)
		if err != nil {
			return errReply(14), nil
		}
		return []string{fmt.Sprintf("C%08x", CRC32(mem))}, nil
	case "Rcmd":
		raw, err := hex.DecodeString(args)
		if err != nil {
			return errReply(1), nil
		}
		out, err := d.Target.ExecuteGdbCommand(string(raw))
		if err != nil {
			out = err.Error()
		}
		if out == "" {
			return []string{"OK"}, nil
		}
		if !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		return []string{"O" + hex.EncodeToString([]byte(out)), "OK"}, nil
	}
	d.Log.Debug().Str("query", q).Msg("unknown query")
	return []string{""}, nil
}
