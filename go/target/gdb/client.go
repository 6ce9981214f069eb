// Package gdb is a target backed by a remote gdb stub, such as OpenOCD,
// QEMU or the avatar gdbstub.
package gdb

import (
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/avatarproxy/avatar/go/debug"
	"github.com/avatarproxy/avatar/go/models"
	"github.com/avatarproxy/avatar/go/models/cpu"
	"github.com/avatarproxy/avatar/go/target"
)

// Client speaks the remote serial protocol. Calls are serialized.
type Client struct {
	sync.Mutex
	conn *debug.Conn
	rw   io.ReadWriter
	arch *models.Arch
	log  zerolog.Logger
}

var _ models.Target = (*Client)(nil)
var _ cpu.Memory = (*Client)(nil)

func NewClient(rw io.ReadWriter, arch *models.Arch, log zerolog.Logger) *Client {
	conn := debug.NewConn(rw)
	conn.ExpandRLE = true
	conn.Log = log
	return &Client{conn: conn, rw: rw, arch: arch, log: log}
}

// Dial connects to a stub at addr and negotiates features.
func Dial(addr string, log zerolog.Logger) (*Client, error) {
	c, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to gdb stub")
	}
	client := NewClient(c, models.Arm, log)
	if _, err := client.Supported(); err != nil {
		c.Close()
		return nil, err
	}
	return client, nil
}

func init() {
	target.Register("gdb", func(cfg *models.Config, log zerolog.Logger) (models.Target, error) {
		if cfg.Remote == "" {
			return nil, errors.New("gdb target needs a remote address")
		}
		return Dial(cfg.Remote, log)
	})
}

func (c *Client) Close() error {
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// request sends one packet and waits for the reply, collecting console
// output packets ("O...") along the way.
func (c *Client) request(pkt string) (string, string, error) {
	c.Lock()
	defer c.Unlock()
	if err := c.conn.WritePacket(pkt); err != nil {
		return "", "", err
	}
	var console strings.Builder
	for {
		resp, err := c.conn.ReadPacket()
		if err != nil {
			return "", "", errors.Wrap(err, "gdb read failed")
		}
		if len(resp) > 1 && resp[0] == 'O' && resp != "OK" {
			out, err := hex.DecodeString(resp[1:])
			if err == nil {
				console.Write(out)
				continue
			}
		}
		if len(resp) == 3 && resp[0] == 'E' {
			return "", console.String(), errors.Errorf("gdb error %s for %q", resp[1:], pkt)
		}
		return resp, console.String(), nil
	}
}

func (c *Client) Supported() (string, error) {
	resp, _, err := c.request("qSupported")
	return resp, err
}

// MemRead reads a raw byte range with one m packet.
func (c *Client) MemRead(addr, size uint64) ([]byte, error) {
	resp, _, err := c.request(fmt.Sprintf("m%x,%x", addr, size))
	if err != nil {
		return nil, err
	}
	mem, err := hex.DecodeString(resp)
	if err != nil {
		return nil, errors.Wrap(err, "bad memory reply")
	}
	if uint64(len(mem)) != size {
		return nil, errors.Errorf("short memory read at %#x: %d < %d", addr, len(mem), size)
	}
	return mem, nil
}

func (c *Client) MemWrite(addr uint64, p []byte) error {
	resp, _, err := c.request(fmt.Sprintf("M%x,%x:%s", addr, len(p), hex.EncodeToString(p)))
	if err == nil && resp != "OK" {
		err = errors.Errorf("unexpected write reply %q", resp)
	}
	return err
}

func (c *Client) ReadTypedMemory(addr uint64, size int) (uint64, error) {
	if !models.ValidSize(size) {
		return 0, errors.Errorf("invalid read size %d", size)
	}
	return cpu.ReadTyped(c, c.arch.Order, addr, size)
}

func (c *Client) WriteTypedMemory(addr uint64, size int, value uint64) error {
	if !models.ValidSize(size) {
		return errors.Errorf("invalid write size %d", size)
	}
	return cpu.WriteTyped(c, c.arch.Order, addr, size, value)
}

func (c *Client) regnum(name string) (int, error) {
	num, ok := c.arch.GdbReg(name)
	if !ok {
		return 0, errors.Errorf("invalid register %q", name)
	}
	return num, nil
}

func (c *Client) GetRegister(name string) (uint64, error) {
	num, err := c.regnum(name)
	if err != nil {
		return 0, err
	}
	resp, _, err := c.request(fmt.Sprintf("p%x", num))
	if err != nil {
		return 0, err
	}
	raw, err := hex.DecodeString(resp)
	if err != nil || len(raw) == 0 || len(raw) > 8 {
		return 0, errors.Errorf("bad register reply %q", resp)
	}
	return cpu.UnpackUint(c.arch.Order, len(raw), raw)
}

func (c *Client) SetRegister(name string, value uint64) error {
	num, err := c.regnum(name)
	if err != nil {
		return err
	}
	raw, _ := cpu.PackUint(c.arch.Order, c.arch.GdbSize(num), nil, value)
	resp, _, err := c.request(fmt.Sprintf("P%x=%s", num, hex.EncodeToString(raw)))
	if err == nil && resp != "OK" {
		err = errors.Errorf("unexpected register write reply %q", resp)
	}
	return err
}

// Cont resumes the target and waits for the next stop reply.
func (c *Client) Cont() error {
	resp, _, err := c.request("c")
	if err != nil {
		return err
	}
	if resp == "" || (resp[0] != 'S' && resp[0] != 'T' && resp[0] != 'W') {
		return errors.Errorf("unexpected stop reply %q", resp)
	}
	return nil
}

// CRC asks the stub for the gdb CRC32 of a range.
func (c *Client) CRC(addr, size uint64) (uint32, error) {
	resp, _, err := c.request(fmt.Sprintf("qCRC:%x,%x", addr, size))
	if err != nil {
		return 0, err
	}
	if !strings.HasPrefix(resp, "C") {
		return 0, errors.Errorf("unexpected crc reply %q", resp)
	}
	crc, err := strconv.ParseUint(resp[1:], 16, 32)
	return uint32(crc), errors.Wrap(err, "bad crc reply")
}

// ExecuteGdbCommand maps the checksum query onto qCRC and sends everything
// else to the stub as a monitor command.
func (c *Client) ExecuteGdbCommand(cmd string) (string, error) {
	fields := strings.Fields(cmd)
	if len(fields) == 5 && strings.Join(fields[:3], " ") == "-gdb-show remote checksum" {
		addr, err := models.ParseHex(fields[3])
		if err != nil {
			return "", err
		}
		size, err := models.ParseHex(fields[4])
		if err != nil {
			return "", err
		}
		crc, err := c.CRC(addr, size)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%08x", crc), nil
	}
	cmd = strings.TrimPrefix(cmd, "monitor ")
	resp, out, err := c.request("qRcmd," + hex.EncodeToString([]byte(cmd)))
	if err != nil {
		return out, err
	}
	if resp != "OK" && resp != "" {
		// some stubs reply with the output directly
		if raw, err := hex.DecodeString(resp); err == nil {
			out += string(raw)
		}
	}
	return strings.TrimRight(out, "\n"), nil
}
