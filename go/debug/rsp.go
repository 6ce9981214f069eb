package debug

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/avatarproxy/avatar/go/models"
)

// Escape applies gdb remote protocol binary escaping.
func Escape(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for _, c := range p {
		if c == '#' || c == '$' || c == '}' || c == '*' {
			out = append(out, '}', c^0x20)
		} else {
			out = append(out, c)
		}
	}
	return out
}

func Unescape(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		if p[i] == '}' && i < len(p)-1 {
			i++
			out = append(out, p[i]^0x20)
		} else {
			out = append(out, p[i])
		}
	}
	return out
}

// ExpandRLE decodes run-length encoded packet data ("0* " is "0000").
func ExpandRLE(p []byte) ([]byte, error) {
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		if p[i] != '*' {
			out = append(out, p[i])
			continue
		}
		if len(out) == 0 || i+1 >= len(p) {
			return nil, errors.New("truncated run-length sequence")
		}
		i++
		n := int(p[i]) - 29
		if n < 0 {
			return nil, errors.Errorf("invalid run length %q", p[i])
		}
		last := out[len(out)-1]
		for j := 0; j < n; j++ {
			out = append(out, last)
		}
	}
	return out, nil
}

func Checksum(p []byte) byte {
	var chk byte
	for _, c := range p {
		chk += c
	}
	return chk
}

// ParseRange parses "addr,len", ignoring anything up to the last ':'.
func ParseRange(s string) (uint64, uint64, error) {
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	tmp := strings.Split(s, ",")
	if len(tmp) != 2 {
		return 0, 0, errors.Errorf("invalid range %q", s)
	}
	a, err := strconv.ParseUint(tmp[0], 16, 64)
	if err != nil {
		return 0, 0, errors.Wrap(err, "invalid address")
	}
	b, err := strconv.ParseUint(tmp[1], 16, 64)
	if err != nil {
		return 0, 0, errors.Wrap(err, "invalid length")
	}
	return a, b, nil
}

const maxRetries = 3

// Conn frames gdb remote protocol packets over a stream.
type Conn struct {
	w io.Writer
	r *bufio.Reader

	// NoAck disables '+'/'-' acknowledgements in both directions.
	NoAck bool
	// ExpandRLE decodes run-length encoding in received packets.
	ExpandRLE bool

	Log zerolog.Logger
}

func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{w: rw, r: bufio.NewReader(rw), Log: zerolog.Nop()}
}

func frame(data []byte) []byte {
	data = Escape(data)
	out := make([]byte, 0, len(data)+4)
	out = append(out, '$')
	out = append(out, data...)
	return append(out, []byte(fmt.Sprintf("#%02x", Checksum(data)))...)
}

// WritePacket sends one packet and waits for the peer to acknowledge it,
// resending on '-'.
func (c *Conn) WritePacket(data string) error {
	c.Log.Debug().Str("packet", models.Repr([]byte(data), 80)).Msg("send")
	pkt := frame([]byte(data))
	for i := 0; i < maxRetries; i++ {
		if _, err := c.w.Write(pkt); err != nil {
			return errors.Wrap(err, "gdb socket write failed")
		}
		if c.NoAck {
			return nil
		}
		b, err := c.readAck()
		if err != nil {
			return err
		}
		if b == '+' {
			return nil
		}
	}
	return errors.New("packet rejected by peer")
}

func (c *Conn) readAck() (byte, error) {
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return 0, errors.Wrap(err, "waiting for ack")
		}
		if b == '+' || b == '-' {
			return b, nil
		}
	}
}

// ReadPacket returns the next valid packet payload, unescaped. A lone 0x03
// interrupt is returned as "\x03".
func (c *Conn) ReadPacket() (string, error) {
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return "", err
		}
		switch b {
		case '$':
		case 0x03:
			return "\x03", nil
		default:
			// stray acks and noise between packets
			continue
		}
		body, err := c.r.ReadBytes('#')
		if err != nil {
			return "", err
		}
		var chk [2]byte
		if _, err := io.ReadFull(c.r, chk[:]); err != nil {
			return "", err
		}
		data := body[:len(body)-1]
		want, err := strconv.ParseUint(string(chk[:]), 16, 8)
		if err != nil || byte(want) != Checksum(data) {
			c.Log.Debug().Str("packet", models.Repr(data, 80)).Msg("bad checksum")
			if err := c.ack('-'); err != nil {
				return "", err
			}
			continue
		}
		if err := c.ack('+'); err != nil {
			return "", err
		}
		data = Unescape(data)
		if c.ExpandRLE {
			if data, err = ExpandRLE(data); err != nil {
				return "", err
			}
		}
		c.Log.Debug().Str("packet", models.Repr(data, 80)).Msg("recv")
		return string(data), nil
	}
}

func (c *Conn) ack(b byte) error {
	if c.NoAck {
		return nil
	}
	_, err := c.w.Write([]byte{b})
	return errors.Wrap(err, "gdb socket write failed")
}
