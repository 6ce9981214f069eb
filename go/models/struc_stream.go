package models

import (
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// StrucStream packs a sequence of structs onto one stream, stopping at the first error.
type StrucStream struct {
	Stream io.ReadWriter
	Order  binary.ByteOrder

	err error
}

func NewStrucStream(rw io.ReadWriter, order binary.ByteOrder) *StrucStream {
	return &StrucStream{Stream: rw, Order: order}
}

func (s *StrucStream) Pack(vals ...interface{}) error {
	for _, v := range vals {
		if s.err != nil {
			break
		}
		s.err = errors.Wrap(struc.PackWithOrder(s.Stream, v, s.Order), "struc pack failed")
	}
	return s.err
}

func (s *StrucStream) Unpack(vals ...interface{}) error {
	for _, v := range vals {
		if s.err != nil {
			break
		}
		s.err = errors.Wrap(struc.UnpackWithOrder(s.Stream, v, s.Order), "struc unpack failed")
	}
	return s.err
}

func (s *StrucStream) Err() error { return s.err }
