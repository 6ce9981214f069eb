// Package emulator holds the request slots an emulator core calls into.
package emulator

import (
	"github.com/avatarproxy/avatar/go/models"
)

type EventPoster interface {
	PostEvent(evt *models.Event)
}

type (
	ReadHandler        func(req *models.ReadRequest) (uint64, error)
	WriteHandler       func(req *models.WriteRequest) error
	SetCpuStateHandler func(req *models.CpuStateRequest) error
	GetCpuStateHandler func(req *models.CpuStateRequest) (models.CpuState, error)
	ContinueHandler    func(req *models.ContinueRequest) error
	ChecksumHandler    func(req *models.ChecksumRequest) (string, error)
)

// Emulator forwards requests from an emulator core to installed handlers.
// Reads and writes are announced on the event bus before the handler runs.
type Emulator struct {
	system EventPoster

	read        ReadHandler
	write       WriteHandler
	setCpuState SetCpuStateHandler
	getCpuState GetCpuStateHandler
	cont        ContinueHandler
	checksum    ChecksumHandler
}

func NewEmulator(system EventPoster) *Emulator {
	return &Emulator{system: system}
}

func (e *Emulator) SetReadRequestHandler(h ReadHandler)               { e.read = h }
func (e *Emulator) SetWriteRequestHandler(h WriteHandler)             { e.write = h }
func (e *Emulator) SetSetCpuStateRequestHandler(h SetCpuStateHandler) { e.setCpuState = h }
func (e *Emulator) SetGetCpuStateRequestHandler(h GetCpuStateHandler) { e.getCpuState = h }
func (e *Emulator) SetContinueRequestHandler(h ContinueHandler)       { e.cont = h }
func (e *Emulator) SetGetChecksumRequestHandler(h ChecksumHandler)    { e.checksum = h }

func (e *Emulator) post(tag string, props interface{}) {
	if e.system != nil {
		e.system.PostEvent(&models.Event{
			Source:     models.SOURCE_EMULATOR,
			Tags:       []string{tag},
			Properties: props,
		})
	}
}

func (e *Emulator) NotifyRead(req *models.ReadRequest) (uint64, error) {
	e.post(models.EVENT_REQUEST_READ_MEMORY_VALUE, req)
	if e.read == nil {
		return 0, models.ErrNoHandler
	}
	return e.read(req)
}

func (e *Emulator) NotifyWrite(req *models.WriteRequest) error {
	e.post(models.EVENT_REQUEST_WRITE_MEMORY_VALUE, req)
	if e.write == nil {
		return models.ErrNoHandler
	}
	return e.write(req)
}

func (e *Emulator) NotifySetCpuState(req *models.CpuStateRequest) error {
	if e.setCpuState == nil {
		return models.ErrNoHandler
	}
	return e.setCpuState(req)
}

func (e *Emulator) NotifyGetCpuState(req *models.CpuStateRequest) (models.CpuState, error) {
	if e.getCpuState == nil {
		return nil, models.ErrNoHandler
	}
	return e.getCpuState(req)
}

func (e *Emulator) NotifyContinue(req *models.ContinueRequest) error {
	if e.cont == nil {
		return models.ErrNoHandler
	}
	return e.cont(req)
}

func (e *Emulator) NotifyGetChecksum(req *models.ChecksumRequest) (string, error) {
	if e.checksum == nil {
		return "", models.ErrNoHandler
	}
	return e.checksum(req)
}

// Proxy is the handler set installed by Bind, implemented by *proxy.CallProxy.
type Proxy interface {
	HandleReadRequest(req *models.ReadRequest) (uint64, error)
	HandleWriteRequest(req *models.WriteRequest) error
	HandleSetCpuStateRequest(req *models.CpuStateRequest) error
	HandleGetCpuStateRequest(req *models.CpuStateRequest) (models.CpuState, error)
	HandleContinueRequest(req *models.ContinueRequest) error
	HandleGetChecksumRequest(req *models.ChecksumRequest) (string, error)
}

// Bind installs every handler of p into e.
func Bind(e *Emulator, p Proxy) {
	e.SetReadRequestHandler(p.HandleReadRequest)
	e.SetWriteRequestHandler(p.HandleWriteRequest)
	e.SetSetCpuStateRequestHandler(p.HandleSetCpuStateRequest)
	e.SetGetCpuStateRequestHandler(p.HandleGetCpuStateRequest)
	e.SetContinueRequestHandler(p.HandleContinueRequest)
	e.SetGetChecksumRequestHandler(p.HandleGetChecksumRequest)
}
