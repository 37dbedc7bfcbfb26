// Package control implements the abstract control socket verb set from
// spec.md §6: a stream socket carrying length-prefixed msgpack command
// records, with peer credentials gating mutating verbs to privileged
// callers. It deliberately does not implement the `sctl` wire protocol's
// full framing or the complete `systemctl`-equivalent CLI surface — only
// the verb table, request/response shape and the unix-socket transport
// spec.md §6 actually specifies.
package control

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// maxRecordSize bounds a single incoming record so a misbehaving or
// malicious peer can't make the server allocate unbounded memory off a
// forged length prefix.
const maxRecordSize = 1 << 20

// Verb is one of the fixed control socket commands (spec.md §6).
type Verb string

const (
	VerbStart          Verb = "start"
	VerbStop           Verb = "stop"
	VerbRestart        Verb = "restart"
	VerbReload         Verb = "reload"
	VerbIsolate        Verb = "isolate"
	VerbResetFailed    Verb = "reset-failed"
	VerbStatus         Verb = "status"
	VerbListUnits      Verb = "list-units"
	VerbEnable         Verb = "enable"
	VerbDisable        Verb = "disable"
	VerbMask           Verb = "mask"
	VerbUnmask         Verb = "unmask"
	VerbDaemonReload   Verb = "daemon-reload"
	VerbDaemonReexec   Verb = "daemon-reexec"
	VerbSwitchRoot     Verb = "switch-root"
	VerbStartTransient Verb = "start-transient"
	VerbPoweroff       Verb = "poweroff"
	VerbReboot         Verb = "reboot"
	VerbHalt           Verb = "halt"
	VerbSuspend        Verb = "suspend"
	VerbKexec          Verb = "kexec"
)

// readOnlyVerbs is the set an unprivileged caller (one whose SO_PEERCRED
// uid is not 0) may still invoke.
var readOnlyVerbs = map[Verb]bool{
	VerbStatus:    true,
	VerbListUnits: true,
}

// Request is one length-prefixed command record.
type Request struct {
	Verb  Verb              `msgpack:"verb"`
	Args  []string          `msgpack:"args"`
	Flags map[string]string `msgpack:"flags,omitempty"`
}

// Response is the reply record: Code 0 means success, any other value is
// an error (spec.md §6: "{code=0, message, payload?}"/"{code≠0, message}").
type Response struct {
	Code    int         `msgpack:"code"`
	Message string      `msgpack:"message,omitempty"`
	Payload interface{} `msgpack:"payload,omitempty"`
}

func OK(message string, payload interface{}) Response {
	return Response{Code: 0, Message: message, Payload: payload}
}

func Err(code int, message string) Response {
	if code == 0 {
		code = 1
	}
	return Response{Code: code, Message: message}
}

// ReadRequest reads one 4-byte big-endian length prefix followed by that
// many bytes of msgpack-encoded Request.
func ReadRequest(r *bufio.Reader) (Request, error) {
	var req Request
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return req, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxRecordSize {
		return req, fmt.Errorf("control: record of %d bytes exceeds max %d", n, maxRecordSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return req, err
	}
	if err := msgpack.Unmarshal(buf, &req); err != nil {
		return req, fmt.Errorf("control: decode request: %w", err)
	}
	return req, nil
}

// WriteResponse encodes resp as msgpack and writes it length-prefixed.
func WriteResponse(w io.Writer, resp Response) error {
	buf, err := msgpack.Marshal(resp)
	if err != nil {
		return fmt.Errorf("control: encode response: %w", err)
	}
	if len(buf) > maxRecordSize {
		return fmt.Errorf("control: response of %d bytes exceeds max %d", len(buf), maxRecordSize)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// WriteRequest is the client-side counterpart of ReadRequest, used by
// cmd/corectl.
func WriteRequest(w io.Writer, req Request) error {
	buf, err := msgpack.Marshal(req)
	if err != nil {
		return fmt.Errorf("control: encode request: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadResponse is the client-side counterpart of WriteResponse.
func ReadResponse(r *bufio.Reader) (Response, error) {
	var resp Response
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return resp, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxRecordSize {
		return resp, fmt.Errorf("control: record of %d bytes exceeds max %d", n, maxRecordSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return resp, err
	}
	if err := msgpack.Unmarshal(buf, &resp); err != nil {
		return resp, fmt.Errorf("control: decode response: %w", err)
	}
	return resp, nil
}
