package reader

import (
	"encoding/binary"
	"time"

	"github.com/mercuryrf/reader/internal/protocol"
	"github.com/mercuryrf/reader/internal/rlog"
)

// commandCodec owns the opcode catalog and status-code table (spec §4.3) and
// turns typed requests into frames and frames back into typed results. It
// holds no device state of its own beyond the transport and the two
// timeouts; callers serialize access through ReaderCore's command mutex.
type commandCodec struct {
	transport        Transport
	transportTimeout time.Duration
	commandTimeout   time.Duration
}

func newCommandCodec(t Transport) *commandCodec {
	return &commandCodec{
		transport:        t,
		transportTimeout: 1 * time.Second,
		commandTimeout:   5 * time.Second,
	}
}

// send frames opcode||payload, writes it, and returns the raw response
// payload bytes (status byte included, untouched). Every typed helper below
// builds on it, except startContinuousRead and readStreamedReport, which
// write to and read from the continuous-read stream directly.
func (c *commandCodec) send(op protocol.Opcode, payload []byte) ([]byte, error) {
	frame, err := protocol.Encode(protocol.Frame{Opcode: byte(op), Payload: payload})
	if err != nil {
		return nil, newProgrammerFault("InvalidArgument", "command payload too large: %v", err)
	}
	if c.transport == nil {
		return nil, newCommFault(opcodeName(op), "Closed", nil)
	}
	rlog.Tracef("-> %s payload=%d bytes", opcodeName(op), len(payload))
	if _, err := c.transport.Write(frame); err != nil {
		return nil, newCommFault(opcodeName(op), "IOError", err)
	}
	resp, err := protocol.ReadFrame(c.transport, deadline(c.transportTimeout, c.commandTimeout))
	if err != nil {
		switch err {
		case protocol.ErrCrcMismatch:
			rlog.Debugf("<- %s: CRC mismatch", opcodeName(op))
			return nil, newCommFault(opcodeName(op), "CrcMismatch", err)
		default:
			rlog.Debugf("<- %s: %v", opcodeName(op), err)
			return nil, classifyReadErr(opcodeName(op), err)
		}
	}
	rlog.Tracef("<- %s payload=%d bytes", opcodeName(op), len(resp.Payload))
	return resp.Payload, nil
}

func deadline(transportTimeout, commandTimeout time.Duration) time.Duration {
	if commandTimeout > transportTimeout {
		return commandTimeout
	}
	return transportTimeout
}

func classifyReadErr(op string, err error) error {
	if cf, ok := err.(*CommFault); ok {
		return cf
	}
	return newCommFault(op, "Timeout", err)
}

func opcodeName(op protocol.Opcode) string {
	switch op {
	case protocol.OpGetVersion:
		return "GET_VERSION"
	case protocol.OpReadTagIDMultiple:
		return "READ_TAG_ID_MULTIPLE"
	case protocol.OpGetRegion:
		return "GET_REGION"
	case protocol.OpSetRegion:
		return "SET_REGION"
	case protocol.OpGetPower:
		return "GET_POWER"
	case protocol.OpSetPower:
		return "SET_POWER"
	case protocol.OpGPIOGet:
		return "GPIO_GET"
	case protocol.OpGPIOSet:
		return "GPIO_SET"
	case protocol.OpStartContinuousRead:
		return "START_CONTINUOUS_READ"
	case protocol.OpStopContinuousRead:
		return "STOP_CONTINUOUS_READ"
	default:
		return "OPCODE"
	}
}

// statusChecked parses a response whose first byte is a status code,
// followed on failure by a 16-bit fault code (spec §4.3 generic layout).
// It returns the bytes after the status byte (and, on success, after the
// fault code position there is none to skip).
func statusChecked(op string, resp []byte) ([]byte, error) {
	if len(resp) < 1 {
		return nil, &ParseFault{Op: op, Err: errShortResponse}
	}
	if resp[0] == 0 {
		return resp[1:], nil
	}
	if len(resp) < 3 {
		return nil, &ParseFault{Op: op, Err: errShortResponse}
	}
	code := protocol.FaultCode(binary.BigEndian.Uint16(resp[1:3]))
	return nil, &ReaderCodeException{
		Code:     uint16(code),
		Category: FaultCategory(protocol.CategoryOf(code)),
	}
}

var errShortResponse = newProgrammerFault("InvalidArgument", "response too short")

// --- GET_VERSION / region -------------------------------------------------

type versionInfo struct {
	Major, Minor, Build byte
	Serial              string
}

func (c *commandCodec) getVersion() (versionInfo, error) {
	resp, err := c.send(protocol.OpGetVersion, nil)
	if err != nil {
		return versionInfo{}, err
	}
	body, err := statusChecked("GET_VERSION", resp)
	if err != nil {
		return versionInfo{}, err
	}
	if len(body) < 3 {
		return versionInfo{}, &ParseFault{Op: "GET_VERSION", Err: errShortResponse}
	}
	return versionInfo{
		Major:  body[0],
		Minor:  body[1],
		Build:  body[2],
		Serial: string(body[3:]),
	}, nil
}

func (c *commandCodec) getRegion() (Region, error) {
	resp, err := c.send(protocol.OpGetRegion, nil)
	if err != nil {
		return RegionUnspec, err
	}
	body, err := statusChecked("GET_REGION", resp)
	if err != nil {
		return RegionUnspec, err
	}
	if len(body) < 1 {
		return RegionUnspec, &ParseFault{Op: "GET_REGION", Err: errShortResponse}
	}
	return RegionFromCode(body[0]), nil
}

func (c *commandCodec) setRegion(r Region) error {
	code, ok := r.Code()
	if !ok {
		return newProgrammerFault("InvalidArgument", "region %v has no wire code", r)
	}
	resp, err := c.send(protocol.OpSetRegion, []byte{code})
	if err != nil {
		return err
	}
	_, err = statusChecked("SET_REGION", resp)
	return err
}

// --- power -----------------------------------------------------------------

func (c *commandCodec) getPower() (int, error) {
	resp, err := c.send(protocol.OpGetPower, nil)
	if err != nil {
		return 0, err
	}
	body, err := statusChecked("GET_POWER", resp)
	if err != nil {
		return 0, err
	}
	if len(body) < 2 {
		return 0, &ParseFault{Op: "GET_POWER", Err: errShortResponse}
	}
	return int(binary.BigEndian.Uint16(body)), nil
}

func (c *commandCodec) setPower(centiDbm int) error {
	if centiDbm < 0 || centiDbm > 65535 {
		return newProgrammerFault("InvalidArgument", "power %d out of range [0,65535]", centiDbm)
	}
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, uint16(centiDbm))
	resp, err := c.send(protocol.OpSetPower, payload)
	if err != nil {
		return err
	}
	_, err = statusChecked("SET_POWER", resp)
	return err
}

// --- GPIO --------------------------------------------------------------------

func (c *commandCodec) gpioGet() ([]GpioPin, error) {
	resp, err := c.send(protocol.OpGPIOGet, nil)
	if err != nil {
		return nil, err
	}
	body, err := statusChecked("GPIO_GET", resp)
	if err != nil {
		return nil, err
	}
	pins := make([]GpioPin, 0, len(body)/2)
	for i := 0; i+1 < len(body); i += 2 {
		pins = append(pins, GpioPin{
			ID:     int(body[i]),
			High:   body[i+1]&0x01 != 0,
			Output: body[i+1]&0x02 != 0,
		})
	}
	return pins, nil
}

func (c *commandCodec) gpioSet(pins []GpioPin) error {
	payload := make([]byte, 0, len(pins)*2)
	for _, p := range pins {
		var flags byte
		if p.High {
			flags |= 0x01
		}
		if p.Output {
			flags |= 0x02
		}
		payload = append(payload, byte(p.ID), flags)
	}
	resp, err := c.send(protocol.OpGPIOSet, payload)
	if err != nil {
		return err
	}
	_, err = statusChecked("GPIO_SET", resp)
	return err
}

// --- inventory ---------------------------------------------------------------

// readTagIDMultiple issues a single synchronous READ_TAG_ID_MULTIPLE command
// and decodes every tag record in the response (spec S1).
func (c *commandCodec) readTagIDMultiple(durationMs int, antenna int, proto Protocol) ([]TagReadData, error) {
	if durationMs < 0 || durationMs > 65535 {
		return nil, newProgrammerFault("InvalidArgument", "read duration %d out of range", durationMs)
	}
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:2], uint16(durationMs))
	payload[2] = byte(antenna)
	payload[3] = byte(proto)
	resp, err := c.send(protocol.OpReadTagIDMultiple, payload)
	if err != nil {
		return nil, err
	}
	body, err := statusChecked("READ_TAG_ID_MULTIPLE", resp)
	if err != nil {
		return nil, err
	}
	return decodeTagRecords(body, proto, time.Now())
}

// decodeTagRecords parses the repeated tag-record layout shared by
// READ_TAG_ID_MULTIPLE and the continuous-read stream: a count byte followed
// by, per tag, epcLen|epc|antenna|rssi(signed)|readCount|opResultLen|opResult.
func decodeTagRecords(body []byte, proto Protocol, at time.Time) ([]TagReadData, error) {
	if len(body) < 1 {
		return nil, &ParseFault{Op: "tag records", Err: errShortResponse}
	}
	count := int(body[0])
	pos := 1
	out := make([]TagReadData, 0, count)
	for i := 0; i < count; i++ {
		if pos >= len(body) {
			return nil, &ParseFault{Op: "tag records", Err: errShortResponse}
		}
		epcLen := int(body[pos])
		pos++
		if pos+epcLen+3 > len(body) {
			return nil, &ParseFault{Op: "tag records", Err: errShortResponse}
		}
		epc := append([]byte(nil), body[pos:pos+epcLen]...)
		pos += epcLen
		antenna := int(body[pos])
		rssi := int(int8(body[pos+1]))
		readCount := int(body[pos+2])
		pos += 3
		if pos >= len(body) {
			return nil, &ParseFault{Op: "tag records", Err: errShortResponse}
		}
		opLen := int(body[pos])
		pos++
		var opResult []byte
		if opLen > 0 {
			if pos+opLen > len(body) {
				return nil, &ParseFault{Op: "tag records", Err: errShortResponse}
			}
			opResult = append([]byte(nil), body[pos:pos+opLen]...)
			pos += opLen
		}
		out = append(out, TagReadData{
			Tag:       TagData{EPC: epc, Protocol: proto},
			Antenna:   antenna,
			Protocol:  proto,
			Timestamp: at,
			RSSI:      rssi,
			ReadCount: readCount,
			OpResult:  opResult,
		})
	}
	return out, nil
}

// startContinuousRead arms the device for streaming inventory; the caller
// keeps reading frames off the same transport until it issues
// stopContinuousRead. Responses are not status-checked on this path: the
// device begins streaming tag-report frames immediately.
func (c *commandCodec) startContinuousRead(antenna int, proto Protocol) error {
	payload := []byte{byte(antenna), byte(proto)}
	frame, err := protocol.Encode(protocol.Frame{Opcode: byte(protocol.OpStartContinuousRead), Payload: payload})
	if err != nil {
		return newProgrammerFault("InvalidArgument", "%v", err)
	}
	if _, err := c.transport.Write(frame); err != nil {
		return newCommFault("START_CONTINUOUS_READ", "IOError", err)
	}
	return nil
}

func (c *commandCodec) stopContinuousRead() error {
	resp, err := c.send(protocol.OpStopContinuousRead, nil)
	if err != nil {
		return err
	}
	_, err = statusChecked("STOP_CONTINUOUS_READ", resp)
	return err
}

// readStreamedReport reads one frame from the continuous-read stream and
// decodes it as a tag-report. The frame's opcode is not checked; a
// status-carrying frame (non-zero status) is surfaced as a CodeFault
// instead, letting the caller distinguish TAG_ID_BUFFER_FULL / No Antenna /
// Timeout soft-fault recovery from a normal report.
func (c *commandCodec) readStreamedReport(proto Protocol, timeout time.Duration) ([]TagReadData, error) {
	frame, err := protocol.ReadFrame(c.transport, timeout)
	if err != nil {
		if err == protocol.ErrCrcMismatch {
			return nil, newCommFault("CONTINUOUS_READ", "CrcMismatch", err)
		}
		return nil, classifyReadErr("CONTINUOUS_READ", err)
	}
	if len(frame.Payload) > 0 && frame.Payload[0] != 0 {
		if len(frame.Payload) < 3 {
			return nil, &ParseFault{Op: "CONTINUOUS_READ", Err: errShortResponse}
		}
		code := protocol.FaultCode(binary.BigEndian.Uint16(frame.Payload[1:3]))
		return nil, &ReaderCodeException{Code: uint16(code), Category: FaultCategory(protocol.CategoryOf(code))}
	}
	body := frame.Payload
	if len(body) > 0 {
		body = body[1:] // drop the leading zero status byte
	}
	return decodeTagRecords(body, proto, time.Now())
}

// --- tag buffer --------------------------------------------------------------

func (c *commandCodec) clearTagBuffer() error {
	resp, err := c.send(protocol.OpClearTagBuffer, nil)
	if err != nil {
		return err
	}
	_, err = statusChecked("CLEAR_TAG_BUFFER", resp)
	return err
}

// --- tag ops -------------------------------------------------------------

func tagOpOpcode(kind TagOpKind) protocol.Opcode {
	switch kind {
	case OpGen2ReadData:
		return protocol.OpReadTagData
	case OpGen2WriteData:
		return protocol.OpWriteTagData
	case OpGen2WriteTag:
		return protocol.OpWriteTagID
	case OpGen2Lock:
		return protocol.OpLockTag
	case OpGen2Kill:
		return protocol.OpKillTag
	case OpGen2BlockWrite:
		return protocol.OpBlockWrite
	case OpGen2BlockPermaLock:
		return protocol.OpBlockPermaLock
	case OpGen2BlockErase:
		return protocol.OpBlockErase
	case OpISO6BRead:
		return protocol.OpISO6BReadTagData
	case OpISO6BWrite:
		return protocol.OpISO6BWriteTagData
	case OpISO6BLock:
		return protocol.OpISO6BLockTag
	default:
		return 0
	}
}

// executeTagOp serializes op per its opcode's documented layout, prepending
// the antenna/access-password preamble every tag-op carries, then parses
// the response according to op.resultIsVoid.
func (c *commandCodec) executeTagOp(op TagOp, filter *TagFilter, antenna int, accessPassword uint32) ([]byte, error) {
	payload, err := encodeTagOpPayload(op, filter, antenna, accessPassword)
	if err != nil {
		return nil, err
	}
	opcode := tagOpOpcode(op.Kind)
	resp, err := c.send(opcode, payload)
	if err != nil {
		return nil, err
	}
	// Data-bearing ops (spec S2) return the full payload with no leading
	// status byte: the firmware signals a fault for these via a distinct,
	// shorter status-only frame instead of prefixing the data.
	if !op.resultIsVoid() {
		return resp, nil
	}
	body, err := statusChecked(op.Kind.String(), resp)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// encodeTagOpPayload renders the antenna/access-password preamble, an
// optional Select filter, then the op-specific fields.
func encodeTagOpPayload(op TagOp, filter *TagFilter, antenna int, accessPassword uint32) ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = append(buf, byte(antenna))
	pw := make([]byte, 4)
	binary.BigEndian.PutUint32(pw, accessPassword)
	buf = append(buf, pw...)
	buf = append(buf, encodeFilter(filter)...)

	switch op.Kind {
	case OpGen2ReadData:
		d := op.Gen2ReadData
		buf = append(buf, byte(d.Bank))
		buf = append(buf, be16(d.WordPointer)...)
		buf = append(buf, byte(d.WordCount))
	case OpGen2WriteData:
		d := op.Gen2WriteData
		buf = append(buf, byte(d.Bank))
		buf = append(buf, be16(d.WordPointer)...)
		buf = append(buf, byte(len(d.Data)/2))
		buf = append(buf, d.Data...)
	case OpGen2WriteTag:
		d := op.Gen2WriteTag
		buf = append(buf, byte(len(d.EPC)/2))
		buf = append(buf, d.EPC...)
	case OpGen2Lock:
		d := op.Gen2Lock
		buf = append(buf, byte(d.Field), byte(d.Action))
	case OpGen2Kill:
		d := op.Gen2Kill
		buf = append(buf, be32(int64(d.KillPassword))...)
	case OpGen2BlockWrite:
		d := op.Gen2BlockWrite
		buf = append(buf, byte(d.Bank))
		buf = append(buf, be16(d.WordPointer)...)
		buf = append(buf, byte(len(d.Data)/2))
		buf = append(buf, d.Data...)
	case OpGen2BlockPermaLock:
		d := op.Gen2BlockPermaLock
		buf = append(buf, byte(d.Bank), byte(d.BlockPointer), byte(d.BlockRange))
		if d.ReadLock {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
			buf = append(buf, d.Mask...)
		}
	case OpGen2BlockErase:
		d := op.Gen2BlockErase
		buf = append(buf, byte(d.Bank))
		buf = append(buf, be16(d.WordPointer)...)
		buf = append(buf, byte(d.WordCount))
	case OpISO6BRead:
		d := op.ISO6BRead
		buf = append(buf, d.Address, d.Count)
	case OpISO6BWrite:
		d := op.ISO6BWrite
		buf = append(buf, d.Address, byte(len(d.Data)))
		buf = append(buf, d.Data...)
	case OpISO6BLock:
		d := op.ISO6BLock
		buf = append(buf, d.Address)
	default:
		return nil, newProgrammerFault("InvalidArgument", "unknown tag op kind %d", op.Kind)
	}
	if len(buf) > protocol.MaxPayloadLen {
		return nil, newProgrammerFault("InvalidArgument", "tag op payload exceeds %d bytes", protocol.MaxPayloadLen)
	}
	return buf, nil
}

// encodeFilter renders the Select preamble: a presence byte, then (if
// present) invert/bank/offset/length/mask for a Gen2 filter, or the raw EPC
// for a plain EPC-match filter.
func encodeFilter(f *TagFilter) []byte {
	if f == nil {
		return []byte{0x00}
	}
	if f.Select != nil {
		s := f.Select
		buf := []byte{0x02}
		if s.Invert {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = append(buf, byte(s.Bank))
		buf = append(buf, be16(s.BitOffset)...)
		buf = append(buf, be16(s.BitLength)...)
		buf = append(buf, byte(len(s.Mask)))
		buf = append(buf, s.Mask...)
		return buf
	}
	buf := []byte{0x01, byte(len(f.EPC))}
	return append(buf, f.EPC...)
}

func be16(v int) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(v))
	return b
}

func be32(v int64) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b
}
