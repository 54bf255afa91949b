package marionette

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// maxLengthDigits bounds the netstring length prefix; a well-formed
// Marionette frame never approaches this many digits, so a longer run of
// digits indicates a desynchronized stream.
const maxLengthDigits = 10

// ErrUnsupportedProtocol is returned when the server handshake announces a
// Marionette protocol version other than 3, or an application type other
// than "gecko".
var ErrUnsupportedProtocol = errors.New("unsupported marionette protocol")

// readFrame reads one netstring-framed payload: decimal ASCII digits, a
// colon, then exactly that many bytes of JSON.
func readFrame(r *bufio.Reader) ([]byte, error) {
	length, err := readLength(r)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}

	return payload, nil
}

func readLength(r *bufio.Reader) (int, error) {
	length := 0
	digits := 0

	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("read frame length: %w", err)
		}

		if b == ':' {
			if digits == 0 {
				return 0, fmt.Errorf("read frame length: empty length prefix")
			}
			return length, nil
		}

		if b < '0' || b > '9' {
			return 0, fmt.Errorf("read frame length: unexpected byte %q", b)
		}

		digits++
		if digits > maxLengthDigits {
			return 0, fmt.Errorf("read frame length: length prefix exceeds %d digits", maxLengthDigits)
		}

		length = length*10 + int(b-'0')
	}
}

// writeFrame writes a netstring-framed JSON payload to w.
func writeFrame(w io.Writer, payload []byte) error {
	prefix := fmt.Sprintf("%d:", len(payload))
	if _, err := w.Write(append([]byte(prefix), payload...)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// messageType is the first element of every Marionette wire tuple.
type messageType int

const (
	typeRequest     messageType = 0
	typeResponseOK  messageType = 1
	typeResponseErr messageType = 2
)

// rawMessage is the raw [type, id, third, fourth] wire tuple. Requests use
// third=name, fourth=params; responses use third=null|failure,
// fourth=result|null, per the untagged Rust Response enum this mirrors.
type rawMessage struct {
	Type   messageType
	ID     uint32
	Third  json.RawMessage
	Fourth json.RawMessage
}

func (m rawMessage) MarshalJSON() ([]byte, error) {
	third := m.Third
	if third == nil {
		third = json.RawMessage("null")
	}
	fourth := m.Fourth
	if fourth == nil {
		fourth = json.RawMessage("null")
	}
	return json.Marshal([4]json.RawMessage{
		mustMarshal(int(m.Type)),
		mustMarshal(m.ID),
		third,
		fourth,
	})
}

func (m *rawMessage) UnmarshalJSON(data []byte) error {
	var tuple [4]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("unmarshal marionette tuple: %w", err)
	}

	var t int
	if err := json.Unmarshal(tuple[0], &t); err != nil {
		return fmt.Errorf("unmarshal marionette type: %w", err)
	}
	var id uint32
	if err := json.Unmarshal(tuple[1], &id); err != nil {
		return fmt.Errorf("unmarshal marionette id: %w", err)
	}

	m.Type = messageType(t)
	m.ID = id
	m.Third = tuple[2]
	m.Fourth = tuple[3]
	return nil
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marionette: marshal %v: %v", v, err))
	}
	return data
}

func encodeRequest(id uint32, name string, params any) ([]byte, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode request params: %w", err)
	}

	msg := rawMessage{
		Type:   typeRequest,
		ID:     id,
		Third:  json.RawMessage(fmt.Sprintf("%q", name)),
		Fourth: paramsJSON,
	}

	return json.Marshal(msg)
}
