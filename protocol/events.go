package protocol

import (
	"encoding/binary"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/c360/genstream/errors"
)

// Event kinds carried in the "type" field of a text frame
const (
	KindStatus    = "status"
	KindExecuting = "executing"
	KindProgress  = "progress"
	KindPreview   = "preview"
)

// Binary frame event codes
const (
	BinaryPreviewImage uint32 = 1
)

// ImageFormat identifies the encoding of a preview image
type ImageFormat uint32

// Preview image formats
const (
	FormatJPEG ImageFormat = 1
	FormatPNG  ImageFormat = 2
)

// String returns the string representation of ImageFormat
func (f ImageFormat) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	default:
		return fmt.Sprintf("format(%d)", uint32(f))
	}
}

// Sentinel errors for message decoding
var (
	ErrMalformed   = stderrors.New("malformed message")
	ErrUnknownKind = stderrors.New("unknown event kind")
)

// Envelope is the outer shape of every text frame
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Status is the connection-global queue state
type Status struct {
	QueueRemaining int
	SessionID      string
}

// Executing reports the node a job is running. An empty Node is the
// terminal signal for JobID.
type Executing struct {
	JobID string
	Node  string
}

// Terminal reports whether this event ends its job
func (e Executing) Terminal() bool {
	return e.Node == ""
}

// Progress reports step progress within a node
type Progress struct {
	JobID string
	Node  string
	Value int
	Max   int
}

// Preview is an intermediate image emitted while a job runs
type Preview struct {
	JobID  string
	Format ImageFormat
	Data   []byte
}

type statusData struct {
	Status struct {
		ExecInfo struct {
			QueueRemaining int `json:"queue_remaining"`
		} `json:"exec_info"`
	} `json:"status"`
	SID string `json:"sid"`
}

type executingData struct {
	Node     *string `json:"node"`
	PromptID string  `json:"prompt_id"`
}

type progressData struct {
	Value    int    `json:"value"`
	Max      int    `json:"max"`
	PromptID string `json:"prompt_id"`
	Node     string `json:"node"`
}

// ParseText decodes a text frame into Status, Executing or Progress.
// It returns ErrMalformed for payloads that are not an envelope and
// ErrUnknownKind for envelopes of any other kind.
func ParseText(payload []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", ErrMalformed, err), "protocol", "ParseText", "decode envelope")
	}
	if env.Type == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: missing type", ErrMalformed), "protocol", "ParseText", "decode envelope")
	}

	switch env.Type {
	case KindStatus:
		var d statusData
		if err := decodeData(env, &d); err != nil {
			return nil, err
		}
		return Status{QueueRemaining: d.Status.ExecInfo.QueueRemaining, SessionID: d.SID}, nil

	case KindExecuting:
		var d executingData
		if err := decodeData(env, &d); err != nil {
			return nil, err
		}
		ev := Executing{JobID: d.PromptID}
		if d.Node != nil {
			ev.Node = *d.Node
		}
		return ev, nil

	case KindProgress:
		var d progressData
		if err := decodeData(env, &d); err != nil {
			return nil, err
		}
		return Progress{JobID: d.PromptID, Node: d.Node, Value: d.Value, Max: d.Max}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, env.Type)
	}
}

func decodeData(env Envelope, dst any) error {
	if len(env.Data) == 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: %s without data", ErrMalformed, env.Type),
			"protocol", "ParseText", "decode data")
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %s: %w", ErrMalformed, env.Type, err),
			"protocol", "ParseText", "decode data")
	}
	return nil
}

// ParseBinary decodes a binary preview frame. The returned Preview has no
// job id; the caller attributes it.
func ParseBinary(payload []byte) (Preview, error) {
	if len(payload) < 8 {
		return Preview{}, errors.WrapInvalid(fmt.Errorf("%w: binary frame of %d bytes", ErrMalformed, len(payload)),
			"protocol", "ParseBinary", "decode header")
	}

	code := binary.BigEndian.Uint32(payload[0:4])
	if code != BinaryPreviewImage {
		return Preview{}, fmt.Errorf("%w: binary event %d", ErrUnknownKind, code)
	}

	data := make([]byte, len(payload)-8)
	copy(data, payload[8:])
	return Preview{
		Format: ImageFormat(binary.BigEndian.Uint32(payload[4:8])),
		Data:   data,
	}, nil
}

// EncodePreview builds a binary preview frame
func EncodePreview(format ImageFormat, image []byte) []byte {
	frame := make([]byte, 8+len(image))
	binary.BigEndian.PutUint32(frame[0:4], BinaryPreviewImage)
	binary.BigEndian.PutUint32(frame[4:8], uint32(format))
	copy(frame[8:], image)
	return frame
}

// EncodeText builds a text frame for kind with the given data payload
func EncodeText(kind string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: kind, Data: raw})
}
