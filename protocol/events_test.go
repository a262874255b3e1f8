package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseText(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    any
	}{
		{
			name:    "status",
			payload: `{"type":"status","data":{"status":{"exec_info":{"queue_remaining":3}},"sid":"abc"}}`,
			want:    Status{QueueRemaining: 3, SessionID: "abc"},
		},
		{
			name:    "executing node",
			payload: `{"type":"executing","data":{"node":"7","prompt_id":"p1"}}`,
			want:    Executing{JobID: "p1", Node: "7"},
		},
		{
			name:    "executing null node",
			payload: `{"type":"executing","data":{"node":null,"prompt_id":"p1"}}`,
			want:    Executing{JobID: "p1"},
		},
		{
			name:    "executing absent node",
			payload: `{"type":"executing","data":{"prompt_id":"p1"}}`,
			want:    Executing{JobID: "p1"},
		},
		{
			name:    "progress",
			payload: `{"type":"progress","data":{"value":4,"max":20,"prompt_id":"p1","node":"3"}}`,
			want:    Progress{JobID: "p1", Node: "3", Value: 4, Max: 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseText([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseText_Terminal(t *testing.T) {
	for _, payload := range []string{
		`{"type":"executing","data":{"node":null,"prompt_id":"p"}}`,
		`{"type":"executing","data":{"prompt_id":"p"}}`,
		`{"type":"executing","data":{"node":"","prompt_id":"p"}}`,
	} {
		ev, err := ParseText([]byte(payload))
		require.NoError(t, err)
		assert.True(t, ev.(Executing).Terminal(), payload)
	}

	ev, err := ParseText([]byte(`{"type":"executing","data":{"node":"12","prompt_id":"p"}}`))
	require.NoError(t, err)
	assert.False(t, ev.(Executing).Terminal())
}

func TestParseText_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		target  error
	}{
		{"truncated", `{"type":"executing","data":{"node":`, ErrMalformed},
		{"not an object", `[1,2,3]`, ErrMalformed},
		{"missing type", `{"data":{}}`, ErrMalformed},
		{"missing data", `{"type":"progress"}`, ErrMalformed},
		{"wrong data shape", `{"type":"progress","data":{"value":"four"}}`, ErrMalformed},
		{"unknown kind", `{"type":"execution_cached","data":{"nodes":[]}}`, ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseText([]byte(tt.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestParseBinary(t *testing.T) {
	frame := EncodePreview(FormatPNG, []byte{0x89, 'P', 'N', 'G'})

	preview, err := ParseBinary(frame)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, preview.Format)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, preview.Data)
	assert.Empty(t, preview.JobID)

	// decoded data does not alias the frame
	frame[8] = 0
	assert.Equal(t, byte(0x89), preview.Data[0])
}

func TestParseBinary_Errors(t *testing.T) {
	_, err := ParseBinary([]byte{0, 0, 0, 1})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseBinary([]byte{0, 0, 0, 9, 0, 0, 0, 1, 0xff})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestEncodeText_RoundTrip(t *testing.T) {
	frame, err := EncodeText(KindExecuting, map[string]any{"node": nil, "prompt_id": "p9"})
	require.NoError(t, err)

	ev, err := ParseText(frame)
	require.NoError(t, err)
	assert.Equal(t, Executing{JobID: "p9"}, ev)
}

func TestImageFormat_String(t *testing.T) {
	assert.Equal(t, "jpeg", FormatJPEG.String())
	assert.Equal(t, "png", FormatPNG.String())
	assert.Equal(t, "format(7)", ImageFormat(7).String())
}
