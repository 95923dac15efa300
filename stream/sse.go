package stream

import (
	"bytes"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

var (
	framePrefix = []byte("data:")
	frameSuffix = []byte("\n\n")
	doneFrame   = []byte("data:[DONE]\n\n")
)

// Encoder writes chunks to an io.Writer as newline-delimited SSE-style
// frames, each `data:{json}` followed by a blank line. Done-sentinel chunks
// are rendered as the literal `data:[DONE]` frame that terminates the stream.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing frames to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one chunk as a frame. Encoding a done sentinel writes the
// terminal [DONE] frame instead of a JSON body.
func (e *Encoder) Encode(c Chunk) error {
	if c.Done {
		_, err := e.w.Write(doneFrame)
		return err
	}

	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode stream frame: %w", err)
	}

	frame := make([]byte, 0, len(framePrefix)+len(body)+len(frameSuffix))
	frame = append(frame, framePrefix...)
	frame = append(frame, body...)
	frame = append(frame, frameSuffix...)
	_, err = e.w.Write(frame)
	return err
}

// DecodeFrame parses one wire frame back into a chunk. It reports done=true
// for the terminal [DONE] frame, in which case the returned chunk is zero.
func DecodeFrame(frame []byte) (Chunk, bool, error) {
	frame = bytes.TrimSuffix(frame, frameSuffix)
	if !bytes.HasPrefix(frame, framePrefix) {
		return Chunk{}, false, fmt.Errorf("malformed frame: missing data prefix")
	}
	body := bytes.TrimPrefix(frame, framePrefix)
	if bytes.Equal(body, []byte("[DONE]")) {
		return Chunk{}, true, nil
	}

	var c Chunk
	if err := json.Unmarshal(body, &c); err != nil {
		return Chunk{}, false, fmt.Errorf("malformed frame: %w", err)
	}
	return c, false, nil
}
