package stream

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ChunkType tags one unit of streamed output.
type ChunkType string

const (
	// TypeAnswer carries a fragment of the final answer text.
	TypeAnswer ChunkType = "answer"
	// TypeThink carries a fragment of intermediate reasoning text.
	TypeThink ChunkType = "think"
	// TypeTool carries a structured tool-invocation payload.
	TypeTool ChunkType = "tool"
	// TypeUsage carries token or resource usage statistics.
	TypeUsage ChunkType = "usage"
	// TypeError carries a failure surfaced during execution.
	TypeError ChunkType = "error"
)

// Chunk is one tagged unit of streamed output. A chunk with Done set is the
// completion sentinel: consumers read from the channel until they observe it,
// and no further chunks follow.
type Chunk struct {
	ExecID    string
	Type      ChunkType
	Content   any
	Done      bool
	Timestamp strfmt.DateTime
	Meta      gjson.Result
}

// Answer builds an answer-text chunk.
func Answer(execID, text string) Chunk {
	return Chunk{ExecID: execID, Type: TypeAnswer, Content: text, Timestamp: strfmt.DateTime(time.Now())}
}

// Think builds a reasoning-text chunk.
func Think(execID, text string) Chunk {
	return Chunk{ExecID: execID, Type: TypeThink, Content: text, Timestamp: strfmt.DateTime(time.Now())}
}

// ToolInvocation builds a chunk carrying a structured tool-call payload.
func ToolInvocation(execID string, payload any) Chunk {
	return Chunk{ExecID: execID, Type: TypeTool, Content: payload, Timestamp: strfmt.DateTime(time.Now())}
}

// UsageStats builds a chunk carrying usage statistics.
func UsageStats(execID string, payload any) Chunk {
	return Chunk{ExecID: execID, Type: TypeUsage, Content: payload, Timestamp: strfmt.DateTime(time.Now())}
}

// Failure builds an error-tagged chunk from err.
func Failure(execID string, err error) Chunk {
	return Chunk{ExecID: execID, Type: TypeError, Content: err.Error(), Timestamp: strfmt.DateTime(time.Now())}
}

// Done builds the completion sentinel for the given execution.
func Done(execID string) Chunk {
	return Chunk{ExecID: execID, Done: true, Timestamp: strfmt.DateTime(time.Now())}
}

// MarshalJSON implements custom JSON marshaling for Chunk.
func (c Chunk) MarshalJSON() ([]byte, error) {
	result := []byte(`{}`)

	var err error
	result, err = sjson.SetBytes(result, "exec_id", c.ExecID)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "done", c.Done)
	if err != nil {
		return nil, err
	}

	if c.Type != "" {
		result, err = sjson.SetBytes(result, "chunk_type", string(c.Type))
		if err != nil {
			return nil, err
		}
	}

	if c.Content != nil {
		contentBytes, err := json.Marshal(c.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal chunk content: %w", err)
		}
		result, err = sjson.SetRawBytes(result, "chunk", contentBytes)
		if err != nil {
			return nil, err
		}
	}

	if !time.Time(c.Timestamp).IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", c.Timestamp.String())
		if err != nil {
			return nil, err
		}
	}

	if c.Meta.Exists() {
		result, err = sjson.SetRawBytes(result, "meta", []byte(c.Meta.Raw))
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// UnmarshalJSON implements custom JSON unmarshaling for Chunk.
func (c *Chunk) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	execID := gjson.GetBytes(data, "exec_id")
	if !execID.Exists() {
		return errors.New("missing required field 'exec_id'")
	}
	c.ExecID = execID.String()

	c.Done = gjson.GetBytes(data, "done").Bool()
	c.Type = ChunkType(gjson.GetBytes(data, "chunk_type").String())

	if chunk := gjson.GetBytes(data, "chunk"); chunk.Exists() {
		c.Content = chunk.Value()
	}

	if timestamp := gjson.GetBytes(data, "timestamp"); timestamp.Exists() {
		if err := c.Timestamp.UnmarshalText([]byte(timestamp.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}

	if meta := gjson.GetBytes(data, "meta"); meta.Exists() {
		c.Meta = meta
	}

	return nil
}
