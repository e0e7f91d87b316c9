package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Veraticus/billflow/internal/model"
)

// FileSource reads messages from a JSON file holding either an array of
// messages or one message object per line.
type FileSource struct {
	path string
}

// NewFileSource creates a source for the file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Fetch reads and decodes the whole file.
func (s *FileSource) Fetch(ctx context.Context) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages file: %w", err)
	}

	msgs, err := DecodeMessages(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	return msgs, nil
}

// DecodeMessages accepts a JSON array of messages or a stream of message
// objects (JSON lines).
func DecodeMessages(data []byte) ([]model.Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var msgs []model.Message
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, err
		}
		return msgs, nil
	}

	var msgs []model.Message
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	for {
		var msg model.Message
		err := dec.Decode(&msg)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", len(msgs)+1, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
