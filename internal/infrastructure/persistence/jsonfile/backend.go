// Package jsonfile stores the participant registry as one JSON object keyed
// by participant id. Key order in the file is the registry order.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/rs/zerolog"

	"github.com/leetbuddy/challenge-tracker/internal/domain/participant"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
)

const (
	dirPerms  = 0o755
	filePerms = 0o644
)

// Backend implements participant.Backend over a single file.
type Backend struct {
	path   string
	logger zerolog.Logger

	// mu scopes file access within the process; writes are atomic renames
	// so readers never observe a partial file.
	mu sync.Mutex
}

// New creates a backend for path.
func New(path string, log zerolog.Logger) *Backend {
	return &Backend{
		path:   path,
		logger: logger.Component(log, "jsonfile").With().Str("path", path).Logger(),
	}
}

// Name implements participant.Backend.
func (b *Backend) Name() string { return "jsonfile" }

// Path returns the file location.
func (b *Backend) Path() string { return b.path }

// Read implements participant.Backend. A missing or zero-length file means
// nothing has been stored yet.
func (b *Backend) Read(ctx context.Context) ([]participant.RawEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		b.logger.Info().Msg("store file not found, starting empty")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	entries, err := decodeOrdered(data)
	if err != nil {
		return nil, err
	}
	b.logger.Debug().Int("entries", len(entries)).Msg("store file read")
	return entries, nil
}

// decodeOrdered streams the top-level object so key order survives.
func decodeOrdered(data []byte) ([]participant.RawEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, participant.Corruptf("%w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, participant.Corruptf("top level is %v, want object", tok)
	}

	var entries []participant.RawEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, participant.Corruptf("%w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, participant.Corruptf("unexpected token %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, participant.Corruptf("value for %q: %w", key, err)
		}
		entries = append(entries, participant.RawEntry{ID: key, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return nil, participant.Corruptf("%w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, participant.Corruptf("trailing data after top-level object")
	}
	return entries, nil
}

// Write implements participant.Backend.
func (b *Backend) Write(ctx context.Context, entries []participant.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeOrdered(entries)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(b.path), dirPerms); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	_, statErr := os.Stat(b.path)
	created := errors.Is(statErr, fs.ErrNotExist)

	if err := atomic.WriteFile(b.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", b.path, err)
	}
	// atomic.WriteFile leaves new files with the temp file's 0600.
	if created {
		if err := os.Chmod(b.path, filePerms); err != nil {
			return fmt.Errorf("chmod %s: %w", b.path, err)
		}
	}

	b.logger.Debug().Int("entries", len(entries)).Int("bytes", len(data)).Msg("store file written")
	return nil
}

func encodeOrdered(entries []participant.Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, e := range entries {
		if i > 0 {
			buf.WriteString(",")
		}
		key, err := json.Marshal(e.ID)
		if err != nil {
			return nil, fmt.Errorf("encode key %q: %w", e.ID, err)
		}
		value, err := json.MarshalIndent(participant.ToDocument(e.Record), "  ", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode participant %s: %w", e.ID, err)
		}
		buf.WriteString("\n  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(value)
	}
	if len(entries) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

var _ participant.Backend = (*Backend)(nil)
