package models

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrSizeMismatch indicates a model artifact whose decoded size does not
// match the declared byte size. Such artifacts must never be activated.
var ErrSizeMismatch = errors.New("model size mismatch")

// ModelArtifact is a versioned model payload broadcast to every worker.
// The payload is gzip-compressed and base64-encoded for transport;
// ByteSize declares the decompressed size so workers can validate the
// transfer before activation.
type ModelArtifact struct {
	ModelB64  string    `json:"model_b64"`
	ByteSize  int       `json:"model_bytesize"`
	Version   string    `json:"version,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Decode decodes and decompresses the artifact payload, verifying the
// declared byte size. Returns ErrSizeMismatch on a size discrepancy.
func (a ModelArtifact) Decode() ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(a.ModelB64)
	if err != nil {
		return nil, fmt.Errorf("decode model payload: %w", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("decompress model payload: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress model payload: %w", err)
	}

	if len(raw) != a.ByteSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrSizeMismatch, a.ByteSize, len(raw))
	}

	return raw, nil
}
