// Package storage provides artifact delivery backends: inline base64 payloads
// for small results and S3/MinIO uploads with presigned download URLs.
package storage

import (
	"context"
	"encoding/base64"
	"mime"
	"path/filepath"

	"github.com/komojini/runpod-worker-comfy/pkg/types"
)

// Delivery converts fetched artifact bytes into their response representation.
// Implementations must be safe for concurrent use.
type Delivery interface {
	// Deliver packages artifact bytes for the result envelope.
	Deliver(ctx context.Context, jobID string, ref types.ArtifactRef, data []byte) (*types.EncodedArtifact, error)

	// Name identifies the backend for logs and metrics.
	Name() string
}

// InlineDelivery encodes artifacts as base64 strings carried in the envelope.
type InlineDelivery struct{}

// NewInlineDelivery creates the default inline base64 delivery.
func NewInlineDelivery() *InlineDelivery {
	return &InlineDelivery{}
}

func (d *InlineDelivery) Deliver(ctx context.Context, jobID string, ref types.ArtifactRef, data []byte) (*types.EncodedArtifact, error) {
	return &types.EncodedArtifact{
		Data:     base64.StdEncoding.EncodeToString(data),
		Encoding: "base64",
		MimeType: MimeTypeFor(ref.Filename),
		Filename: ref.Filename,
	}, nil
}

func (d *InlineDelivery) Name() string { return "inline" }

// MimeTypeFor resolves a content type from an artifact filename.
func MimeTypeFor(filename string) string {
	ext := filepath.Ext(filename)
	switch ext {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// Verify interface compliance
var _ Delivery = (*InlineDelivery)(nil)
