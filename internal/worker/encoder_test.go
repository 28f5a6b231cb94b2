package worker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/komojini/runpod-worker-comfy/internal/storage"
	"github.com/komojini/runpod-worker-comfy/pkg/types"
)

func TestEncodeArtifacts(t *testing.T) {
	delivery := storage.NewInlineDelivery()

	t.Run("encodes all artifacts in order", func(t *testing.T) {
		refs := []types.ArtifactRef{{Filename: "a.png"}, {Filename: "b.jpg"}}
		fetch := func(ctx context.Context, ref types.ArtifactRef) ([]byte, error) {
			return []byte("data-" + ref.Filename), nil
		}

		images, artErrs, err := EncodeArtifacts(context.Background(), "job-1", refs, fetch, delivery, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(artErrs) != 0 {
			t.Errorf("unexpected artifact errors: %+v", artErrs)
		}
		if len(images) != 2 {
			t.Fatalf("expected 2 images, got %d", len(images))
		}

		decoded, _ := base64.StdEncoding.DecodeString(images[0].Data)
		if string(decoded) != "data-a.png" {
			t.Errorf("unexpected payload: %q", decoded)
		}
		if images[0].Encoding != "base64" || images[0].MimeType != "image/png" {
			t.Errorf("unexpected encoding metadata: %+v", images[0])
		}
		if images[1].MimeType != "image/jpeg" {
			t.Errorf("unexpected mime for jpg: %s", images[1].MimeType)
		}
	})

	t.Run("one failed fetch does not abort the rest", func(t *testing.T) {
		refs := []types.ArtifactRef{{Filename: "a.png"}, {Filename: "b.png"}, {Filename: "c.png"}}
		fetch := func(ctx context.Context, ref types.ArtifactRef) ([]byte, error) {
			if ref.Filename == "b.png" {
				return nil, fmt.Errorf("gone")
			}
			return []byte("ok"), nil
		}

		images, artErrs, err := EncodeArtifacts(context.Background(), "job-2", refs, fetch, delivery, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(images) != 2 {
			t.Errorf("expected 2 images, got %d", len(images))
		}
		if len(artErrs) != 1 {
			t.Fatalf("expected 1 artifact error, got %d", len(artErrs))
		}
		if artErrs[0].ArtifactRef != "b.png" || artErrs[0].Code != types.CodeArtifactFetchError {
			t.Errorf("unexpected artifact error: %+v", artErrs[0])
		}
	})

	t.Run("cancellation discards partial results", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		refs := []types.ArtifactRef{{Filename: "a.png"}, {Filename: "b.png"}}
		fetch := func(ctx context.Context, ref types.ArtifactRef) ([]byte, error) {
			cancel() // deadline expires mid-encoding
			return []byte("ok"), nil
		}

		images, artErrs, err := EncodeArtifacts(ctx, "job-3", refs, fetch, delivery, nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if images != nil || artErrs != nil {
			t.Error("partial results must be discarded on cancellation")
		}
	})

	t.Run("no refs yields an empty result", func(t *testing.T) {
		images, artErrs, err := EncodeArtifacts(context.Background(), "job-4", nil, nil, delivery, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(images) != 0 || len(artErrs) != 0 {
			t.Errorf("expected empty result, got %d images, %d errors", len(images), len(artErrs))
		}
	})
}
