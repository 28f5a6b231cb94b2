package storage

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/komojini/runpod-worker-comfy/pkg/types"
)

func TestInlineDelivery(t *testing.T) {
	d := NewInlineDelivery()

	art, err := d.Deliver(context.Background(), "job-1", types.ArtifactRef{Filename: "a.png"}, []byte{0x89, 0x50, 0x4e, 0x47})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if art.Encoding != "base64" {
		t.Errorf("expected base64 encoding, got %s", art.Encoding)
	}
	if art.MimeType != "image/png" {
		t.Errorf("expected image/png, got %s", art.MimeType)
	}
	decoded, err := base64.StdEncoding.DecodeString(art.Data)
	if err != nil {
		t.Fatalf("payload is not valid base64: %v", err)
	}
	if len(decoded) != 4 || decoded[0] != 0x89 {
		t.Errorf("payload round trip failed: %v", decoded)
	}
}

func TestMimeTypeFor(t *testing.T) {
	cases := map[string]string{
		"a.png":     "image/png",
		"b.jpg":     "image/jpeg",
		"c.jpeg":    "image/jpeg",
		"d.webp":    "image/webp",
		"e.gif":     "image/gif",
		"noext": "application/octet-stream",
	}
	for name, want := range cases {
		if got := MimeTypeFor(name); got != want {
			t.Errorf("%s: expected %s, got %s", name, want, got)
		}
	}
}

func TestObjectKey(t *testing.T) {
	key := objectKey("job-1", "output.png")
	if len(key) != len("job-1/")+8+len(".png") {
		t.Errorf("unexpected key shape: %s", key)
	}
	if key[:6] != "job-1/" {
		t.Errorf("key must be scoped under the job id: %s", key)
	}
	if key[len(key)-4:] != ".png" {
		t.Errorf("key must keep the extension: %s", key)
	}

	// Keys must be unique per call.
	if objectKey("job-1", "output.png") == key {
		t.Error("expected distinct keys for repeated calls")
	}
}
