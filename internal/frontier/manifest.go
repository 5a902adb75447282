package frontier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// DefaultManifestPath is the manifest's name in the artifact store.
const DefaultManifestPath = "manifest.json"

// WriteManifest stores entries as a JSON array and returns the artifact URI.
func WriteManifest(ctx context.Context, blobs riftlens.BlobStore, path string, entries []riftlens.ManifestEntry) (string, error) {
	if entries == nil {
		entries = []riftlens.ManifestEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	uri, err := blobs.PutObject(ctx, path, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return uri, nil
}

// LoadManifest reads a manifest written by WriteManifest. Entries without an
// id are dropped and a missing display name is rebuilt from name and tag.
func LoadManifest(ctx context.Context, blobs riftlens.BlobStore, path string) ([]riftlens.ManifestEntry, error) {
	data, err := blobs.GetObject(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return DecodeManifest(data)
}

// DecodeManifest parses manifest JSON.
func DecodeManifest(data []byte) ([]riftlens.ManifestEntry, error) {
	var raw []riftlens.ManifestEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	out := make([]riftlens.ManifestEntry, 0, len(raw))
	seen := make(map[riftlens.EntityID]struct{}, len(raw))
	for _, e := range raw {
		if e.ID == "" {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		if e.DisplayName == "" {
			e = riftlens.NewManifestEntry(e.ID, e.Name, e.Tag)
		}
		out = append(out, e)
	}
	return out, nil
}

// LoadOptionalManifest is LoadManifest that treats a missing artifact as empty.
func LoadOptionalManifest(ctx context.Context, blobs riftlens.BlobStore, path string) ([]riftlens.ManifestEntry, error) {
	entries, err := LoadManifest(ctx, blobs, path)
	if errors.Is(err, riftlens.ErrNotFound) {
		return nil, nil
	}
	return entries, err
}
