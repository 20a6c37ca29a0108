package scanner

import (
	"context"

	"github.com/google/go-containerregistry/pkg/crane"

	"github.com/jondmarien/hemostat/internal/events"
)

// ImageResolver resolves an image reference to the content digest it
// currently points at, the unit every finding is keyed against.
type ImageResolver interface {
	Digest(ctx context.Context, image string) (string, error)
}

// craneResolver resolves digests against a real registry.
type craneResolver struct{}

// NewCraneResolver builds the production ImageResolver, backed by
// go-containerregistry's registry client.
func NewCraneResolver() ImageResolver { return craneResolver{} }

func (craneResolver) Digest(ctx context.Context, image string) (string, error) {
	return crane.Digest(image, crane.WithContext(ctx))
}

// VulnerabilitySource looks up known findings for an already-resolved
// image digest. It is deliberately pluggable: the default NullSource
// never contacts a CVE feed, so the scanner runs fully offline out of
// the box. A real deployment wires in a source backed by a local CVE
// database or an internal feed without touching the scan loop itself.
type VulnerabilitySource interface {
	Findings(ctx context.Context, image, digest string) ([]events.VulnerabilityFinding, error)
}

// NullSource is the default VulnerabilitySource: it reports no findings
// for any image, so the scanner's digest-resolution and publish pipeline
// works end to end without network access to a vulnerability feed.
type NullSource struct{}

func (NullSource) Findings(ctx context.Context, image, digest string) ([]events.VulnerabilityFinding, error) {
	return nil, nil
}
