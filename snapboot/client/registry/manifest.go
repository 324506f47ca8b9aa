package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"strings"
)

const (
	ManifestMediaType = "application/vnd.oci.image.manifest.v1+json"

	SnapshotConfigMediaType    = "application/vnd.ethfleet.snapshot.config.v1+json"
	SnapshotLayerGzipMediaType = "application/vnd.ethfleet.snapshot.layer.v1.tar+gzip"
	SnapshotLayerZstdMediaType = "application/vnd.ethfleet.snapshot.layer.v1.tar+zstd"
)

// Descriptor addresses one content blob.
type Descriptor struct {
	MediaType string `json:"mediaType"`
	Digest    string `json:"digest"`
	Size      int64  `json:"size"`
}

// Manifest is an OCI image manifest. Snapshot archives are published as
// a single layer plus a config blob carrying the snapshot metadata.
type Manifest struct {
	SchemaVersion int               `json:"schemaVersion"`
	MediaType     string            `json:"mediaType"`
	Config        Descriptor        `json:"config"`
	Layers        []Descriptor      `json:"layers"`
	Annotations   map[string]string `json:"annotations,omitempty"`

	// Digest of the manifest body itself, filled in by the client.
	Digest string `json:"-"`
}

// Digest computes the canonical "sha256:<hex>" digest of data.
func DigestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// DigestVerifier wraps a blob stream and checks the content digest when
// the stream has been fully consumed.
type DigestVerifier struct {
	inner  io.Reader
	hash   hash.Hash
	expect string
}

func NewDigestVerifier(r io.Reader, digest string) *DigestVerifier {
	return &DigestVerifier{
		inner:  r,
		hash:   sha256.New(),
		expect: digest,
	}
}

func (v *DigestVerifier) Read(p []byte) (int, error) {
	n, err := v.inner.Read(p)
	if n > 0 {
		v.hash.Write(p[:n])
	}
	if err == io.EOF {
		if verifyErr := v.Verify(); verifyErr != nil {
			return n, verifyErr
		}
	}
	return n, err
}

// Verify checks the digest of everything read so far.
func (v *DigestVerifier) Verify() error {
	actual := "sha256:" + hex.EncodeToString(v.hash.Sum(nil))
	if actual != v.expect {
		return fmt.Errorf("%w: digest mismatch: got %s, want %s", ErrMalformed, actual, v.expect)
	}
	return nil
}

func decodeManifest(body []byte) (*Manifest, error) {
	manifest := &Manifest{}
	if err := json.Unmarshal(body, manifest); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if manifest.SchemaVersion == 0 || len(manifest.Layers) == 0 {
		return nil, fmt.Errorf("%w: manifest without layers", ErrMalformed)
	}
	for _, layer := range manifest.Layers {
		if !strings.HasPrefix(layer.Digest, "sha256:") {
			return nil, fmt.Errorf("%w: unsupported layer digest %q", ErrMalformed, layer.Digest)
		}
	}
	manifest.Digest = DigestOf(body)
	return manifest, nil
}
