package testaide

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"

	"github.com/ethfleet/snapboot/snapboot/client/registry"
	"github.com/google/uuid"
)

// FakeRegistry is an in-memory container registry speaking the /v2 API
// subset the snapshot pipeline uses. It is safe for concurrent use.
type FakeRegistry struct {
	mu        sync.Mutex
	blobs     map[string][]byte            // digest -> content
	manifests map[string]manifestEntry     // repo ":" tag -> manifest
	uploads   map[string]string            // upload id -> repo
	server    *httptest.Server
	// Failures injected by tests.
	FailBlobFetch bool
	TruncateBlobs int // when > 0, blob responses are cut to this many bytes
}

type manifestEntry struct {
	body   []byte
	digest string
}

var (
	tagsRe      = regexp.MustCompile(`^/v2/(.+)/tags/list$`)
	manifestsRe = regexp.MustCompile(`^/v2/(.+)/manifests/([^/]+)$`)
	blobsRe     = regexp.MustCompile(`^/v2/(.+)/blobs/(sha256:[a-f0-9]+)$`)
	uploadsRe   = regexp.MustCompile(`^/v2/(.+)/blobs/uploads/$`)
	uploadRe    = regexp.MustCompile(`^/v2/uploads/([^/?]+)$`)
)

func NewFakeRegistry() *FakeRegistry {
	reg := &FakeRegistry{
		blobs:     make(map[string][]byte),
		manifests: make(map[string]manifestEntry),
		uploads:   make(map[string]string),
	}
	reg.server = httptest.NewServer(http.HandlerFunc(reg.handle))
	return reg
}

func (f *FakeRegistry) URL() string { return f.server.URL }

func (f *FakeRegistry) Close() { f.server.Close() }

// Publish stores a ready-made snapshot directly, bypassing the upload
// protocol. Convenient for tests exercising the consumer side.
func (f *FakeRegistry) Publish(repo, tag string, configJSON, layer []byte, layerMediaType string) *registry.Manifest {
	f.mu.Lock()
	defer f.mu.Unlock()

	configDigest := registry.DigestOf(configJSON)
	layerDigest := registry.DigestOf(layer)
	f.blobs[configDigest] = configJSON
	f.blobs[layerDigest] = layer

	manifest := &registry.Manifest{
		SchemaVersion: 2,
		MediaType:     registry.ManifestMediaType,
		Config: registry.Descriptor{
			MediaType: registry.SnapshotConfigMediaType,
			Digest:    configDigest,
			Size:      int64(len(configJSON)),
		},
		Layers: []registry.Descriptor{{
			MediaType: layerMediaType,
			Digest:    layerDigest,
			Size:      int64(len(layer)),
		}},
	}
	body, err := json.Marshal(manifest)
	if err != nil {
		panic(err)
	}
	manifest.Digest = registry.DigestOf(body)
	f.manifests[repo+":"+tag] = manifestEntry{body: body, digest: manifest.Digest}
	return manifest
}

// Tags returns the stored tags of a repo in map order.
func (f *FakeRegistry) Tags(repo string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var tags []string
	for key := range f.manifests {
		if r, tag, ok := strings.Cut(key, ":"); ok && r == repo {
			tags = append(tags, tag)
		}
	}
	return tags
}

func (f *FakeRegistry) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && tagsRe.MatchString(r.URL.Path):
		f.handleTags(w, tagsRe.FindStringSubmatch(r.URL.Path)[1])
	case manifestsRe.MatchString(r.URL.Path):
		m := manifestsRe.FindStringSubmatch(r.URL.Path)
		f.handleManifest(w, r, m[1], m[2])
	case r.Method == http.MethodGet && blobsRe.MatchString(r.URL.Path):
		m := blobsRe.FindStringSubmatch(r.URL.Path)
		f.handleBlobFetch(w, m[2])
	case r.Method == http.MethodPost && uploadsRe.MatchString(r.URL.Path):
		f.handleUploadStart(w, uploadsRe.FindStringSubmatch(r.URL.Path)[1])
	case r.Method == http.MethodPut && uploadRe.MatchString(r.URL.Path):
		f.handleUploadFinish(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeRegistry) handleTags(w http.ResponseWriter, repo string) {
	tags := f.Tags(repo)
	if len(tags) == 0 {
		http.NotFound(w, nil)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"name": repo, "tags": tags})
}

func (f *FakeRegistry) handleManifest(w http.ResponseWriter, r *http.Request, repo, reference string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		entry, ok := f.lookupManifest(repo, reference)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", registry.ManifestMediaType)
		w.Header().Set("Docker-Content-Digest", entry.digest)
		_, _ = w.Write(entry.body)

	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.manifests[repo+":"+reference] = manifestEntry{body: body, digest: registry.DigestOf(body)}
		w.WriteHeader(http.StatusCreated)

	case http.MethodDelete:
		for key, entry := range f.manifests {
			if strings.HasPrefix(key, repo+":") && entry.digest == reference {
				delete(f.manifests, key)
				w.WriteHeader(http.StatusAccepted)
				return
			}
		}
		http.NotFound(w, r)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (f *FakeRegistry) lookupManifest(repo, reference string) (manifestEntry, bool) {
	if entry, ok := f.manifests[repo+":"+reference]; ok {
		return entry, true
	}
	// Reference may be a digest.
	for key, entry := range f.manifests {
		if strings.HasPrefix(key, repo+":") && entry.digest == reference {
			return entry, true
		}
	}
	return manifestEntry{}, false
}

func (f *FakeRegistry) handleBlobFetch(w http.ResponseWriter, digest string) {
	f.mu.Lock()
	content, ok := f.blobs[digest]
	failFetch := f.FailBlobFetch
	truncate := f.TruncateBlobs
	f.mu.Unlock()

	if failFetch {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, nil)
		return
	}
	if truncate > 0 && truncate < len(content) {
		// Announce the full length, then cut the stream short.
		w.Header().Set("Content-Length", fmt.Sprint(len(content)))
		_, _ = w.Write(content[:truncate])
		return
	}
	_, _ = w.Write(content)
}

func (f *FakeRegistry) handleUploadStart(w http.ResponseWriter, repo string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := uuid.NewString()
	f.uploads[id] = repo
	w.Header().Set("Location", "/v2/uploads/"+id)
	w.WriteHeader(http.StatusAccepted)
}

func (f *FakeRegistry) handleUploadFinish(w http.ResponseWriter, r *http.Request) {
	id := uploadRe.FindStringSubmatch(r.URL.Path)[1]
	digest := r.URL.Query().Get("digest")

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.uploads[id]; !ok || digest == "" {
		http.Error(w, "unknown upload", http.StatusBadRequest)
		return
	}
	delete(f.uploads, id)

	content, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if actual := registry.DigestOf(content); actual != digest {
		http.Error(w, "digest mismatch", http.StatusBadRequest)
		return
	}
	f.blobs[digest] = content
	w.WriteHeader(http.StatusCreated)
}
