package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/scorewise/scorewise/internal/model"
	"github.com/scorewise/scorewise/internal/schema"
	"github.com/scorewise/scorewise/internal/transform"
)

// Artifact file names inside a bundle directory. All four are produced by the
// offline training pipeline and are read-only at runtime.
const (
	FeaturesFile  = "features.json"
	BaselineFile  = "baseline.json"
	TransformFile = "transform.json"
	ModelFile     = "model.json"
	ManifestFile  = "manifest.json"
)

// Bundle holds every loaded model artifact. Constructed once at boot and
// shared read-only by all requests.
type Bundle struct {
	Schema    *schema.Schema
	Transform *transform.Transform
	Ensemble  *model.Ensemble
	Version   string
}

// ManifestEntry describes one checksummed file in manifest.json.
type ManifestEntry struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// Manifest mirrors manifest.json.
type Manifest struct {
	Version string          `json:"version"`
	Files   []ManifestEntry `json:"files"`
}

type modelArtifact struct {
	Version string `json:"version"`
	model.Ensemble
}

// Load reads and cross-validates a bundle directory. When a manifest is
// present its checksums are verified first; a missing manifest is tolerated,
// a failing one is not.
func Load(dir string) (*Bundle, error) {
	if dir == "" {
		return nil, fmt.Errorf("bundle: directory is empty")
	}

	manifest, err := VerifyManifest(dir)
	if err != nil {
		return nil, err
	}

	var features []string
	if err := readJSON(filepath.Join(dir, FeaturesFile), &features); err != nil {
		return nil, err
	}
	var baseline schema.Record
	if err := readJSON(filepath.Join(dir, BaselineFile), &baseline); err != nil {
		return nil, err
	}
	sc, err := schema.New(features, baseline)
	if err != nil {
		return nil, err
	}

	var columns []transform.Column
	if err := readJSON(filepath.Join(dir, TransformFile), &columns); err != nil {
		return nil, err
	}
	tr, err := transform.New(columns)
	if err != nil {
		return nil, err
	}

	var art modelArtifact
	if err := readJSON(filepath.Join(dir, ModelFile), &art); err != nil {
		return nil, err
	}
	ens := art.Ensemble
	if err := ens.Validate(); err != nil {
		return nil, err
	}

	if tr.Len() != ens.NumFeatures {
		return nil, fmt.Errorf("bundle: transform produces %d columns, model expects %d", tr.Len(), ens.NumFeatures)
	}
	for i := 0; i < tr.Len(); i++ {
		source := tr.SourceFeature(i)
		if _, ok := baseline[source]; !ok {
			return nil, fmt.Errorf("bundle: transform column %d sources feature %q absent from baseline", i, source)
		}
	}

	version := art.Version
	if version == "" && manifest != nil {
		version = manifest.Version
	}

	return &Bundle{Schema: sc, Transform: tr, Ensemble: &ens, Version: version}, nil
}

// VerifyManifest checks every checksum listed in manifest.json against the
// files on disk. Returns (nil, nil) when the bundle carries no manifest.
func VerifyManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	var manifest Manifest
	if err := readJSON(path, &manifest); err != nil {
		return nil, err
	}
	for _, entry := range manifest.Files {
		if entry.Path == "" || strings.Contains(entry.Path, "..") {
			return nil, fmt.Errorf("bundle: manifest entry has invalid path %q", entry.Path)
		}
		sum, err := fileSHA256(filepath.Join(dir, entry.Path))
		if err != nil {
			return nil, fmt.Errorf("bundle: checksum %s: %w", entry.Path, err)
		}
		if !strings.EqualFold(sum, entry.SHA256) {
			return nil, fmt.Errorf("bundle: checksum mismatch for %s", entry.Path)
		}
	}
	return &manifest, nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("bundle: open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("bundle: decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
