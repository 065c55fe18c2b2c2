package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testFeatures = `["income", "age", "housing"]`
	testBaseline = `{"income": 50000, "age": 40, "housing": "own"}`
	testColumns  = `[
		{"name": "income_z", "source": "income", "kind": "numeric", "impute": 50000, "center": 50000, "scale": 10000},
		{"name": "age", "source": "age", "kind": "numeric", "impute": 40},
		{"name": "housing_own", "source": "housing", "kind": "indicator", "category": "own"},
		{"name": "housing_rent", "source": "housing", "kind": "indicator", "category": "rent"}
	]`
	testModel = `{
		"version": "2024-06-01",
		"base_margin": -1.0,
		"threshold": 0.5,
		"num_features": 4,
		"trees": [{"nodes": [
			{"feature": 0, "threshold": 0, "left": 1, "right": 2, "missing": 1, "value": 0.1},
			{"feature": -1, "value": -0.5},
			{"feature": -1, "value": 0.8}
		]}]
	}`
)

func writeBundle(t *testing.T, overrides map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		FeaturesFile:  testFeatures,
		BaselineFile:  testBaseline,
		TransformFile: testColumns,
		ModelFile:     testModel,
	}
	for name, content := range overrides {
		files[name] = content
	}
	for name, content := range files {
		if content == "" {
			continue
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func writeManifest(t *testing.T, dir string, paths ...string) {
	t.Helper()
	manifest := Manifest{Version: "2024-06-01"}
	for _, p := range paths {
		data, err := os.ReadFile(filepath.Join(dir, p))
		require.NoError(t, err)
		sum := sha256.Sum256(data)
		manifest.Files = append(manifest.Files, ManifestEntry{Path: p, SHA256: hex.EncodeToString(sum[:])})
	}
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644))
}

func TestLoad(t *testing.T) {
	dir := writeBundle(t, nil)

	b, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Schema.Len())
	assert.Equal(t, 4, b.Transform.Len())
	assert.Equal(t, "2024-06-01", b.Version)
	assert.Len(t, b.Ensemble.Trees, 1)
	assert.Equal(t, 0.5, b.Ensemble.Threshold)
}

func TestLoadWithManifest(t *testing.T) {
	dir := writeBundle(t, nil)
	writeManifest(t, dir, FeaturesFile, BaselineFile, TransformFile, ModelFile)

	b, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", b.Version)
}

func TestLoadRejectsTamperedArtifact(t *testing.T) {
	dir := writeBundle(t, nil)
	writeManifest(t, dir, FeaturesFile, BaselineFile, TransformFile, ModelFile)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ModelFile), []byte(testModel+"\n"), 0o644))

	_, err := Load(dir)
	assert.ErrorContains(t, err, "checksum mismatch")
}

func TestVerifyManifest(t *testing.T) {
	t.Run("absent manifest is tolerated", func(t *testing.T) {
		dir := writeBundle(t, nil)
		manifest, err := VerifyManifest(dir)
		require.NoError(t, err)
		assert.Nil(t, manifest)
	})

	t.Run("traversal path is rejected", func(t *testing.T) {
		dir := writeBundle(t, nil)
		data, err := json.Marshal(Manifest{Files: []ManifestEntry{{Path: "../evil", SHA256: "00"}}})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644))

		_, err = VerifyManifest(dir)
		assert.ErrorContains(t, err, "invalid path")
	})

	t.Run("checksum is case insensitive", func(t *testing.T) {
		dir := writeBundle(t, nil)
		data, err := os.ReadFile(filepath.Join(dir, FeaturesFile))
		require.NoError(t, err)
		sum := sha256.Sum256(data)
		upper := Manifest{Files: []ManifestEntry{{Path: FeaturesFile, SHA256: hexUpper(sum[:])}}}
		raw, err := json.Marshal(upper)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), raw, 0o644))

		_, err = VerifyManifest(dir)
		assert.NoError(t, err)
	})
}

func hexUpper(b []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&0x0f])
	}
	return string(out)
}

func TestLoadRejectsInconsistentArtifacts(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
		wantErr   string
	}{
		{
			name:      "missing model file",
			overrides: map[string]string{ModelFile: ""},
			wantErr:   "open model.json",
		},
		{
			name:      "malformed json",
			overrides: map[string]string{FeaturesFile: `["income",`},
			wantErr:   "decode features.json",
		},
		{
			name: "column count mismatch",
			overrides: map[string]string{ModelFile: `{
				"base_margin": 0, "threshold": 0.5, "num_features": 9,
				"trees": [{"nodes": [{"feature": -1, "value": 0}]}]
			}`},
			wantErr: "model expects 9",
		},
		{
			name: "transform sources a feature outside the baseline",
			overrides: map[string]string{TransformFile: `[
				{"name": "x", "source": "shoe_size", "kind": "numeric", "impute": 0},
				{"name": "age", "source": "age", "kind": "numeric"},
				{"name": "a", "source": "housing", "kind": "indicator", "category": "own"},
				{"name": "b", "source": "housing", "kind": "indicator", "category": "rent"}
			]`},
			wantErr: `"shoe_size" absent from baseline`,
		},
		{
			name:      "baseline not covering declared features",
			overrides: map[string]string{BaselineFile: `{"income": 50000}`},
			wantErr:   "baseline record missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeBundle(t, tt.overrides)
			_, err := Load(dir)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
