package lexindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/textnorm"
)

// Artifact names inside one index generation directory.
const (
	VectorizerFile = "vectorizer.cbor"
	MatrixFile     = "matrix.cbor"
	MetadataFile   = "metadata.json"

	currentFile     = "CURRENT"
	generationGlob  = "gen-*"
	blobFormatMajor = 1
)

type vectorizerBlob struct {
	Format     int       `cbor:"format"`
	Normalizer string    `cbor:"normalizer"`
	Documents  int       `cbor:"documents"`
	Terms      []string  `cbor:"terms"`
	IDF        []float64 `cbor:"idf"`
}

// Save persists idx under dir. The artifacts are written into a fresh
// generation directory which becomes active only once the CURRENT pointer
// is replaced, so readers never observe a half-written index.
func Save(dir string, idx *Index) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	gen := "gen-" + uuid.NewString()
	genDir := filepath.Join(dir, gen)
	if err := os.Mkdir(genDir, 0o755); err != nil {
		return fmt.Errorf("create generation dir: %w", err)
	}

	if err := writeArtifacts(genDir, idx); err != nil {
		_ = os.RemoveAll(genDir)
		return err
	}
	if err := writeFileAtomic(filepath.Join(dir, currentFile), []byte(gen+"\n")); err != nil {
		_ = os.RemoveAll(genDir)
		return fmt.Errorf("activate generation: %w", err)
	}

	pruneGenerations(dir, gen)
	return nil
}

func writeArtifacts(genDir string, idx *Index) error {
	vec, err := cbor.Marshal(vectorizerBlob{
		Format:     blobFormatMajor,
		Normalizer: idx.vectorizer.normalizer,
		Documents:  idx.vectorizer.documents,
		Terms:      idx.vectorizer.terms,
		IDF:        idx.vectorizer.idf,
	})
	if err != nil {
		return fmt.Errorf("encode vectorizer: %w", err)
	}
	mat, err := cbor.Marshal(idx.matrix)
	if err != nil {
		return fmt.Errorf("encode matrix: %w", err)
	}
	meta, err := json.Marshal(idx.passages)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	for name, data := range map[string][]byte{
		VectorizerFile: vec,
		MatrixFile:     mat,
		MetadataFile:   meta,
	} {
		if err := writeFileSync(filepath.Join(genDir, name), data); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	_ = syncDir(genDir)
	return nil
}

// Load reads the active index generation under dir. A missing pointer,
// a missing artifact, unreadable artifacts or an index built with a
// different normalizer all yield ErrIndexMissing.
func Load(dir string, n textnorm.Normalizer) (*Index, error) {
	pointer, err := os.ReadFile(filepath.Join(dir, currentFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no active generation in %s", ErrIndexMissing, dir)
		}
		return nil, fmt.Errorf("read index pointer: %w", err)
	}
	genDir := filepath.Join(dir, strings.TrimSpace(string(pointer)))

	read := func(name string) ([]byte, error) {
		data, err := os.ReadFile(filepath.Join(genDir, name))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrIndexMissing, name)
		}
		return data, err
	}

	vecData, err := read(VectorizerFile)
	if err != nil {
		return nil, err
	}
	matData, err := read(MatrixFile)
	if err != nil {
		return nil, err
	}
	metaData, err := read(MetadataFile)
	if err != nil {
		return nil, err
	}

	var vb vectorizerBlob
	if err := cbor.Unmarshal(vecData, &vb); err != nil {
		return nil, fmt.Errorf("%w: decode vectorizer: %v", ErrIndexMissing, err)
	}
	var matrix Matrix
	if err := cbor.Unmarshal(matData, &matrix); err != nil {
		return nil, fmt.Errorf("%w: decode matrix: %v", ErrIndexMissing, err)
	}
	var passages []models.Passage
	if err := json.Unmarshal(metaData, &passages); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %v", ErrIndexMissing, err)
	}

	if vb.Format != blobFormatMajor {
		return nil, fmt.Errorf("%w: unsupported format %d", ErrIndexMissing, vb.Format)
	}
	if want := textnorm.ID(n); vb.Normalizer != want {
		return nil, fmt.Errorf("%w: built with normalizer %q, have %q", ErrIndexMissing, vb.Normalizer, want)
	}
	if len(vb.Terms) != len(vb.IDF) || matrix.Cols != len(vb.Terms) {
		return nil, fmt.Errorf("%w: vocabulary does not match matrix", ErrIndexMissing)
	}
	if matrix.Rows != len(passages) {
		return nil, fmt.Errorf("%w: %d matrix rows for %d passages", ErrIndexMissing, matrix.Rows, len(passages))
	}
	if err := matrix.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexMissing, err)
	}

	byID := make(map[string]int, len(passages))
	for i, p := range passages {
		byID[p.ID] = i
	}

	return &Index{
		vectorizer: newVectorizer(vb.Terms, vb.IDF, vb.Documents, vb.Normalizer),
		matrix:     &matrix,
		passages:   passages,
		byID:       byID,
		normalizer: n,
	}, nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeFileAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// pruneGenerations removes inactive generations. Failures are ignored; a
// stale generation is harmless.
func pruneGenerations(dir, keep string) {
	matches, err := filepath.Glob(filepath.Join(dir, generationGlob))
	if err != nil {
		return
	}
	for _, m := range matches {
		if filepath.Base(m) != keep {
			_ = os.RemoveAll(m)
		}
	}
}
