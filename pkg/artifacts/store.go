// Package artifacts writes the intermediate images of a localization to
// disk, one directory per task, so a run can be audited or replayed offline.
package artifacts

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"path/filepath"

	"github.com/menta2k/screen-locator/internal/utils"
	"github.com/menta2k/screen-locator/pkg/processing"
)

// Stage names one image of a refinement round
type Stage string

const (
	StageCurrent Stage = "current"
	StageGrid    Stage = "grid"
	StageMerge   Stage = "merge"
)

// Store saves images under <root>/images/<taskID>
type Store interface {
	Save(taskID, descHash string, stage Stage, depth int, img image.Image) (string, error)
	SaveDebug(taskID, descHash string, img image.Image) (string, error)
}

// DescriptionHash keys a call's artifacts by its target description
func DescriptionHash(description string) string {
	sum := md5.Sum([]byte(description))
	return hex.EncodeToString(sum[:])[:5]
}

// FileStore is a Store on the local filesystem
type FileStore struct {
	root      string
	format    string
	processor *processing.Processor
}

// NewFileStore creates a store rooted at dataPath that encodes images in format
func NewFileStore(dataPath, format string, processor *processing.Processor) *FileStore {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	return &FileStore{
		root:      dataPath,
		format:    processing.NormalizeFormat(format),
		processor: processor,
	}
}

// Dir returns the artifact directory of a task
func (s *FileStore) Dir(taskID string) string {
	return filepath.Join(s.root, "images", utils.SanitizeFilename(taskID))
}

// Path returns the file name of one round's image
func (s *FileStore) Path(taskID, descHash string, stage Stage, depth int) string {
	return filepath.Join(s.Dir(taskID), fmt.Sprintf("%s_%s_%d.%s", descHash, stage, depth, s.format))
}

// Save writes one round's image and returns its path
func (s *FileStore) Save(taskID, descHash string, stage Stage, depth int, img image.Image) (string, error) {
	return s.write(s.Path(taskID, descHash, stage, depth), taskID, img)
}

// SaveDebug writes the final annotated screenshot
func (s *FileStore) SaveDebug(taskID, descHash string, img image.Image) (string, error) {
	path := filepath.Join(s.Dir(taskID), fmt.Sprintf("%s_debug.%s", descHash, s.format))
	return s.write(path, taskID, img)
}

func (s *FileStore) write(path, taskID string, img image.Image) (string, error) {
	if err := utils.EnsureDir(s.Dir(taskID)); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := s.processor.SaveImage(img, path, s.format); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

// Discard is a Store that writes nothing
type Discard struct{}

// Save does nothing
func (Discard) Save(string, string, Stage, int, image.Image) (string, error) { return "", nil }

// SaveDebug does nothing
func (Discard) SaveDebug(string, string, image.Image) (string, error) { return "", nil }
