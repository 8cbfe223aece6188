// Package dicomfs scans the files a modality produced for a procedure step.
package dicomfs

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ErrNoInstances is returned when a path holds no readable DICOM instance
var ErrNoInstances = errors.New("no SOP instances found")

// Scanner collects SOP instances below a path
type Scanner struct{}

// NewScanner creates a scanner
func NewScanner() *Scanner {
	return &Scanner{}
}

// Collect walks path (a file or a directory) and groups the .dcm files carrying a SOP
// Class UID by directory, one series per directory. Unreadable files are skipped.
func (s *Scanner) Collect(path string) ([]models.SopInstanceSeries, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	byDir := make(map[string]*models.SopInstanceSeries)
	var dirs []string

	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".dcm") {
			return nil
		}

		info, seriesUID, ok := readInstance(p)
		if !ok {
			return nil
		}

		dir := filepath.Dir(p)
		series, exists := byDir[dir]
		if !exists {
			if seriesUID == "" {
				seriesUID = NewUID()
			}
			series = &models.SopInstanceSeries{
				SeriesInstanceUID: seriesUID,
				SOPClassUID:       info.SOPClassUID,
			}
			byDir[dir] = series
			dirs = append(dirs, dir)
		}
		series.Instances = append(series.Instances, info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}

	sort.Strings(dirs)
	result := make([]models.SopInstanceSeries, 0, len(dirs))
	for _, dir := range dirs {
		result = append(result, *byDir[dir])
	}

	if len(result) == 0 {
		return nil, ErrNoInstances
	}
	return result, nil
}

func readInstance(path string) (models.SopInstanceInfo, string, bool) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Skipping unreadable DICOM file")
		return models.SopInstanceInfo{}, "", false
	}

	classUID := firstString(ds, tag.SOPClassUID)
	if classUID == "" {
		return models.SopInstanceInfo{}, "", false
	}

	instanceUID := firstString(ds, tag.SOPInstanceUID)
	if instanceUID == "" {
		instanceUID = NewUID()
	}

	return models.SopInstanceInfo{
		SOPInstanceUID: instanceUID,
		Path:           path,
		SOPClassUID:    classUID,
	}, firstString(ds, tag.SeriesInstanceUID), true
}

func firstString(ds dicom.Dataset, t tag.Tag) string {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return ""
	}
	values, ok := elem.Value.GetValue().([]string)
	if !ok || len(values) == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(values[0]), "\x00")
}

// NewUID returns a UUID-derived DICOM UID under the 2.25 root
func NewUID() string {
	id := uuid.New()
	return "2.25." + new(big.Int).SetBytes(id[:]).String()
}
