package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "eventstudy/internal/errors"
)

// SupportedInputExtensions are the table formats the loader reads
var SupportedInputExtensions = []string{".csv", ".txt", ".xlsx", ".xlsm"}

// FileValidator checks input tables and the output directory before a run
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger: logger,
	}
}

// ValidateInputFile checks that path is a readable, non-empty table in a supported format
func (v *FileValidator) ValidateInputFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("Input file does not exist", slog.String("file", path))
		return apperrors.NewMissingInputError(fmt.Sprintf("input file %s does not exist", path), path)
	}
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("failed to stat %s", path), err)
	}
	if info.IsDir() {
		v.logger.Error("Input path is a directory", slog.String("path", path))
		return apperrors.NewValidationError(fmt.Sprintf("%s is a directory, not a file", path), nil)
	}

	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") {
		v.logger.Warn("Refusing temporary Excel file", slog.String("file", path))
		return apperrors.NewValidationError(fmt.Sprintf("%s is a temporary Excel file", path), nil)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !supported(ext) {
		return apperrors.NewValidationError(
			fmt.Sprintf("unsupported input format %q (want one of %s)", ext, strings.Join(SupportedInputExtensions, ", ")), nil).
			WithContext("file", path)
	}
	if info.Size() == 0 {
		return apperrors.NewMissingInputError(fmt.Sprintf("input file %s is empty", path), path)
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("Input file is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return apperrors.NewValidationError(fmt.Sprintf("input file %s is not readable", path), err)
	}
	file.Close()

	v.logger.Debug("Input file validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateOutputDirectory ensures dir exists or can be created, and is writable
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return apperrors.NewStorageError(fmt.Sprintf("failed to create output directory %s", dir), err)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return apperrors.NewStorageError(fmt.Sprintf("output directory %s is not writable", dir), err)
	}
	file.Close()
	os.Remove(testFile)

	v.logger.Debug("Output directory validated", slog.String("directory", dir))
	return nil
}

func supported(ext string) bool {
	for _, e := range SupportedInputExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
