package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"aceinterview/internal/errors"
	"aceinterview/internal/utils"
)

// InputFile is a file read from disk for a command
type InputFile struct {
	Name    string
	Content []byte
}

// Text returns the file content as a string
func (f InputFile) Text() string {
	return string(f.Content)
}

// FileProcessor handles common file operations
type FileProcessor struct {
	logger *errors.Logger
}

// NewFileProcessor creates a new file processor instance
func NewFileProcessor(logger *errors.Logger) *FileProcessor {
	return &FileProcessor{logger: logger}
}

// ReadFile reads content from a file with proper error handling
func (fp *FileProcessor) ReadFile(filename string) ([]byte, error) {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewIOError(errors.ErrCodeFileNotFound,
				fmt.Sprintf("File not found: %s", filename), err)
		}
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot read file: %s", filename), err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			// Log the error but don't override the main operation result
			if fp.logger != nil {
				fp.logger.Warn("Failed to close file", "filename", filename, "error", err)
			}
		}
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Failed to read file content: %s", filename), err)
	}

	return content, nil
}

// WriteFile writes content to a file with directory creation
func (fp *FileProcessor) WriteFile(filename, content string) error {
	dir := filepath.Dir(filename)
	if dir != "." {
		err := os.MkdirAll(dir, 0750)
		if err != nil {
			return errors.NewIOError("DIRECTORY_CREATE_FAILED",
				fmt.Sprintf("Cannot create directory: %s", dir), err)
		}
	}

	err := os.WriteFile(filename, []byte(content), 0600)
	if err != nil {
		return errors.NewIOError("FILE_WRITE_FAILED",
			fmt.Sprintf("Cannot write file: %s", filename), err)
	}

	return nil
}

// ValidateAndReadFiles validates and reads multiple input files
func (fp *FileProcessor) ValidateAndReadFiles(filenames ...string) ([]InputFile, error) {
	files := make([]InputFile, len(filenames))

	for i, filename := range filenames {
		if err := utils.ValidateInputFile(filename); err != nil {
			return nil, errors.NewValidationError("INVALID_INPUT_FILE",
				fmt.Sprintf("Invalid file %s", filename), err)
		}

		content, err := fp.ReadFile(filename)
		if err != nil {
			return nil, err // Error already wrapped by ReadFile
		}

		files[i] = InputFile{Name: filepath.Base(filename), Content: content}
	}

	return files, nil
}

// ReadResume validates and reads a resume for upload. A PDF without a text
// layer is only warned about; the backend gets the final say.
func (fp *FileProcessor) ReadResume(filename string, maxSize int64) (InputFile, error) {
	if err := utils.ValidateResumeFile(filename, maxSize); err != nil {
		return InputFile{}, errors.NewValidationError(errors.ErrCodeUnsupportedFile,
			fmt.Sprintf("Invalid resume %s", filename), err)
	}

	if utils.IsPDF(filename) {
		summary, err := utils.InspectPDF(filename)
		switch {
		case err != nil:
			fp.warn("Could not inspect PDF before upload", "filename", filename, "error", err)
		case !summary.HasText():
			fp.warn("PDF has no extractable text, it may be a scan", "filename", filename, "pages", summary.PageCount)
		}
	}

	content, err := fp.ReadFile(filename)
	if err != nil {
		return InputFile{}, err
	}
	return InputFile{Name: filepath.Base(filename), Content: content}, nil
}

func (fp *FileProcessor) warn(message string, args ...any) {
	if fp.logger != nil {
		fp.logger.Warn(message, args...)
		return
	}
	fmt.Fprintf(os.Stderr, "Warning: %s %v\n", message, args)
}

// ValidateOutputFile validates output file path
func (fp *FileProcessor) ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil // stdout is valid
	}

	if err := utils.ValidateOutputFile(filename); err != nil {
		return errors.NewValidationError("INVALID_OUTPUT_FILE",
			fmt.Sprintf("Invalid output file: %s", filename), err)
	}

	return nil
}
