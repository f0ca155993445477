package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

// defaultSupportedExtensions are the file types the ingestor can read as text.
// PDFs go through the extractor in pdf.go.
var defaultSupportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".rst":  true,
	".go":   true,
	".py":   true,
	".js":   true,
	".ts":   true,
	".java": true,
	".c":    true,
	".cpp":  true,
	".h":    true,
	".rs":   true,
	".rb":   true,
	".sh":   true,
	".yaml": true,
	".yml":  true,
	".json": true,
	".xml":  true,
	".html": true,
	".css":  true,
	".sql":  true,
	".csv":  true,
	".pdf":  true,
}

// maxFileSize is the largest file the ingestor will read. Larger files are
// skipped during directory walks and rejected by IngestFile.
const maxFileSize = 32 * 1024 * 1024

// IngestFile reads a single file and ingests its content. The file path,
// name, and extension are stored as chunk metadata.
func (ing *Ingestor) IngestFile(ctx context.Context, filePath string) (*Result, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if !ing.supportedExtensions[ext] {
		return nil, fmt.Errorf("%q: %w", ext, ErrUnsupportedFile)
	}

	// Read through os.Root so symlinks cannot escape the file's directory.
	root, err := os.OpenRoot(filepath.Dir(absPath))
	if err != nil {
		return nil, fmt.Errorf("opening root directory: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	fileName := filepath.Base(absPath)
	info, err := root.Stat(fileName)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", fileName, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%q is a directory, use IngestDirectory", filePath)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("file %q (%d bytes) exceeds size limit (%d bytes)",
			fileName, info.Size(), maxFileSize)
	}

	text, err := ing.readFileContent(root, fileName, ext)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"source_type": "file",
		"file_name":   fileName,
		"file_ext":    ext,
		"indexed_at":  time.Now().Format(time.RFC3339),
	}

	result, err := ing.IngestText(ctx, absPath, text, metadata)
	if err != nil {
		return nil, err
	}
	result.FilesAdded = 1
	return result, nil
}

// IngestDirectory recursively ingests every supported file under dirPath.
// Entries matched by the directory's .gitignore are skipped. Individual file
// failures are counted, not fatal.
func (ing *Ingestor) IngestDirectory(ctx context.Context, dirPath string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	absDirPath, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("resolving directory path: %w", err)
	}

	root, err := os.OpenRoot(absDirPath)
	if err != nil {
		return nil, fmt.Errorf("opening root directory: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	var gitIgnore *ignore.GitIgnore
	gitignorePath := filepath.Join(absDirPath, ".gitignore")
	if _, err := os.Stat(gitignorePath); err == nil {
		// A malformed .gitignore disables filtering, it never fails the walk.
		gitIgnore, _ = ignore.CompileIgnoreFile(gitignorePath)
	}

	err = filepath.Walk(absDirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			result.FilesFailed++
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		relPath, err := filepath.Rel(absDirPath, path)
		if err != nil {
			result.FilesFailed++
			return nil
		}

		if gitIgnore != nil && gitIgnore.MatchesPath(relPath) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			result.FilesSkipped++
			return nil
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !ing.supportedExtensions[ext] {
			result.FilesSkipped++
			return nil
		}
		if info.Size() > maxFileSize {
			result.FilesSkipped++
			return nil
		}

		text, err := ing.readFileContent(root, relPath, ext)
		if err != nil {
			ing.logger.Warn("failed to read file", "path", path, "error", err)
			result.FilesFailed++
			return nil
		}

		metadata := map[string]string{
			"source_type": "file",
			"file_name":   filepath.Base(path),
			"file_ext":    ext,
			"indexed_at":  time.Now().Format(time.RFC3339),
		}

		fileResult, err := ing.IngestText(ctx, path, text, metadata)
		if err != nil {
			ing.logger.Warn("failed to ingest file", "path", path, "error", err)
			result.FilesFailed++
			return nil
		}

		result.FilesAdded++
		result.ChunksAdded += fileResult.ChunksAdded
		result.TotalSize += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// readFileContent reads a file through the restricted root, extracting plain
// text from PDFs and returning other supported types verbatim.
func (ing *Ingestor) readFileContent(root *os.Root, relPath, ext string) (string, error) {
	if ext == ".pdf" {
		f, err := root.Open(relPath)
		if err != nil {
			return "", fmt.Errorf("opening %q: %w", relPath, err)
		}
		defer func() {
			_ = f.Close()
		}()

		info, err := f.Stat()
		if err != nil {
			return "", fmt.Errorf("stat %q: %w", relPath, err)
		}
		return extractPDFText(f, info.Size())
	}

	content, err := root.ReadFile(relPath)
	if err != nil {
		return "", fmt.Errorf("reading %q: %w", relPath, err)
	}
	return string(content), nil
}
