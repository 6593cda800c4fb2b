package runtime

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/SWE-agent/SWE-ReX/internal/types"
)

// maxExtractSize caps a single extracted file to guard against
// decompression bombs.
const maxExtractSize = 1 << 30 // 1 GiB

// readFile returns the content of path.
func readFile(path string) (types.ReadFileResponse, error) {
	resp := types.ReadFileResponse{}
	data, err := os.ReadFile(path)
	if err != nil {
		return resp, types.NewFileOpError(err)
	}
	resp.Content = string(data)
	return resp, nil
}

// writeFile writes content to path, creating missing parent
// directories and overwriting an existing file.
func writeFile(path, content string) (types.WriteFileResponse, error) {
	resp := types.WriteFileResponse{}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return resp, types.NewFileOpError(err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return resp, types.NewFileOpError(err)
	}
	return resp, nil
}

// saveUpload stores an uploaded stream at targetPath. With unzip set,
// the stream is spooled to a temporary file and extracted as a zip
// archive into targetPath, which becomes a directory.
func saveUpload(file io.Reader, targetPath string, unzip bool) error {
	if !unzip {
		return copyUpload(file, targetPath)
	}

	tmp, err := os.CreateTemp("", "swerex-upload-*.zip")
	if err != nil {
		return types.NewFileOpError(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		return types.NewFileOpError(fmt.Errorf("failed to spool upload: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return types.NewFileOpError(err)
	}
	if err := extractZip(tmp.Name(), targetPath); err != nil {
		return types.NewFileOpError(err)
	}
	return nil
}

func copyUpload(file io.Reader, targetPath string) error {
	if dir := filepath.Dir(targetPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return types.NewFileOpError(err)
		}
	}
	dst, err := os.Create(targetPath)
	if err != nil {
		return types.NewFileOpError(err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		return types.NewFileOpError(fmt.Errorf("failed to write upload: %w", err))
	}
	if err := dst.Close(); err != nil {
		return types.NewFileOpError(err)
	}
	return nil
}

// extractZip extracts archive into destDir, refusing entries that
// would land outside it.
func extractZip(archive, destDir string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		// OpenReader hands back a usable reader alongside
		// ErrInsecurePath; we reject those archives outright.
		if r != nil {
			r.Close()
		}
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}
	for _, f := range r.File {
		if err := extractZipEntry(f, destDir); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, destDir string) error {
	target, err := sanitizeArchivePath(destDir, f.Name)
	if err != nil {
		return err
	}

	info := f.FileInfo()
	if info.IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.Name, err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
	}
	defer src.Close()

	perm := info.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}
	if _, err := io.Copy(dst, io.LimitReader(src, maxExtractSize)); err != nil {
		dst.Close()
		return fmt.Errorf("failed to write file %s: %w", target, err)
	}
	return dst.Close()
}

// sanitizeArchivePath resolves an archive entry name under destDir and
// rejects names that would escape it.
func sanitizeArchivePath(destDir, name string) (string, error) {
	cleaned := filepath.Clean(name)
	if strings.HasPrefix(cleaned, "..") || strings.HasPrefix(cleaned, "/") {
		return "", fmt.Errorf("unsafe path in archive: %s", name)
	}
	target := filepath.Join(destDir, cleaned)
	root := filepath.Clean(destDir)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("unsafe path in archive: %s", name)
	}
	return target, nil
}
