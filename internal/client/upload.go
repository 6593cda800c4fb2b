package client

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/SWE-agent/SWE-ReX/internal/types"
)

// Upload transfers a local file or directory to targetPath on the
// runtime host. Directories are zipped on the fly and extracted
// server-side, so targetPath ends up holding the directory's contents.
func (c *RemoteRuntime) Upload(ctx context.Context, localPath, targetPath string) (types.UploadResponse, error) {
	resp := types.UploadResponse{}

	info, err := os.Stat(localPath)
	if err != nil {
		return resp, fmt.Errorf("cannot upload %s: %w", localPath, err)
	}

	sourcePath := localPath
	unzip := false
	if info.IsDir() {
		archive, err := zipDirectory(localPath)
		if err != nil {
			return resp, fmt.Errorf("failed to zip %s: %w", localPath, err)
		}
		defer os.Remove(archive)
		sourcePath = archive
		unzip = true
	}

	body, contentType, err := uploadForm(sourcePath, targetPath, unzip)
	if err != nil {
		return resp, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", body)
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return resp, c.do(req, &resp)
}

// uploadForm builds the multipart body for an upload request.
func uploadForm(sourcePath, targetPath string, unzip bool) (io.Reader, string, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(sourcePath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("target_path", targetPath); err != nil {
		return nil, "", err
	}
	if unzip {
		if err := mw.WriteField("unzip", "true"); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// zipDirectory archives srcDir's contents into a temporary zip file
// with entry names relative to srcDir. The caller removes the file.
func zipDirectory(srcDir string) (string, error) {
	tmp, err := os.CreateTemp("", "swerex-transfer-*.zip")
	if err != nil {
		return "", err
	}

	zw := zip.NewWriter(tmp)
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			_, err := zw.Create(rel + "/")
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = rel
		hdr.Method = zip.Deflate

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})

	if err := zw.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if err := tmp.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if walkErr != nil {
		os.Remove(tmp.Name())
		return "", walkErr
	}
	return tmp.Name(), nil
}
