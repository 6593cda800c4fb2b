package runtime

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SWE-agent/SWE-ReX/internal/types"
)

func TestWriteReadFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "out.txt")

	_, err := writeFile(path, "first")
	require.NoError(t, err)

	resp, err := readFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content)

	_, err = writeFile(path, "second")
	require.NoError(t, err)

	resp, err = readFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Content)
}

func TestReadFileMissing(t *testing.T) {
	_, err := readFile(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindFileOp))
}

func TestSaveUploadPlain(t *testing.T) {
	target := filepath.Join(t.TempDir(), "sub", "payload.bin")
	require.NoError(t, saveUpload(strings.NewReader("payload-bytes"), target, false))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "payload-bytes", string(data))
}

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestSaveUploadUnzip(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"pkg/a.txt":        "alpha",
		"pkg/nested/":      "",
		"pkg/nested/b.txt": "beta",
	})
	target := filepath.Join(t.TempDir(), "extracted")
	require.NoError(t, saveUpload(bytes.NewReader(archive), target, true))

	a, err := os.ReadFile(filepath.Join(target, "pkg", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(a))

	b, err := os.ReadFile(filepath.Join(target, "pkg", "nested", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(b))
}

func TestSaveUploadUnzipRejectsEscape(t *testing.T) {
	archive := buildZip(t, map[string]string{"../evil.txt": "gotcha"})
	base := t.TempDir()
	target := filepath.Join(base, "extracted")

	err := saveUpload(bytes.NewReader(archive), target, true)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindFileOp))

	_, statErr := os.Stat(filepath.Join(base, "evil.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSanitizeArchivePath(t *testing.T) {
	dest := filepath.Join(os.TempDir(), "dest")

	cases := []struct {
		name    string
		entry   string
		wantErr bool
	}{
		{"plain", "a.txt", false},
		{"nested", "a/b/c.txt", false},
		{"dot prefixed", "./ok.txt", false},
		{"parent escape", "../x.txt", true},
		{"nested escape", "a/../../x.txt", true},
		{"absolute", "/etc/passwd", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target, err := sanitizeArchivePath(dest, tc.entry)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unsafe path in archive")
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(target, dest+string(os.PathSeparator)))
		})
	}
}
