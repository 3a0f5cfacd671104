package docgen

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

const odtMime = "application/vnd.oasis.opendocument.text"

// writeTemplate creates a minimal ODT package whose content.xml is content.
func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range []struct{ name, body string }{
		{"META-INF/manifest.xml", "<manifest/>"},
		{"content.xml", content},
		{"mimetype", odtMime},
	} {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644))
}

func readEntries(t *testing.T, data []byte) ([]string, map[string]string) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	bodies := map[string]string{}
	for _, f := range zr.File {
		names = append(names, f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		bodies[f.Name] = string(body)
		if f.Name == "mimetype" {
			assert.Equal(t, zip.Store, f.Method)
		}
	}
	return names, bodies
}

func TestODT_Render(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "hello.odt",
		`<text:p>{{xml .name}} le {{format_date .day}} à {{format_datetime .at}} : {{money .total}}</text:p>`)

	day := datatypes.Date(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC))
	var out bytes.Buffer
	err := NewODT(dir).Render(&out, "hello.odt", map[string]any{
		"name":  "Dupont & fils <SARL>",
		"day":   &day,
		"at":    time.Date(2024, 9, 2, 14, 5, 0, 0, time.UTC),
		"total": 400.0,
	})
	require.NoError(t, err)

	names, bodies := readEntries(t, out.Bytes())
	assert.Equal(t, "mimetype", names[0])
	assert.Equal(t, odtMime, bodies["mimetype"])
	assert.Equal(t, "<manifest/>", bodies["META-INF/manifest.xml"])
	assert.Equal(t,
		"<text:p>Dupont &amp; fils &lt;SARL&gt; le 01/09/2024 à 02/09/2024 14h05 : 400.00</text:p>",
		bodies["content.xml"])
}

func TestODT_MissingTemplate(t *testing.T) {
	err := NewODT(t.TempDir()).Render(io.Discard, "absent.odt", nil)
	assert.Error(t, err)
}

func TestFormatDate_Empty(t *testing.T) {
	var missing *datatypes.Date
	assert.Equal(t, "", formatDate(missing))
	assert.Equal(t, "", formatDate(nil))
	assert.Equal(t, "", formatDateTime(time.Time{}))
}
