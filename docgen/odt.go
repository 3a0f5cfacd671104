package docgen

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"text/template"
	"time"

	"gorm.io/datatypes"
)

// Renderer fills the named template with data and writes the document to w.
type Renderer interface {
	Render(w io.Writer, name string, data map[string]any) error
}

// templated lists the parts of an ODT package that carry text.
var templated = map[string]bool{
	"content.xml": true,
	"styles.xml":  true,
}

// ODT renders OpenDocument text templates stored in Dir. The XML parts of the
// package are executed as Go templates; every other entry is copied as is.
type ODT struct {
	Dir string
}

func NewODT(dir string) *ODT {
	return &ODT{Dir: dir}
}

func (o *ODT) Render(w io.Writer, name string, data map[string]any) error {
	zr, err := zip.OpenReader(filepath.Join(o.Dir, name))
	if err != nil {
		return fmt.Errorf("open template %s: %w", name, err)
	}
	defer zr.Close()

	zw := zip.NewWriter(w)
	// mimetype must be the first entry and stored uncompressed
	for _, f := range zr.File {
		if f.Name == "mimetype" {
			if err := copyEntry(zw, f, zip.Store, nil, nil); err != nil {
				return err
			}
		}
	}
	for _, f := range zr.File {
		if f.Name == "mimetype" {
			continue
		}
		var tmpl *template.Template
		if templated[f.Name] {
			tmpl = template.New(name + ":" + f.Name).Funcs(Funcs)
		}
		if err := copyEntry(zw, f, zip.Deflate, tmpl, data); err != nil {
			return fmt.Errorf("render %s in %s: %w", f.Name, name, err)
		}
	}
	return zw.Close()
}

func copyEntry(zw *zip.Writer, f *zip.File, method uint16, tmpl *template.Template, data map[string]any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	dst, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: method, Modified: f.Modified})
	if err != nil {
		return err
	}
	if tmpl == nil {
		_, err = io.Copy(dst, rc)
		return err
	}

	src, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	if tmpl, err = tmpl.Parse(string(src)); err != nil {
		return err
	}
	return tmpl.Execute(dst, data)
}

// Funcs are available in every template. Values are not escaped
// automatically, so free text goes through xml.
var Funcs = template.FuncMap{
	"xml":             escape,
	"format_date":     formatDate,
	"format_datetime": formatDateTime,
	"money":           func(v float64) string { return fmt.Sprintf("%.2f", v) },
}

func escape(v any) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(fmt.Sprint(v)))
	return buf.String()
}

func asTime(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, !d.IsZero()
	case *time.Time:
		if d == nil {
			return time.Time{}, false
		}
		return *d, true
	case datatypes.Date:
		return time.Time(d), true
	case *datatypes.Date:
		if d == nil {
			return time.Time{}, false
		}
		return time.Time(*d), true
	}
	return time.Time{}, false
}

func formatDate(v any) string {
	t, ok := asTime(v)
	if !ok {
		return ""
	}
	return t.Format("02/01/2006")
}

func formatDateTime(v any) string {
	t, ok := asTime(v)
	if !ok {
		return ""
	}
	return t.Format("02/01/2006 15h04")
}
