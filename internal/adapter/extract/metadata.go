package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"

	"neurodb/internal/domain"
)

// UnknownAuthor is reported when a file carries no author.
const UnknownAuthor = "Unknown"

// MetadataReader reports descriptive fields of a source file. Only a
// missing file is an error; unreadable document info falls back to
// defaults.
type MetadataReader struct{}

func NewMetadataReader() *MetadataReader {
	return &MetadataReader{}
}

func (m *MetadataReader) ReadMeta(ctx context.Context, path string) (domain.DocumentInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.DocumentInfo{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return domain.DocumentInfo{}, &domain.ExtractionError{Path: path, Err: err}
	}

	meta := domain.DocumentInfo{
		Title:        filepath.Base(path),
		Author:       UnknownAuthor,
		ContentType:  ContentType(path),
		FileSize:     info.Size(),
		LastModified: info.ModTime(),
	}
	if Kind(path) == "pdf" && info.Size() <= MaxFileSize {
		readPDFInfo(path, info.Size(), &meta)
	}
	return meta, nil
}

func readPDFInfo(path string, size int64, meta *domain.DocumentInfo) {
	defer func() { recover() }()

	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	r, err := pdf.NewReader(f, size)
	if err != nil {
		return
	}
	meta.PageCount = r.NumPage()

	docInfo := r.Trailer().Key("Info")
	if title := strings.TrimSpace(docInfo.Key("Title").Text()); title != "" {
		meta.Title = title
	}
	if author := strings.TrimSpace(docInfo.Key("Author").Text()); author != "" {
		meta.Author = author
	}
}
