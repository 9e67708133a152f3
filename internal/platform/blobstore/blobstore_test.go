package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// minimalPDF builds a well-formed PDF with the given number of empty pages.
func minimalPDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int

	buf.WriteString("%PDF-1.4\n")
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func seedBlob(t *testing.T, store BlobStore, key string, content []byte) *BlobMetadata {
	t.Helper()
	meta := BlobMetadata{
		Key:         key,
		FileName:    "photo.png",
		ContentType: "image/png",
		Tags:        map[string]string{"source": "unit-test"},
	}
	result, err := store.Upload(context.Background(), meta, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("seedBlob: %v", err)
	}
	return result
}

// ---------------------------------------------------------------------------
// Store tests
// ---------------------------------------------------------------------------

func TestInMemoryBlobStore_Upload(t *testing.T) {
	store := NewInMemoryBlobStore(0)
	content := append(append([]byte{}, pngHeader...), []byte("pixels")...)

	result := seedBlob(t, store, "professionals/p1/photo/a-photo.png", content)

	if result.Key != "professionals/p1/photo/a-photo.png" {
		t.Errorf("expected key to be kept, got %s", result.Key)
	}
	if result.Size != int64(len(content)) {
		t.Errorf("expected Size=%d, got %d", len(content), result.Size)
	}
	want := fmt.Sprintf("%x", sha256.Sum256(content))
	if result.Hash != want {
		t.Errorf("expected hash %s, got %s", want, result.Hash)
	}
	if result.CreatedAt.IsZero() {
		t.Error("expected non-zero CreatedAt")
	}
	if result.Tags["source"] != "unit-test" {
		t.Errorf("expected tags to be preserved, got %v", result.Tags)
	}
}

func TestInMemoryBlobStore_UploadValidation(t *testing.T) {
	store := NewInMemoryBlobStore(64)

	tests := []struct {
		name    string
		meta    BlobMetadata
		content []byte
		wantErr error
	}{
		{"missing key", BlobMetadata{FileName: "a.png", ContentType: "image/png"}, pngHeader, ErrMissingKey},
		{"missing file name", BlobMetadata{Key: "k", ContentType: "image/png"}, pngHeader, ErrMissingFileName},
		{"too large", BlobMetadata{Key: "k", FileName: "a.png", ContentType: "image/png"}, bytes.Repeat([]byte("x"), 65), ErrFileTooLarge},
		{"disallowed type", BlobMetadata{Key: "k", FileName: "a.txt", ContentType: "text/plain"}, []byte("hello"), ErrInvalidContentType},
		{"sniffed disallowed type", BlobMetadata{Key: "k", FileName: "a.bin"}, []byte("just text"), ErrInvalidContentType},
		{"broken pdf", BlobMetadata{Key: "k", FileName: "a.pdf", ContentType: "application/pdf"}, []byte("%PDF-1.4 garbage"), ErrUnreadablePDF},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Upload(context.Background(), tc.meta, bytes.NewReader(tc.content))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestInMemoryBlobStore_UploadSniffsContentType(t *testing.T) {
	store := NewInMemoryBlobStore(0)
	meta := BlobMetadata{Key: "k", FileName: "scan", ContentType: "application/octet-stream"}
	result, err := store.Upload(context.Background(), meta, bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ContentType != "image/png" {
		t.Errorf("expected sniffed image/png, got %s", result.ContentType)
	}
}

func TestInMemoryBlobStore_UploadPDF(t *testing.T) {
	store := NewInMemoryBlobStore(0)
	meta := BlobMetadata{Key: "contract.pdf", FileName: "contract.pdf", ContentType: "application/pdf; charset=binary"}
	result, err := store.Upload(context.Background(), meta, bytes.NewReader(minimalPDF(3)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ContentType != "application/pdf" {
		t.Errorf("expected parameters stripped, got %s", result.ContentType)
	}
	if result.PageCount != 3 {
		t.Errorf("expected 3 pages, got %d", result.PageCount)
	}
}

func TestInspectPDF(t *testing.T) {
	pages, err := InspectPDF(minimalPDF(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pages != 2 {
		t.Errorf("expected 2 pages, got %d", pages)
	}

	if _, err := InspectPDF([]byte("not a pdf")); !errors.Is(err, ErrUnreadablePDF) {
		t.Errorf("expected ErrUnreadablePDF, got %v", err)
	}
}

func TestInMemoryBlobStore_Download(t *testing.T) {
	store := NewInMemoryBlobStore(0)
	content := append(append([]byte{}, pngHeader...), []byte("data")...)
	seedBlob(t, store, "k1", content)

	rc, meta, err := store.Download(context.Background(), "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("downloaded content does not match")
	}
	if meta.FileName != "photo.png" {
		t.Errorf("expected file name photo.png, got %s", meta.FileName)
	}

	if _, _, err := store.Download(context.Background(), "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestInMemoryBlobStore_Delete(t *testing.T) {
	store := NewInMemoryBlobStore(0)
	seedBlob(t, store, "k1", pngHeader)

	if err := store.Delete(context.Background(), "k1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.GetMetadata(context.Background(), "k1"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound after delete, got %v", err)
	}
	if err := store.Delete(context.Background(), "k1"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound on second delete, got %v", err)
	}
}

func TestInMemoryBlobStore_List(t *testing.T) {
	store := NewInMemoryBlobStore(0)
	seedBlob(t, store, "professionals/p1/photo/b.png", pngHeader)
	seedBlob(t, store, "professionals/p1/insurance/a.png", pngHeader)
	seedBlob(t, store, "professionals/p2/photo/c.png", pngHeader)

	items, err := store.List(context.Background(), "professionals/p1/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Key != "professionals/p1/insurance/a.png" {
		t.Errorf("expected items ordered by key, got %s first", items[0].Key)
	}
}

func TestInMemoryBlobStore_ConcurrentUploads(t *testing.T) {
	store := NewInMemoryBlobStore(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			meta := BlobMetadata{Key: fmt.Sprintf("k%d", i), FileName: "a.png", ContentType: "image/png"}
			if _, err := store.Upload(context.Background(), meta, bytes.NewReader(pngHeader)); err != nil {
				t.Errorf("upload %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	items, _ := store.List(context.Background(), "")
	if len(items) != 50 {
		t.Errorf("expected 50 blobs, got %d", len(items))
	}
}

func TestNormalizeContentType(t *testing.T) {
	tests := []struct {
		declared string
		data     []byte
		want     string
	}{
		{"IMAGE/JPEG", nil, "image/jpeg"},
		{"application/pdf; charset=binary", nil, "application/pdf"},
		{"", []byte("%PDF-1.4\n"), "application/pdf"},
		{"application/octet-stream", pngHeader, "image/png"},
	}
	for _, tc := range tests {
		if got := normalizeContentType(tc.declared, tc.data); got != tc.want {
			t.Errorf("normalizeContentType(%q): got %s, want %s", tc.declared, got, tc.want)
		}
	}
}
