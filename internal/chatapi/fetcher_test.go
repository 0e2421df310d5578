package chatapi

import (
	"context"
	"testing"
)

type fakeGetFileClient struct {
	Client
	file *File
	err  error
}

func (f *fakeGetFileClient) GetFile(ctx context.Context, fileIdentifier string) (*File, error) {
	return f.file, f.err
}

func TestFetcherResolveDownload(t *testing.T) {
	path := "documents/file_1.mp4"
	size := uint64(1234)
	fake := &fakeGetFileClient{file: &File{FilePath: &path, FileSize: &size}}
	fetcher := &Fetcher{Client: fake, HTTP: NewHTTPClient("test-token")}

	url, gotSize, err := fetcher.ResolveDownload(context.Background(), "file-id")
	if err != nil {
		t.Fatalf("ResolveDownload: %v", err)
	}
	want := "https://api.telegram.org/file/bottest-token/documents/file_1.mp4"
	if url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
	if gotSize == nil || *gotSize != size {
		t.Errorf("size = %v, want %d", gotSize, size)
	}
}

func TestFetcherResolveDownloadMissingFilePath(t *testing.T) {
	fake := &fakeGetFileClient{file: &File{FilePath: nil}}
	fetcher := &Fetcher{Client: fake, HTTP: NewHTTPClient("test-token")}

	if _, _, err := fetcher.ResolveDownload(context.Background(), "file-id"); err == nil {
		t.Fatal("expected an error when file_path is missing")
	}
}
