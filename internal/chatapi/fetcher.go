package chatapi

import "context"

// Fetcher adapts a Client into a media.FileFetcher, resolving a
// chat-platform file handle to a downloadable URL via GetFile.
type Fetcher struct {
	Client Client
	HTTP   *HTTPClient // used for FileDownloadURL; must share the same bot token
}

// ResolveDownload implements media.FileFetcher.
func (f *Fetcher) ResolveDownload(ctx context.Context, fileIdentifier string) (string, *uint64, error) {
	file, err := f.Client.GetFile(ctx, fileIdentifier)
	if err != nil {
		return "", nil, err
	}
	if file.FilePath == nil {
		return "", nil, errNoFilePath
	}
	return f.HTTP.FileDownloadURL(*file.FilePath), file.FileSize, nil
}

var errNoFilePath = &noFilePathError{}

type noFilePathError struct{}

func (*noFilePathError) Error() string { return "get_file response missing file_path" }
