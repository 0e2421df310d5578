package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
)

// Config holds the directories and thresholds the media pipeline needs.
type Config struct {
	SaveDir                     string
	TempSaveDir                 string
	ThumbnailSaveDir            string
	ThumbnailFingerprintFile    string
	ThumbnailFingerprintThresh string
	VspipeWorkingDir            string
	MaxSizeBytes                uint64
}

// FileFetcher resolves a chat-platform file handle to a downloadable path
// and size, and is satisfied by chatapi.Client's GetFile + download URL.
type FileFetcher interface {
	ResolveDownload(ctx context.Context, fileIdentifier string) (downloadURL string, size *uint64, err error)
}

// TooLargeError indicates the remote file exceeds the configured maximum.
type TooLargeError struct {
	Size uint64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("animation too large (%d bytes)", e.Size)
}

// SaveAnimation downloads a file by platform handle into cfg.SaveDir/animationID.
// Callers must first check the animation does not already exist (at-most-once).
func SaveAnimation(ctx context.Context, cfg Config, fetcher FileFetcher, animationID, fileIdentifier string) error {
	downloadURL, size, err := fetcher.ResolveDownload(ctx, fileIdentifier)
	if err != nil {
		return fmt.Errorf("resolving file: %w", err)
	}
	if size == nil {
		return fmt.Errorf("api response missing size")
	}
	if *size > cfg.MaxSizeBytes {
		return &TooLargeError{Size: *size}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()

	savePath := filepath.Join(cfg.SaveDir, animationID)
	f, err := os.Create(savePath)
	if err != nil {
		return fmt.Errorf("creating save file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("writing save file: %w", err)
	}
	return nil
}

// GenerateThumbnail extracts the animation's first frame as a PNG. On
// success it invokes refreshDuplicates asynchronously, mirroring the
// original's fire-and-forget duplicate-index refresh after each new
// thumbnail.
func GenerateThumbnail(cfg Config, animationID string, refreshDuplicates func()) error {
	animationPath := filepath.Join(cfg.SaveDir, animationID)
	thumbnailPath := filepath.Join(cfg.ThumbnailSaveDir, animationID)

	cmd := exec.Command("ffmpeg",
		"-v", "warning",
		"-y",
		"-i", animationPath,
		"-filter:v", `select=eq(n\,0)`,
		"-codec:v", "png",
		"-f", "image2pipe",
		thumbnailPath,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return fmt.Errorf("running ffmpeg: %w", err)
		}
		return &ProcessError{Op: "ffmpeg thumbnail", Status: exitErr.ExitCode(), Stdout: stdout.String(), Stderr: stderr.String()}
	}

	if refreshDuplicates != nil {
		go refreshDuplicates()
	}
	return nil
}

// CombineAnimations builds a side-by-side clip of two animations under
// cfg.TempSaveDir, via vspipe piped into x264. The caller is responsible
// for deleting the resulting file once it has been uploaded, whether or
// not the upload succeeded.
func CombineAnimations(cfg Config, aID, bID string) (string, error) {
	aPath := filepath.Join(cfg.SaveDir, aID)
	bPath := filepath.Join(cfg.SaveDir, bID)
	outFilename := fmt.Sprintf("%s.%s.mp4", aID, bID)
	outPath := filepath.Join(cfg.TempSaveDir, outFilename)

	_ = os.Remove(outPath)

	command := fmt.Sprintf(
		`vspipe -c y4m -a a=%s -a b=%s combine.vpy - | `+
			`x264 --demuxer y4m --muxer mp4 --crf 30 --preset ultrafast --output %s -`,
		shellQuote(aPath), shellQuote(bPath), shellQuote(outPath),
	)

	cmd := exec.Command("bash", "-o", "pipefail", "-c", command)
	cmd.Dir = cfg.VspipeWorkingDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return "", fmt.Errorf("running vspipe|x264: %w", err)
		}
		return "", &ProcessError{Op: "vspipe|x264", Status: exitErr.ExitCode(), Stdout: stdout.String(), Stderr: stderr.String()}
	}
	return outPath, nil
}
