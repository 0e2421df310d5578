package media

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// FindDuplicates runs findimagedupes over the thumbnail directory and
// returns clusters of animation ids (thumbnail basenames), grounded on
// animation.rs's find_duplicates. No Go-native perceptual-hash library
// appears anywhere in the reference pack, so this stays an external-process
// orchestration like the original rather than a reimplemented hash.
func FindDuplicates(cfg Config) ([][]string, error) {
	cmd := exec.Command("findimagedupes",
		"--fingerprints", cfg.ThumbnailFingerprintFile,
		"--threshold", cfg.ThumbnailFingerprintThresh,
		cfg.ThumbnailSaveDir,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("running findimagedupes: %w", err)
		}
		return nil, &ProcessError{Op: "findimagedupes", Status: exitErr.ExitCode(), Stdout: stdout.String(), Stderr: stderr.String()}
	}

	var clusters [][]string
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cluster := make([]string, 0, len(fields))
		for _, path := range fields {
			cluster = append(cluster, filepath.Base(path))
		}
		clusters = append(clusters, cluster)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading findimagedupes output: %w", err)
	}
	return clusters, nil
}
