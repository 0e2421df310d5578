// Package media orchestrates the external tools that turn a raw uploaded
// file into a playable, probed, thumbnailed animation, and that combine two
// animations into one side-by-side clip for a matchup poll.
package media

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Params is the probed shape of a saved animation file.
type Params struct {
	Width    int32
	Height   int32
	FPSNum   int32
	FPSDenom int32
	Frames   int32
}

// Duration returns the animation's playback length in seconds.
func (p Params) Duration() float64 {
	return float64(p.Frames) * float64(p.FPSDenom) / float64(p.FPSNum)
}

type paramsStreamInput struct {
	Width        int32  `json:"width"`
	Height       int32  `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	NbReadFrames string `json:"nb_read_frames"`
}

type paramsInput struct {
	Streams []paramsStreamInput `json:"streams"`
}

// ProcessError carries the exit status and captured output of a failed
// external process invocation.
type ProcessError struct {
	Op     string
	Status int
	Stdout string
	Stderr string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s exited with status %d\nstdout: %s\nstderr: %s", e.Op, e.Status, e.Stdout, e.Stderr)
}

// GetAnimationParams pipes ffmpeg's demuxed video stream into ffprobe and
// parses width/height/frame-rate/frame-count out of the JSON result.
func GetAnimationParams(path string) (*Params, error) {
	command := fmt.Sprintf(
		`ffmpeg -v quiet -i %s -map 0:v:0 -c copy -f matroska - | `+
			`ffprobe -v quiet -print_format json -show_streams -count_frames `+
			`-show_entries stream=width,height,r_frame_rate,nb_read_frames -`,
		shellQuote(path),
	)

	cmd := exec.Command("bash", "-o", "pipefail", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("running ffmpeg|ffprobe: %w", err)
		}
		return nil, &ProcessError{Op: "ffmpeg|ffprobe", Status: exitErr.ExitCode(), Stdout: stdout.String(), Stderr: stderr.String()}
	}

	var input paramsInput
	if err := json.Unmarshal(stdout.Bytes(), &input); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output as JSON: %w", err)
	}
	if len(input.Streams) == 0 {
		return nil, fmt.Errorf("ffprobe output has no streams")
	}
	stream := input.Streams[0]

	num, denom, err := parseFrameRate(stream.RFrameRate)
	if err != nil {
		return nil, fmt.Errorf("invalid frame rate %q: %w", stream.RFrameRate, err)
	}
	frames, err := strconv.ParseInt(stream.NbReadFrames, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid frame count %q: %w", stream.NbReadFrames, err)
	}

	return &Params{
		Width:    stream.Width,
		Height:   stream.Height,
		FPSNum:   num,
		FPSDenom: denom,
		Frames:   int32(frames),
	}, nil
}

func parseFrameRate(s string) (int32, int32, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected num/denom")
	}
	num, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	denom, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	return int32(num), int32(denom), nil
}
