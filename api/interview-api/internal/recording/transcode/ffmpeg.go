// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_recording_transcode

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Transcoder converts a recorded file into a streamable MP4.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputPath string) error
	Check() error
}

type ffmpegTranscoder struct {
	binary string
}

func NewFFmpegTranscoder(binary string) Transcoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &ffmpegTranscoder{binary: binary}
}

func (f *ffmpegTranscoder) Check() error {
	if _, err := exec.LookPath(f.binary); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", f.binary, err)
	}
	return nil
}

// ffmpegArgs re-encodes to H.264/AAC and moves the moov atom to the front so
// playback can start before the whole file is downloaded.
func ffmpegArgs(inputPath, outputPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		outputPath,
	}
}

func (f *ffmpegTranscoder) Transcode(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, f.binary, ffmpegArgs(inputPath, outputPath)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("transcoding %s: %w\n%s", inputPath, err, lastLines(string(out), 10))
	}
	return nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
