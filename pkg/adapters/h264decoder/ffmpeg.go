package h264decoder

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// findFFmpeg searches the override path, then PATH, then common locations.
func findFFmpeg(customPath string) (string, error) {
	if customPath != "" {
		if _, err := os.Stat(customPath); err == nil {
			return customPath, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrFFmpegNotFound, customPath)
	}

	execName := "ffmpeg"
	if runtime.GOOS == "windows" {
		execName = "ffmpeg.exe"
	}

	path, err := exec.LookPath(execName)
	if err == nil {
		return path, nil
	}

	var commonPaths []string
	if runtime.GOOS == "windows" {
		commonPaths = []string{
			`C:\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
		}
	} else {
		commonPaths = []string{
			"/usr/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/opt/homebrew/bin/ffmpeg",
			"/snap/bin/ffmpeg",
		}
	}

	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", ErrFFmpegNotFound
}

// ffmpegRunner decodes raw H.264 through temporary files.
type ffmpegRunner struct {
	path string
}

// decodeLast decodes an Annex B stream and returns its last picture.
func (r *ffmpegRunner) decodeLast(stream []byte) (image.Image, error) {
	dir, err := os.MkdirTemp("", "pixelvideo-h264-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inputPath := filepath.Join(dir, "group.h264")
	outputPath := filepath.Join(dir, "last.png")

	if err := os.WriteFile(inputPath, stream, 0600); err != nil {
		return nil, fmt.Errorf("write stream: %w", err)
	}

	// -update 1 keeps overwriting the single output image, leaving the last picture.
	var stderr bytes.Buffer
	cmd := exec.Command(r.path,
		"-y",
		"-loglevel", "error",
		"-f", "h264",
		"-i", inputPath,
		"-update", "1",
		"-f", "image2",
		outputPath,
	)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %v\nstderr: %s", ErrDecodeFailed, err, stderr.String())
	}

	f, err := os.Open(outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: no picture: %v", ErrDecodeFailed, err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return img, nil
}
