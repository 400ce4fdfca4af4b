package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/pixelvideo/pkg/adapters/mp4mux"
	"github.com/user/pixelvideo/pkg/config"
)

var (
	testSPS = []byte{
		0x67, 0x4d, 0x40, 0x1f, 0xb9, 0x08, 0x08, 0x0c,
		0xd8, 0x0b, 0x50, 0x10, 0x10, 0x14, 0x00, 0x00,
		0x0f, 0xa4, 0x00, 0x02, 0xee, 0x03, 0x81, 0x80,
		0x04, 0x93, 0xc0, 0x02, 0x49, 0xe8, 0xa0, 0xc0,
		0x3a, 0x8e, 0x18, 0xc9,
	}
	testPPS = []byte{0x68, 0xee, 0x3c, 0x80}
)

func writeTestMP4(t *testing.T) string {
	t.Helper()
	m := mp4mux.New(256, 192, mp4mux.DefaultTimescale)
	m.SetParameterSets(testSPS, testPPS)
	m.AddAccessUnit([]byte{0, 0, 0, 1, 0x65, 0x88, 0x00}, 0, 33000, true)
	m.AddAccessUnit([]byte{0, 0, 0, 1, 0x41, 0x9a, 0x01}, 33000, 33000, false)
	data, err := m.Bytes()
	if err != nil {
		t.Fatalf("build mp4: %v", err)
	}
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write mp4: %v", err)
	}
	return path
}

func TestPlayWritesFramesAndSummary(t *testing.T) {
	input := writeTestMP4(t)
	dir := t.TempDir()
	framesDir := filepath.Join(dir, "frames")
	summaryPath := filepath.Join(dir, "summary.md")

	err := newApp().Run([]string{
		"pixelvideo", "play",
		"--decoder", "passthrough",
		"--loops", "2",
		"--render-mode", "immediate",
		"--output", framesDir,
		"--format", "png",
		"--overlay=false",
		"--summary", summaryPath,
		"--quiet",
		input,
	})
	if err != nil {
		t.Fatalf("play failed: %v", err)
	}

	entries, err := os.ReadDir(framesDir)
	if err != nil {
		t.Fatalf("read frames dir: %v", err)
	}
	if len(entries) == 0 {
		t.Error("expected at least one drawn frame")
	}

	summary, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if !strings.Contains(string(summary), input) {
		t.Errorf("summary does not name the source:\n%s", summary)
	}
	if !strings.Contains(string(summary), "(pixelvideo dev)") {
		t.Errorf("summary footer missing version:\n%s", summary)
	}
}

func TestPlayRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		is   error
	}{
		{"missing file argument", []string{"play", "-q"}, nil},
		{"unknown policy", []string{"play", "-q", "--eos-policy", "pause", "clip.mp4"}, config.ErrInvalid},
		{"bad background", []string{"play", "-q", "--background", "red", "clip.mp4"}, config.ErrInvalid},
		{"missing config file", []string{"play", "-q", "--config", filepath.Join(t.TempDir(), "none.yaml"), "clip.mp4"}, os.ErrNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newApp().Run(append([]string{"pixelvideo"}, tt.args...))
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("error = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestPlayConfigFileWithFlagOverride(t *testing.T) {
	input := writeTestMP4(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "pixelvideo.yaml")
	summaryPath := filepath.Join(dir, "report.md")
	yaml := "source: " + input + "\nloops: 5\nrender_mode: immediate\ndecoder:\n  backend: passthrough\nsummary: " + summaryPath + "\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := newApp().Run([]string{"pixelvideo", "play", "-q", "-c", cfgPath, "--loops", "1"}); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	summary, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if !strings.Contains(string(summary), "| Loops Completed | 1 |") && !strings.Contains(string(summary), "| 完了したループ | 1 |") {
		t.Errorf("summary should report one completed loop:\n%s", summary)
	}
}

func TestProbe(t *testing.T) {
	input := writeTestMP4(t)
	if err := newApp().Run([]string{"pixelvideo", "probe", "-q", input}); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if err := newApp().Run([]string{"pixelvideo", "probe", "-q", filepath.Join(t.TempDir(), "missing.mp4")}); err == nil {
		t.Error("expected error probing a missing file")
	}
}
