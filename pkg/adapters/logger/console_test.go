package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/user/pixelvideo/pkg/ports"
)

func TestConsoleWriter_Levels(t *testing.T) {
	var stdout, stderr bytes.Buffer
	log := NewConsoleWriter(ports.LevelInfo, &stdout, &stderr)

	log.Debug("debug line %d", 1)
	log.Info("info line %d", 2)
	log.Warn("warn line %d", 3)
	log.Error("error line %d", 4)

	if strings.Contains(stdout.String(), "debug line") {
		t.Error("debug message should be filtered at info level")
	}
	if !strings.Contains(stdout.String(), "info line 2") {
		t.Errorf("expected info line on stdout, got %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "warn line 3") || !strings.Contains(stderr.String(), "error line 4") {
		t.Errorf("expected warn and error lines on stderr, got %q", stderr.String())
	}
	if strings.Contains(stdout.String(), "\033[") {
		t.Error("writer logger should not emit color codes")
	}
}

func TestConsoleWriter_Component(t *testing.T) {
	var stdout bytes.Buffer
	log := NewConsoleWriter(ports.LevelDebug, &stdout, &stdout).WithComponent("pump")

	log.Debug("queued %d", 7)

	if got := stdout.String(); got != "[pump] queued 7\n" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestConsoleWriter_Quiet(t *testing.T) {
	var stdout, stderr bytes.Buffer
	log := NewConsoleWriter(ports.LevelQuiet, &stdout, &stderr)

	log.Error("error line")

	if stdout.Len() != 0 || stderr.Len() != 0 {
		t.Error("quiet level should suppress all output")
	}
}

func TestConsoleWriter_ConcurrentLines(t *testing.T) {
	var stdout bytes.Buffer
	root := NewConsoleWriter(ports.LevelInfo, &stdout, &stdout)

	var wg sync.WaitGroup
	for _, name := range []string{"pump", "softcodec", "canvas"} {
		wg.Add(1)
		go func(log ports.Logger) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				log.Info("line %d", i)
			}
		}(root.WithComponent(name))
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 150 {
		t.Fatalf("expected 150 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "[") {
			t.Fatalf("interleaved line %q", line)
		}
	}
}

func TestNoop(t *testing.T) {
	log := NewNoop()
	log.Info("ignored")
	if log.WithComponent("x") != log {
		t.Error("expected WithComponent to return the same logger")
	}
}
