package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/Additional-Code/parcel/internal/config"
)

func TestBuildWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parcel.log")

	logger, closer := Build(config.Observability{
		ServiceName:   "parcel-test",
		Environment:   "test",
		LogLevel:      "debug",
		LogEncoding:   "json",
		LogFile:       path,
		LogMaxSizeMB:  1,
		LogMaxBackups: 1,
	})
	if closer == nil {
		t.Fatal("expected closer for file sink")
	}

	logger.Info("shipment created")
	_ = logger.Sync()
	if err := closer(); err != nil {
		t.Fatalf("close rotator: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"msg":"shipment created"`) || !strings.Contains(line, `"service":"parcel-test"`) {
		t.Fatalf("unexpected log output: %s", line)
	}
}

func TestBuildFallsBackToInfoOnBadLevel(t *testing.T) {
	logger, closer := Build(config.Observability{LogLevel: "loud", LogEncoding: "console"})
	if closer != nil {
		t.Fatal("expected no closer without file sink")
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug should be disabled when level falls back to info")
	}
}
