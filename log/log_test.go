//
// Copyright (C) 2026 The artifactstream-go Authors.  All rights reserved.
//
// artifactstream-go is licensed under the Apache License Version 2.0.
//
//

package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zapcore.Level
	}{
		{name: "debug", level: LevelDebug, want: zapcore.DebugLevel},
		{name: "info", level: LevelInfo, want: zapcore.InfoLevel},
		{name: "warn", level: LevelWarn, want: zapcore.WarnLevel},
		{name: "error", level: LevelError, want: zapcore.ErrorLevel},
		{name: "fatal", level: LevelFatal, want: zapcore.FatalLevel},
		{name: "unknown_defaults_to_info", level: "verbose", want: zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetLevel(tt.level)
			assert.Equal(t, tt.want, zapLevel.Level())
		})
	}

	// Restore the default level for other tests.
	SetLevel(LevelInfo)
}

type capturingLogger struct {
	messages []string
}

func (c *capturingLogger) Debug(args ...any)                 { c.messages = append(c.messages, "debug") }
func (c *capturingLogger) Debugf(format string, args ...any) { c.messages = append(c.messages, "debugf") }
func (c *capturingLogger) Info(args ...any)                  { c.messages = append(c.messages, "info") }
func (c *capturingLogger) Infof(format string, args ...any)  { c.messages = append(c.messages, "infof") }
func (c *capturingLogger) Warn(args ...any)                  { c.messages = append(c.messages, "warn") }
func (c *capturingLogger) Warnf(format string, args ...any)  { c.messages = append(c.messages, "warnf") }
func (c *capturingLogger) Error(args ...any)                 { c.messages = append(c.messages, "error") }
func (c *capturingLogger) Errorf(format string, args ...any) { c.messages = append(c.messages, "errorf") }
func (c *capturingLogger) Fatal(args ...any)                 { c.messages = append(c.messages, "fatal") }
func (c *capturingLogger) Fatalf(format string, args ...any) { c.messages = append(c.messages, "fatalf") }

func TestPackageHelpersDelegateToDefault(t *testing.T) {
	old := Default
	defer func() { Default = old }()

	capture := &capturingLogger{}
	Default = capture

	Debug("d")
	Debugf("%s", "d")
	Info("i")
	Infof("%s", "i")
	Warn("w")
	Warnf("%s", "w")
	Error("e")
	Errorf("%s", "e")

	require.Equal(t, []string{
		"debug", "debugf", "info", "infof", "warn", "warnf", "error", "errorf",
	}, capture.messages)
}
