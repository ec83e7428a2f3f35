package logger

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestWithComponent(t *testing.T) {
	entry := WithComponent("test-component")
	if entry == nil {
		t.Fatal("expected non-nil entry")
	}

	if val, ok := entry.Data["component"]; !ok {
		t.Error("expected component field to be set")
	} else if val != "test-component" {
		t.Errorf("expected component 'test-component', got '%v'", val)
	}
}

func TestWithResource(t *testing.T) {
	entry := WithResource("catalog", "products.json")

	if entry.Data["component"] != "catalog" {
		t.Errorf("expected component 'catalog', got '%v'", entry.Data["component"])
	}
	if entry.Data["resource"] != "products.json" {
		t.Errorf("expected resource 'products.json', got '%v'", entry.Data["resource"])
	}
}

func TestLoggerInit(t *testing.T) {
	if Logger == nil {
		t.Fatal("expected Logger to be initialized")
	}

	if Logger.Out != os.Stdout {
		t.Error("expected Logger output to be os.Stdout")
	}
}

func TestConfigure(t *testing.T) {
	origLevel := Logger.GetLevel()
	origFormatter := Logger.Formatter
	defer func() {
		Logger.SetLevel(origLevel)
		Logger.SetFormatter(origFormatter)
	}()

	tests := []struct {
		name          string
		level         string
		format        string
		expectedLevel logrus.Level
		wantErr       bool
	}{
		{"debug level", "debug", "text", logrus.DebugLevel, false},
		{"uppercase level", "WARN", "", logrus.WarnLevel, false},
		{"json format", "error", "json", logrus.ErrorLevel, false},
		{"invalid level keeps current", "chatty", "text", logrus.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger.SetLevel(logrus.InfoLevel)

			err := Configure(tt.level, tt.format)
			if tt.wantErr && err == nil {
				t.Error("expected error for invalid level")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if Logger.GetLevel() != tt.expectedLevel {
				t.Errorf("expected level %v, got %v", tt.expectedLevel, Logger.GetLevel())
			}
			if tt.format == "json" {
				if _, ok := Logger.Formatter.(*logrus.JSONFormatter); !ok {
					t.Errorf("expected JSON formatter, got %T", Logger.Formatter)
				}
			}
		})
	}
}

func TestWithComponentMultiple(t *testing.T) {
	entry1 := WithComponent("component-a")
	entry2 := WithComponent("component-b")

	if entry1.Data["component"] == entry2.Data["component"] {
		t.Error("expected different component values for different entries")
	}
}
