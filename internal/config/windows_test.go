package config

import (
	"errors"
	"os"
	"testing"

	"lingopal/internal/types"
)

// readerFor returns a readFile stub serving the given content for any path.
func readerFor(content string) func(string) ([]byte, error) {
	return func(string) ([]byte, error) { return []byte(content), nil }
}

func TestLoadWindowsDefaults(t *testing.T) {
	windows, err := loadWindows("", 30, func(string) ([]byte, error) {
		t.Fatal("readFile should not be called when no path is configured")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("loadWindows returned error: %v", err)
	}

	if len(windows) != 3 {
		t.Fatalf("window count = %d, want 3", len(windows))
	}
	for _, name := range types.NamedWindows {
		w, ok := windows[name]
		if !ok {
			t.Errorf("missing default window %q", name)
			continue
		}
		if w.FuzzinessMinutes != 30 {
			t.Errorf("window %q fuzziness = %d, want 30", name, w.FuzzinessMinutes)
		}
	}
}

func TestLoadWindowsFileOverride(t *testing.T) {
	content := `
default_fuzziness_minutes: 15
windows:
  morning:
    start: "07:00"
    end: "09:30"
  evening:
    start: "18:00"
    end: "22:00"
    fuzziness_minutes: 45
`
	windows, err := loadWindows("windows.yaml", 30, readerFor(content))
	if err != nil {
		t.Fatalf("loadWindows returned error: %v", err)
	}

	morning := windows[types.WindowMorning]
	if morning.Start != "07:00" || morning.End != "09:30" {
		t.Errorf("morning = %+v, want 07:00-09:30", morning)
	}
	if morning.FuzzinessMinutes != 15 {
		t.Errorf("morning fuzziness = %d, want file-level default 15", morning.FuzzinessMinutes)
	}

	evening := windows[types.WindowEvening]
	if evening.FuzzinessMinutes != 45 {
		t.Errorf("evening fuzziness = %d, want per-window override 45", evening.FuzzinessMinutes)
	}

	// Midday untouched by the file: compiled-in bounds, file-level fuzziness.
	midday := windows[types.WindowMidday]
	if midday.Start != "11:00" || midday.End != "15:00" {
		t.Errorf("midday = %+v, want compiled-in bounds", midday)
	}
	if midday.FuzzinessMinutes != 15 {
		t.Errorf("midday fuzziness = %d, want file-level default 15", midday.FuzzinessMinutes)
	}
}

func TestLoadWindowsRejectsUnknownName(t *testing.T) {
	content := "windows:\n  brunch:\n    start: \"10:00\"\n    end: \"12:00\"\n"

	_, err := loadWindows("windows.yaml", 30, readerFor(content))
	assertWindowsError(t, err)
}

func TestLoadWindowsRejectsBadTimes(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"malformed start", "windows:\n  morning:\n    start: \"7:00\"\n    end: \"09:00\"\n"},
		{"malformed end", "windows:\n  morning:\n    start: \"07:00\"\n    end: \"9pm\"\n"},
		{"start after end", "windows:\n  morning:\n    start: \"11:00\"\n    end: \"09:00\"\n"},
		{"start equals end", "windows:\n  morning:\n    start: \"09:00\"\n    end: \"09:00\"\n"},
		{"negative fuzziness", "windows:\n  morning:\n    start: \"07:00\"\n    end: \"09:00\"\n    fuzziness_minutes: -5\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadWindows("windows.yaml", 30, readerFor(tc.content))
			assertWindowsError(t, err)
		})
	}
}

func TestLoadWindowsMalformedYAML(t *testing.T) {
	_, err := loadWindows("windows.yaml", 30, readerFor("windows: [not a map"))
	assertWindowsError(t, err)
}

func TestLoadWindowsReadError(t *testing.T) {
	_, err := loadWindows("windows.yaml", 30, func(string) ([]byte, error) {
		return nil, os.ErrPermission
	})
	assertWindowsError(t, err)
	if !errors.Is(err, os.ErrPermission) {
		t.Error("read failure should be wrapped, not replaced")
	}
}

func assertWindowsError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
	if cfgErr.Type != ErrWindowsFile {
		t.Errorf("expected ErrWindowsFile, got %q", cfgErr.Type)
	}
}
