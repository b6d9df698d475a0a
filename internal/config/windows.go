// windows.go loads the named schedule windows (morning, midday, evening)
// from an optional YAML file. The file overrides the compiled-in defaults
// per window; windows it does not mention keep their defaults. Subscribers
// reference these windows by name through their messaging preference.
//
// Example file:
//
//	default_fuzziness_minutes: 20
//	windows:
//	  morning:
//	    start: "07:30"
//	    end: "10:30"
//	  evening:
//	    start: "18:00"
//	    end: "21:30"
//	    fuzziness_minutes: 45
package config

import (
	"fmt"
	"sort"

	"go.yaml.in/yaml/v3"

	"lingopal/internal/types"
)

// windowsFile is the YAML document shape.
type windowsFile struct {
	DefaultFuzzinessMinutes *int                      `yaml:"default_fuzziness_minutes"`
	Windows                 map[string]windowFileSpec `yaml:"windows"`
}

// windowFileSpec is one window entry in the YAML file. FuzzinessMinutes is
// a pointer so "absent" and "zero" are distinguishable.
type windowFileSpec struct {
	Start            string `yaml:"start"`
	End              string `yaml:"end"`
	FuzzinessMinutes *int   `yaml:"fuzziness_minutes"`
}

// defaultWindows returns the compiled-in schedule windows applied when no
// YAML file is configured or for windows the file does not mention.
func defaultWindows(fuzziness int) types.ScheduleWindows {
	return types.ScheduleWindows{
		types.WindowMorning: {Start: "08:00", End: "11:00", FuzzinessMinutes: fuzziness},
		types.WindowMidday:  {Start: "11:00", End: "15:00", FuzzinessMinutes: fuzziness},
		types.WindowEvening: {Start: "17:00", End: "21:00", FuzzinessMinutes: fuzziness},
	}
}

// loadWindows produces the effective schedule windows. path == "" means the
// defaults are used as-is. Any problem with a configured file is fatal:
// silently falling back to defaults would move every subscriber's send
// window without anyone noticing.
func loadWindows(path string, defaultFuzz int, readFile func(string) ([]byte, error)) (types.ScheduleWindows, error) {
	windows := defaultWindows(defaultFuzz)
	if path == "" {
		return windows, nil
	}

	data, err := readFile(path)
	if err != nil {
		return nil, &ConfigError{
			Type:    ErrWindowsFile,
			Message: fmt.Sprintf("failed to read schedule windows file %s", path),
			Err:     err,
		}
	}

	var file windowsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &ConfigError{
			Type:    ErrWindowsFile,
			Message: fmt.Sprintf("failed to parse schedule windows file %s", path),
			Err:     err,
		}
	}

	fileFuzz := defaultFuzz
	if file.DefaultFuzzinessMinutes != nil {
		if *file.DefaultFuzzinessMinutes < 0 {
			return nil, &ConfigError{
				Type:    ErrWindowsFile,
				Message: "default_fuzziness_minutes must not be negative",
			}
		}
		fileFuzz = *file.DefaultFuzzinessMinutes
	}
	// The file-level default applies to every window the file does not
	// override individually, including untouched compiled-in windows.
	for name, w := range windows {
		w.FuzzinessMinutes = fileFuzz
		windows[name] = w
	}

	// Deterministic iteration keeps validation errors stable across runs.
	names := make([]string, 0, len(file.Windows))
	for name := range file.Windows {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := file.Windows[name]
		windowName := types.WindowName(name)
		if !isNamedWindow(windowName) {
			return nil, &ConfigError{
				Type:    ErrWindowsFile,
				Message: fmt.Sprintf("unknown schedule window %q (expected morning, midday, or evening)", name),
			}
		}

		w, err := buildWindow(name, spec, fileFuzz)
		if err != nil {
			return nil, err
		}
		windows[windowName] = w
	}

	return windows, nil
}

// buildWindow validates one file entry and converts it to a ScheduleWindow.
func buildWindow(name string, spec windowFileSpec, defaultFuzz int) (types.ScheduleWindow, error) {
	startH, startM, err := types.ParseHHMM(spec.Start)
	if err != nil {
		return types.ScheduleWindow{}, &ConfigError{
			Type:    ErrWindowsFile,
			Message: fmt.Sprintf("window %q has invalid start time", name),
			Err:     err,
		}
	}
	endH, endM, err := types.ParseHHMM(spec.End)
	if err != nil {
		return types.ScheduleWindow{}, &ConfigError{
			Type:    ErrWindowsFile,
			Message: fmt.Sprintf("window %q has invalid end time", name),
			Err:     err,
		}
	}
	if startH*60+startM >= endH*60+endM {
		return types.ScheduleWindow{}, &ConfigError{
			Type:    ErrWindowsFile,
			Message: fmt.Sprintf("window %q must start before it ends", name),
		}
	}

	fuzz := defaultFuzz
	if spec.FuzzinessMinutes != nil {
		if *spec.FuzzinessMinutes < 0 {
			return types.ScheduleWindow{}, &ConfigError{
				Type:    ErrWindowsFile,
				Message: fmt.Sprintf("window %q fuzziness_minutes must not be negative", name),
			}
		}
		fuzz = *spec.FuzzinessMinutes
	}

	return types.ScheduleWindow{
		Start:            spec.Start,
		End:              spec.End,
		FuzzinessMinutes: fuzz,
	}, nil
}

func isNamedWindow(name types.WindowName) bool {
	for _, n := range types.NamedWindows {
		if n == name {
			return true
		}
	}
	return false
}
