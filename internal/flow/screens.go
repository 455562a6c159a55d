// Package flow implements the multi-screen emergency intake form as a state
// machine over session records: which screen is current, whether a submission
// is valid, and what the client should render next.
package flow

import (
	"fmt"
	"strconv"
	"strings"
)

// Screen identifies one step of the form. The set is closed and ordered;
// switching over it exhaustively is the point of making it a named type.
type Screen string

const (
	ScreenEmergencyType Screen = "EMERGENCY_TYPE"
	ScreenPatientStatus Screen = "PATIENT_STATUS"
	ScreenLocation      Screen = "LOCATION"
	ScreenConfirmation  Screen = "CONFIRMATION"

	// Terminal pseudo-screens understood by the client.
	ScreenSuccess Screen = "SUCCESS"
	ScreenError   Screen = "error"
)

// screenOrder is the static progression of the form. Immutable after init.
var screenOrder = []Screen{
	ScreenEmergencyType,
	ScreenPatientStatus,
	ScreenLocation,
	ScreenConfirmation,
}

var emergencyTypes = map[string]struct{}{
	"road_accident": {},
	"collapse":      {},
	"heart_attack":  {},
	"breathing":     {},
	"injury":        {},
	"seizure":       {},
	"burn":          {},
	"other":         {},
}

var consciousValues = map[string]struct{}{
	"yes": {}, "no": {}, "unsure": {},
}

var breathingValues = map[string]struct{}{
	"yes": {}, "struggling": {}, "no": {}, "unsure": {},
}

var victimCounts = map[string]struct{}{
	"1": {}, "2": {}, "3": {}, "4+": {},
}

const maxSceneDescription = 500

// definition describes one screen's contract: which submitted fields are
// required and how each field is checked.
type definition struct {
	required   []string
	optional   []string
	validators map[string]func(value string) error
}

var definitions = map[Screen]definition{
	ScreenEmergencyType: {
		required: []string{"emergency_type"},
		validators: map[string]func(string) error{
			"emergency_type": oneOf(emergencyTypes, "emergency type"),
		},
	},
	ScreenPatientStatus: {
		required: []string{"conscious", "breathing", "victim_count"},
		validators: map[string]func(string) error{
			"conscious":    oneOf(consciousValues, "consciousness status"),
			"breathing":    oneOf(breathingValues, "breathing status"),
			"victim_count": oneOf(victimCounts, "victim count"),
		},
	},
	ScreenLocation: {
		required: []string{"latitude", "longitude"},
		optional: []string{"address"},
		validators: map[string]func(string) error{
			"latitude":  coordinate(-90, 90, "latitude"),
			"longitude": coordinate(-180, 180, "longitude"),
		},
	},
	ScreenConfirmation: {
		required: []string{"confirm"},
		optional: []string{"scene_description"},
		validators: map[string]func(string) error{
			"confirm": func(v string) error {
				if v != "yes" {
					return fmt.Errorf("submission must be confirmed")
				}
				return nil
			},
			"scene_description": func(v string) error {
				if len(v) > maxSceneDescription {
					return fmt.Errorf("scene description too long (max %d characters)", maxSceneDescription)
				}
				return nil
			},
		},
	},
}

// FirstScreen is where INIT always lands, whatever screen the client claims.
func FirstScreen() Screen { return screenOrder[0] }

func nextScreen(s Screen) (Screen, bool) {
	for i, cur := range screenOrder {
		if cur == s {
			if i+1 < len(screenOrder) {
				return screenOrder[i+1], true
			}
			return ScreenSuccess, true
		}
	}
	return "", false
}

func previousScreen(s Screen) (Screen, bool) {
	for i, cur := range screenOrder {
		if cur == s {
			if i == 0 {
				return s, true
			}
			return screenOrder[i-1], true
		}
	}
	return "", false
}

func knownScreen(s Screen) bool {
	_, ok := definitions[s]
	return ok
}

// validate checks a submission against the screen's definition. It returns
// the validated fields to merge into the session and the first problem found.
func validate(screen Screen, data map[string]any) (map[string]any, error) {
	def, ok := definitions[screen]
	if !ok {
		return nil, fmt.Errorf("unknown screen %q", screen)
	}

	fields := make(map[string]any, len(def.required)+len(def.optional))
	for _, name := range def.required {
		raw, ok := data[name]
		if !ok || stringValue(raw) == "" {
			return nil, fmt.Errorf("missing required field %q", name)
		}
		value := stringValue(raw)
		if check, ok := def.validators[name]; ok {
			if err := check(value); err != nil {
				return nil, fmt.Errorf("%s: %s", name, err)
			}
		}
		fields[name] = value
	}
	for _, name := range def.optional {
		raw, ok := data[name]
		if !ok {
			continue
		}
		value := stringValue(raw)
		if check, ok := def.validators[name]; ok && value != "" {
			if err := check(value); err != nil {
				return nil, fmt.Errorf("%s: %s", name, err)
			}
		}
		fields[name] = value
	}
	return fields, nil
}

func oneOf(allowed map[string]struct{}, what string) func(string) error {
	return func(v string) error {
		if _, ok := allowed[v]; !ok {
			return fmt.Errorf("unrecognized %s %q", what, v)
		}
		return nil
	}
}

func coordinate(min, max float64, what string) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%s is not a number", what)
		}
		if f < min || f > max {
			return fmt.Errorf("%s out of range", what)
		}
		return nil
	}
}

// stringValue coerces a submitted JSON value to its string form; the form
// client sends everything as strings but numbers survive re-encoding as
// float64.
func stringValue(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
