// Package incident holds the downstream collaborators the endpoint talks to
// at the terminal transition: the member directory, the incident creator and
// the next-of-kin notifier. All three are interfaces so the endpoint can run
// against the hosted data store in production and in-memory fakes in tests.
package incident

import (
	"context"
	"crypto/rand"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// ErrDownstream wraps any failure of the hosted store, timeouts included.
// The caller reports it to the client as a recoverable error screen and
// leaves the session open for resubmission.
var ErrDownstream = errors.New("incident service unavailable")

// Member is the medical profile shown to the bystander on the first screen.
type Member struct {
	ID         string `json:"member_id"`
	Name       string `json:"name"`
	BloodType  string `json:"blood_type"`
	Allergies  string `json:"allergies"`
	Conditions string `json:"conditions"`
	NOKPhone   string `json:"nok_phone,omitempty"`
}

// UnknownMember is what INIT prefills when the flow token does not resolve.
// The form still opens: an unidentified emergency beats a blocked one.
var UnknownMember = Member{
	Name:       "Unknown",
	ID:         "N/A",
	BloodType:  "Unknown",
	Allergies:  "Unknown",
	Conditions: "Unknown",
}

// Incident is the fully collected intake, handed downstream exactly once.
type Incident struct {
	Number           string    `json:"incident_number"`
	MemberID         string    `json:"member_id"`
	EmergencyType    string    `json:"emergency_type"`
	PatientConscious *bool     `json:"patient_conscious"`
	PatientBreathing *bool     `json:"patient_breathing"`
	VictimCount      int       `json:"victim_count"`
	SceneDescription string    `json:"scene_description,omitempty"`
	Latitude         float64   `json:"gps_latitude"`
	Longitude        float64   `json:"gps_longitude"`
	Address          string    `json:"address_description,omitempty"`
	ActivationMethod string    `json:"activation_method"`
	Status           string    `json:"status"`
	ActivatedAt      time.Time `json:"activated_at"`
}

// Ref identifies a created incident back to the client and the notifier.
type Ref struct {
	ID     string `json:"id"`
	Number string `json:"incident_number"`
}

type MemberDirectory interface {
	// Lookup resolves a member id; ok=false means unknown, not an error.
	Lookup(ctx context.Context, memberID string) (Member, bool, error)
}

type Creator interface {
	CreateIncident(ctx context.Context, inc Incident) (Ref, error)
}

type Notifier interface {
	// EmergencyActivated fans an activation out to next of kin and
	// responders. Delivery retries are the provider's concern.
	EmergencyActivated(ctx context.Context, ref Ref, member Member)
}

// NewNumber mints a short human-quotable incident number.
func NewNumber() string {
	raw := make([]byte, 5)
	if _, err := rand.Read(raw); err != nil {
		// Fall back to a time-derived number; uniqueness still holds well
		// enough for a human-facing reference.
		return "INC-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return "INC-" + base58.Encode(raw)
}

// NewID mints the internal incident id.
func NewID() string {
	return uuid.NewString()
}

// FromFields maps the session's collected fields onto an Incident. Values
// were validated screen by screen, so parsing here is lenient.
func FromFields(memberID string, fields map[string]any) Incident {
	inc := Incident{
		Number:           NewNumber(),
		MemberID:         memberID,
		EmergencyType:    fieldString(fields, "emergency_type"),
		PatientConscious: triState(fieldString(fields, "conscious")),
		PatientBreathing: triState(fieldString(fields, "breathing")),
		VictimCount:      victimCount(fieldString(fields, "victim_count")),
		SceneDescription: fieldString(fields, "scene_description"),
		Address:          fieldString(fields, "address"),
		ActivationMethod: "whatsapp_flow",
		Status:           "activated",
		ActivatedAt:      time.Now().UTC(),
	}
	inc.Latitude, _ = strconv.ParseFloat(fieldString(fields, "latitude"), 64)
	inc.Longitude, _ = strconv.ParseFloat(fieldString(fields, "longitude"), 64)
	return inc
}

func fieldString(fields map[string]any, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

// triState maps yes/no answers to a nullable boolean; "unsure" and
// "struggling" stay null rather than guessing.
func triState(v string) *bool {
	switch v {
	case "yes":
		t := true
		return &t
	case "no":
		f := false
		return &f
	default:
		return nil
	}
}

func victimCount(v string) int {
	if v == "4+" {
		return 4
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
