// Package schema defines the detection and response records shared by every
// CyberSentinel component. Detectors produce DetectionEvents; the response
// dispatcher turns them into ResponseRecords, which are the unit persisted to
// the event ledger.
package schema

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies an observed adversary action.
type Category string

const (
	CategoryCredentialAttack Category = "credential_attack"
	CategoryBruteForce       Category = "brute_force"
	CategoryReconnaissance   Category = "reconnaissance"
	CategoryExploitation     Category = "exploitation"
	CategoryExfiltration     Category = "exfiltration"
	CategoryHoneypotTrigger  Category = "honeypot_trigger"
	CategorySuspicious       Category = "suspicious"
	CategoryFileExploration  Category = "file_exploration"

	// Categories below are never produced by classification; they describe
	// actions the engine takes on its own.
	CategoryDecoyDeployment Category = "decoy_deployment"
	CategoryTargetedDefense Category = "targeted_defense"
	CategorySystemStartup   Category = "system_startup"
)

// AllCategories lists every known category.
var AllCategories = []Category{
	CategoryCredentialAttack,
	CategoryBruteForce,
	CategoryReconnaissance,
	CategoryExploitation,
	CategoryExfiltration,
	CategoryHoneypotTrigger,
	CategorySuspicious,
	CategoryFileExploration,
	CategoryDecoyDeployment,
	CategoryTargetedDefense,
	CategorySystemStartup,
}

// IsValid checks if the category is a known value.
func (c Category) IsValid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// UnknownSource is the source identifier used when none can be extracted.
const UnknownSource = "unknown"

// DetectionEvent is a classified, not yet persisted security observation.
// It is passed by value and never modified after construction.
type DetectionEvent struct {
	ID         uuid.UUID `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Category   Category  `json:"category"`
	Source     string    `json:"source"`
	RawExcerpt string    `json:"raw_excerpt"`
	Confidence float64   `json:"confidence"`

	// Detector names the detector that produced the event.
	Detector string `json:"detector,omitempty"`
	// Target is the matched artifact for path-based rules (honeypots, decoys).
	Target string `json:"target,omitempty"`
}

// NewDetectionEvent creates an event stamped with the current UTC time.
// An empty source is normalized to UnknownSource.
func NewDetectionEvent(category Category, source, raw string) DetectionEvent {
	if source == "" {
		source = UnknownSource
	}
	return DetectionEvent{
		ID:         uuid.New(),
		Timestamp:  time.Now().UTC(),
		Category:   category,
		Source:     source,
		RawExcerpt: raw,
	}
}

// ResponseRecord pairs a detection with its simulated countermeasure.
// The first four fields form the ledger document format; the rest are
// additive and omitted when empty.
type ResponseRecord struct {
	Timestamp  Timestamp `json:"timestamp"`
	Detection  string    `json:"detection" validate:"required,max=1024"`
	Response   string    `json:"response" validate:"required,max=4096"`
	Confidence float64   `json:"confidence" validate:"min=0,max=1"`

	Sequence uint64    `json:"sequence,omitempty"`
	ID       uuid.UUID `json:"id"`
	Category Category  `json:"category,omitempty" validate:"omitempty,category"`
	Source   string    `json:"source,omitempty" validate:"max=256"`
}

// Timestamp is a UTC instant serialized as YYYY-MM-DDTHH:MM:SSZ.
type Timestamp struct {
	time.Time
}

// TimestampLayout is the wire format used by the ledger and the activity log.
const TimestampLayout = "2006-01-02T15:04:05Z"

// NewTimestamp truncates t to seconds and converts it to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Second)}
}

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return NewTimestamp(time.Now())
}

// String formats the timestamp in the ledger layout.
func (t Timestamp) String() string {
	return t.UTC().Format(TimestampLayout)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON accepts the ledger layout as well as full RFC 3339.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := time.Parse(TimestampLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
	}
	t.Time = parsed.UTC()
	return nil
}
