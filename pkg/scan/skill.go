package scan

import (
	"encoding/json"
	"time"

	"github.com/jingkaihe/skillkit/pkg/store"
)

// ScopeCustom marks skills found under user-declared scan roots.
const ScopeCustom store.Scope = "custom"

// Status is the flattened classification of a skill.
type Status string

// Statuses
const (
	StatusManaged   Status = "managed"
	StatusUnmanaged Status = "unmanaged"
	StatusMixed     Status = "mixed"
)

// State is the classification of a skill record. The set of
// implementations is closed: Managed, Unmanaged and Mixed.
type State interface {
	Status() Status
	agentIDs() []string
}

// Managed is a canonical skill; Agents hold a verified association to it.
type Managed struct {
	Agents []string
}

// Unmanaged is a standalone folder. NameConflict is set when another
// unmanaged folder asserts the same name.
type Unmanaged struct {
	Agents       []string
	NameConflict bool
}

// Mixed is an unmanaged folder whose name is also a managed skill.
type Mixed struct {
	Agents       []string
	NameConflict bool
}

// Status implements State.
func (Managed) Status() Status { return StatusManaged }

// Status implements State.
func (Unmanaged) Status() Status { return StatusUnmanaged }

// Status implements State.
func (Mixed) Status() Status { return StatusMixed }

func (s Managed) agentIDs() []string   { return s.Agents }
func (s Unmanaged) agentIDs() []string { return s.Agents }
func (s Mixed) agentIDs() []string     { return s.Agents }

// Provenance is lock-file information attached to managed skills.
type Provenance struct {
	Source      string `json:"source" yaml:"source"`
	SourceType  string `json:"sourceType" yaml:"sourceType"`
	SourceURL   string `json:"sourceUrl,omitempty" yaml:"sourceUrl,omitempty"`
	SkillPath   string `json:"skillPath,omitempty" yaml:"skillPath,omitempty"`
	Hash        string `json:"hash,omitempty" yaml:"hash,omitempty"`
	InstalledAt string `json:"installedAt,omitempty" yaml:"installedAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// Skill is one record of the scan result.
type Skill struct {
	Name          string
	Description   string
	Scope         store.Scope
	Path          string
	CanonicalPath string
	CreatedAt     *time.Time
	State         State
	Provenance    *Provenance
}

// Status returns the flattened classification.
func (s *Skill) Status() Status {
	return s.State.Status()
}

// Agents returns the ids of the agents holding this record.
func (s *Skill) Agents() []string {
	return s.State.agentIDs()
}

// NameConflict reports whether another unmanaged folder shares the name.
func (s *Skill) NameConflict() bool {
	switch st := s.State.(type) {
	case Unmanaged:
		return st.NameConflict
	case Mixed:
		return st.NameConflict
	default:
		return false
	}
}

// ConflictWithManaged reports whether the name is also a managed skill.
func (s *Skill) ConflictWithManaged() bool {
	_, ok := s.State.(Mixed)
	return ok
}

// Record is the flat, serialisable form of a Skill.
type Record struct {
	Name                string      `json:"name" yaml:"name"`
	Description         string      `json:"description,omitempty" yaml:"description,omitempty"`
	Scope               store.Scope `json:"scope" yaml:"scope"`
	Path                string      `json:"path" yaml:"path"`
	CanonicalPath       string      `json:"canonicalPath" yaml:"canonicalPath"`
	Agents              []string    `json:"agents" yaml:"agents"`
	ManagedStatus       Status      `json:"managedStatus" yaml:"managedStatus"`
	NameConflict        bool        `json:"nameConflict" yaml:"nameConflict"`
	ConflictWithManaged bool        `json:"conflictWithManaged" yaml:"conflictWithManaged"`
	CreatedAt           *time.Time  `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	Source              *Provenance `json:"source,omitempty" yaml:"source,omitempty"`
}

// Record flattens the skill.
func (s *Skill) Record() Record {
	agents := s.Agents()
	if agents == nil {
		agents = []string{}
	}
	return Record{
		Name:                s.Name,
		Description:         s.Description,
		Scope:               s.Scope,
		Path:                s.Path,
		CanonicalPath:       s.CanonicalPath,
		Agents:              agents,
		ManagedStatus:       s.Status(),
		NameConflict:        s.NameConflict(),
		ConflictWithManaged: s.ConflictWithManaged(),
		CreatedAt:           s.CreatedAt,
		Source:              s.Provenance,
	}
}

// MarshalJSON implements json.Marshaler.
func (s *Skill) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Record())
}

// MarshalYAML implements yaml.Marshaler.
func (s *Skill) MarshalYAML() (interface{}, error) {
	return s.Record(), nil
}
