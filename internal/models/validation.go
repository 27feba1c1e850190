package models

// RequirementKind is how a critical field entry is satisfied.
type RequirementKind string

const (
	RequireSingle RequirementKind = "single"
	RequireAllOf  RequirementKind = "all_of"
	RequireAnyOf  RequirementKind = "any_of"
)

// CriticalFieldSpec is one row of the critical-field schema.
type CriticalFieldSpec struct {
	Field   string          `json:"field" yaml:"field"`
	Kind    RequirementKind `json:"kind" yaml:"kind"`
	SubKeys []string        `json:"sub_keys,omitempty" yaml:"sub_keys,omitempty"`
	Label   string          `json:"label" yaml:"label"`
}

// Paths lists every leaf path the entry looks at.
func (s CriticalFieldSpec) Paths() []string {
	if s.Kind == RequireSingle {
		return []string{s.Field}
	}
	out := make([]string, len(s.SubKeys))
	for i, k := range s.SubKeys {
		out[i] = s.Field + "." + k
	}
	return out
}

type FilledField struct {
	Field string `json:"field"`
	Note  string `json:"note,omitempty"`
}

type MissingField struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
	// Paths are the leaf paths still empty; the backfill engine targets these.
	Paths []string `json:"paths,omitempty"`
}

// ValidationReport is produced fresh on every validation run.
type ValidationReport struct {
	SchemaVersion string         `json:"schema_version"`
	Valid         bool           `json:"valid"`
	Completeness  float64        `json:"completeness"`
	Filled        []FilledField  `json:"filled"`
	Missing       []MissingField `json:"missing"`
}

// MissingPaths flattens the leaf paths of every missing entry.
func (r *ValidationReport) MissingPaths() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, m := range r.Missing {
		out = append(out, m.Paths...)
	}
	return out
}
