package metadata

// Relation links a parent entity to its dependents. Only one_to_many
// relations are composed into subforms.
type Relation struct {
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type" yaml:"type"` // one_to_one, one_to_many
	Source    string `json:"source" yaml:"source"`
	Target    string `json:"target" yaml:"target"`
	SourceKey string `json:"source_key" yaml:"source_key"`
	TargetKey string `json:"target_key,omitempty" yaml:"target_key,omitempty"`
	OnDelete  string `json:"on_delete" yaml:"on_delete"` // cascade, restrict, detach
}

func (r *Relation) IsOneToMany() bool {
	return r.Type == "one_to_many"
}

func (r *Relation) IsOneToOne() bool {
	return r.Type == "one_to_one"
}

// DefaultOnDelete returns the delete behaviour, defaulting to "cascade".
func (r *Relation) DefaultOnDelete() string {
	if r.OnDelete != "" {
		return r.OnDelete
	}
	return "cascade"
}
