package skill

import "sort"

// Catalog is the immutable set of registered skills. It is populated once
// at startup via NewCatalog and never mutated afterward — concurrent reads
// need no locking.
type Catalog struct {
	skills map[string]Skill
}

// NewCatalog registers every skill in skills, keyed by its Metadata().Name.
// Duplicate names overwrite earlier entries, last write wins, matching the
// teacher's registry semantics.
func NewCatalog(skills ...Skill) *Catalog {
	c := &Catalog{skills: make(map[string]Skill, len(skills))}
	for _, s := range skills {
		c.skills[s.Metadata().Name] = s
	}
	return c
}

// Get looks up a skill by name. ok is false if no skill with that name was
// registered.
func (c *Catalog) Get(name string) (Skill, bool) {
	s, ok := c.skills[name]
	return s, ok
}

// List returns every registered skill's Metadata, sorted by name, for
// building the model-facing tool schema list.
func (c *Catalog) List() []Metadata {
	out := make([]Metadata, 0, len(c.skills))
	for _, s := range c.skills {
		out = append(out, s.Metadata())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
