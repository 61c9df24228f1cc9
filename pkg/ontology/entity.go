package ontology

import "strings"

// Entity is an immutable snapshot of a Home Assistant entity as supplied
// by the entity registry. It is fetched per scoring/training run and never
// mutated by the synergy pipeline.
type Entity struct {
	EntityID     string `json:"entity_id"`
	Domain       string `json:"domain,omitempty"`
	AreaID       string `json:"area_id,omitempty"`
	FriendlyName string `json:"friendly_name,omitempty"`
}

// EffectiveDomain returns the entity's domain, inferring it from the
// entity_id prefix ("light.bedroom" → "light") when the registry did not
// supply one.
func (e Entity) EffectiveDomain() string {
	if e.Domain != "" {
		return e.Domain
	}
	if i := strings.IndexByte(e.EntityID, '.'); i > 0 {
		return e.EntityID[:i]
	}
	return ""
}

// Valid reports whether the entity carries the minimum identity required
// to participate in a device graph.
func (e Entity) Valid() bool {
	return e.EntityID != ""
}
