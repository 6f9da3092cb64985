// Package geo holds the fixed allow-list of geographic keys served by the
// service and their display names.
package geo

// GeoKey identifies a ZIP code tabulation area. It is the join key shared by
// every statistical source.
type GeoKey string

// Place pairs a key with its display name.
type Place struct {
	Key  GeoKey
	Name string
}

// Registry is an immutable, ordered allow-list of keys. Lookups are exact and
// case-sensitive.
type Registry struct {
	places []Place
	index  map[GeoKey]int
}

// NewRegistry builds a registry from places in the order given. Later
// duplicates of a key are ignored.
func NewRegistry(places []Place) *Registry {
	r := &Registry{
		places: make([]Place, 0, len(places)),
		index:  make(map[GeoKey]int, len(places)),
	}
	for _, p := range places {
		if _, dup := r.index[p.Key]; dup {
			continue
		}
		r.index[p.Key] = len(r.places)
		r.places = append(r.places, p)
	}
	return r
}

// Keys returns every registered key in registry order.
func (r *Registry) Keys() []GeoKey {
	out := make([]GeoKey, len(r.places))
	for i, p := range r.places {
		out[i] = p.Key
	}
	return out
}

// Places returns a copy of the registry entries in order.
func (r *Registry) Places() []Place {
	return append([]Place(nil), r.places...)
}

// Name returns the display name for key.
func (r *Registry) Name(key GeoKey) (string, bool) {
	i, ok := r.index[key]
	if !ok {
		return "", false
	}
	return r.places[i].Name, true
}

// Contains reports whether key is registered.
func (r *Registry) Contains(key GeoKey) bool {
	_, ok := r.index[key]
	return ok
}

// Len returns the number of registered keys.
func (r *Registry) Len() int { return len(r.places) }

var rockland = NewRegistry([]Place{
	{"10901", "Airmont, Suffern"},
	{"10913", "Blauvelt"},
	{"10920", "Congers"},
	{"10923", "Garnerville"},
	{"10927", "Haverstraw"},
	{"10931", "Hillburn"},
	{"10952", "Monsey"},
	{"10956", "New City"},
	{"10960", "Nyack, Grand View-on-Hudson"},
	{"10962", "Orangeburg"},
	{"10964", "Palisades"},
	{"10965", "Pearl River"},
	{"10968", "Piermont"},
	{"10970", "Pomona"},
	{"10974", "Sloatsburg"},
	{"10976", "Sparkill"},
	{"10977", "Spring Valley, Chestnut Ridge"},
	{"10980", "Stony Point"},
	{"10983", "Tappan"},
	{"10986", "Tomkins Cove"},
	{"10989", "Valley Cottage"},
	{"10993", "West Haverstraw"},
	{"10994", "West Nyack"},
})

// Rockland returns the Rockland County ZCTA registry.
func Rockland() *Registry { return rockland }
