package core

import "rocklandcensus/internal/geo"

// SourceResults holds what each statistical source returned for one request.
// Income and Occupation are aligned to the requested keys, with nil meaning
// the source had no row for that key. Race is unordered and may cover only a
// subset of the keys.
type SourceResults struct {
	Income     []*Record
	Occupation []*Record
	Race       []*Record
}

// Merge left-joins the three sources onto keys. Each output record starts
// with the identifying fields and is overlaid with Income, then Occupation,
// then Race, so a later source wins on a shared field name. The inputs are
// not modified.
func Merge(reg *geo.Registry, keys []GeoKey, src SourceResults) Dataset {
	race := make(map[GeoKey]*Record, len(src.Race))
	for _, rec := range src.Race {
		if rec == nil {
			continue
		}
		if existing, ok := race[rec.Key]; ok {
			existing.Overlay(rec)
			continue
		}
		race[rec.Key] = rec.Clone()
	}

	out := make(Dataset, len(keys))
	for i, key := range keys {
		name, _ := reg.Name(key)
		merged := NewRecord(key, name)
		merged.Overlay(alignedAt(src.Income, i, key))
		merged.Overlay(alignedAt(src.Occupation, i, key))
		merged.Overlay(race[key])
		out[i] = merged
	}
	return out
}

// alignedAt returns the record at position i when it belongs to key.
func alignedAt(records []*Record, i int, key GeoKey) *Record {
	if i >= len(records) {
		return nil
	}
	rec := records[i]
	if rec == nil || rec.Key != key {
		return nil
	}
	return rec
}
