package seanboard

// Extract builds a record from the view. A field whose key is missing or holds
// a value of the wrong kind takes its default; Extract never fails.
func Extract(view KeyValueView, prefix string) TelemetryRecord {
	rec := TelemetryRecord{}
	for _, spec := range fieldSpecs {
		v, ok := view.Lookup(prefix + spec.Name)
		if !ok || v.Kind() != spec.Kind {
			v = spec.Default
		}
		spec.assign(&rec, v)
	}
	return rec
}
