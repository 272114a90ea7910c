package core

// Merge assembles one Status per key seen in any of the three sources. Keys
// are matched exactly. A key repeated within one source keeps the later
// record and gets a DuplicateKeyError; unparseable versions of the records
// kept are recorded as ParseError. Errors are ordered local, registry,
// upstream.
func Merge(local, registry, upstream []Record) map[PackageKey]*Status {
	statuses := make(map[PackageKey]*Status)

	get := func(key PackageKey) *Status {
		s, ok := statuses[key]
		if !ok {
			s = &Status{Key: key, Candidate: true}
			statuses[key] = s
		}
		return s
	}

	place := func(records []Record, source SourceKind) {
		for i := range records {
			rec := records[i]
			rec.Source = source
			s := get(rec.Key)

			slot := s.slot(source)
			if prev := *slot; prev != nil {
				if prev.ParseErr != nil {
					s.Errors = without(s.Errors, prev.ParseErr)
				}
				s.Errors = append(s.Errors, &DuplicateKeyError{Key: rec.Key, Source: source})
			}
			*slot = &rec
			if rec.ParseErr != nil {
				s.Errors = append(s.Errors, rec.ParseErr)
			}
		}
	}

	place(local, SourceLocal)
	place(registry, SourceRegistry)
	place(upstream, SourceUpstream)

	return statuses
}

func (s *Status) slot(source SourceKind) **Record {
	switch source {
	case SourceRegistry:
		return &s.Registry
	case SourceUpstream:
		return &s.Upstream
	default:
		return &s.Local
	}
}

func without(errs []error, target error) []error {
	out := errs[:0]
	for _, err := range errs {
		if err != target {
			out = append(out, err)
		}
	}
	return out
}
