package core

// ActiveListings groups listing:v1 events by "chain id" (the first
// listing's ref_cid if present, else its own id), keeps the newest
// timestamp per chain, and returns only those whose latest status is
// Active (§4.5).
func ActiveListings(s *Store) ([]*Event, error) {
	events, err := s.ByType("listing:v1")
	if err != nil {
		return nil, err
	}
	sortByTimestampAsc(events)

	chainOf := map[string]string{}
	newestByChain := map[string]*Event{}

	for _, e := range events {
		p, ok := e.Payload.(*ListingPayload)
		if !ok {
			continue
		}
		chain := e.ID
		if p.RefCID != nil && *p.RefCID != "" {
			if c, ok := chainOf[*p.RefCID]; ok {
				chain = c
			} else {
				chain = *p.RefCID
			}
		}
		chainOf[e.ID] = chain
		cur, exists := newestByChain[chain]
		if !exists || e.Timestamp.After(cur.Timestamp) || (e.Timestamp.Equal(cur.Timestamp) && e.ID > cur.ID) {
			newestByChain[chain] = e
		}
	}

	var out []*Event
	for _, e := range newestByChain {
		p, ok := e.Payload.(*ListingPayload)
		if ok && p.Status == ListingActive {
			out = append(out, e)
		}
	}
	sortByTimestampDesc(out)
	return out, nil
}
