package core

// MessageThread returns message:v1 events between me and other, sorted
// ascending: (author=me ∧ recipient=other) ∨ (author=other ∧ recipient=me).
func MessageThread(s *Store, me, other string) ([]*Event, error) {
	fromMe, err := s.ByTypeAndAuthor("message:v1", me)
	if err != nil {
		return nil, err
	}
	fromOther, err := s.ByTypeAndAuthor("message:v1", other)
	if err != nil {
		return nil, err
	}

	var out []*Event
	for _, e := range fromMe {
		p, ok := e.Payload.(*MessagePayload)
		if ok && p.Recipient == other {
			out = append(out, e)
		}
	}
	for _, e := range fromOther {
		p, ok := e.Payload.(*MessagePayload)
		if ok && p.Recipient == me {
			out = append(out, e)
		}
	}
	sortByTimestampAsc(out)
	return out, nil
}
