package core

// ResolveName returns the target of the newest name:v1 event whose name
// field equals query.
func ResolveName(s *Store, query string) (string, bool, error) {
	events, err := s.ByType("name:v1")
	if err != nil {
		return "", false, err
	}
	var newest *Event
	for _, e := range events {
		p, ok := e.Payload.(*NamePayload)
		if !ok || p.Name != query {
			continue
		}
		if newest == nil || e.Timestamp.After(newest.Timestamp) {
			newest = e
		}
	}
	if newest == nil {
		return "", false, nil
	}
	p := newest.Payload.(*NamePayload)
	return p.Target, true, nil
}

// WebPage returns the newest web:v1 event with the matching url.
func WebPage(s *Store, url string) (*WebPayload, bool, error) {
	events, err := s.ByType("web:v1")
	if err != nil {
		return nil, false, err
	}
	var newest *Event
	for _, e := range events {
		p, ok := e.Payload.(*WebPayload)
		if !ok || p.URL != url {
			continue
		}
		if newest == nil || e.Timestamp.After(newest.Timestamp) {
			newest = e
		}
	}
	if newest == nil {
		return nil, false, nil
	}
	return newest.Payload.(*WebPayload), true, nil
}

// LikeStatus is the result of Likes: the active like count for target and
// whether me's own latest like is active.
type LikeStatus struct {
	Count  int
	MeLike bool
}

// Likes keeps the newest like:v1 event per author for target, counts
// those with remove=false, and reports whether me's latest is active.
func Likes(s *Store, target, me string) (LikeStatus, error) {
	events, err := s.ByTarget(target)
	if err != nil {
		return LikeStatus{}, err
	}
	newest := map[string]*Event{}
	for _, e := range events {
		if e.Type != "like:v1" {
			continue
		}
		cur, ok := newest[e.Author]
		if !ok || e.Timestamp.After(cur.Timestamp) {
			newest[e.Author] = e
		}
	}
	var status LikeStatus
	for author, e := range newest {
		p, ok := e.Payload.(*LikePayload)
		if !ok {
			continue
		}
		if !p.Remove {
			status.Count++
			if author == me {
				status.MeLike = true
			}
		}
	}
	return status, nil
}
