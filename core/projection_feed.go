package core

import "strings"

// RecentPosts returns the L newest post:v1 events.
func RecentPosts(s *Store, limit int) ([]*Event, error) {
	posts, err := s.ByType("post:v1")
	if err != nil {
		return nil, err
	}
	sortByTimestampDesc(posts)
	return truncate(posts, limit), nil
}

// LocalPosts filters RecentPosts to those whose geohash starts with prefix.
func LocalPosts(s *Store, prefix string, limit int) ([]*Event, error) {
	posts, err := s.ByType("post:v1")
	if err != nil {
		return nil, err
	}
	filtered := posts[:0]
	for _, e := range posts {
		p, ok := e.Payload.(*PostPayload)
		if !ok || p.Geohash == nil {
			continue
		}
		if strings.HasPrefix(*p.Geohash, prefix) {
			filtered = append(filtered, e)
		}
	}
	sortByTimestampDesc(filtered)
	return truncate(filtered, limit), nil
}

// PostsByAuthor returns author's posts, newest first, truncated to limit.
func PostsByAuthor(s *Store, author string, limit int) ([]*Event, error) {
	posts, err := s.ByTypeAndAuthor("post:v1", author)
	if err != nil {
		return nil, err
	}
	sortByTimestampDesc(posts)
	return truncate(posts, limit), nil
}

// FollowingSet replays follow:v1 events authored by a in timestamp order:
// follow=true inserts the target, follow=false removes it. Returns the
// final set.
func FollowingSet(s *Store, a string) (map[string]bool, error) {
	events, err := s.ByTypeAndAuthor("follow:v1", a)
	if err != nil {
		return nil, err
	}
	sortByTimestampAsc(events)
	set := map[string]bool{}
	for _, e := range events {
		p, ok := e.Payload.(*FollowPayload)
		if !ok {
			continue
		}
		if p.Follow {
			set[p.Target] = true
		} else {
			delete(set, p.Target)
		}
	}
	return set, nil
}

// Followers replays every follow:v1 event targeting t in timestamp order;
// the last event per (author, t) wins. Returns authors whose latest
// follow=true.
func Followers(s *Store, t string) (map[string]bool, error) {
	events, err := s.ByTarget(t)
	if err != nil {
		return nil, err
	}
	var follows []*Event
	for _, e := range events {
		if e.Type == "follow:v1" {
			follows = append(follows, e)
		}
	}
	sortByTimestampAsc(follows)
	latest := map[string]bool{}
	for _, e := range follows {
		p, ok := e.Payload.(*FollowPayload)
		if !ok {
			continue
		}
		latest[e.Author] = p.Follow
	}
	out := map[string]bool{}
	for author, following := range latest {
		if following {
			out[author] = true
		}
	}
	return out, nil
}

// FollowingFeed returns posts authored by a or any member of Following(a),
// newest first, truncated to limit.
func FollowingFeed(s *Store, a string, limit int) ([]*Event, error) {
	following, err := FollowingSet(s, a)
	if err != nil {
		return nil, err
	}
	authors := map[string]bool{a: true}
	for k := range following {
		authors[k] = true
	}

	posts, err := s.ByType("post:v1")
	if err != nil {
		return nil, err
	}
	filtered := posts[:0]
	for _, e := range posts {
		if authors[e.Author] {
			filtered = append(filtered, e)
		}
	}
	sortByTimestampDesc(filtered)
	return truncate(filtered, limit), nil
}

func truncate(events []*Event, limit int) []*Event {
	if limit < 0 || limit >= len(events) {
		return events
	}
	return events[:limit]
}
