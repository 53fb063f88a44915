package core

import "testing"

// ------------------------------------------------------------
// ResolveName / WebPage
// ------------------------------------------------------------

func TestResolveNameNewestWins(t *testing.T) {
	s := newTestStore(t)
	id := newTestIdentity(t)
	first := putEvent(t, s, id, &NamePayload{Name: "alice", Target: "old-target"}, nil, 1)
	rebind, err := NewEvent(id, &NamePayload{Name: "alice", Target: "new-target"}, []string{first.ID}, 2)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	rebind.Timestamp = first.Timestamp.Add(1)
	if err := s.Put(rebind, true); err != nil {
		t.Fatalf("Put: %v", err)
	}

	target, ok, err := ResolveName(s, "alice")
	if err != nil {
		t.Fatalf("ResolveName: %v", err)
	}
	if !ok || target != "new-target" {
		t.Fatalf("expected newest binding new-target, got %q (ok=%v)", target, ok)
	}
}

func TestResolveNameUnknown(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := ResolveName(s, "nobody")
	if err != nil {
		t.Fatalf("ResolveName: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for an unbound name")
	}
}

func TestWebPageByURL(t *testing.T) {
	s := newTestStore(t)
	id := newTestIdentity(t)
	putEvent(t, s, id, &WebPayload{URL: "https://civic.example/page", Title: "Page"}, nil, 1)

	page, ok, err := WebPage(s, "https://civic.example/page")
	if err != nil {
		t.Fatalf("WebPage: %v", err)
	}
	if !ok || page.Title != "Page" {
		t.Fatalf("expected to find the published page, got %+v (ok=%v)", page, ok)
	}
}

// ------------------------------------------------------------
// Likes: newest like per author, count + self status
// ------------------------------------------------------------

func TestLikesCountsActiveOnly(t *testing.T) {
	s := newTestStore(t)
	me := newTestIdentity(t)
	other := newTestIdentity(t)
	target := "post123"

	putEvent(t, s, me, &LikePayload{Target: target}, nil, 1)
	putEvent(t, s, other, &LikePayload{Target: target}, nil, 1)

	status, err := Likes(s, target, me.AuthorID())
	if err != nil {
		t.Fatalf("Likes: %v", err)
	}
	if status.Count != 2 || !status.MeLike {
		t.Fatalf("expected count=2 meLike=true, got %+v", status)
	}
}

func TestLikesUnlikeDropsFromCount(t *testing.T) {
	s := newTestStore(t)
	me := newTestIdentity(t)
	target := "post123"

	first := putEvent(t, s, me, &LikePayload{Target: target, Remove: false}, nil, 1)
	unlike, err := NewEvent(me, &LikePayload{Target: target, Remove: true}, []string{first.ID}, 2)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	unlike.Timestamp = first.Timestamp.Add(1)
	if err := s.Put(unlike, true); err != nil {
		t.Fatalf("Put: %v", err)
	}

	status, err := Likes(s, target, me.AuthorID())
	if err != nil {
		t.Fatalf("Likes: %v", err)
	}
	if status.Count != 0 || status.MeLike {
		t.Fatalf("expected the unlike to zero out the count, got %+v", status)
	}
}
