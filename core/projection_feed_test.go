package core

import (
	"testing"
	"time"
)

// ------------------------------------------------------------
// RecentPosts / PostsByAuthor / LocalPosts
// ------------------------------------------------------------

func TestRecentPostsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	id := newTestIdentity(t)
	first := putEvent(t, s, id, &PostPayload{Content: "first"}, nil, 1)
	second, err := NewEvent(id, &PostPayload{Content: "second"}, nil, 2)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	second.Timestamp = first.Timestamp.Add(time.Second)
	if err := s.Put(second, true); err != nil {
		t.Fatalf("Put: %v", err)
	}

	posts, err := RecentPosts(s, 10)
	if err != nil {
		t.Fatalf("RecentPosts: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if posts[0].ID != second.ID {
		t.Fatal("expected the later post first")
	}
}

func TestLocalPostsFiltersByGeohashPrefix(t *testing.T) {
	s := newTestStore(t)
	id := newTestIdentity(t)
	inside := "9q8yy"
	outside := "gbsuv"
	putEvent(t, s, id, &PostPayload{Content: "near", Geohash: &inside}, nil, 1)
	putEvent(t, s, id, &PostPayload{Content: "far", Geohash: &outside}, nil, 2)
	putEvent(t, s, id, &PostPayload{Content: "no geohash"}, nil, 3)

	posts, err := LocalPosts(s, "9q8", 10)
	if err != nil {
		t.Fatalf("LocalPosts: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post matching the geohash prefix, got %d", len(posts))
	}
}

func TestRecentPostsLimit(t *testing.T) {
	s := newTestStore(t)
	id := newTestIdentity(t)
	for i := 0; i < 5; i++ {
		putEvent(t, s, id, &PostPayload{Content: "p"}, nil, uint64(i+1))
	}
	posts, err := RecentPosts(s, 2)
	if err != nil {
		t.Fatalf("RecentPosts: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(posts))
	}
}

// ------------------------------------------------------------
// Follow graph replay
// ------------------------------------------------------------

func TestFollowingSetReplaysFollowUnfollow(t *testing.T) {
	s := newTestStore(t)
	me := newTestIdentity(t)
	putEvent(t, s, me, &FollowPayload{Target: "alice", Follow: true}, nil, 1)
	putEvent(t, s, me, &FollowPayload{Target: "bob", Follow: true}, nil, 2)
	putEvent(t, s, me, &FollowPayload{Target: "alice", Follow: false}, nil, 3)

	following, err := FollowingSet(s, me.AuthorID())
	if err != nil {
		t.Fatalf("FollowingSet: %v", err)
	}
	if following["alice"] {
		t.Fatal("alice should have been unfollowed")
	}
	if !following["bob"] {
		t.Fatal("bob should still be followed")
	}
}

func TestFollowingFeedIncludesSelfAndFollowed(t *testing.T) {
	s := newTestStore(t)
	me := newTestIdentity(t)
	friend := newTestIdentity(t)
	stranger := newTestIdentity(t)

	putEvent(t, s, me, &FollowPayload{Target: friend.AuthorID(), Follow: true}, nil, 1)
	putEvent(t, s, me, &PostPayload{Content: "mine"}, nil, 2)
	putEvent(t, s, friend, &PostPayload{Content: "friend's"}, nil, 1)
	putEvent(t, s, stranger, &PostPayload{Content: "stranger's"}, nil, 1)

	feed, err := FollowingFeed(s, me.AuthorID(), 10)
	if err != nil {
		t.Fatalf("FollowingFeed: %v", err)
	}
	if len(feed) != 2 {
		t.Fatalf("expected 2 posts (mine + friend's), got %d", len(feed))
	}
}
