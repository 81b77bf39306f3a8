package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"handraise/internal/docstore"
	"handraise/pkg/types"
)

func decodeNames(docs []*types.Document) ([]string, error) {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.String("name") == "" {
			return nil, errors.New("missing name")
		}
		out = append(out, d.String("name"))
	}
	return out, nil
}

func TestFeed_DecodesSnapshots(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if err := store.Set(ctx, "classes/ABC123/students/s1", types.Fields{"name": "Ada"}); err != nil {
		t.Fatal(err)
	}
	sub, err := store.Subscribe(ctx, types.Query{Collection: "classes/ABC123/students", OrderBy: "name"})
	if err != nil {
		t.Fatal(err)
	}
	f := New(sub, decodeNames)
	defer func() { _ = f.Close() }()

	select {
	case names := <-f.Updates():
		if len(names) != 1 || names[0] != "Ada" {
			t.Errorf("unexpected initial names %v", names)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial update")
	}

	if err := store.Set(ctx, "classes/ABC123/students/s2", types.Fields{"name": "Bob"}); err != nil {
		t.Fatal(err)
	}
	select {
	case names := <-f.Updates():
		if len(names) != 2 || names[1] != "Bob" {
			t.Errorf("unexpected names %v", names)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
}

func TestFeed_DecodeErrorEndsFeed(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	sub, err := store.Subscribe(ctx, types.Query{Collection: "classes/ABC123/students"})
	if err != nil {
		t.Fatal(err)
	}
	f := New(sub, decodeNames)
	<-f.Updates()

	if err := store.Set(ctx, "classes/ABC123/students/s1", types.Fields{"handRaised": true}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-f.Updates():
			if !ok {
				if f.Err() == nil {
					t.Error("expected decode error to be reported")
				}
				return
			}
		case <-deadline:
			t.Fatal("feed did not end after decode error")
		}
	}
}

func TestFeed_CloseEndsWithoutError(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer func() { _ = store.Close() }()

	sub, err := store.Subscribe(context.Background(), types.Query{Collection: "classes"})
	if err != nil {
		t.Fatal(err)
	}
	f := New(sub, decodeNames)
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-f.Updates():
			if !ok {
				if f.Err() != nil {
					t.Errorf("expected nil error after Close, got %v", f.Err())
				}
				return
			}
		case <-deadline:
			t.Fatal("feed did not end after Close")
		}
	}
}
