package kv

import "testing"

func TestStore(t *testing.T) {
	store := MakeStore()

	if _, ok := store.Get("x"); ok {
		t.Fatal("fresh store must be empty")
	}

	store.Put("x", "1")
	if value, ok := store.Get("x"); !ok || value != "1" {
		t.Fatalf("get x want: 1, get: %q, %v", value, ok)
	}

	/* last write wins */
	store.Put("x", "2")
	if value, _ := store.Get("x"); value != "2" {
		t.Fatalf("get x want: 2, get: %q", value)
	}

	store.Put("y", "")
	if value, ok := store.Get("y"); !ok || value != "" {
		t.Fatalf("empty value must be stored, get: %q, %v", value, ok)
	}

	if store.Len() != 2 {
		t.Fatalf("len want: 2, get: %d", store.Len())
	}
}
