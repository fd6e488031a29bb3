package store

import (
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func openTestStore(t *testing.T, maxRows int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), maxRows)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenSucceedsOnFreshDatabase(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "fresh.db"), 100)
	if err != nil {
		t.Fatalf("open on a fresh database: %v", err)
	}
	defer s.Close()

	if err := s.Upsert("user_name", "Alice"); err != nil {
		t.Fatalf("upsert after open: %v", err)
	}
	if _, err := s.InsertDocument("golang", "", "Go intro", "Go is a compiled language."); err != nil {
		t.Fatalf("insert document after open: %v", err)
	}
}

func TestDocumentsWorkWithoutSearchIndex(t *testing.T) {
	s := openTestStore(t, 100)
	s.ftsEnabled = false

	if _, err := s.InsertDocument("golang", "", "Go intro", "Go is a compiled language."); err != nil {
		t.Fatalf("insert without index: %v", err)
	}
	if err := s.ClearDocuments(); err != nil {
		t.Fatalf("clear without index: %v", err)
	}
	_, kbDocs := s.FastCounts()
	if kbDocs != 0 {
		t.Errorf("expected 0 documents after clear, got %d", kbDocs)
	}
}

func TestLatestPerKeyNewestWins(t *testing.T) {
	s := openTestStore(t, 100)

	upserts := []struct{ key, value string }{
		{"user_name", "Alice"},
		{"dog_name", "Rex"},
		{"user_name", "Bob"},
	}
	for _, u := range upserts {
		if err := s.Upsert(u.key, u.value); err != nil {
			t.Fatalf("upsert %s: %v", u.key, err)
		}
	}

	got, err := s.LatestPerKey()
	if err != nil {
		t.Fatalf("latest per key: %v", err)
	}
	want := "dog_name: Rex\nuser_name: Bob"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestLatestPerKeyExcludesPrivateKeys(t *testing.T) {
	s := openTestStore(t, 100)

	if err := s.Upsert("user_name", "Alice"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetLastTopic("go generics"); err != nil {
		t.Fatal(err)
	}

	got, err := s.LatestPerKey()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "last_topic") {
		t.Errorf("private key leaked into memory projection: %q", got)
	}

	keys, err := s.ListKeys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "user_name" {
		t.Errorf("expected [user_name], got %v", keys)
	}
}

func TestUpsertTrimsToRetentionCap(t *testing.T) {
	s := openTestStore(t, 5)

	for i := 0; i < 12; i++ {
		if err := s.Upsert("k"+strconv.Itoa(i), "v"); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	memRows, _ := s.FastCounts()
	if memRows != 5 {
		t.Errorf("expected 5 rows after trim, got %d", memRows)
	}

	// The survivors must be the newest rows.
	keys, err := s.ListKeys()
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range keys {
		n, _ := strconv.Atoi(strings.TrimPrefix(k, "k"))
		if n < 7 {
			t.Errorf("old row %s survived the trim", k)
		}
	}
}

func TestLastTopicRoundTrip(t *testing.T) {
	s := openTestStore(t, 100)

	topic, err := s.LastTopic()
	if err != nil {
		t.Fatal(err)
	}
	if topic != "" {
		t.Errorf("expected empty last topic, got %q", topic)
	}

	if err := s.SetLastTopic("quantum computing"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetLastTopic("rust async"); err != nil {
		t.Fatal(err)
	}

	topic, err = s.LastTopic()
	if err != nil {
		t.Fatal(err)
	}
	if topic != "rust async" {
		t.Errorf("expected newest topic, got %q", topic)
	}
}

func TestInsertAndClearDocuments(t *testing.T) {
	s := openTestStore(t, 100)

	id, err := s.InsertDocument("golang", "https://example.com/go", "Go intro", "Go is a compiled language.")
	if err != nil {
		t.Fatalf("insert document: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero document id")
	}

	_, kbDocs := s.FastCounts()
	if kbDocs != 1 {
		t.Errorf("expected 1 document, got %d", kbDocs)
	}

	if err := s.ClearDocuments(); err != nil {
		t.Fatalf("clear documents: %v", err)
	}
	_, kbDocs = s.FastCounts()
	if kbDocs != 0 {
		t.Errorf("expected 0 documents after clear, got %d", kbDocs)
	}
}
