package schema

import (
	"path/filepath"
	"testing"
)

func loadTestSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := Load(filepath.Join("..", "..", "api", "openapi.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return s
}

func TestLoadValidatesDocument(t *testing.T) {
	s := loadTestSchema(t)
	if s.Title() != "Workspace BFF" {
		t.Errorf("Title() = %q", s.Title())
	}
	if len(s.Raw()) == 0 {
		t.Error("Raw() is empty")
	}
}

func TestSchemaDeclaresCoreSurface(t *testing.T) {
	s := loadTestSchema(t)

	for _, path := range []string{
		"/api/rpc/mail",
		"/api/rpc/calendar",
		"/api/rpc/contacts",
		"/api/rpc/tasks",
		"/api/contacts/actions/modify",
		"/api/contacts/actions/bulkDelete",
		"/api/tasks/actions/create",
		"/api/tasks/actions/modify",
		"/healthz",
	} {
		if !s.HasPath(path) {
			t.Errorf("HasPath(%q) = false", path)
		}
	}
	if s.HasPath("/api/rpc/drive") {
		t.Error("unexpected path /api/rpc/drive")
	}
}

func TestOperationIDsSorted(t *testing.T) {
	s := loadTestSchema(t)
	ids := s.OperationIDs()
	if len(ids) < 10 {
		t.Fatalf("OperationIDs() = %d ids, want at least 10", len(ids))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] > ids[i] {
			t.Fatalf("ids not sorted: %q before %q", ids[i-1], ids[i])
		}
	}
	found := false
	for _, id := range ids {
		if id == "mailRPC" {
			found = true
		}
	}
	if !found {
		t.Error("mailRPC operation missing")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("testdata/does-not-exist.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
