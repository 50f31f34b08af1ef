package project

import (
	"path/filepath"
	"testing"

	"github.com/haasonsaas/conduit/internal/fault"
	"github.com/haasonsaas/conduit/pkg/models"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	return s, dir
}

func TestCreate_Valid(t *testing.T) {
	s, dir := newStore(t)
	p, err := s.Create("api", dir,
		[]models.Tool{models.ToolClaude, models.ToolCodex}, models.ToolCodex,
		map[models.Tool][]string{models.ToolClaude: {"--model", "opus"}})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "api" || p.DefaultTool != models.ToolCodex {
		t.Errorf("project = %+v", p)
	}

	got, ok := s.Get("api")
	if !ok || got.Path != dir {
		t.Errorf("get = %+v, %v", got, ok)
	}
}

func TestCreate_ValidationMatrix(t *testing.T) {
	s, dir := newStore(t)
	allTools := []models.Tool{models.ToolClaude}

	cases := []struct {
		name     string
		projName string
		path     string
		tools    []models.Tool
		def      models.Tool
		args     map[models.Tool][]string
		wantCode fault.Code
	}{
		{"bad name uppercase", "Bad", dir, allTools, models.ToolClaude, nil, fault.CodeInvalidPath},
		{"bad name empty", "", dir, allTools, models.ToolClaude, nil, fault.CodeInvalidPath},
		{"relative path", "p1", "relative/dir", allTools, models.ToolClaude, nil, fault.CodeInvalidPath},
		{"missing dir", "p2", filepath.Join(dir, "nope"), allTools, models.ToolClaude, nil, fault.CodeInvalidPath},
		{"no tools", "p3", dir, nil, models.ToolClaude, nil, fault.CodeInvalidToolset},
		{"unknown tool", "p4", dir, []models.Tool{"emacs"}, "emacs", nil, fault.CodeInvalidToolset},
		{"duplicate tool", "p5", dir, []models.Tool{models.ToolClaude, models.ToolClaude}, models.ToolClaude, nil, fault.CodeInvalidToolset},
		{"default not enabled", "p6", dir, allTools, models.ToolCodex, nil, fault.CodeInvalidToolset},
		{"args for disabled tool", "p7", dir, allTools, models.ToolClaude,
			map[models.Tool][]string{models.ToolCursor: {"-x"}}, fault.CodeInvalidToolset},
	}
	for _, tc := range cases {
		_, err := s.Create(tc.projName, tc.path, tc.tools, tc.def, tc.args)
		if fault.CodeOf(err) != tc.wantCode {
			t.Errorf("%s: err = %v, want code %s", tc.name, err, tc.wantCode)
		}
	}
}

func TestCreate_DuplicateName(t *testing.T) {
	s, dir := newStore(t)
	if _, err := s.Create("api", dir, []models.Tool{models.ToolClaude}, models.ToolClaude, nil); err != nil {
		t.Fatal(err)
	}
	_, err := s.Create("api", dir, []models.Tool{models.ToolClaude}, models.ToolClaude, nil)
	if fault.CodeOf(err) != fault.CodeProjectExists {
		t.Errorf("err = %v, want %s", err, fault.CodeProjectExists)
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	s, dir := newStore(t)
	if err := s.SetOwnerID("owner-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create("api", dir, []models.Tool{models.ToolClaude}, models.ToolClaude, nil); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.OwnerID() != "owner-1" {
		t.Errorf("owner = %q", reloaded.OwnerID())
	}
	p, ok := reloaded.Get("api")
	if !ok || len(p.EnabledTools) != 1 {
		t.Errorf("project after reload = %+v, %v", p, ok)
	}
}

func TestList_SortedByName(t *testing.T) {
	s, dir := newStore(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := s.Create(name, dir, []models.Tool{models.ToolClaude}, models.ToolClaude, nil); err != nil {
			t.Fatal(err)
		}
	}
	list := s.List()
	want := []string{"alpha", "mid", "zeta"}
	for i, p := range list {
		if p.Name != want[i] {
			t.Errorf("list[%d] = %s, want %s", i, p.Name, want[i])
		}
	}
}
