package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sheet = `# verse-1
city lights are calling out my name
every street remembers where we came

# chorus
sing it back to me

---

# verse-2
morning breaks across the harbor line
`

func TestParseSheet(t *testing.T) {
	item, err := ParseSheet("song-1", strings.NewReader(sheet), 255)
	if err != nil {
		t.Fatalf("ParseSheet: %v", err)
	}
	if item.ID != "song-1" {
		t.Errorf("id = %q, want %q", item.ID, "song-1")
	}
	want := []Section{
		{ID: "verse-1", LineCount: 2},
		{ID: "chorus", LineCount: 1},
		{ID: "verse-2", LineCount: 1},
	}
	if len(item.Sections) != len(want) {
		t.Fatalf("sections = %v, want %v", item.Sections, want)
	}
	for i, w := range want {
		if item.Sections[i] != w {
			t.Errorf("section %d = %v, want %v", i, item.Sections[i], w)
		}
	}
}

func TestParseSheetErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty sheet", ""},
		{"only blank lines", "\n\n\n"},
		{"line outside a section", "orphan line\n# verse-1\nhello\n"},
		{"empty header", "#\nhello\n"},
		{"duplicate section", "# verse-1\na\n# verse-1\nb\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseSheet("bad", strings.NewReader(tc.input), 255); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParseSheetCeiling(t *testing.T) {
	input := "# verse-1\na\nb\nc\n"

	if _, err := ParseSheet("ok", strings.NewReader(input), 3); err != nil {
		t.Fatalf("line count equal to ceiling should parse: %v", err)
	}
	if _, err := ParseSheet("over", strings.NewReader(input), 2); err == nil {
		t.Error("expected ceiling error, got nil")
	}
}

func TestShapesAndSection(t *testing.T) {
	item, err := ParseSheet("song-1", strings.NewReader(sheet), 255)
	if err != nil {
		t.Fatalf("ParseSheet: %v", err)
	}

	shapes := item.Shapes()
	if len(shapes) != 3 || shapes[1].Section != "chorus" || shapes[1].LineCount != 1 {
		t.Errorf("unexpected shapes: %v", shapes)
	}

	sec, ok := item.Section("verse-2")
	if !ok || sec.LineCount != 1 {
		t.Errorf("Section(verse-2) = %v, %v", sec, ok)
	}
	if _, ok := item.Section("bridge"); ok {
		t.Error("expected missing section")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("beta.txt", "# verse-1\na\n")
	write("alpha.md", "# chorus\nb\nc\n")
	write("notes.json", `{"ignored": true}`)

	items, err := Load(dir, 255)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("loaded %d items, want 2", len(items))
	}
	if items[0].ID != "alpha" || items[1].ID != "beta" {
		t.Errorf("items not sorted by ID: %q, %q", items[0].ID, items[1].ID)
	}

	if _, ok := Find(items, "beta"); !ok {
		t.Error("Find(beta) missed")
	}
	if _, ok := Find(items, "gamma"); ok {
		t.Error("Find(gamma) should miss")
	}
}

func TestLoadFailsOnBadSheet(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "good.txt"), []byte("# verse-1\na\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.txt"), []byte("orphan line\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir, 255); err == nil {
		t.Error("expected load to fail on the malformed sheet")
	}
}
