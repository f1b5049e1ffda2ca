// Package catalog loads the content hierarchy the engine itself never owns:
// items (songs) made of ordered sections, each with a known line count. It
// lives on the caller side of the engine contract and exists so the study
// queries have shapes to work with.
//
// A lyric sheet is a plain text file:
//
//	# verse-1
//	first line of the verse
//	second line of the verse
//
//	# chorus
//	first line of the chorus
//
// A "# name" header starts a section, "---" ends one explicitly, and blank
// lines separate but do not count. The item ID is the file name without its
// extension.
package catalog

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/techno-hippies/versed/internal/domain"
	"github.com/techno-hippies/versed/internal/study"
)

// Section is one sub-section of an item with its line count.
type Section struct {
	ID        string
	LineCount uint16
}

// Item is one content item with its ordered sections.
type Item struct {
	ID       string
	Sections []Section
}

// Shapes converts the item to the per-call hierarchy descriptor the
// aggregator expects.
func (it Item) Shapes() []study.SectionShape {
	shapes := make([]study.SectionShape, len(it.Sections))
	for i, s := range it.Sections {
		shapes[i] = study.SectionShape{Section: s.ID, LineCount: s.LineCount}
	}
	return shapes
}

// Section returns the section with the given ID, reporting whether it exists.
func (it Item) Section(id string) (Section, bool) {
	for _, s := range it.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// ParseSheet reads one lyric sheet and returns the item with the given ID.
// A section whose line count reaches the ceiling is a parse error: the
// engine's aggregation queries are bounded by that ceiling.
func ParseSheet(id string, r io.Reader, lineCeiling uint16) (Item, error) {
	item := Item{ID: id}
	seen := make(map[string]bool)

	var (
		current   *Section
		inSection bool
	)
	finishSection := func() {
		if inSection && current != nil {
			item.Sections = append(item.Sections, *current)
		}
		current = nil
		inSection = false
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "---":
			finishSection()
		case strings.HasPrefix(line, "#"):
			finishSection()
			name := strings.TrimSpace(strings.TrimLeft(line, "#"))
			if name == "" {
				return Item{}, fmt.Errorf("%s:%d: empty section header", id, lineNo)
			}
			if seen[name] {
				return Item{}, fmt.Errorf("%s:%d: duplicate section %q", id, lineNo, name)
			}
			seen[name] = true
			current = &Section{ID: name}
			inSection = true
		default:
			if !inSection {
				return Item{}, fmt.Errorf("%s:%d: line outside a section", id, lineNo)
			}
			if current.LineCount >= lineCeiling {
				return Item{}, fmt.Errorf("%s:%d: section %q: %w (ceiling %d)",
					id, lineNo, current.ID, domain.ErrInvalidLineIndex, lineCeiling)
			}
			current.LineCount++
		}
	}
	if err := scanner.Err(); err != nil {
		return Item{}, fmt.Errorf("%s: %w", id, err)
	}
	finishSection()

	if len(item.Sections) == 0 {
		return Item{}, fmt.Errorf("%s: no sections", id)
	}
	return item, nil
}

// ParseFile parses the lyric sheet at path.
func ParseFile(path string, lineCeiling uint16) (Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return Item{}, err
	}
	defer f.Close()

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ParseSheet(id, f, lineCeiling)
}

// Load walks dir for .txt and .md lyric sheets and returns the parsed items
// sorted by ID. A sheet that fails to parse fails the whole load; a catalog
// with silently missing items would misreport completion.
func Load(dir string, lineCeiling uint16) ([]Item, error) {
	var items []Item
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext != ".txt" && ext != ".md" {
			return nil
		}
		item, err := ParseFile(path, lineCeiling)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// Find returns the item with the given ID from a loaded catalog.
func Find(items []Item, id string) (Item, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}
