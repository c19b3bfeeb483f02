package destination

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dockyard/src/layout"
)

// Entry is one backup artifact discovered under a directory root.
type Entry struct {
	Type      string // volume|bind|container
	Name      string // volume name, sanitized bind path, or container name
	Timestamp string
	Path      string // absolute filesystem path
}

// ListEntries walks a directory destination root and returns every archive
// and descriptor, sorted by type, name, then timestamp.
func ListEntries(root string) ([]Entry, error) {
	var entries []Entry
	for _, section := range []struct {
		dir    string
		typ    string
		suffix string
	}{
		{layout.VolumesDir, "volume", layout.ArchiveSuffix},
		{layout.BindsDir, "bind", layout.ArchiveSuffix},
		{layout.ContainersDir, "container", layout.DescriptorSuffix},
	} {
		base := filepath.Join(root, section.dir)
		names, err := readDirNames(base)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, name := range names {
			files, err := readFileNames(filepath.Join(base, name), section.suffix)
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				entries = append(entries, Entry{
					Type:      section.typ,
					Name:      name,
					Timestamp: strings.TrimSuffix(f, section.suffix),
					Path:      filepath.Join(base, name, f),
				})
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Timestamp < b.Timestamp
	})
	return entries, nil
}

func readDirNames(path string) ([]string, error) {
	ents, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func readFileNames(path, suffix string) ([]string, error) {
	ents, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
