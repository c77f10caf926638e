// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package render

import (
	"sort"
	"strings"

	"github.com/juju/collections/set"
)

// Contribution is the configuration one backend contributor supplies,
// keyed by target artifact path.
type Contribution struct {
	// Name is the contributor (backend) name. It also orders the merge.
	Name string

	// Complete is false while the contributor is still assembling its
	// configuration. Incomplete contributions are never rendered.
	Complete bool

	// Files maps an artifact path to the chunk of text for that file.
	Files map[string]string
}

// sortedComplete returns the complete contributions ordered by name.
func sortedComplete(contribs []Contribution) []Contribution {
	out := make([]Contribution, 0, len(contribs))
	for _, c := range contribs {
		if c.Complete {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// LinesFor returns the lines the contributors want in file. Each
// contributor's chunk is followed by one blank line; contributors are taken
// in name order and incomplete contributors are skipped entirely.
func LinesFor(contribs []Contribution, file string) []string {
	var lines []string
	for _, c := range sortedComplete(contribs) {
		chunk, ok := c.Files[file]
		if !ok {
			continue
		}
		lines = append(lines, strings.Split(strings.TrimRight(chunk, "\n"), "\n")...)
		lines = append(lines, "")
	}
	return lines
}

// Names returns the sorted names of the complete contributions.
func Names(contribs []Contribution) []string {
	var names []string
	for _, c := range sortedComplete(contribs) {
		names = append(names, c.Name)
	}
	return names
}

// FilesOf returns the sorted set of artifact paths that complete
// contributions target.
func FilesOf(contribs []Contribution) []string {
	files := set.NewStrings()
	for _, c := range sortedComplete(contribs) {
		for f := range c.Files {
			files.Add(f)
		}
	}
	return files.SortedValues()
}
