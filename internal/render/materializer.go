// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package render

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/utils/v4"
	"gopkg.in/ini.v1"
)

var logger = loggo.GetLogger("manila.render")

// FactReader reports whether a fact is present.
type FactReader interface {
	IsSet(flag string) bool
}

// Result describes what a call to Materialize did.
type Result struct {
	// Changed holds the paths that were written, in artifact order.
	Changed []string

	// Skipped holds the paths of artifacts whose required facts were
	// not all present.
	Skipped []string

	// Restart is the sorted set of services whose configuration changed.
	Restart []string

	// Digests maps the path of every rendered artifact to the sha256 of
	// its content.
	Digests map[string]string

	services map[string][]string
}

// RestartSince returns the sorted services of every rendered artifact
// whose digest differs from the one recorded in applied. Unlike Restart it
// does not depend on what was on disk before this call, so a restart that
// was written but never carried out is still reported.
func (r Result) RestartSince(applied map[string]string) []string {
	restart := set.NewStrings()
	for path, digest := range r.Digests {
		if applied[path] != digest {
			restart = restart.Union(set.NewStrings(r.services[path]...))
		}
	}
	return restart.SortedValues()
}

// Materializer renders artifacts and writes the ones whose content
// changed.
type Materializer struct {
	root string
}

// NewMaterializer returns a Materializer that writes artifact paths
// relative to root. An empty root writes to the real paths.
func NewMaterializer(root string) *Materializer {
	return &Materializer{root: root}
}

// Path returns where the artifact at path is written.
func (m *Materializer) Path(path string) string {
	if m.root == "" {
		return path
	}
	return filepath.Join(m.root, path)
}

// Render returns the content of the artifact. The boolean result is false
// when a required fact is absent, in which case nothing is rendered.
func (m *Materializer) Render(a Artifact, facts FactReader) (string, bool, error) {
	if err := a.Validate(); err != nil {
		return "", false, errors.Trace(err)
	}
	for _, flag := range a.Requires {
		if !facts.IsSet(flag) {
			logger.Debugf("not rendering %s: %q not set", a.Path, flag)
			return "", false, nil
		}
	}
	content, err := a.Render()
	if err != nil {
		return "", false, errors.Annotatef(err, "rendering %s", a.Path)
	}
	if a.Format == INI {
		if _, err := ini.Load([]byte(content)); err != nil {
			return "", false, errors.Annotatef(err, "rendered %s is not valid ini", a.Path)
		}
	}
	return content, true, nil
}

// Materialize renders every artifact and then writes the ones whose
// content differs from what is on disk. If any artifact fails to render,
// nothing is written.
func (m *Materializer) Materialize(artifacts []Artifact, facts FactReader) (Result, error) {
	type rendered struct {
		artifact Artifact
		content  []byte
	}
	var (
		result = Result{
			Digests:  make(map[string]string),
			services: make(map[string][]string),
		}
		pending []rendered
	)
	for _, a := range artifacts {
		content, ok, err := m.Render(a, facts)
		if err != nil {
			return Result{}, errors.Trace(err)
		}
		if !ok {
			result.Skipped = append(result.Skipped, a.Path)
			continue
		}
		pending = append(pending, rendered{artifact: a, content: []byte(content)})
		sum := sha256.Sum256([]byte(content))
		result.Digests[a.Path] = hex.EncodeToString(sum[:])
		result.services[a.Path] = a.Services
	}

	restart := set.NewStrings()
	for _, r := range pending {
		changed, err := m.write(r.artifact, r.content)
		if err != nil {
			return result, errors.Trace(err)
		}
		if !changed {
			continue
		}
		result.Changed = append(result.Changed, r.artifact.Path)
		restart = restart.Union(set.NewStrings(r.artifact.Services...))
	}
	result.Restart = restart.SortedValues()
	return result, nil
}

// write writes content unless the file already holds it.
func (m *Materializer) write(a Artifact, content []byte) (bool, error) {
	path := m.Path(a.Path)
	existing, err := os.ReadFile(path)
	switch {
	case err == nil && bytes.Equal(existing, content):
		logger.Tracef("%s unchanged", a.Path)
		return false, nil
	case err != nil && !os.IsNotExist(err):
		return false, errors.Annotatef(err, "reading %s", a.Path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, errors.Annotatef(err, "creating directory for %s", a.Path)
	}
	if err := utils.AtomicWriteFile(path, content, a.perm()); err != nil {
		return false, errors.Annotatef(err, "writing %s", a.Path)
	}
	logger.Infof("wrote %s", a.Path)
	return true, nil
}
