// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package render

import (
	"bytes"
	"os"
	"text/template"

	"github.com/juju/errors"
)

// Format describes how rendered content is checked before it is written.
type Format int

const (
	// Plain content is written as rendered.
	Plain Format = iota

	// INI content must parse as an ini document.
	INI
)

// DefaultPerm is used for artifacts that don't set Perm.
const DefaultPerm os.FileMode = 0640

// RenderFunc produces the full content of an artifact.
type RenderFunc func() (string, error)

// Artifact is a configuration file on the unit.
type Artifact struct {
	// Path is the absolute path of the file.
	Path string

	// Requires lists the facts that must all be present before the
	// artifact is rendered.
	Requires []string

	// Services are restarted when the content of the file changes.
	Services []string

	Format Format
	Perm   os.FileMode
	Render RenderFunc
}

// Validate checks that the artifact can be rendered.
func (a Artifact) Validate() error {
	if a.Path == "" {
		return errors.NotValidf("artifact without path")
	}
	if a.Render == nil {
		return errors.NotValidf("artifact %q without render function", a.Path)
	}
	return nil
}

func (a Artifact) perm() os.FileMode {
	if a.Perm == 0 {
		return DefaultPerm
	}
	return a.Perm
}

// Template returns a RenderFunc that executes t with data. Data is read
// when the artifact is rendered, not when the RenderFunc is made.
func Template(t *template.Template, data func() (interface{}, error)) RenderFunc {
	return func() (string, error) {
		d, err := data()
		if err != nil {
			return "", errors.Trace(err)
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, d); err != nil {
			return "", errors.Annotatef(err, "executing template %q", t.Name())
		}
		return buf.String(), nil
	}
}
