// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package eventsource

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
	"gopkg.in/yaml.v2"

	"github.com/openstack-charmers/charm-manila/core/facts"
)

// spoolSuffix marks complete event files. Anything else in the spool
// directory is ignored, including the temporary files written by Enqueue.
const spoolSuffix = ".yaml"

// Enqueue writes event to the spool directory for the watch worker to pick
// up. Events are processed in the order of their timestamps.
func Enqueue(dir string, event facts.Event, now time.Time) (string, error) {
	if err := event.Validate(); err != nil {
		return "", errors.Trace(err)
	}
	data, err := yaml.Marshal(event)
	if err != nil {
		return "", errors.Trace(err)
	}
	name := fmt.Sprintf("%020d-%s%s", now.UnixNano(), event.HookName(), spoolSuffix)
	path := filepath.Join(dir, name)
	if err := utils.AtomicWriteFile(path, data, 0600); err != nil {
		return "", errors.Annotatef(err, "spooling %s", event.HookName())
	}
	return path, nil
}

// spooled returns the event files in dir, oldest first.
func spooled(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), spoolSuffix) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// readEvent parses a spooled event.
func readEvent(path string) (facts.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return facts.Event{}, errors.Trace(err)
	}
	var event facts.Event
	if err := yaml.Unmarshal(data, &event); err != nil {
		return facts.Event{}, errors.Annotatef(err, "parsing %s", filepath.Base(path))
	}
	if err := event.Validate(); err != nil {
		return facts.Event{}, errors.Annotatef(err, "parsing %s", filepath.Base(path))
	}
	return event, nil
}
