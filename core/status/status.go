// Copyright 2016 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package status

import (
	"context"
	"fmt"
	"time"
)

// Status represents the workload status of the manila unit as it is
// reported to the orchestrator.
type Status string

// String returns a string representation of the Status.
func (s Status) String() string {
	return string(s)
}

// StatusInfo holds a Status and associated information.
type StatusInfo struct {
	Status  Status
	Message string
	Since   *time.Time
}

// String returns "<status>: <message>" or just the status when no message
// is set.
func (s StatusInfo) String() string {
	if s.Message == "" {
		return s.Status.String()
	}
	return fmt.Sprintf("%s: %s", s.Status, s.Message)
}

// StatusSetter represents a type whose status can be set.
type StatusSetter interface {
	SetStatus(context.Context, StatusInfo) error
}

const (
	// Unset is the zero value. A check that returns Unset has no opinion
	// about the unit.
	Unset Status = ""

	// Maintenance is set when:
	// The unit is not yet providing services, but is actively doing stuff
	// in preparation for providing those services.
	// This is a "spinning" state, not an error state.
	// It reflects activity on the unit itself, not on peers or related units.
	Maintenance Status = "maintenance"

	// Waiting is set when:
	// The unit is unable to progress to an active state because an application to
	// which it is related is not running.
	Waiting Status = "waiting"

	// Blocked is set when:
	// The unit needs manual intervention to get back to the Running state.
	Blocked Status = "blocked"

	// Active is set when:
	// The unit believes it is correctly offering all the services it has
	// been asked to offer.
	Active Status = "active"

	// Unknown is set when:
	// The unit has been installed but no convergence tick has computed a
	// status yet.
	Unknown Status = "unknown"
)

const (
	MessageUnitReady  = "Unit is ready"
	MessageUnitPaused = "Paused. Use 'resume' action to resume normal service."
)

// ValidWorkloadStatus returns true if status has a valid value (that is to say,
// a value that it's OK to set) for the unit.
func ValidWorkloadStatus(status Status) bool {
	switch status {
	case
		Blocked,
		Maintenance,
		Waiting,
		Active,
		Unknown:
		return true
	default:
		return false
	}
}
