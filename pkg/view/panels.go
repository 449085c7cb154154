// Package view decides what an account is shown and turns operation outcomes
// into user notifications.
package view

import (
	"errors"
	"fmt"

	"github.com/evidence-registry/evreg/pkg/roles"
)

// Panel is a role-gated group of operations.
type Panel string

const (
	OwnerControls    Panel = "owner-controls"
	AddEvidence      Panel = "add-evidence"
	RetrieveEvidence Panel = "retrieve-evidence"
)

// Restricted texts shown when an account holds no role.
const (
	RestrictedTitle   = "Access Restricted"
	RestrictedMessage = "You don't have the required permissions to access this system. Please contact an administrator to request access."
)

// ErrPanelHidden is returned when an operation belongs to a panel the
// account is not shown.
var ErrPanelHidden = errors.New("operation not available for this account")

// Panels lists what an account sees.
type Panels struct {
	Role       string  `json:"role"`
	Visible    []Panel `json:"visible"`
	Restricted bool    `json:"restricted"`
	Title      string  `json:"title,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// PanelsFor returns the panels for r: owner controls for the owner, adding
// evidence for police, and retrieval for police and court officials.
func PanelsFor(r roles.Roles) Panels {
	p := Panels{Role: r.Classify().String(), Visible: []Panel{}}
	if r.Owner {
		p.Visible = append(p.Visible, OwnerControls)
	}
	if r.Police {
		p.Visible = append(p.Visible, AddEvidence)
	}
	if r.Police || r.CourtOfficial {
		p.Visible = append(p.Visible, RetrieveEvidence)
	}
	if !r.Any() {
		p.Restricted = true
		p.Title = RestrictedTitle
		p.Message = RestrictedMessage
	}
	return p
}

// Shows reports whether panel is visible.
func (p Panels) Shows(panel Panel) bool {
	for _, v := range p.Visible {
		if v == panel {
			return true
		}
	}
	return false
}

// Require returns ErrPanelHidden unless r shows panel.
func Require(r roles.Roles, panel Panel) error {
	if PanelsFor(r).Shows(panel) {
		return nil
	}
	return fmt.Errorf("%w: %s requires the %s panel", ErrPanelHidden, r.Classify(), panel)
}
