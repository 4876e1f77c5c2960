/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/friendsincode/showrunner/internal/models"
)

// Item validation errors.
var (
	ErrInvalidDuration = errors.New("duration must be a positive number of minutes")
	ErrEmptyName       = errors.New("program name is required")
	ErrNoParticipants  = errors.New("at least one participant is required")
)

// ValidateItem checks the fields the calculator depends on.
func ValidateItem(item *models.ProgramItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return ErrEmptyName
	}
	if len(Participants(item.Participants)) == 0 {
		return ErrNoParticipants
	}
	if item.DurationMinutes <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidDuration, item.DurationMinutes)
	}
	return nil
}

// Participants trims names and drops blanks.
func Participants(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
