/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"errors"
	"fmt"

	"github.com/friendsincode/showrunner/internal/models"
)

// ErrOrderMismatch is returned when a requested order does not name every
// item exactly once.
var ErrOrderMismatch = errors.New("order must list every program exactly once")

// Reorder assigns order indexes by position in orderedIDs.
func Reorder(items []models.ProgramItem, orderedIDs []string) ([]models.ProgramItem, error) {
	if len(orderedIDs) != len(items) {
		return nil, fmt.Errorf("%w: got %d ids for %d programs", ErrOrderMismatch, len(orderedIDs), len(items))
	}
	byID := make(map[string]int, len(items))
	for i := range items {
		byID[items[i].ID] = i
	}

	out := make([]models.ProgramItem, 0, len(items))
	seen := make(map[string]bool, len(orderedIDs))
	for pos, id := range orderedIDs {
		idx, ok := byID[id]
		if !ok || seen[id] {
			return nil, fmt.Errorf("%w: %q", ErrOrderMismatch, id)
		}
		seen[id] = true
		item := items[idx]
		item.OrderIndex = pos
		out = append(out, item)
	}
	return out, nil
}

// Move relocates the item at play position from to position to, the way a
// drag and drop in the running order does.
func Move(items []models.ProgramItem, from, to int) ([]models.ProgramItem, error) {
	sorted := SortByOrder(items)
	if from < 0 || from >= len(sorted) || to < 0 || to >= len(sorted) {
		return nil, fmt.Errorf("%w: move %d -> %d of %d", ErrOrderMismatch, from, to, len(sorted))
	}

	moved := sorted[from]
	sorted = append(sorted[:from], sorted[from+1:]...)
	sorted = append(sorted[:to], append([]models.ProgramItem{moved}, sorted[to:]...)...)
	for i := range sorted {
		sorted[i].OrderIndex = i
	}
	return sorted, nil
}
