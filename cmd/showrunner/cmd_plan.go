/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/showrunner/internal/models"
	"github.com/friendsincode/showrunner/internal/program"
	"github.com/friendsincode/showrunner/internal/schedule"
	"github.com/friendsincode/showrunner/internal/timewindow"
)

// planFile is the offline description of an event read by the plan command.
type planFile struct {
	Title        string        `yaml:"title"`
	Start        time.Time     `yaml:"start"`
	End          time.Time     `yaml:"end"`
	BreakStart   *time.Time    `yaml:"break_start"`
	BreakMinutes *int          `yaml:"break_minutes"`
	MaxDays      int           `yaml:"max_days"`
	Programs     []planProgram `yaml:"programs"`
}

type planProgram struct {
	Name            string   `yaml:"name"`
	Participants    []string `yaml:"participants"`
	DurationMinutes int      `yaml:"duration_minutes"`
	Day             int      `yaml:"day"`
	Category        string   `yaml:"category"`
}

func newPlanCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "plan <file.yaml>",
		Short: "Compute a schedule offline and print it",
		Long: `Read an event and its programs from a YAML file, run the schedule
calculator and print the running order. Nothing is written to the database.

Example file:

  title: Spring Fest
  start: 2026-03-06T10:00:00Z
  end: 2026-03-06T18:00:00Z
  break_start: 2026-03-06T13:00:00Z
  break_minutes: 30
  programs:
    - name: Opening
      participants: [Ann, Bo]
      duration_minutes: 10
    - name: Finale
      participants: [Choir]
      duration_minutes: 20
      day: 2
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			plan, err := loadPlan(f)
			if err != nil {
				return err
			}
			ev, items, err := plan.build()
			if err != nil {
				return err
			}
			scheduled, err := schedule.Calculate(items, ev.Window())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(scheduled)
			}
			renderPlan(cmd.OutOrStdout(), ev, scheduled)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the scheduled items as JSON")
	return cmd
}

func loadPlan(r io.Reader) (*planFile, error) {
	var plan planFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return &plan, nil
}

// build applies the same defaults the organizer service uses when events and
// programs are created through the API.
func (p *planFile) build() (*models.Event, []models.ProgramItem, error) {
	if strings.TrimSpace(p.Title) == "" {
		return nil, nil, program.ErrEmptyTitle
	}
	ev := &models.Event{
		ID:                   "plan",
		Title:                p.Title,
		StartTime:            p.Start,
		EndTime:              p.End,
		BreakStartTime:       p.BreakStart,
		BreakDurationMinutes: program.DefaultBreakDurationMinutes,
		MaxDays:              p.MaxDays,
	}
	if p.BreakMinutes != nil {
		ev.BreakDurationMinutes = *p.BreakMinutes
	}
	if ev.MaxDays == 0 {
		ev.MaxDays = timewindow.MaxDays
	}
	w := ev.Window()
	if err := w.Validate(); err != nil {
		return nil, nil, err
	}

	items := make([]models.ProgramItem, 0, len(p.Programs))
	for i, pp := range p.Programs {
		item := models.ProgramItem{
			ID:              fmt.Sprintf("p%d", i+1),
			EventID:         ev.ID,
			Name:            strings.TrimSpace(pp.Name),
			Participants:    schedule.Participants(pp.Participants),
			DurationMinutes: pp.DurationMinutes,
			Day:             pp.Day,
			OrderIndex:      i,
			Status:          models.ProgramPending,
			Category:        pp.Category,
		}
		if item.DurationMinutes == 0 {
			item.DurationMinutes = program.DefaultDurationMinutes
		}
		if item.Day == 0 {
			item.Day = 1
		}
		item.Day = w.ClampDay(item.Day)
		if err := schedule.ValidateItem(&item); err != nil {
			return nil, nil, fmt.Errorf("program %d: %w", i+1, err)
		}
		items = append(items, item)
	}
	return ev, items, nil
}

func renderPlan(out io.Writer, ev *models.Event, items []models.ProgramItem) {
	w := ev.Window()

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetTitle(ev.Title)
	tw.AppendHeader(table.Row{"#", "Day", "Start", "End", "Program", "Participants", "Min", "Note"})

	total := 0
	for _, item := range items {
		note := ""
		if _, closes := w.Day(item.Day); item.EndTime().After(closes) {
			note = "overrun"
		}
		total += item.DurationMinutes
		tw.AppendRow(table.Row{
			item.OrderIndex + 1,
			item.Day,
			item.ScheduledStartTime.Format("15:04"),
			item.EndTime().Format("15:04"),
			item.Name,
			strings.Join(item.Participants, ", "),
			item.DurationMinutes,
			note,
		})
	}
	tw.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d programs", len(items)), "", total, ""})
	tw.Render()
}
