/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/showrunner/internal/models"
)

// ICalExport is a rendered calendar ready to be served as a download.
type ICalExport struct {
	Data        []byte
	Filename    string
	ContentType string
}

// ExportICal renders the scheduled items of an event as an iCalendar
// document, one VEVENT per item in play order. Items without a start time
// are skipped. stamp is written as DTSTAMP.
func ExportICal(ev *models.Event, items []models.ProgramItem, stamp time.Time) *ICalExport {
	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Showrunner//Program Export//EN\r\n")
	fmt.Fprintf(&buf, "X-WR-CALNAME:%s\r\n", escapeICalText(ev.Title))
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	for _, item := range SortByOrder(items) {
		if item.ScheduledStartTime.IsZero() {
			continue
		}
		buf.WriteString("BEGIN:VEVENT\r\n")
		fmt.Fprintf(&buf, "UID:%s@showrunner\r\n", item.ID)
		fmt.Fprintf(&buf, "DTSTAMP:%s\r\n", formatICalTime(stamp))
		fmt.Fprintf(&buf, "DTSTART:%s\r\n", formatICalTime(item.ScheduledStartTime))
		fmt.Fprintf(&buf, "DTEND:%s\r\n", formatICalTime(item.EndTime()))
		fmt.Fprintf(&buf, "SUMMARY:%s\r\n", escapeICalText(item.Name))
		if len(item.Participants) > 0 {
			fmt.Fprintf(&buf, "DESCRIPTION:%s\r\n", escapeICalText(strings.Join(item.Participants, "\n")))
		}
		if item.Category != "" {
			fmt.Fprintf(&buf, "CATEGORIES:%s\r\n", escapeICalText(item.Category))
		}
		fmt.Fprintf(&buf, "X-SHOWRUNNER-DAY:%d\r\n", item.Day)
		fmt.Fprintf(&buf, "X-SHOWRUNNER-STATUS:%s\r\n", item.Status)
		buf.WriteString("END:VEVENT\r\n")
	}

	buf.WriteString("END:VCALENDAR\r\n")

	name := slugify(ev.Title)
	if name == "" {
		name = "event"
	}
	return &ICalExport{
		Data:        buf.Bytes(),
		Filename:    fmt.Sprintf("%s-program-%s.ics", name, ev.StartTime.Format("2006-01-02")),
		ContentType: "text/calendar; charset=utf-8",
	}
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
