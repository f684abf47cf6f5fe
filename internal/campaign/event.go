package campaign

import (
	"fmt"
	"strings"
)

// EventKind identifies what the operator did.
type EventKind int

const (
	EventStart EventKind = iota
	EventDebug
	EventText
	EventSheetChosen
	EventColumnToggled
	EventDoneColumns
	EventApprove
	EventRefine
)

var eventNames = map[EventKind]string{
	EventStart:         "start",
	EventDebug:         "debug",
	EventText:          "text",
	EventSheetChosen:   "sheet",
	EventColumnToggled: "column",
	EventDoneColumns:   "done_columns",
	EventApprove:       "approve",
	EventRefine:        "refine",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one inbound operator action. Payload carries the message text,
// sheet name or column name for the kinds that have one.
type Event struct {
	Kind    EventKind
	Payload string
}

// Selection data prefixes and literals carried by buttons.
const (
	sheetPrefix     = "sheet|"
	columnPrefix    = "col|"
	doneColumnsData = "done_cols"
	approveData     = "approve"
	refineData      = "refine"
)

// SheetData returns the button data that selects sheet.
func SheetData(sheet string) string { return sheetPrefix + sheet }

// ColumnData returns the button data that toggles column.
func ColumnData(column string) string { return columnPrefix + column }

// ParseSelection decodes button data into an Event.
func ParseSelection(data string) (Event, error) {
	switch {
	case strings.HasPrefix(data, sheetPrefix):
		return Event{Kind: EventSheetChosen, Payload: strings.TrimPrefix(data, sheetPrefix)}, nil
	case strings.HasPrefix(data, columnPrefix):
		return Event{Kind: EventColumnToggled, Payload: strings.TrimPrefix(data, columnPrefix)}, nil
	case data == doneColumnsData:
		return Event{Kind: EventDoneColumns}, nil
	case data == approveData:
		return Event{Kind: EventApprove}, nil
	case data == refineData:
		return Event{Kind: EventRefine}, nil
	default:
		return Event{}, fmt.Errorf("unknown selection %q", data)
	}
}

// ParseMessage decodes a typed message. "/start" and "/debug" (alias
// "/status") are commands; anything else is free text.
func ParseMessage(text string) Event {
	trimmed := strings.TrimSpace(text)
	cmd, _, _ := strings.Cut(trimmed, " ")
	switch strings.ToLower(cmd) {
	case "/start":
		return Event{Kind: EventStart}
	case "/debug", "/status":
		return Event{Kind: EventDebug}
	}
	return Event{Kind: EventText, Payload: trimmed}
}
