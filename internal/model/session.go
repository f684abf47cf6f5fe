package model

import (
	"fmt"
	"time"
)

// State is a step of the campaign conversation.
type State int

const (
	StateStart State = iota
	StateSheetSelection
	StateColumnSelection
	StatePrompting
	StateImageChoice
	StateFeedback
	StateSending
	StateEnd
)

var stateNames = map[State]string{
	StateStart:           "start",
	StateSheetSelection:  "sheet_selection",
	StateColumnSelection: "column_selection",
	StatePrompting:       "prompting",
	StateImageChoice:     "image_choice",
	StateFeedback:        "feedback",
	StateSending:         "sending",
	StateEnd:             "end",
}

// String returns the stable identifier used in logs and storage.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for st, name := range stateNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown conversation state %q", text)
}

// DraftSession is the campaign state of one conversation. Values are
// treated as immutable: every With* method returns an updated copy, and the
// controller replaces the stored session wholesale after each transition.
type DraftSession struct {
	ID        string          `json:"id"`
	State     State           `json:"state"`
	Context   string          `json:"context"`
	Sheets    []string        `json:"sheets,omitempty"`
	SheetName string          `json:"sheet_name,omitempty"`
	Headers   []string        `json:"headers,omitempty"`
	Columns   ColumnSelection `json:"columns"`
	Prompt    string          `json:"prompt"`
	Feedback  []string        `json:"feedback,omitempty"`
	ImageURL  string          `json:"image_url,omitempty"`
	DraftHTML string          `json:"draft_html,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewDraftSession returns an empty session in StateStart.
func NewDraftSession(id string, now time.Time) DraftSession {
	return DraftSession{
		ID:        id,
		State:     StateStart,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// clone copies the slice fields so the returned value shares no backing
// arrays with s.
func (s DraftSession) clone() DraftSession {
	s.Sheets = append([]string(nil), s.Sheets...)
	s.Headers = append([]string(nil), s.Headers...)
	s.Feedback = append([]string(nil), s.Feedback...)
	return s
}

// WithState moves the session to st.
func (s DraftSession) WithState(st State) DraftSession {
	n := s.clone()
	n.State = st
	return n
}

// WithContext stores the campaign context text.
func (s DraftSession) WithContext(text string) DraftSession {
	n := s.clone()
	n.Context = text
	return n
}

// WithSheets stores the spreadsheet's tab listing.
func (s DraftSession) WithSheets(names []string) DraftSession {
	n := s.clone()
	n.Sheets = append([]string(nil), names...)
	return n
}

// WithSheet selects a sheet and its header row. Any previous column
// selection is cleared since it referred to other headers.
func (s DraftSession) WithSheet(name string, headers []string) DraftSession {
	n := s.clone()
	n.SheetName = name
	n.Headers = append([]string(nil), headers...)
	n.Columns = ColumnSelection{}
	return n
}

// WithColumns replaces the column selection.
func (s DraftSession) WithColumns(cols ColumnSelection) DraftSession {
	n := s.clone()
	n.Columns = cols
	return n
}

// WithPrompt stores the original campaign prompt and clears feedback.
func (s DraftSession) WithPrompt(prompt string) DraftSession {
	n := s.clone()
	n.Prompt = prompt
	n.Feedback = nil
	return n
}

// WithFeedback appends one feedback message to the history.
func (s DraftSession) WithFeedback(feedback string) DraftSession {
	n := s.clone()
	n.Feedback = append(n.Feedback, feedback)
	return n
}

// WithImage stores the header image URL; empty means no image.
func (s DraftSession) WithImage(url string) DraftSession {
	n := s.clone()
	n.ImageURL = url
	return n
}

// WithDraft stores the generated HTML draft.
func (s DraftSession) WithDraft(html string) DraftSession {
	n := s.clone()
	n.DraftHTML = html
	return n
}

// Touch stamps the update time.
func (s DraftSession) Touch(now time.Time) DraftSession {
	n := s.clone()
	n.UpdatedAt = now
	return n
}

// CumulativePrompt returns the original prompt followed by every feedback
// message in the order it was given.
func (s DraftSession) CumulativePrompt() string {
	out := s.Prompt
	for _, f := range s.Feedback {
		out += "\n\nFeedback: " + f
	}
	return out
}

// HasSheet reports whether name appears in the sheet listing.
func (s DraftSession) HasSheet(name string) bool {
	for _, n := range s.Sheets {
		if n == name {
			return true
		}
	}
	return false
}

// HasHeader reports whether name is one of the selected sheet's headers.
func (s DraftSession) HasHeader(name string) bool {
	for _, h := range s.Headers {
		if h == name {
			return true
		}
	}
	return false
}
