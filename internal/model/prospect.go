package model

// Prospect is one recipient derived from a valid sheet row.
type Prospect struct {
	// Email is the trimmed address from the detected email column.
	Email string

	// Fields maps each selected column name to the row's trimmed cell
	// value. Cells missing from a short row map to "".
	Fields map[string]string
}

// Field returns the value for column, or "" when it is absent.
func (p Prospect) Field(column string) string {
	return p.Fields[column]
}

// SendOutcome is the result of one delivery attempt.
type SendOutcome struct {
	Recipient string
	Sent      bool
	Reason    string
}

// SendReport summarizes a completed send pass.
type SendReport struct {
	// EmailColumn is the header the recipient addresses were read from.
	EmailColumn string

	// Attempted is the number of prospects a send was attempted for.
	Attempted int

	// Sent is the number of successful deliveries.
	Sent int

	// Skipped counts data rows rejected by per-row validation.
	Skipped int

	// Failures lists every recipient whose send failed, in row order.
	Failures []SendOutcome
}
