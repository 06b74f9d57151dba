package models

// EmailRecord is the normalized email persisted by the store and pushed to clients.
// Date keeps the original header string.
type EmailRecord struct {
	ID      string   `json:"id" db:"id"`
	Body    string   `json:"body" db:"body"`
	Date    string   `json:"date" db:"date"`
	From    []string `json:"from" db:"-"`
	To      []string `json:"to" db:"-"`
	Subject string   `json:"subject" db:"subject"`
	Tags    []string `json:"tags" db:"-"`
}

// Normalize replaces nil slices so the record always serializes arrays
func (e *EmailRecord) Normalize() {
	if e.From == nil {
		e.From = []string{}
	}
	if e.To == nil {
		e.To = []string{}
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
}
