package conversation

import "github.com/voxmail/voxmail/pkg/intent"

// Draft field names, in the order they are collected.
const (
	FieldRecipient = "recipient"
	FieldSubject   = "subject"
	FieldBody      = "body"
)

// Draft is an email under construction across turns. CC, BCC, and
// attachments ride along in the session snapshot but are not collected
// by voice, so slot filling only asks for the three voice fields.
type Draft struct {
	Recipient   string   `json:"recipient,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Body        string   `json:"body,omitempty"`
	CC          []string `json:"cc,omitempty"`
	BCC         []string `json:"bcc,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// Merge folds extracted entities into the draft. Non-empty entity values
// overwrite; empty ones never clear a field already collected.
func (d *Draft) Merge(e *intent.SendEntities) {
	if e == nil {
		return
	}
	if e.Recipient != "" {
		d.Recipient = e.Recipient
	}
	if e.Subject != "" {
		d.Subject = e.Subject
	}
	if e.Body != "" {
		d.Body = e.Body
	}
}

// Missing lists the still-empty fields in collection order.
func (d *Draft) Missing() []string {
	var missing []string
	if d.Recipient == "" {
		missing = append(missing, FieldRecipient)
	}
	if d.Subject == "" {
		missing = append(missing, FieldSubject)
	}
	if d.Body == "" {
		missing = append(missing, FieldBody)
	}
	return missing
}

// Complete reports whether every field has been collected.
func (d *Draft) Complete() bool {
	return d.Recipient != "" && d.Subject != "" && d.Body != ""
}
