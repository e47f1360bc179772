// =============================================================================
// Guest Invoice Chunker - Shared Types
// =============================================================================
//
// This package contains the record types shared across the reconstruction
// engine, the output writers, the audit pass and the record store. Keeping
// them here avoids import cycles between:
//   - classifier
//   - reconstruct
//   - validation
//   - writer / store
//
// =============================================================================

package types

import (
	"math"
	"strings"
)

// =============================================================================
// FIELD NAMES
// =============================================================================

// Canonical field names. Format profiles bind their regex capture groups to
// these names and list them in required_fields.
const (
	FieldName      = "name"
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldGuestID   = "guest_id"
	FieldRoom      = "room"
	FieldCheckIn   = "check_in"
	FieldCheckOut  = "check_out"

	FieldDescription = "description"
	FieldTaxRate     = "tax_rate"
	FieldQuantity    = "quantity"
	FieldUnitPrice   = "unit_price"
	FieldLineTotal   = "line_total"
	FieldAmount      = "amount"

	// FieldTotalLine is not a text field. Listing it in required_fields makes
	// a record count as complete only after an explicit total line.
	FieldTotalLine = "total_line"
)

// IdentityFields lists the guest identity and stay fields in display order.
var IdentityFields = []string{
	FieldName,
	FieldFirstName,
	FieldLastName,
	FieldGuestID,
	FieldRoom,
	FieldCheckIn,
	FieldCheckOut,
}

// =============================================================================
// GUEST RECORD
// =============================================================================

// GuestRecord is one guest's stay plus the itemized services billed to it.
// A record may be assembled from fragments observed on consecutive pages.
type GuestRecord struct {
	// GuestName is the full guest name, for layouts that print it as one token.
	GuestName string `json:"guest_name,omitempty"`

	// FirstName, LastName and GuestID are used by layouts that print the
	// guest's name together with an external identifier.
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	GuestID   string `json:"guest_id,omitempty"`

	// RoomNumber, CheckInDate and CheckOutDate are kept exactly as extracted.
	RoomNumber   string `json:"room_number,omitempty"`
	CheckInDate  string `json:"check_in_date,omitempty"`
	CheckOutDate string `json:"check_out_date,omitempty"`

	// Services holds the service lines in document order.
	Services []ServiceLine `json:"services"`

	// TotalAmount is kept in full precision. Use RoundedTotal for display.
	TotalAmount float64 `json:"total_amount"`

	// PageStart and PageEnd are the first and last 1-based pages on which a
	// fragment of this record was observed.
	PageStart int `json:"page_start"`
	PageEnd   int `json:"page_end"`

	// IsComplete is set once an explicit total line has been consumed.
	IsComplete bool `json:"is_complete"`

	// IsSplit is set when an explicit continuation marker was seen.
	IsSplit bool `json:"is_split"`
}

// ServiceLine is a single itemized charge.
type ServiceLine struct {
	Description string  `json:"service"`
	TaxRate     string  `json:"tax_rate,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"total_price"`
}

// =============================================================================
// RECORD HELPERS
// =============================================================================

// Field returns the value of a canonical identity field, or "" when the
// field is unset or unknown.
func (r *GuestRecord) Field(name string) string {
	switch name {
	case FieldName:
		return r.GuestName
	case FieldFirstName:
		return r.FirstName
	case FieldLastName:
		return r.LastName
	case FieldGuestID:
		return r.GuestID
	case FieldRoom:
		return r.RoomNumber
	case FieldCheckIn:
		return r.CheckInDate
	case FieldCheckOut:
		return r.CheckOutDate
	}
	return ""
}

// HasIdentity reports whether any identity field is populated.
func (r *GuestRecord) HasIdentity() bool {
	for _, f := range IdentityFields {
		if r.Field(f) != "" {
			return true
		}
	}
	return false
}

// DisplayName returns the guest name used in logs and reports.
func (r *GuestRecord) DisplayName() string {
	if r.GuestName != "" {
		return r.GuestName
	}
	name := strings.TrimSpace(r.FirstName + " " + r.LastName)
	if name == "" {
		return r.GuestID
	}
	return name
}

// SpansPages reports whether the record was observed on more than one page.
func (r *GuestRecord) SpansPages() bool {
	return r.PageStart != r.PageEnd
}

// RoundedTotal returns the total rounded to two decimals for display.
func (r *GuestRecord) RoundedTotal() float64 {
	return Round2(r.TotalAmount)
}

// ServicesTotal sums the line totals of all service lines.
func (r *GuestRecord) ServicesTotal() float64 {
	var sum float64
	for _, s := range r.Services {
		sum += s.LineTotal
	}
	return sum
}

// ServiceNames returns the service descriptions in document order.
func (r *GuestRecord) ServiceNames() []string {
	names := make([]string, len(r.Services))
	for i, s := range r.Services {
		names[i] = s.Description
	}
	return names
}

// Clone returns a deep copy. Records cross page boundaries by value, so the
// page processor works on a clone and never mutates its caller's copy.
func (r *GuestRecord) Clone() *GuestRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Services != nil {
		c.Services = make([]ServiceLine, len(r.Services))
		copy(c.Services, r.Services)
	}
	return &c
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
