// Package report derives summary statistics from reconstructed records.
// Nothing here feeds back into reconstruction.
package report

import (
	"fmt"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/types"
)

// Summary describes one reconstructed document.
type Summary struct {
	TotalGuests         int               `json:"total_guests"`
	CompleteGuests      int               `json:"complete_guests"`
	CrossPageGuests     int               `json:"cross_page_guests"`
	TotalRevenue        float64           `json:"total_revenue"`
	TotalServices       int               `json:"total_services"`
	AvgServicesPerGuest float64           `json:"avg_services_per_guest"`
	CrossPageRate       string            `json:"cross_page_rate"`
	CrossPageDetails    []CrossPageDetail `json:"cross_page_details"`
}

// CrossPageDetail lists one record that spans a page boundary.
type CrossPageDetail struct {
	GuestName   string  `json:"guest_name"`
	RoomNumber  string  `json:"room_number"`
	PageStart   int     `json:"page_start"`
	PageEnd     int     `json:"page_end"`
	TotalAmount float64 `json:"total_amount"`
}

// Summarize computes the summary for records. Revenue is summed at full
// precision and rounded once.
func Summarize(records []types.GuestRecord) Summary {
	s := Summary{
		TotalGuests:      len(records),
		CrossPageDetails: []CrossPageDetail{},
	}

	var revenue float64
	for i := range records {
		r := &records[i]
		revenue += r.TotalAmount
		s.TotalServices += len(r.Services)
		if r.IsComplete {
			s.CompleteGuests++
		}
		if r.SpansPages() {
			s.CrossPageGuests++
			s.CrossPageDetails = append(s.CrossPageDetails, CrossPageDetail{
				GuestName:   r.DisplayName(),
				RoomNumber:  r.RoomNumber,
				PageStart:   r.PageStart,
				PageEnd:     r.PageEnd,
				TotalAmount: r.RoundedTotal(),
			})
		}
	}

	s.TotalRevenue = types.Round2(revenue)
	if s.TotalGuests > 0 {
		s.AvgServicesPerGuest = types.Round2(float64(s.TotalServices) / float64(s.TotalGuests))
	}
	s.CrossPageRate = Rate(s.CrossPageGuests, s.TotalGuests)
	return s
}

// Rate formats part/total as a percentage with one decimal, "0.0%" when
// total is zero.
func Rate(part, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)/float64(total)*100)
}
