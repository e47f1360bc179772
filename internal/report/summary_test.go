package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/types"
)

func TestSummarize(t *testing.T) {
	records := []types.GuestRecord{
		{GuestName: "Anna", RoomNumber: "101", Services: make([]types.ServiceLine, 2), TotalAmount: 100.004, PageStart: 1, PageEnd: 1, IsComplete: true},
		{GuestName: "Bert", RoomNumber: "102", Services: make([]types.ServiceLine, 3), TotalAmount: 50.004, PageStart: 1, PageEnd: 2, IsComplete: true},
		{FirstName: "Cara", LastName: "Vogel", Services: make([]types.ServiceLine, 1), TotalAmount: 0.004, PageStart: 3, PageEnd: 3},
		{GuestName: "Dirk", Services: make([]types.ServiceLine, 2), TotalAmount: 10, PageStart: 3, PageEnd: 3, IsComplete: true},
	}

	s := Summarize(records)

	assert.Equal(t, 4, s.TotalGuests)
	assert.Equal(t, 3, s.CompleteGuests)
	assert.Equal(t, 1, s.CrossPageGuests)
	assert.Equal(t, 8, s.TotalServices)
	assert.Equal(t, 2.0, s.AvgServicesPerGuest)
	assert.Equal(t, 160.01, s.TotalRevenue)
	assert.Equal(t, "25.0%", s.CrossPageRate)

	require.Len(t, s.CrossPageDetails, 1)
	d := s.CrossPageDetails[0]
	assert.Equal(t, "Bert", d.GuestName)
	assert.Equal(t, 1, d.PageStart)
	assert.Equal(t, 2, d.PageEnd)
	assert.Equal(t, 50.0, d.TotalAmount)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.TotalGuests)
	assert.Equal(t, "0.0%", s.CrossPageRate)
	assert.NotNil(t, s.CrossPageDetails)
}

func TestRate(t *testing.T) {
	assert.Equal(t, "12.5%", Rate(1, 8))
	assert.Equal(t, "100.0%", Rate(3, 3))
}
