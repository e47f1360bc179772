package reconstruct

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/classifier"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/config"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/pagesource"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/types"
)

func newEngine(t *testing.T, format string) *Engine {
	t.Helper()
	formats, err := config.BuiltinFormats()
	require.NoError(t, err)
	f, err := classifier.Compile(formats[format])
	require.NoError(t, err)
	return New(f, nil)
}

func page(lines ...string) string {
	return strings.Join(lines, "\n")
}

func diagKinds(ds []Diagnostic) []DiagnosticKind {
	kinds := make([]DiagnosticKind, len(ds))
	for i, d := range ds {
		kinds[i] = d.Kind
	}
	return kinds
}

const (
	annaHeader = "Guest: Anna Weber, Room: 101, Stay: 1.3.2024 to 3.3.2024"
	bertHeader = "Guest: Bert Meier, Room: 102, Stay: 2.3.2024 to 5.3.2024"
	caraHeader = "Guest: Cara Vogel, Room: 103, Stay: 4.3.2024 to 6.3.2024"
	services   = "Services and Charges:"
	tableHead  = "Service Description   Tax Rate   Qty   Unit Price   Total Price"

	emmaHeader = "Guest: Emma Brown (ID: G0001)"
	emmaStay   = "Room: 312 | Check-in: 2024-03-01 | Check-out: 2024-03-04"
	idTable    = "Service   Qty   Unit Price   Total"
)

// =============================================================================
// SCENARIOS
// =============================================================================

func TestReconstruct_HeaderAtPageEnd(t *testing.T) {
	e := newEngine(t, "stay_line")

	res := e.Reconstruct([]string{
		page("Grand Plaza Hotel Invoice", annaHeader),
		page(services, tableHead, "Room Night 7% 2 €80.00 €160.00", "TOTAL €160.00"),
	})

	require.Len(t, res.Records, 1)
	r := res.Records[0]
	assert.Equal(t, "Anna Weber", r.GuestName)
	assert.Equal(t, 1, r.PageStart)
	assert.Equal(t, 2, r.PageEnd)
	assert.True(t, r.SpansPages())
	assert.GreaterOrEqual(t, len(r.Services), 1)
	assert.True(t, r.IsComplete)
	assert.Equal(t, 160.0, r.TotalAmount)
	assert.Equal(t, 2, res.PagesProcessed)
	assert.Equal(t, 1, res.OpenCarried)
	assert.Empty(t, res.Diagnostics)
}

func TestReconstruct_TableHeaderBeforeBreak(t *testing.T) {
	e := newEngine(t, "stay_line")

	res := e.Reconstruct([]string{
		page(annaHeader, services, tableHead),
		page("Room Night 19% 2 €80.00 €160.00", "Breakfast 7% 2 €15.00 €30.00", "TOTAL €190.00", bertHeader, services, tableHead, "Parking 7% 1 €10.00 €10.00", "TOTAL €10.00"),
	})

	require.Len(t, res.Records, 2)
	assert.Equal(t, []string{"Room Night", "Breakfast"}, res.Records[0].ServiceNames())
	assert.Equal(t, 1, res.Records[0].PageStart)
	assert.Equal(t, 2, res.Records[0].PageEnd)
	assert.Equal(t, 2, res.Records[1].PageStart)
	assert.Empty(t, res.Diagnostics)
}

func TestReconstruct_TwoBlocksOnePage(t *testing.T) {
	e := newEngine(t, "stay_line")

	res := e.Reconstruct([]string{page(
		annaHeader, services, tableHead,
		"Room Night 7% 2 €80.00 €160.00",
		"TOTAL €160.00",
		"",
		bertHeader, services, tableHead,
		"Breakfast 19% 3 €15.00 €45.00",
		"Parking 19% 3 €10.00 €30.00",
		"TOTAL €75.00",
	)})

	require.Len(t, res.Records, 2)
	assert.Equal(t, "Anna Weber", res.Records[0].GuestName)
	assert.Equal(t, "Bert Meier", res.Records[1].GuestName)
	for _, r := range res.Records {
		assert.Equal(t, 1, r.PageStart)
		assert.Equal(t, 1, r.PageEnd)
		assert.True(t, r.IsComplete)
	}
	assert.Equal(t, []string{"Breakfast", "Parking"}, res.Records[1].ServiceNames())
}

func TestReconstruct_LastPageEndsMidTable(t *testing.T) {
	e := newEngine(t, "stay_line")

	res := e.Reconstruct([]string{
		page(annaHeader, services, tableHead, "Room Night 7% 2 €80.00 €160.00", "Breakfast 19% 2 €15.00 €30.00"),
	})

	require.Len(t, res.Records, 1)
	r := res.Records[0]
	assert.False(t, r.IsComplete)
	assert.InDelta(t, 190.0, r.TotalAmount, 1e-9)
	assert.Equal(t, 1, r.PageEnd)
	assert.Equal(t, []DiagnosticKind{DiagSalvaged}, diagKinds(res.Diagnostics))
}

func TestReconstruct_BreakInsideTable(t *testing.T) {
	e := newEngine(t, "stay_line")

	res := e.Reconstruct([]string{
		page(annaHeader, services, tableHead, "Room Night 7% 2 €80.00 €160.00"),
		page("Breakfast 19% 2 €15.00 €30.00", "TOTAL €190.00"),
	})

	require.Len(t, res.Records, 1)
	r := res.Records[0]
	assert.Equal(t, []string{"Room Night", "Breakfast"}, r.ServiceNames())
	assert.Equal(t, 190.0, r.TotalAmount)
	assert.True(t, r.IsComplete)
	assert.Equal(t, 1, r.PageStart)
	assert.Equal(t, 2, r.PageEnd)
	assert.Empty(t, res.Diagnostics)
}

func TestReconstruct_BreakBeforeTotal(t *testing.T) {
	e := newEngine(t, "stay_line")

	res := e.Reconstruct([]string{
		page(annaHeader, services, tableHead, "Room Night 7% 2 €80.00 €160.00"),
		page("TOTAL €150.00"),
	})

	require.Len(t, res.Records, 1)
	r := res.Records[0]
	assert.True(t, r.IsComplete)
	assert.Equal(t, 150.0, r.TotalAmount)
	assert.Equal(t, 2, r.PageEnd)
	assert.Empty(t, res.Diagnostics)
}

// A format that does not require a total line emits a record at the end of
// the page once the predicate holds.
func TestReconstruct_MissingTotalWithoutTotalRequirement(t *testing.T) {
	formats, err := config.BuiltinFormats()
	require.NoError(t, err)
	fc := *formats["stay_line"]
	fc.RequiredFields = []string{types.FieldName, types.FieldRoom, types.FieldCheckIn, types.FieldCheckOut}
	f, err := classifier.Compile(&fc)
	require.NoError(t, err)

	res := New(f, nil).Reconstruct([]string{
		page(annaHeader, services, tableHead, "Room Night 7% 2 €80.00 €160.00"),
	})

	require.Len(t, res.Records, 1)
	assert.False(t, res.Records[0].IsComplete)
	assert.Equal(t, []DiagnosticKind{DiagMissingTotal}, diagKinds(res.Diagnostics))
}

func TestReconstruct_SalvagesOpenRecordWithServices(t *testing.T) {
	e := newEngine(t, "guest_id")

	res := e.Reconstruct([]string{
		page(emmaHeader, emmaStay, idTable, "Spa Treatment   1   $120.00   $120.00"),
		page(idTable, "Dinner   2   $40.00   $80.00"),
	})

	require.Len(t, res.Records, 1)
	r := res.Records[0]
	assert.False(t, r.IsComplete)
	assert.Len(t, r.Services, 2)
	assert.Equal(t, 1, r.PageStart)
	assert.Equal(t, 2, r.PageEnd)
	assert.Equal(t, []DiagnosticKind{DiagSalvaged}, diagKinds(res.Diagnostics))
}

func TestReconstruct_DropsIdentityOnlyOpenRecord(t *testing.T) {
	e := newEngine(t, "stay_line")

	res := e.Reconstruct([]string{
		page(annaHeader, services, "Room Night 7% 1 €80.00 €80.00", "TOTAL €80.00", bertHeader),
	})

	require.Len(t, res.Records, 1)
	assert.Equal(t, "Anna Weber", res.Records[0].GuestName)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, DiagDropped, res.Diagnostics[0].Kind)
	assert.Equal(t, "Bert Meier", res.Diagnostics[0].Guest)
}

func TestReconstruct_MalformedLineSkipped(t *testing.T) {
	e := newEngine(t, "stay_line")

	res := e.Reconstruct([]string{page(
		annaHeader, services,
		"Room Night 7% 2 €80.00 €160.00",
		"Minibar 19% two €5.00 €10.00",
		"Breakfast 19% 1 €15.00 €15.00",
	)})

	require.Len(t, res.Records, 1)
	r := res.Records[0]
	assert.Equal(t, []string{"Room Night", "Breakfast"}, r.ServiceNames())
	assert.InDelta(t, 175.0, r.TotalAmount, 1e-9)

	assert.Equal(t, []DiagnosticKind{DiagMalformed, DiagSalvaged}, diagKinds(res.Diagnostics))
	assert.Equal(t, 4, res.Diagnostics[0].Line)
	assert.Equal(t, "Anna Weber", res.Diagnostics[0].Guest)
}

func TestReconstruct_Empty(t *testing.T) {
	e := newEngine(t, "stay_line")

	res := e.Reconstruct(nil)
	assert.Empty(t, res.Records)
	assert.Zero(t, res.PagesProcessed)

	res = e.Reconstruct([]string{"", "just prose"})
	assert.Empty(t, res.Records)
	assert.Equal(t, 2, res.PagesProcessed)
	assert.Empty(t, res.Diagnostics)
}

// =============================================================================
// PAGE PROCESSOR
// =============================================================================

func TestProcessPage_DoesNotMutateCarry(t *testing.T) {
	e := newEngine(t, "stay_line")

	carry := &types.GuestRecord{
		GuestName: "Anna Weber", RoomNumber: "101", CheckInDate: "1.3.2024", CheckOutDate: "3.3.2024",
		Services:  []types.ServiceLine{},
		PageStart: 1, PageEnd: 1,
	}
	snapshot := carry.Clone()

	completed, stillOpen := e.ProcessPage(SplitLines(page("Breakfast 19% 1 €15.00 €15.00", "TOTAL €15.00")), 2, carry)

	assert.Equal(t, snapshot, carry)
	assert.Nil(t, stillOpen)
	require.Len(t, completed, 1)
	assert.Equal(t, 1, completed[0].PageStart)
	assert.Equal(t, 2, completed[0].PageEnd)
	assert.Len(t, completed[0].Services, 1)
}

func TestProcessPage_ServiceOutsideTableIgnored(t *testing.T) {
	e := newEngine(t, "stay_line")

	completed, open := e.ProcessPage(SplitLines(page(annaHeader, "Breakfast 19% 1 €15.00 €15.00")), 1, nil)

	assert.Empty(t, completed)
	require.NotNil(t, open)
	assert.Empty(t, open.Services)
	assert.Empty(t, e.Diagnostics())
}

func TestProcessPage_OrphanOutsideTable(t *testing.T) {
	e := newEngine(t, "stay_line")

	completed, open := e.ProcessPage(SplitLines(page("Breakfast 19% 1 €15.00 €15.00", "TOTAL €15.00")), 2, nil)

	assert.Empty(t, completed)
	assert.Nil(t, open)
	assert.Equal(t, []DiagnosticKind{DiagOrphan, DiagOrphan}, diagKinds(e.Diagnostics()))
	assert.Equal(t, 1, e.Diagnostics()[0].Line)
	assert.Equal(t, 2, e.Diagnostics()[1].Line)
}

func TestProcessPage_OrphanServiceLine(t *testing.T) {
	e := newEngine(t, "stay_line")

	completed, open := e.ProcessPage(SplitLines(page(services, "Breakfast 19% 1 €15.00 €15.00")), 3, nil)

	assert.Empty(t, completed)
	assert.Nil(t, open)
	require.Len(t, e.Diagnostics(), 1)
	assert.Equal(t, DiagOrphan, e.Diagnostics()[0].Kind)
	assert.Equal(t, 3, e.Diagnostics()[0].Page)
}

func TestProcessPage_TotalRequiresTable(t *testing.T) {
	e := newEngine(t, "stay_line")

	completed, open := e.ProcessPage(SplitLines(page(annaHeader, "TOTAL €50.00")), 1, nil)
	assert.Empty(t, completed)
	require.NotNil(t, open)
	assert.False(t, open.IsComplete)
	assert.Zero(t, open.TotalAmount)
}

func TestProcessPage_ExplicitTotalOverridesAccumulation(t *testing.T) {
	e := newEngine(t, "stay_line")

	completed, open := e.ProcessPage(SplitLines(page(
		annaHeader, services,
		"Room Night 7% 2 €80.00 €160.00",
		"TOTAL €150.00",
	)), 1, nil)

	assert.Nil(t, open)
	require.Len(t, completed, 1)
	assert.Equal(t, 150.0, completed[0].TotalAmount)
	assert.True(t, completed[0].IsComplete)
}

func TestProcessPage_CompletedRecordIsFrozen(t *testing.T) {
	e := newEngine(t, "stay_line")

	completed, open := e.ProcessPage(SplitLines(page(
		annaHeader, services,
		"Room Night 7% 2 €80.00 €160.00",
		"TOTAL €160.00",
		"Breakfast 19% 1 €15.00 €15.00",
		services,
		"Breakfast 19% 1 €15.00 €15.00",
		"TOTAL €175.00",
	)), 1, nil)

	assert.Nil(t, open)
	require.Len(t, completed, 1)
	assert.Equal(t, []string{"Room Night"}, completed[0].ServiceNames())
	assert.Equal(t, 160.0, completed[0].TotalAmount)
	assert.Equal(t, []DiagnosticKind{DiagAfterTotal, DiagAfterTotal, DiagAfterTotal}, diagKinds(e.Diagnostics()))
	assert.Equal(t, "Anna Weber", e.Diagnostics()[0].Guest)
	assert.Equal(t, 5, e.Diagnostics()[0].Line)
}

func TestGuestID_SecondTotalIgnored(t *testing.T) {
	e := newEngine(t, "guest_id")

	completed, open := e.ProcessPage(SplitLines(page(
		emmaHeader, emmaStay, idTable,
		"Spa Treatment   1   $120.00   $120.00",
		"TOTAL: $120.00",
		"Room: 999 | Check-in: 2025-01-01 | Check-out: 2025-01-02",
		"TOTAL: $5.00",
	)), 1, nil)

	assert.Nil(t, open)
	require.Len(t, completed, 1)
	assert.Equal(t, 120.0, completed[0].TotalAmount)
	assert.Equal(t, "312", completed[0].RoomNumber)
	assert.Equal(t, []DiagnosticKind{DiagAfterTotal, DiagAfterTotal}, diagKinds(e.Diagnostics()))
}

// The previous record is discarded when a new header arrives before it is
// complete, even though it holds service lines.
func TestProcessPage_MidPageHeaderAbandonsIncompleteRecord(t *testing.T) {
	e := newEngine(t, "guest_id")

	completed, open := e.ProcessPage(SplitLines(page(
		emmaHeader, emmaStay, idTable,
		"Spa Treatment   1   $120.00   $120.00",
		"Guest: Liam Green (ID: G0002)",
		"Room: 313 | Check-in: 2024-03-02 | Check-out: 2024-03-03",
		idTable,
		"Dinner   2   $40.00   $80.00",
		"TOTAL: $80.00",
	)), 1, nil)

	assert.Nil(t, open)
	require.Len(t, completed, 1)
	assert.Equal(t, "G0002", completed[0].GuestID)

	require.Len(t, e.Diagnostics(), 1)
	d := e.Diagnostics()[0]
	assert.Equal(t, DiagAbandoned, d.Kind)
	assert.Equal(t, "Emma Brown", d.Guest)
	assert.Equal(t, 5, d.Line)
}

// =============================================================================
// GUEST ID FORMAT
// =============================================================================

func TestGuestID_ContinuationAndRerender(t *testing.T) {
	e := newEngine(t, "guest_id")

	res := e.Reconstruct([]string{
		page(emmaHeader, emmaStay, idTable,
			"Spa Treatment   1   $120.00   $120.00",
			"⚠️ CONTINUED ON NEXT PAGE",
		),
		page(emmaHeader, emmaStay, idTable,
			"Spa Treatment   1   $120.00   $120.00",
			"Dinner   2   $40.00   $80.00",
			"TOTAL: $200.00",
		),
	})

	require.Len(t, res.Records, 1)
	r := res.Records[0]
	assert.Equal(t, "G0001", r.GuestID)
	assert.Equal(t, "312", r.RoomNumber)
	assert.Len(t, r.Services, 2)
	assert.Equal(t, 200.0, r.TotalAmount)
	assert.True(t, r.IsComplete)
	assert.True(t, r.IsSplit)
	assert.Equal(t, 1, r.PageStart)
	assert.Equal(t, 2, r.PageEnd)

	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, DiagRerendered, res.Diagnostics[0].Kind)
	assert.Equal(t, 2, res.Diagnostics[0].Page)
	assert.Equal(t, 1, res.OpenCarried)
}

func TestGuestID_TotalWithoutTable(t *testing.T) {
	e := newEngine(t, "guest_id")

	res := e.Reconstruct([]string{
		page(emmaHeader, emmaStay, idTable, "Spa Treatment   1   $120.00   $120.00"),
		page("Dinner   2   $40.00   $80.00", "TOTAL: $200.00"),
	})

	require.Len(t, res.Records, 1)
	r := res.Records[0]
	assert.Equal(t, 1, r.PageStart)
	assert.Equal(t, 2, r.PageEnd)
	assert.Len(t, r.Services, 1, "service rows on a new page need a new table header")
	assert.Equal(t, 200.0, r.TotalAmount)
	assert.True(t, r.IsComplete)
}

func TestGuestID_RoomStayFillsOnlyUnsetFields(t *testing.T) {
	e := newEngine(t, "guest_id")

	_, open := e.ProcessPage(SplitLines(page(
		emmaHeader, emmaStay,
		"Room: 999 | Check-in: 2025-01-01 | Check-out: 2025-01-02",
	)), 1, nil)

	require.NotNil(t, open)
	assert.Equal(t, "312", open.RoomNumber)
	assert.Equal(t, "2024-03-01", open.CheckInDate)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestReconstruct_IdempotentResplit(t *testing.T) {
	lines := []string{
		annaHeader, services, tableHead,
		"Room Night 7% 2 €80.00 €160.00",
		"Breakfast 19% 2 €15.00 €30.00",
		"TOTAL €190.00",
	}

	whole := newEngine(t, "stay_line").Reconstruct([]string{page(lines...)})
	require.Len(t, whole.Records, 1)

	for at := 1; at < len(lines); at++ {
		split := newEngine(t, "stay_line").Reconstruct([]string{page(lines[:at]...), page(lines[at:]...)})
		require.Len(t, split.Records, 1, "split after line %d", at)
		assert.Empty(t, split.Diagnostics, "split after line %d", at)

		a, b := whole.Records[0], split.Records[0]
		assert.Equal(t, 1, b.PageStart, "split after line %d", at)
		assert.Equal(t, 2, b.PageEnd, "split after line %d", at)
		a.PageEnd, b.PageEnd = 0, 0
		assert.Equal(t, a, b, "split after line %d", at)
	}
}

func TestReconstruct_OrderAndNoDuplication(t *testing.T) {
	e := newEngine(t, "stay_line")

	res := e.Reconstruct([]string{
		page(annaHeader, services, "Room Night 7% 1 €80.00 €80.00", "TOTAL €80.00", bertHeader, services, tableHead),
		page("Breakfast 19% 1 €15.00 €15.00", "Parking 19% 1 €10.00 €10.00", "TOTAL €25.00"),
		page(caraHeader, services, "Dinner 19% 1 €30.00 €30.00", "TOTAL €30.00"),
	})

	require.Len(t, res.Records, 3)
	serviceCount := 0
	last := 0
	for _, r := range res.Records {
		assert.GreaterOrEqual(t, r.PageStart, last)
		assert.LessOrEqual(t, r.PageStart, r.PageEnd)
		last = r.PageStart
		serviceCount += len(r.Services)
	}
	assert.Equal(t, 4, serviceCount)
	assert.Equal(t, []string{"Breakfast", "Parking"}, res.Records[1].ServiceNames())
	assert.Equal(t, 1, res.OpenCarried)
}

func TestIsComplete(t *testing.T) {
	required := []string{types.FieldName, types.FieldRoom}
	rec := &types.GuestRecord{GuestName: "A", RoomNumber: "1", Services: []types.ServiceLine{{LineTotal: 1}}, TotalAmount: 1}

	assert.True(t, IsComplete(rec, required))
	assert.False(t, IsComplete(rec, append(required, types.FieldTotalLine)))
	assert.False(t, IsComplete(nil, required))

	noRoom := rec.Clone()
	noRoom.RoomNumber = ""
	assert.False(t, IsComplete(noRoom, required))

	zero := rec.Clone()
	zero.TotalAmount = 0
	assert.False(t, IsComplete(zero, required))

	empty := rec.Clone()
	empty.Services = nil
	assert.False(t, IsComplete(empty, required))
}

// =============================================================================
// SOURCES
// =============================================================================

type failingSource struct{ err error }

func (failingSource) Name() string { return "broken.pdf" }
func (f failingSource) Pages(context.Context) ([]string, error) {
	return nil, f.err
}

func TestReconstructSource_Unavailable(t *testing.T) {
	e := newEngine(t, "stay_line")

	_, err := e.ReconstructSource(context.Background(), failingSource{err: errors.New("disk gone")})
	require.Error(t, err)
	assert.ErrorIs(t, err, pagesource.ErrSourceUnavailable)
}

// cancellingSource cancels the context after it has produced the pages.
type cancellingSource struct {
	pages  []string
	cancel context.CancelFunc
}

func (cancellingSource) Name() string { return "memory" }
func (c cancellingSource) Pages(context.Context) ([]string, error) {
	c.cancel()
	return c.pages, nil
}

func TestReconstructSource_Cancelled(t *testing.T) {
	e := newEngine(t, "stay_line")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := e.ReconstructSource(ctx, cancellingSource{
		pages:  []string{page(annaHeader, services, "Room Night 7% 1 €80.00 €80.00", "TOTAL €80.00")},
		cancel: cancel,
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Truncated)
	assert.Zero(t, res.PagesProcessed)
	assert.Empty(t, res.Records)
}

func TestReconstructSource_Pages(t *testing.T) {
	e := newEngine(t, "stay_line")

	res, err := e.ReconstructSource(context.Background(), pagesource.Pages{Texts: []string{
		page(annaHeader, services, "Room Night 7% 1 €80.00 €80.00", "TOTAL €80.00"),
		page(bertHeader, services, "Breakfast 19% 1 €15.00 €15.00", "TOTAL €15.00"),
	}})
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.Equal(t, 2, res.PagesProcessed)
	assert.False(t, res.Truncated)
}
