package twap

import (
	"testing"
	"time"

	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type TwapTestSuite struct {
	suite.Suite
	start     time.Time
	scheduler *Scheduler
}

func TestTwapSuite(t *testing.T) {
	suite.Run(t, new(TwapTestSuite))
}

func (suite *TwapTestSuite) SetupTest() {
	suite.start = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	suite.scheduler = NewScheduler(time.Hour, 2)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (suite *TwapTestSuite) buyOrder(slices int) *types.TwapOrder {
	return suite.scheduler.Schedule(Request{
		StageNumber: 2,
		Side:        types.SideBuy,
		Notional:    d("1000000"),
		Start:       suite.start,
		Slices:      slices,
	})
}

func (suite *TwapTestSuite) TestDefaults() {
	s := NewScheduler(0, 0)
	suite.Equal(DefaultWindow, s.Window())

	order := s.Schedule(Request{StageNumber: 1, Side: types.SideBuy, Notional: d("100"), Start: suite.start})
	suite.Len(order.Slices, DefaultSlices)
	suite.Equal(suite.start.Add(time.Hour), order.Deadline)
	suite.NotEmpty(order.ID)
}

func (suite *TwapTestSuite) TestSlicesAreEvenlySpaced() {
	order := suite.buyOrder(4)

	suite.Require().Len(order.Slices, 4)
	for i, slice := range order.Slices {
		suite.Equal(suite.start.Add(time.Duration(i)*15*time.Minute), slice.ScheduledAt)
		suite.Equal(types.SliceStatusPending, slice.Status)
	}
}

func (suite *TwapTestSuite) TestBuyNotionalSumsExactly() {
	order := suite.buyOrder(3)

	total := decimal.Zero
	for _, slice := range order.Slices {
		total = total.Add(slice.Notional)
	}
	suite.True(total.Equal(d("1000000")), total.String())
}

func (suite *TwapTestSuite) TestSellQuantitySumsExactly() {
	order := suite.scheduler.Schedule(Request{
		StageNumber: 1,
		Side:        types.SideSell,
		Quantity:    d("7"),
		Start:       suite.start,
		Slices:      2,
	})

	suite.True(order.Slices[0].Quantity.Equal(d("3")))
	suite.True(order.Slices[1].Quantity.Equal(d("4")))
}

func (suite *TwapTestSuite) TestDueSlicesInScheduleOrder() {
	order := suite.buyOrder(2)

	suite.Equal([]int{0}, DueSlices(order, suite.start))
	suite.Equal([]int{0}, DueSlices(order, suite.start.Add(29*time.Minute)))
	suite.Equal([]int{0, 1}, DueSlices(order, suite.start.Add(30*time.Minute)))

	RecordFill(order, 0, d("100"), d("5000"), suite.start)
	suite.Equal([]int{1}, DueSlices(order, suite.start.Add(time.Hour)))
}

func (suite *TwapTestSuite) TestFillAndVWAP() {
	order := suite.buyOrder(2)

	qty := SliceQuantity(order, 0, d("100"), 0)
	suite.True(qty.Equal(d("5000")))
	RecordFill(order, 0, d("100"), qty, suite.start)
	suite.False(order.Done())

	qty = SliceQuantity(order, 1, d("110"), 0)
	suite.True(qty.Equal(d("4545")))
	RecordFill(order, 1, d("110"), qty, suite.start.Add(30*time.Minute))
	suite.True(order.Done())

	avg := order.AveragePrice()
	suite.Require().True(avg.IsSome())
	// (5000*100 + 4545*110) / 9545
	expected := d("999950").Div(d("9545"))
	suite.True(avg.Unwrap().Equal(expected), avg.Unwrap().String())
	suite.True(order.FilledQuantity().Equal(d("9545")))
}

func (suite *TwapTestSuite) TestSliceQuantityNonPositivePrice() {
	order := suite.buyOrder(2)
	suite.True(SliceQuantity(order, 0, decimal.Zero, 0).IsZero())
}

func (suite *TwapTestSuite) TestExpired() {
	order := suite.buyOrder(2)

	suite.False(Expired(order, suite.start.Add(time.Hour)))
	suite.True(Expired(order, suite.start.Add(time.Hour+time.Second)))

	RecordFill(order, 0, d("1"), d("1"), suite.start)
	RecordFill(order, 1, d("1"), d("1"), suite.start)
	suite.False(Expired(order, suite.start.Add(2*time.Hour)))
}

func (suite *TwapTestSuite) TestPauseFreezesOrder() {
	order := suite.buyOrder(2)
	Pause(order, suite.start.Add(10*time.Minute))

	suite.Empty(DueSlices(order, suite.start.Add(2*time.Hour)))
	suite.False(Expired(order, suite.start.Add(2*time.Hour)))
}

func (suite *TwapTestSuite) TestResumeShiftsRemainingSlices() {
	order := suite.buyOrder(2)
	RecordFill(order, 0, d("100"), d("5000"), suite.start)

	Pause(order, suite.start.Add(10*time.Minute))
	// Pausing twice keeps the first marker.
	Pause(order, suite.start.Add(20*time.Minute))
	Resume(order, suite.start.Add(50*time.Minute))

	suite.True(order.PausedAt.IsNone())
	suite.Equal(suite.start, order.Slices[0].ScheduledAt)
	suite.Equal(suite.start.Add(70*time.Minute), order.Slices[1].ScheduledAt)
	suite.Equal(suite.start.Add(100*time.Minute), order.Deadline)

	suite.Empty(DueSlices(order, suite.start.Add(69*time.Minute)))
	suite.Equal([]int{1}, DueSlices(order, suite.start.Add(70*time.Minute)))
}

func (suite *TwapTestSuite) TestResumeWithoutPauseIsNoop() {
	order := suite.buyOrder(2)
	Resume(order, suite.start.Add(time.Hour))
	suite.Equal(suite.start.Add(time.Hour), order.Deadline)
}

func (suite *TwapTestSuite) TestCancel() {
	order := suite.buyOrder(2)
	RecordFill(order, 0, d("100"), d("5000"), suite.start)
	Cancel(order)

	suite.Equal(types.SliceStatusFilled, order.Slices[0].Status)
	suite.Equal(types.SliceStatusCancelled, order.Slices[1].Status)
	suite.Empty(DueSlices(order, suite.start.Add(time.Hour)))
}
