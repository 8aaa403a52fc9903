package session

import (
	"testing"
	"time"

	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/internal/twap"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type StateMachineTestSuite struct {
	suite.Suite
	machine *StateMachine
	now     time.Time
}

func TestStateMachineSuite(t *testing.T) {
	suite.Run(t, new(StateMachineTestSuite))
}

func (suite *StateMachineTestSuite) SetupSuite() {
	suite.machine = NewStateMachine(logger.NewNopLogger())
	suite.now = time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)
}

func (suite *StateMachineTestSuite) newSession() *types.Session {
	cfg := types.SessionConfig{
		SymbolCode:     "005930",
		SymbolName:     "Samsung Electronics",
		AmountPerStage: decimal.NewFromInt(1000000),
		TotalStages:    3,
		SellTriggerPct: decimal.NewFromInt(15),
		BuyTriggerPct:  decimal.NewFromInt(5),
	}
	plans, err := cfg.Validate()
	suite.Require().NoError(err)

	return types.NewSession("s1", cfg, plans, suite.now)
}

func (suite *StateMachineTestSuite) TestCreateEvent() {
	s := suite.newSession()
	events := suite.machine.Create(s)

	suite.Require().Len(events, 1)
	suite.Equal(types.EventSessionCreated, events[0].Kind)
	suite.Equal(int64(1), events[0].Sequence)
	suite.Equal("s1", events[0].SessionID)
}

func (suite *StateMachineTestSuite) TestStartFromReady() {
	s := suite.newSession()

	events, err := suite.machine.Start(s, suite.now)
	suite.Require().NoError(err)
	suite.Equal(types.SessionStatusRunning, s.Status)
	suite.Equal(suite.now, s.StartedAt.Unwrap())
	suite.Require().Len(events, 1)
	suite.Equal(types.EventSessionStarted, events[0].Kind)
}

func (suite *StateMachineTestSuite) TestStartOnPausedResumes() {
	s := suite.newSession()
	_, err := suite.machine.Start(s, suite.now)
	suite.Require().NoError(err)
	_, err = suite.machine.Pause(s, suite.now.Add(time.Minute))
	suite.Require().NoError(err)

	events, err := suite.machine.Start(s, suite.now.Add(2*time.Minute))
	suite.Require().NoError(err)
	suite.Equal(types.SessionStatusRunning, s.Status)
	suite.Equal(types.EventSessionResumed, events[0].Kind)
	// Started time keeps the first start.
	suite.Equal(suite.now, s.StartedAt.Unwrap())
}

func (suite *StateMachineTestSuite) TestInvalidTransitions() {
	s := suite.newSession()

	_, err := suite.machine.Pause(s, suite.now)
	suite.True(errors.IsStateConflict(err))
	suite.Equal(types.SessionStatusReady, s.Status)

	_, err = suite.machine.Resume(s, suite.now)
	suite.True(errors.IsStateConflict(err))

	_, err = suite.machine.Complete(s, suite.now)
	suite.True(errors.IsStateConflict(err))

	_, err = suite.machine.Start(s, suite.now)
	suite.Require().NoError(err)
	_, err = suite.machine.Start(s, suite.now)
	suite.True(errors.IsStateConflict(err))

	_, err = suite.machine.Complete(s, suite.now)
	suite.Require().NoError(err)
	_, err = suite.machine.Start(s, suite.now)
	suite.True(errors.IsStateConflict(err))
	_, err = suite.machine.Pause(s, suite.now)
	suite.True(errors.IsStateConflict(err))
	suite.Equal(types.SessionStatusCompleted, s.Status)

	// No events are recorded for rejected transitions.
	suite.Equal(int64(2), s.EventSeq)
}

func (suite *StateMachineTestSuite) TestCompleteIsIdempotent() {
	s := suite.newSession()
	_, err := suite.machine.Start(s, suite.now)
	suite.Require().NoError(err)

	events, err := suite.machine.Complete(s, suite.now.Add(time.Hour))
	suite.Require().NoError(err)
	suite.Len(events, 1)
	suite.Equal(suite.now.Add(time.Hour), s.CompletedAt.Unwrap())

	events, err = suite.machine.Complete(s, suite.now.Add(2*time.Hour))
	suite.NoError(err)
	suite.Empty(events)
	suite.Equal(suite.now.Add(time.Hour), s.CompletedAt.Unwrap())
}

func (suite *StateMachineTestSuite) TestPauseResumeShiftsTwapOrder() {
	s := suite.newSession()
	_, err := suite.machine.Start(s, suite.now)
	suite.Require().NoError(err)

	s.ActiveOrder = twap.NewScheduler(time.Hour, 2).Schedule(twap.Request{
		StageNumber: 1,
		Side:        types.SideBuy,
		Notional:    decimal.NewFromInt(1000000),
		Start:       suite.now,
	})

	_, err = suite.machine.Pause(s, suite.now.Add(10*time.Minute))
	suite.Require().NoError(err)
	suite.True(s.ActiveOrder.PausedAt.IsSome())

	_, err = suite.machine.Resume(s, suite.now.Add(40*time.Minute))
	suite.Require().NoError(err)
	suite.True(s.ActiveOrder.PausedAt.IsNone())
	suite.Equal(suite.now.Add(90*time.Minute), s.ActiveOrder.Deadline)
}

func (suite *StateMachineTestSuite) TestDeleteRules() {
	s := suite.newSession()
	suite.NoError(suite.machine.CanDelete(s))
	suite.NoError(suite.machine.CanUpdate(s))

	_, err := suite.machine.Start(s, suite.now)
	suite.Require().NoError(err)
	err = suite.machine.CanDelete(s)
	suite.True(errors.IsStateConflict(err))
	suite.True(errors.IsStateConflict(suite.machine.CanUpdate(s)))

	ready := suite.newSession()
	ready.Positions = append(ready.Positions,
		types.NewPosition(ready.Stages[0], decimal.NewFromInt(70000), decimal.NewFromInt(14), suite.now))
	err = suite.machine.CanDelete(ready)
	suite.True(errors.IsPreconditionFailed(err))
}
