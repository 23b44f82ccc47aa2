package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vision-care-api/internal/dto"
	"github.com/noah-isme/vision-care-api/internal/models"
	appErrors "github.com/noah-isme/vision-care-api/pkg/errors"
)

func transition(studentID string, target models.Phase, frameID string) dto.TransitionCommand {
	cmd := dto.TransitionCommand{StudentID: studentID, TargetPhase: target, ActorID: "operator-1"}
	if frameID != "" {
		cmd.FrameID = strPtr(frameID)
	}
	return cmd
}

func TestApplyTransitionProductionRequiresFrame(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseScreening, "")

	_, err := fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseProduction, ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrFrameRequired)

	s := fx.db.student(t, "s1")
	assert.Equal(t, models.PhaseScreening, s.CurrentPhase)
	assert.Nil(t, s.AllocatedFrameID)
	assert.Empty(t, fx.db.historyFor("s1"))
}

func TestApplyTransitionProductionClaimsFrame(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseScreening, "")
	fx.db.addFrame("f1", models.FrameStatusAvailable, "")

	res, err := fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseProduction, "f1"))
	require.NoError(t, err)
	assert.False(t, res.NoOp)
	assert.Equal(t, models.PhaseProduction, res.Student.CurrentPhase)
	assert.Equal(t, "f1", res.Student.HeldFrameID())
	require.NotNil(t, res.Frame)
	assert.Equal(t, models.FrameStatusAllocated, res.Frame.Status)
	require.NotNil(t, res.Entry)
	require.NotNil(t, res.Entry.FromPhase)
	assert.Equal(t, models.PhaseScreening, *res.Entry.FromPhase)
	assert.Equal(t, models.OutcomePending, res.Entry.OutcomeStatus)
	assert.Equal(t, "operator-1", res.Entry.ActorID)

	frame := fx.db.frame(t, "f1")
	assert.True(t, frame.AllocatedTo("s1"))
	gots1 := fx.db.student(t, "s1")
	assert.Equal(t, "f1", gots1.HeldFrameID())
	assert.Len(t, fx.db.historyFor("s1"), 1)
	assert.Contains(t, fx.cache.invalidated, "frames:*")
	requireAllocationInvariant(t, fx.db)
}

func TestApplyTransitionConcurrentClaimsOneWinner(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseConsultation, "")
	fx.db.addStudent("s2", models.PhaseConsultation, "")
	fx.db.addFrame("f1", models.FrameStatusAvailable, "")

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i, id := range []string{"s1", "s2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = fx.transitions.ApplyTransition(context.Background(), transition(id, models.PhaseProduction, "f1"))
		}()
	}
	close(start)
	wg.Wait()

	succeeded, unavailable := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, appErrors.ErrFrameUnavailable):
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, unavailable)

	frame := fx.db.frame(t, "f1")
	require.NotNil(t, frame.AllocatedStudentID)
	winner := *frame.AllocatedStudentID
	loser := "s1"
	if winner == "s1" {
		loser = "s2"
	}
	assert.Equal(t, models.PhaseProduction, fx.db.student(t, winner).CurrentPhase)
	assert.Equal(t, models.PhaseConsultation, fx.db.student(t, loser).CurrentPhase)
	assert.Nil(t, fx.db.student(t, loser).AllocatedFrameID)
	assert.Empty(t, fx.db.historyFor(loser))
	requireAllocationInvariant(t, fx.db)
}

func TestApplyTransitionFrameErrors(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseScreening, "")
	fx.db.addStudent("s2", models.PhaseProduction, "f2")
	fx.db.addFrame("f2", models.FrameStatusAllocated, "s2")
	fx.db.addFrame("f3", models.FrameStatusDamaged, "")

	tests := []struct {
		name    string
		frameID string
		want    *appErrors.Error
	}{
		{name: "missing frame", frameID: "nope", want: appErrors.ErrFrameNotFound},
		{name: "allocated to another student", frameID: "f2", want: appErrors.ErrFrameUnavailable},
		{name: "damaged frame", frameID: "f3", want: appErrors.ErrFrameUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseProduction, tc.frameID))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, models.PhaseScreening, fx.db.student(t, "s1").CurrentPhase)
		})
	}
	gotf2 := fx.db.frame(t, "f2")
	assert.True(t, gotf2.AllocatedTo("s2"))
	requireAllocationInvariant(t, fx.db)
}

func TestApplyTransitionRejectsUnknownStudentAndPhase(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseScreening, "")

	_, err := fx.transitions.ApplyTransition(context.Background(), transition("ghost", models.PhaseConsultation, ""))
	assert.ErrorIs(t, err, appErrors.ErrStudentNotFound)

	_, err = fx.transitions.ApplyTransition(context.Background(), transition("s1", models.Phase("SHIPPED"), ""))
	assert.ErrorIs(t, err, appErrors.ErrInvalidPhase)

	cmd := transition("s1", models.PhaseConsultation, "")
	cmd.ActorID = " "
	_, err = fx.transitions.ApplyTransition(context.Background(), cmd)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	cmd = transition("s1", models.PhaseConsultation, "")
	cmd.OutcomeStatus = models.OutcomeStatus("MAYBE")
	_, err = fx.transitions.ApplyTransition(context.Background(), cmd)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestApplyTransitionSamePhaseIsNoOp(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseProduction, "f1")
	fx.db.addFrame("f1", models.FrameStatusAllocated, "s1")

	res, err := fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseProduction, ""))
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Nil(t, res.Entry)
	assert.Equal(t, int64(1), fx.db.student(t, "s1").Version)
	assert.Empty(t, fx.db.historyFor("s1"))
	gotf1 := fx.db.frame(t, "f1")
	assert.True(t, gotf1.AllocatedTo("s1"))
}

func TestApplyTransitionExpectedPhaseGuard(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseConsultation, "")

	cmd := transition("s1", models.PhaseScreening, "")
	expected := models.PhaseScreening
	cmd.ExpectedPhase = &expected

	_, err := fx.transitions.ApplyTransition(context.Background(), cmd)
	assert.ErrorIs(t, err, appErrors.ErrConcurrentModification)
	assert.Equal(t, models.PhaseConsultation, fx.db.student(t, "s1").CurrentPhase)
}

func TestApplyTransitionDeliveredKeepsFrame(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseProduction, "f1")
	fx.db.addFrame("f1", models.FrameStatusAllocated, "s1")

	_, err := fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseDelivered, "f9"))
	assert.ErrorIs(t, err, appErrors.ErrFrameNotAllocatedToStudent)

	res, err := fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseDelivered, ""))
	require.NoError(t, err)
	assert.Equal(t, models.PhaseDelivered, res.Student.CurrentPhase)
	assert.Equal(t, "f1", res.Student.HeldFrameID())
	gotf1 := fx.db.frame(t, "f1")
	assert.True(t, gotf1.AllocatedTo("s1"))
	requireAllocationInvariant(t, fx.db)
}

func TestApplyTransitionLeavingProductionReleasesFrame(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseScreening, "")
	fx.db.addFrame("f1", models.FrameStatusAvailable, "")
	ctx := context.Background()

	_, err := fx.transitions.ApplyTransition(ctx, transition("s1", models.PhaseProduction, "f1"))
	require.NoError(t, err)

	res, err := fx.transitions.ApplyTransition(ctx, transition("s1", models.PhaseConsultation, ""))
	require.NoError(t, err)
	assert.Nil(t, res.Student.AllocatedFrameID)
	require.NotNil(t, res.Frame)
	assert.Equal(t, models.FrameStatusAvailable, res.Frame.Status)

	frame := fx.db.frame(t, "f1")
	assert.Equal(t, models.FrameStatusAvailable, frame.Status)
	assert.Nil(t, frame.AllocatedStudentID)

	entries, err := fx.history.ListByStudent(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.PhaseConsultation, entries[0].Phase)
	assert.Equal(t, models.PhaseProduction, entries[1].Phase)
	assert.True(t, entries[0].RecordedAt.After(entries[1].RecordedAt))
	requireAllocationInvariant(t, fx.db)
}

func TestApplyTransitionDeliveredBackToScreeningReleases(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseDelivered, "f1")
	fx.db.addFrame("f1", models.FrameStatusAllocated, "s1")

	_, err := fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseScreening, "f2"))
	assert.ErrorIs(t, err, appErrors.ErrFrameNotAllocatedToStudent)

	_, err = fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseScreening, "f1"))
	require.NoError(t, err)
	assert.Equal(t, models.FrameStatusAvailable, fx.db.frame(t, "f1").Status)
	assert.Nil(t, fx.db.student(t, "s1").AllocatedFrameID)
	requireAllocationInvariant(t, fx.db)
}

func TestApplyTransitionReleaseOfRetiredFrameClearsPointer(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseProduction, "f1")
	fx.db.addFrame("f1", models.FrameStatusLost, "")

	res, err := fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseConsultation, ""))
	require.NoError(t, err)
	assert.Nil(t, res.Student.AllocatedFrameID)
	assert.Equal(t, models.FrameStatusLost, fx.db.frame(t, "f1").Status)
	requireAllocationInvariant(t, fx.db)
}

func TestApplyTransitionReleaseOfForeignFrameFails(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseProduction, "f1")
	fx.db.addFrame("f1", models.FrameStatusAvailable, "")

	_, err := fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseScreening, ""))
	assert.ErrorIs(t, err, appErrors.ErrFrameNotAllocatedToStudent)
	assert.Equal(t, models.PhaseProduction, fx.db.student(t, "s1").CurrentPhase)
	gots1 := fx.db.student(t, "s1")
	assert.Equal(t, "f1", gots1.HeldFrameID())
}

func TestApplyTransitionReenteringProductionWithHeldFrame(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseDelivered, "f1")
	fx.db.addFrame("f1", models.FrameStatusAllocated, "s1")
	fx.db.addFrame("f2", models.FrameStatusAvailable, "")

	_, err := fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseProduction, ""))
	assert.ErrorIs(t, err, appErrors.ErrFrameRequired)

	_, err = fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseProduction, "f2"))
	assert.ErrorIs(t, err, appErrors.ErrAllocatedFrameMismatch)
	assert.Equal(t, models.FrameStatusAvailable, fx.db.frame(t, "f2").Status)

	res, err := fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseProduction, "f1"))
	require.NoError(t, err)
	assert.Equal(t, models.PhaseProduction, res.Student.CurrentPhase)
	assert.Equal(t, "f1", res.Student.HeldFrameID())
	requireAllocationInvariant(t, fx.db)
}

func TestApplyTransitionDetachedStudentNeedsNewFrameToDeliver(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseProduction, "")
	fx.db.addFrame("f2", models.FrameStatusAvailable, "")

	_, err := fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseDelivered, ""))
	assert.ErrorIs(t, err, appErrors.ErrFrameRequired)

	res, err := fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseDelivered, "f2"))
	require.NoError(t, err)
	assert.Equal(t, "f2", res.Student.HeldFrameID())
	gotf2 := fx.db.frame(t, "f2")
	assert.True(t, gotf2.AllocatedTo("s1"))
	requireAllocationInvariant(t, fx.db)
}

func TestApplyTransitionOutsideZoneIgnoresFrame(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseScreening, "")
	fx.db.addFrame("f1", models.FrameStatusAvailable, "")

	res, err := fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseConsultation, "f1"))
	require.NoError(t, err)
	assert.Nil(t, res.Frame)
	assert.Nil(t, res.Student.AllocatedFrameID)
	assert.Equal(t, models.FrameStatusAvailable, fx.db.frame(t, "f1").Status)
}

func TestApplyTransitionRollsBackWhenHistoryFails(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseScreening, "")
	fx.db.addFrame("f1", models.FrameStatusAvailable, "")
	fx.db.historyErr = errors.New("disk full")

	_, err := fx.transitions.ApplyTransition(context.Background(), transition("s1", models.PhaseProduction, "f1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)

	assert.Equal(t, models.FrameStatusAvailable, fx.db.frame(t, "f1").Status)
	s := fx.db.student(t, "s1")
	assert.Equal(t, models.PhaseScreening, s.CurrentPhase)
	assert.Nil(t, s.AllocatedFrameID)
	assert.Equal(t, int64(1), s.Version)
	requireAllocationInvariant(t, fx.db)
}

func TestApplyTransitionCancelledContext(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseScreening, "")
	fx.db.addFrame("f1", models.FrameStatusAvailable, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.transitions.ApplyTransition(ctx, transition("s1", models.PhaseProduction, "f1"))
	require.Error(t, err)
	assert.Equal(t, models.FrameStatusAvailable, fx.db.frame(t, "f1").Status)
	assert.Equal(t, models.PhaseScreening, fx.db.student(t, "s1").CurrentPhase)
}

func TestGetStudent(t *testing.T) {
	fx := newWorkflowFixture(t)
	fx.db.addStudent("s1", models.PhaseConsultation, "")

	student, err := fx.transitions.GetStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseConsultation, student.CurrentPhase)

	_, err = fx.transitions.GetStudent(context.Background(), "s9")
	assert.ErrorIs(t, err, appErrors.ErrStudentNotFound)
}
