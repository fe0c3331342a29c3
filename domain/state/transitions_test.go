package state_test

import (
	"testing"
	"time"

	"foodsafe/bizerror"
	"foodsafe/domain/state"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
)

func TestComputeLegalTransitions(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should return the configured targets for each status", func(t *testing.T) {
		Expect(state.ComputeLegalTransitions(state.StatusOpen)).To(Equal(
			[]state.Status{state.StatusInProgress, state.StatusOnHold, state.StatusRejected}))
		Expect(state.ComputeLegalTransitions(state.StatusInProgress)).To(Equal(
			[]state.Status{state.StatusCompleted, state.StatusOnHold, state.StatusOpen}))
		Expect(state.ComputeLegalTransitions(state.StatusCompleted)).To(Equal(
			[]state.Status{state.StatusPendingVerification, state.StatusInProgress}))
		Expect(state.ComputeLegalTransitions(state.StatusPendingVerification)).To(Equal(
			[]state.Status{state.StatusVerified, state.StatusRejected, state.StatusInProgress}))
		Expect(state.ComputeLegalTransitions(state.StatusVerified)).To(Equal(
			[]state.Status{state.StatusClosed}))
		Expect(state.ComputeLegalTransitions(state.StatusOnHold)).To(Equal(
			[]state.Status{state.StatusOpen, state.StatusInProgress, state.StatusRejected}))
		Expect(state.ComputeLegalTransitions(state.StatusRejected)).To(Equal(
			[]state.Status{state.StatusOpen}))
		Expect(state.ComputeLegalTransitions(state.StatusOverdue)).To(Equal(
			[]state.Status{state.StatusInProgress, state.StatusCompleted}))
	})

	t.Run("closed should be terminal", func(t *testing.T) {
		Expect(state.ComputeLegalTransitions(state.StatusClosed)).To(BeEmpty())
	})

	t.Run("unmapped status should fail closed", func(t *testing.T) {
		Expect(state.ComputeLegalTransitions(state.Status("BOGUS"))).To(BeEmpty())
	})
}

func TestIsLegal(t *testing.T) {
	RegisterTestingT(t)
	table := state.DefaultTransitionTable()

	t.Run("self transition should always be legal", func(t *testing.T) {
		Expect(table.IsLegal(state.StatusClosed, state.StatusClosed)).To(BeTrue())
		Expect(table.IsLegal(state.StatusOpen, state.StatusOpen)).To(BeTrue())
		Expect(table.IsLegal(state.Status("BOGUS"), state.Status("BOGUS"))).To(BeTrue())
	})

	t.Run("edges absent from the table should be illegal", func(t *testing.T) {
		Expect(table.IsLegal(state.StatusCompleted, state.StatusVerified)).To(BeFalse())
		Expect(table.IsLegal(state.StatusOpen, state.StatusClosed)).To(BeFalse())
		Expect(table.IsLegal(state.StatusClosed, state.StatusOpen)).To(BeFalse())
		Expect(table.IsLegal(state.Status("BOGUS"), state.StatusOpen)).To(BeFalse())
	})
}

func TestValidateTransition(t *testing.T) {
	RegisterTestingT(t)
	table := state.DefaultTransitionTable()
	now := types.TimestampOfDate(2021, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("should fail with illegal transition for edges outside the table", func(t *testing.T) {
		patch, err := table.ValidateTransition(state.StatusCompleted, state.StatusVerified, state.TransitionPayload{})
		Expect(patch).To(BeNil())
		Expect(err).To(Equal(bizerror.ErrIllegalTransition))

		patch, err = table.ValidateTransition(state.StatusClosed, state.StatusOpen, state.TransitionPayload{})
		Expect(patch).To(BeNil())
		Expect(err).To(Equal(bizerror.ErrIllegalTransition))
	})

	t.Run("should require completion date when completing", func(t *testing.T) {
		patch, err := table.ValidateTransition(state.StatusInProgress, state.StatusCompleted, state.TransitionPayload{})
		Expect(patch).To(BeNil())
		Expect(err).To(Equal(&bizerror.ErrMissingField{Field: "completionDate"}))

		patch, err = table.ValidateTransition(state.StatusInProgress, state.StatusCompleted,
			state.TransitionPayload{CompletionDate: now})
		Expect(err).To(BeNil())
		Expect(*patch).To(Equal(state.StatusPatch{Status: state.StatusCompleted, CompletionDate: now}))
	})

	t.Run("should require verification fields for pending verification", func(t *testing.T) {
		payload := state.TransitionPayload{CompletionDate: now}
		_, err := table.ValidateTransition(state.StatusCompleted, state.StatusPendingVerification, payload)
		Expect(err).To(Equal(&bizerror.ErrMissingField{Field: "verificationMethod"}))

		payload.VerificationMethod = "lab retest"
		_, err = table.ValidateTransition(state.StatusCompleted, state.StatusPendingVerification, payload)
		Expect(err).To(Equal(&bizerror.ErrMissingField{Field: "verifiedBy"}))

		payload.VerifiedBy = "ann"
		patch, err := table.ValidateTransition(state.StatusCompleted, state.StatusPendingVerification, payload)
		Expect(err).To(BeNil())
		Expect(patch.Status).To(Equal(state.StatusPendingVerification))
		Expect(patch.VerificationMethod).To(Equal("lab retest"))
		Expect(patch.VerifiedBy).To(Equal("ann"))
		Expect(patch.EffectivenessRating).To(BeEmpty())
	})

	t.Run("should require effectiveness rating when verifying", func(t *testing.T) {
		payload := state.TransitionPayload{CompletionDate: now, VerificationMethod: "lab retest", VerifiedBy: "ann"}
		_, err := table.ValidateTransition(state.StatusPendingVerification, state.StatusVerified, payload)
		Expect(err).To(Equal(&bizerror.ErrMissingField{Field: "effectivenessRating"}))

		payload.EffectivenessRating = "EFFECTIVE"
		patch, err := table.ValidateTransition(state.StatusPendingVerification, state.StatusVerified, payload)
		Expect(err).To(BeNil())
		Expect(patch.EffectivenessRating).To(Equal("EFFECTIVE"))
	})

	t.Run("self transition should skip field requirements", func(t *testing.T) {
		patch, err := table.ValidateTransition(state.StatusCompleted, state.StatusCompleted, state.TransitionPayload{})
		Expect(err).To(BeNil())
		Expect(*patch).To(Equal(state.StatusPatch{Status: state.StatusCompleted}))
	})

	t.Run("patch should carry only the fields the target demands", func(t *testing.T) {
		payload := state.TransitionPayload{CompletionDate: now, VerificationMethod: "audit", VerifiedBy: "bob",
			EffectivenessRating: "HIGHLY_EFFECTIVE"}
		patch, err := table.ValidateTransition(state.StatusOpen, state.StatusInProgress, payload)
		Expect(err).To(BeNil())
		Expect(*patch).To(Equal(state.StatusPatch{Status: state.StatusInProgress}))
	})
}
