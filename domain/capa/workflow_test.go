package capa_test

import (
	"context"
	"testing"

	"foodsafe/bizerror"
	"foodsafe/domain"
	"foodsafe/domain/capa"
	"foodsafe/domain/flow"
	"foodsafe/domain/state"
	"foodsafe/persistence"
	"foodsafe/testinfra"

	. "github.com/onsi/gomega"
)

func TestInitiateWorkflow(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should seed the canonical step set", func(t *testing.T) {
		defer capaTestTeardown(t, testDatabase)
		capaTestSetup(t, &testDatabase)
		s := testinfra.BuildSession(10, "manager_QA")

		r := buildCapa("label misprint", domain.PriorityHigh, domain.SourceAudit, s)
		steps, created, err := capa.InitiateWorkflow(r.ID, s)
		Expect(err).To(BeNil())
		Expect(created).To(BeTrue())
		Expect(len(steps)).To(Equal(4))

		Expect(steps[0].Name).To(Equal(domain.StepInvestigation))
		Expect(steps[1].Name).To(Equal(domain.StepApproval))
		Expect(steps[2].Name).To(Equal(domain.StepImplementation))
		Expect(steps[3].Name).To(Equal(domain.StepVerification))
		for i, step := range steps {
			Expect(step.CapaID).To(Equal(r.ID))
			Expect(step.Order).To(Equal(i + 1))
			Expect(step.Status).To(Equal(domain.StepStatusPending))
			Expect(step.Required).To(BeTrue())
		}
	})

	t.Run("should skip approval when the configuration does not require it", func(t *testing.T) {
		defer capaTestTeardown(t, testDatabase)
		capaTestSetup(t, &testDatabase)
		s := testinfra.BuildSession(10, "manager_QA")

		r := buildCapa("mislabeled shelf", domain.PriorityLow, domain.SourceInternal, s)
		steps, _, err := capa.InitiateWorkflow(r.ID, s)
		Expect(err).To(BeNil())
		Expect(steps[1].Name).To(Equal(domain.StepApproval))
		Expect(steps[1].Status).To(Equal(domain.StepStatusSkipped))
		Expect(steps[1].Required).To(BeFalse())
	})

	t.Run("should mark investigation approved when a root cause is already known", func(t *testing.T) {
		defer capaTestTeardown(t, testDatabase)
		capaTestSetup(t, &testDatabase)
		s := testinfra.BuildSession(10, "manager_QA")

		r, err := capa.CreateCapa(&domain.CapaCreation{
			Title: "known cause", Priority: domain.PriorityMedium, Source: domain.SourceInternal,
			Department: "QA", RootCause: "sanitizer concentration below spec",
		}, s)
		Expect(err).To(BeNil())

		steps, _, err := capa.InitiateWorkflow(r.ID, s)
		Expect(err).To(BeNil())
		Expect(steps[0].Name).To(Equal(domain.StepInvestigation))
		Expect(steps[0].Status).To(Equal(domain.StepStatusApproved))
	})

	t.Run("re-initiating should return the existing steps untouched", func(t *testing.T) {
		defer capaTestTeardown(t, testDatabase)
		capaTestSetup(t, &testDatabase)
		s := testinfra.BuildSession(10, "manager_QA")

		r := buildCapa("label misprint", domain.PriorityHigh, domain.SourceAudit, s)
		first, created, err := capa.InitiateWorkflow(r.ID, s)
		Expect(err).To(BeNil())
		Expect(created).To(BeTrue())

		second, created, err := capa.InitiateWorkflow(r.ID, s)
		Expect(err).To(BeNil())
		Expect(created).To(BeFalse())
		Expect(len(second)).To(Equal(len(first)))
		for i := range second {
			Expect(second[i].ID).To(Equal(first[i].ID))
			Expect(second[i].Status).To(Equal(first[i].Status))
		}
	})
}

func TestActOnStep(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should reject unknown steps, out of order actions and blank comments", func(t *testing.T) {
		defer capaTestTeardown(t, testDatabase)
		capaTestSetup(t, &testDatabase)
		s := testinfra.BuildSession(10, "manager_QA")

		r := buildCapa("label misprint", domain.PriorityHigh, domain.SourceAudit, s)
		steps, _, err := capa.InitiateWorkflow(r.ID, s)
		Expect(err).To(BeNil())

		_, err = capa.ActOnStep(r.ID, 404, flow.StepActionApprove, "looks fine", s)
		Expect(err).To(Equal(bizerror.ErrStepNotFound))

		// implementation cannot be acted on while investigation is pending
		_, err = capa.ActOnStep(r.ID, steps[2].ID, flow.StepActionApprove, "done", s)
		Expect(err).To(Equal(bizerror.ErrInvalidAction))

		_, err = capa.ActOnStep(r.ID, steps[0].ID, flow.StepActionApprove, "   ", s)
		Expect(err).To(Equal(bizerror.ErrCommentRequired))
	})

	t.Run("approving should close the step and report progress", func(t *testing.T) {
		defer capaTestTeardown(t, testDatabase)
		capaTestSetup(t, &testDatabase)
		s := testinfra.BuildSession(10, "manager_QA")

		r := buildCapa("label misprint", domain.PriorityHigh, domain.SourceAudit, s)
		steps, _, err := capa.InitiateWorkflow(r.ID, s)
		Expect(err).To(BeNil())

		result, err := capa.ActOnStep(r.ID, steps[0].ID, flow.StepActionApprove, "root cause confirmed", s)
		Expect(err).To(BeNil())
		Expect(result.Progress).To(Equal(25))
		Expect(result.SuggestedStatus).To(BeZero())
		Expect(result.StatusApplied).To(BeFalse())

		acted := result.Steps[0]
		Expect(acted.Status).To(Equal(domain.StepStatusApproved))
		Expect(acted.CompletedBy).To(Equal(s.Identity.Name))
		Expect(acted.CompletedAt.IsZero()).To(BeFalse())
		Expect(acted.Comments).To(Equal("root cause confirmed"))

		// acting twice on the same step is no longer possible
		_, err = capa.ActOnStep(r.ID, steps[0].ID, flow.StepActionApprove, "again", s)
		Expect(err).To(Equal(bizerror.ErrInvalidAction))
	})

	t.Run("a rejected step should block everything after it until reopened", func(t *testing.T) {
		defer capaTestTeardown(t, testDatabase)
		capaTestSetup(t, &testDatabase)
		s := testinfra.BuildSession(10, "manager_QA")

		r := buildCapa("label misprint", domain.PriorityHigh, domain.SourceAudit, s)
		steps, _, err := capa.InitiateWorkflow(r.ID, s)
		Expect(err).To(BeNil())

		_, err = capa.ActOnStep(r.ID, steps[0].ID, flow.StepActionApprove, "root cause confirmed", s)
		Expect(err).To(BeNil())
		_, err = capa.ActOnStep(r.ID, steps[1].ID, flow.StepActionReject, "plan is insufficient", s)
		Expect(err).To(BeNil())

		_, err = capa.ActOnStep(r.ID, steps[2].ID, flow.StepActionApprove, "done anyway", s)
		Expect(err).To(Equal(bizerror.ErrInvalidAction))

		reopened, err := capa.ReopenStep(r.ID, steps[1].ID, s)
		Expect(err).To(BeNil())
		Expect(reopened[1].Status).To(Equal(domain.StepStatusPending))
		Expect(reopened[1].CompletedBy).To(BeZero())

		_, err = capa.ActOnStep(r.ID, steps[1].ID, flow.StepActionApprove, "revised plan accepted", s)
		Expect(err).To(BeNil())
	})

	t.Run("closing the last required step should suggest without applying when auto-advance is off", func(t *testing.T) {
		defer capaTestTeardown(t, testDatabase)
		capaTestSetup(t, &testDatabase)
		s := testinfra.BuildSession(10, "manager_QA")

		r := buildCapa("label misprint", domain.PriorityHigh, domain.SourceAudit, s)
		_, err := capa.UpdateStatus(r.ID, &domain.StatusUpdating{Status: state.StatusInProgress}, s)
		Expect(err).To(BeNil())
		steps, _, err := capa.InitiateWorkflow(r.ID, s)
		Expect(err).To(BeNil())

		for _, comment := range []string{"root cause confirmed", "plan approved", "actions in place"} {
			result, aerr := capa.ActOnStep(r.ID, flow.CurrentActionableStep(steps).ID, flow.StepActionApprove, comment, s)
			Expect(aerr).To(BeNil())
			steps = result.Steps
		}
		result, err := capa.ActOnStep(r.ID, flow.CurrentActionableStep(steps).ID, flow.StepActionApprove, "verified on line", s)
		Expect(err).To(BeNil())
		Expect(result.Progress).To(Equal(100))
		Expect(result.SuggestedStatus).To(Equal(state.StatusPendingVerification))
		Expect(result.StatusApplied).To(BeFalse())

		detail, err := capa.DetailCapa(r.ID, s)
		Expect(err).To(BeNil())
		Expect(detail.Status).To(Equal(state.StatusInProgress))
	})

	t.Run("auto-advance should apply the transition when no human input is needed", func(t *testing.T) {
		defer capaTestTeardown(t, testDatabase)
		capaTestSetup(t, &testDatabase)
		s := testinfra.BuildSession(10, "manager_QA")

		r := buildCapa("mislabeled shelf", domain.PriorityLow, domain.SourceInternal, s)
		_, err := capa.UpdateStatus(r.ID, &domain.StatusUpdating{Status: state.StatusInProgress}, s)
		Expect(err).To(BeNil())

		// effectiveness already verified, so the verification step seeds
		// approved and implementation closes the workflow
		db := persistence.ActiveDataSourceManager.GormDB(context.Background())
		Expect(db.Model(&domain.Capa{}).Where("id = ?", r.ID).Update("effectiveness_verified", true).Error).To(BeNil())

		steps, _, err := capa.InitiateWorkflow(r.ID, s)
		Expect(err).To(BeNil())
		Expect(steps[3].Status).To(Equal(domain.StepStatusApproved))

		_, err = capa.ActOnStep(r.ID, steps[0].ID, flow.StepActionApprove, "root cause confirmed", s)
		Expect(err).To(BeNil())
		result, err := capa.ActOnStep(r.ID, steps[2].ID, flow.StepActionApprove, "actions in place", s)
		Expect(err).To(BeNil())
		Expect(result.Progress).To(Equal(100))
		Expect(result.SuggestedStatus).To(Equal(state.StatusCompleted))
		Expect(result.StatusApplied).To(BeTrue())

		detail, err := capa.DetailCapa(r.ID, s)
		Expect(err).To(BeNil())
		Expect(detail.Status).To(Equal(state.StatusCompleted))
		Expect(detail.CompletionDate.IsZero()).To(BeFalse())
	})
}

func TestCapaProgress(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should report zero before initiation and track step closure after", func(t *testing.T) {
		defer capaTestTeardown(t, testDatabase)
		capaTestSetup(t, &testDatabase)
		s := testinfra.BuildSession(10, "manager_QA")

		r := buildCapa("mislabeled shelf", domain.PriorityLow, domain.SourceInternal, s)
		progress, err := capa.CapaProgress(r.ID, s)
		Expect(err).To(BeNil())
		Expect(progress).To(Equal(0))

		steps, _, err := capa.InitiateWorkflow(r.ID, s)
		Expect(err).To(BeNil())
		progress, err = capa.CapaProgress(r.ID, s)
		Expect(err).To(BeNil())
		Expect(progress).To(Equal(0))

		_, err = capa.ActOnStep(r.ID, steps[0].ID, flow.StepActionApprove, "root cause confirmed", s)
		Expect(err).To(BeNil())
		progress, err = capa.CapaProgress(r.ID, s)
		Expect(err).To(BeNil())
		Expect(progress).To(Equal(33))
	})
}
