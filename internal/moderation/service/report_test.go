package service_test

import (
	"strings"
	"testing"

	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/jmerrifield20/contentrisk/internal/moderation/repository"
	"github.com/jmerrifield20/contentrisk/internal/moderation/service"
	"github.com/jmerrifield20/contentrisk/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newReportService(env *testEnv) *service.ReportService {
	return service.NewReportService(repository.NewMemoryReportRepository(), env.engine, zap.NewNop())
}

func TestReportFile_triggersAnalysis(t *testing.T) {
	env := newEnv(t)
	env.content.PutAd(*depositScamAd(11))
	svc := newReportService(env)

	rpt, err := svc.File(ctx, &model.CreateReportRequest{
		ReporterUserID: 4, ContentType: "ad", ContentID: 11, Reason: "scam",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusPending, rpt.Status)

	flags, total, err := env.engine.ListFlags(ctx, "pending", 0, 10)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, int64(11), flags[0].ContentID)
	assert.Equal(t, []string{notify.EventReportFiled, notify.EventFlagCreated}, env.events.types())
}

func TestReportFile_missingContentStillFiled(t *testing.T) {
	env := newEnv(t)
	svc := newReportService(env)

	rpt, err := svc.File(ctx, &model.CreateReportRequest{
		ReporterUserID: 4, ContentType: "message", ContentID: 500, Reason: "harassment",
	})
	require.NoError(t, err)
	assert.NotZero(t, rpt.ID)
}

func TestReportFile_validation(t *testing.T) {
	env := newEnv(t)
	svc := newReportService(env)
	var ve *model.ErrValidation

	cases := []*model.CreateReportRequest{
		{ReporterUserID: 1, ContentType: "listing", ContentID: 1, Reason: "x"},
		{ReporterUserID: 1, ContentType: "ad", ContentID: 0, Reason: "x"},
		{ReporterUserID: 0, ContentType: "ad", ContentID: 1, Reason: "x"},
		{ReporterUserID: 1, ContentType: "ad", ContentID: 1, Reason: "  "},
		{ReporterUserID: 1, ContentType: "ad", ContentID: 1, Reason: "x", Description: strings.Repeat("a", model.MaxReportDescriptionLength+1)},
	}
	for i, req := range cases {
		_, err := svc.File(ctx, req)
		assert.ErrorAs(t, err, &ve, "case %d", i)
	}
}

func TestReportUpdate_lifecycle(t *testing.T) {
	env := newEnv(t)
	svc := newReportService(env)
	rpt, err := svc.File(ctx, &model.CreateReportRequest{ReporterUserID: 4, ContentType: "user", ContentID: 10, Reason: "fake"})
	require.NoError(t, err)

	var ve *model.ErrValidation
	_, err = svc.Update(ctx, rpt.ID, &model.UpdateReportRequest{Status: model.ReportStatusPending}, 1)
	assert.ErrorAs(t, err, &ve)

	got, err := svc.Update(ctx, rpt.ID, &model.UpdateReportRequest{Status: model.ReportStatusUnderReview}, 1)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusUnderReview, got.Status)

	got, err = svc.Update(ctx, rpt.ID, &model.UpdateReportRequest{Status: model.ReportStatusEscalated, ModerationDecision: "legal"}, 1)
	require.NoError(t, err)
	assert.Equal(t, fixedAt, *got.ResolvedAt)

	_, err = svc.Update(ctx, rpt.ID, &model.UpdateReportRequest{Status: model.ReportStatusResolved}, 1)
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)

	_, err = svc.Update(ctx, 999, &model.UpdateReportRequest{Status: model.ReportStatusResolved}, 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	reports, total, err := svc.List(ctx, "escalated", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, rpt.ID, reports[0].ID)

	_, _, err = svc.List(ctx, "closed", 0, 10)
	assert.ErrorAs(t, err, &ve)
}
