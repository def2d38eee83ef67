package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/unhalum90/newveritas-api/internal/models"
	"github.com/unhalum90/newveritas-api/internal/repository"
)

func newStatusRedis(t *testing.T) *redis.Client {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

type statusFixture struct {
	submissions *fakeSubmissionRepo
	assessments *fakeAssessmentRepo
	roster      *fakeRosterRepo
	service     StatusService
	submission  models.Submission
}

func newStatusFixture(t *testing.T, cache *redis.Client) *statusFixture {
	t.Helper()

	f := &statusFixture{
		submissions: newFakeSubmissionRepo(),
		assessments: newFakeAssessmentRepo(),
		roster:      newFakeRosterRepo(),
	}

	f.assessments.ownerships[1] = repository.AssessmentOwnership{AssessmentID: 1, WorkspaceID: 100, TeacherID: 50}
	f.roster.workspaces[100] = models.Workspace{ID: 100, Name: "Year 9 Science", TeacherID: 50}

	f.submission = models.Submission{
		AssessmentID:  1,
		StudentID:     7,
		Status:        models.SubmissionStatusSubmitted,
		ScoringStatus: models.ScoringStatusInProgress,
	}
	require.NoError(t, f.submissions.Create(context.Background(), &f.submission))

	f.service = NewStatusService(f.submissions, f.assessments, f.roster, cache, time.Minute, testLogger())
	return f
}

func TestSubmissionStatusCachesSecondRead(t *testing.T) {
	f := newStatusFixture(t, newStatusRedis(t))

	first, err := f.service.SubmissionStatus(context.Background(), f.submission.ID, 7)
	require.NoError(t, err)
	require.Equal(t, models.ScoringStatusInProgress, first.ScoringStatus)

	// A direct write now bypasses invalidation, so the cached view wins.
	f.submission.ScoringStatus = models.ScoringStatusComplete
	require.NoError(t, f.submissions.Update(context.Background(), &f.submission))

	cached, err := f.service.SubmissionStatus(context.Background(), f.submission.ID, 7)
	require.NoError(t, err)
	require.Equal(t, models.ScoringStatusInProgress, cached.ScoringStatus)
}

func TestInvalidateStatusDropsCachedView(t *testing.T) {
	f := newStatusFixture(t, newStatusRedis(t))

	_, err := f.service.SubmissionStatus(context.Background(), f.submission.ID, 7)
	require.NoError(t, err)

	f.submission.ScoringStatus = models.ScoringStatusComplete
	require.NoError(t, f.submissions.Update(context.Background(), &f.submission))
	f.service.InvalidateStatus(context.Background(), f.submission.ID)

	fresh, err := f.service.SubmissionStatus(context.Background(), f.submission.ID, 7)
	require.NoError(t, err)
	require.Equal(t, models.ScoringStatusComplete, fresh.ScoringStatus)
}

func TestSubmissionStatusOwnershipHoldsOnCacheHit(t *testing.T) {
	f := newStatusFixture(t, newStatusRedis(t))

	_, err := f.service.SubmissionStatus(context.Background(), f.submission.ID, 7)
	require.NoError(t, err)

	_, err = f.service.SubmissionStatus(context.Background(), f.submission.ID, 99)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestSubmissionStatusWorksWithoutCache(t *testing.T) {
	f := newStatusFixture(t, nil)

	status, err := f.service.SubmissionStatus(context.Background(), f.submission.ID, 7)
	require.NoError(t, err)
	require.Equal(t, f.submission.ID, status.ID)

	f.service.InvalidateStatus(context.Background(), f.submission.ID)
}

func TestSubmissionStatusNotFound(t *testing.T) {
	f := newStatusFixture(t, nil)

	_, err := f.service.SubmissionStatus(context.Background(), 999, 7)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestScoringErrorsExcludesRestartedSentinel(t *testing.T) {
	f := newStatusFixture(t, nil)

	failed := models.Submission{
		AssessmentID:  1,
		StudentID:     8,
		Status:        models.SubmissionStatusSubmitted,
		ScoringStatus: models.ScoringStatusError,
		ScoringError:  "model unavailable",
	}
	require.NoError(t, f.submissions.Create(context.Background(), &failed))

	restarted := models.Submission{
		AssessmentID:  1,
		StudentID:     9,
		Status:        models.SubmissionStatusRestarted,
		ScoringStatus: models.ScoringStatusError,
		ScoringError:  models.ScoringErrorRestarted,
	}
	require.NoError(t, f.submissions.Create(context.Background(), &restarted))

	summaries, err := f.service.ScoringErrors(context.Background(), 100, 50)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, failed.ID, summaries[0].ID)
	require.Equal(t, "model unavailable", summaries[0].ScoringError)
}

func TestScoringErrorsRequiresWorkspaceOwnership(t *testing.T) {
	f := newStatusFixture(t, nil)

	_, err := f.service.ScoringErrors(context.Background(), 100, 99)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.service.ScoringErrors(context.Background(), 555, 50)
	require.ErrorIs(t, err, ErrWorkspaceNotFound)
}

func TestListByAssessmentRequiresOwnership(t *testing.T) {
	f := newStatusFixture(t, nil)

	_, err := f.service.ListByAssessment(context.Background(), 1, 99)
	require.ErrorIs(t, err, ErrForbidden)

	summaries, err := f.service.ListByAssessment(context.Background(), 1, 50)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, f.submission.ID, summaries[0].ID)
}
