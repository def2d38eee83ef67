package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/unhalum90/newveritas-api/internal/dto"
	"github.com/unhalum90/newveritas-api/internal/repository"
)

// StatusService serves submission status polling for students and the
// scoring-error queue for teachers. Status reads are cached briefly in
// redis because students poll while the pipeline runs.
type StatusService interface {
	SubmissionStatus(ctx context.Context, submissionID, studentID uint) (dto.SubmissionStatusResponse, error)
	InvalidateStatus(ctx context.Context, submissionID uint)
	ScoringErrors(ctx context.Context, workspaceID, teacherID uint) ([]dto.SubmissionSummary, error)
	ListByAssessment(ctx context.Context, assessmentID, teacherID uint) ([]dto.SubmissionSummary, error)
}

type statusService struct {
	submissions repository.SubmissionRepository
	assessments repository.AssessmentRepository
	roster      repository.RosterRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
}

// NewStatusService builds the status reader.
func NewStatusService(submissions repository.SubmissionRepository, assessments repository.AssessmentRepository, roster repository.RosterRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) StatusService {
	return &statusService{
		submissions: submissions,
		assessments: assessments,
		roster:      roster,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "status_service").Logger(),
	}
}

func statusCacheKey(submissionID uint) string {
	return fmt.Sprintf("status:submission:%d", submissionID)
}

func (s *statusService) SubmissionStatus(ctx context.Context, submissionID, studentID uint) (dto.SubmissionStatusResponse, error) {
	cacheKey := statusCacheKey(submissionID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.SubmissionStatusResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				if response.StudentID != studentID {
					return dto.SubmissionStatusResponse{}, ErrForbidden
				}
				s.logger.Debug().Uint("submission_id", submissionID).Msg("status cache hit")
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read status cache")
		}
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionStatusResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionStatusResponse{}, err
	}

	if submission.StudentID != studentID {
		return dto.SubmissionStatusResponse{}, ErrForbidden
	}

	response := dto.NewSubmissionStatusResponse(submission)

	if s.cache != nil {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store status cache")
			}
		}
	}

	return response, nil
}

// InvalidateStatus drops the cached status after a pipeline write so the
// next poll reflects the new state.
func (s *statusService) InvalidateStatus(ctx context.Context, submissionID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statusCacheKey(submissionID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("failed to invalidate status cache")
	}
}

func (s *statusService) ScoringErrors(ctx context.Context, workspaceID, teacherID uint) ([]dto.SubmissionSummary, error) {
	workspace, err := s.roster.GetWorkspace(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, err
	}
	if workspace.TeacherID != teacherID {
		return nil, ErrForbidden
	}

	submissions, err := s.submissions.ListScoringErrors(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionSummarySlice(submissions), nil
}

func (s *statusService) ListByAssessment(ctx context.Context, assessmentID, teacherID uint) ([]dto.SubmissionSummary, error) {
	ownership, err := s.assessments.ResolveOwnership(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssessmentNotFound
		}
		return nil, err
	}
	if ownership.TeacherID != teacherID {
		return nil, ErrForbidden
	}

	submissions, err := s.submissions.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionSummarySlice(submissions), nil
}
