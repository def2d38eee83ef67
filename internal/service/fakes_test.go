package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/unhalum90/newveritas-api/internal/models"
	"github.com/unhalum90/newveritas-api/internal/repository"
	"github.com/unhalum90/newveritas-api/pkg/ai"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// fakeSubmissionRepo mimics the partial unique index on active
// submissions: creating a second started row for a pair returns
// gorm.ErrDuplicatedKey, same as the database would.
type fakeSubmissionRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]models.Submission
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{rows: map[uint]models.Submission{}}
}

func (f *fakeSubmissionRepo) Create(_ context.Context, submission *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if submission.Status == models.SubmissionStatusStarted {
		for _, row := range f.rows {
			if row.AssessmentID == submission.AssessmentID && row.StudentID == submission.StudentID && row.Status == models.SubmissionStatusStarted {
				return gorm.ErrDuplicatedKey
			}
		}
	}

	f.nextID++
	submission.ID = f.nextID
	f.rows[submission.ID] = *submission
	return nil
}

func (f *fakeSubmissionRepo) Update(_ context.Context, submission *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.rows[submission.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.rows[submission.ID] = *submission
	return nil
}

func (f *fakeSubmissionRepo) GetByID(_ context.Context, id uint) (models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[id]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (f *fakeSubmissionRepo) FindActive(_ context.Context, assessmentID, studentID uint) (models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, row := range f.rows {
		if row.AssessmentID == assessmentID && row.StudentID == studentID && row.Status == models.SubmissionStatusStarted {
			return row, nil
		}
	}
	return models.Submission{}, gorm.ErrRecordNotFound
}

func (f *fakeSubmissionRepo) FindLatestForPair(_ context.Context, assessmentID, studentID uint) (models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var latest models.Submission
	found := false
	for _, row := range f.rows {
		if row.AssessmentID == assessmentID && row.StudentID == studentID && row.ID >= latest.ID {
			latest = row
			found = true
		}
	}
	if !found {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (f *fakeSubmissionRepo) ListByAssessment(_ context.Context, assessmentID uint) ([]models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []models.Submission
	for _, row := range f.rows {
		if row.AssessmentID == assessmentID {
			result = append(result, row)
		}
	}
	return result, nil
}

func (f *fakeSubmissionRepo) ListScoringErrors(_ context.Context, _ uint) ([]models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []models.Submission
	for _, row := range f.rows {
		if row.ScoringStatus == models.ScoringStatusError && row.ScoringError != models.ScoringErrorRestarted {
			result = append(result, row)
		}
	}
	return result, nil
}

type fakeAssessmentRepo struct {
	assessments map[uint]models.Assessment
	questions   map[uint]models.Question
	ownerships  map[uint]repository.AssessmentOwnership
}

func newFakeAssessmentRepo() *fakeAssessmentRepo {
	return &fakeAssessmentRepo{
		assessments: map[uint]models.Assessment{},
		questions:   map[uint]models.Question{},
		ownerships:  map[uint]repository.AssessmentOwnership{},
	}
}

func (f *fakeAssessmentRepo) GetByID(_ context.Context, id uint) (models.Assessment, error) {
	assessment, ok := f.assessments[id]
	if !ok {
		return models.Assessment{}, gorm.ErrRecordNotFound
	}
	return assessment, nil
}

func (f *fakeAssessmentRepo) GetQuestion(_ context.Context, id uint) (models.Question, error) {
	question, ok := f.questions[id]
	if !ok {
		return models.Question{}, gorm.ErrRecordNotFound
	}
	return question, nil
}

func (f *fakeAssessmentRepo) ResolveOwnership(_ context.Context, assessmentID uint) (repository.AssessmentOwnership, error) {
	ownership, ok := f.ownerships[assessmentID]
	if !ok {
		return repository.AssessmentOwnership{}, gorm.ErrRecordNotFound
	}
	return ownership, nil
}

type fakeResponseRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]models.SubmissionResponse
}

func newFakeResponseRepo() *fakeResponseRepo {
	return &fakeResponseRepo{rows: map[uint]models.SubmissionResponse{}}
}

func (f *fakeResponseRepo) Create(_ context.Context, response *models.SubmissionResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	response.ID = f.nextID
	f.rows[response.ID] = *response
	return nil
}

func (f *fakeResponseRepo) Update(_ context.Context, response *models.SubmissionResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.rows[response.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.rows[response.ID] = *response
	return nil
}

func (f *fakeResponseRepo) GetByID(_ context.Context, id uint) (models.SubmissionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[id]
	if !ok {
		return models.SubmissionResponse{}, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (f *fakeResponseRepo) FindBySubmissionAndQuestion(_ context.Context, submissionID, questionID uint) (models.SubmissionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, row := range f.rows {
		if row.SubmissionID == submissionID && row.QuestionID == questionID {
			return row, nil
		}
	}
	return models.SubmissionResponse{}, gorm.ErrRecordNotFound
}

func (f *fakeResponseRepo) ListBySubmission(_ context.Context, submissionID uint) ([]models.SubmissionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []models.SubmissionResponse
	for _, row := range f.rows {
		if row.SubmissionID == submissionID {
			result = append(result, row)
		}
	}
	return result, nil
}

type fakeScoreRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   map[string]models.QuestionScore
}

func newFakeScoreRepo() *fakeScoreRepo {
	return &fakeScoreRepo{rows: map[string]models.QuestionScore{}}
}

func scoreKey(submissionID, questionID uint, scorerType string) string {
	return fmt.Sprintf("%d:%d:%s", submissionID, questionID, scorerType)
}

func (f *fakeScoreRepo) Upsert(_ context.Context, score *models.QuestionScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := scoreKey(score.SubmissionID, score.QuestionID, score.ScorerType)
	if existing, ok := f.rows[key]; ok {
		score.ID = existing.ID
	} else {
		f.nextID++
		score.ID = f.nextID
	}
	f.rows[key] = *score
	return nil
}

func (f *fakeScoreRepo) ListBySubmission(_ context.Context, submissionID uint) ([]models.QuestionScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []models.QuestionScore
	for _, row := range f.rows {
		if row.SubmissionID == submissionID {
			result = append(result, row)
		}
	}
	return result, nil
}

// fakeRestartRepo mimics the unique (assessment, student) index.
type fakeRestartRepo struct {
	mu     sync.Mutex
	nextID uint
	events map[string]models.RestartEvent
}

func newFakeRestartRepo() *fakeRestartRepo {
	return &fakeRestartRepo{events: map[string]models.RestartEvent{}}
}

func restartKey(assessmentID, studentID uint) string {
	return fmt.Sprintf("%d:%d", assessmentID, studentID)
}

func (f *fakeRestartRepo) Create(_ context.Context, event *models.RestartEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := restartKey(event.AssessmentID, event.StudentID)
	if _, ok := f.events[key]; ok {
		return gorm.ErrDuplicatedKey
	}
	f.nextID++
	event.ID = f.nextID
	f.events[key] = *event
	return nil
}

func (f *fakeRestartRepo) FindByPair(_ context.Context, assessmentID, studentID uint) (models.RestartEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	event, ok := f.events[restartKey(assessmentID, studentID)]
	if !ok {
		return models.RestartEvent{}, gorm.ErrRecordNotFound
	}
	return event, nil
}

func (f *fakeRestartRepo) ExistsForPair(_ context.Context, assessmentID, studentID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.events[restartKey(assessmentID, studentID)]
	return ok, nil
}

type fakeReviewRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]models.ReviewRequest
}

func newFakeReviewRepo() *fakeReviewRepo {
	return &fakeReviewRepo{rows: map[uint]models.ReviewRequest{}}
}

func (f *fakeReviewRepo) Create(_ context.Context, request *models.ReviewRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	request.ID = f.nextID
	f.rows[request.ID] = *request
	return nil
}

func (f *fakeReviewRepo) Update(_ context.Context, request *models.ReviewRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.rows[request.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.rows[request.ID] = *request
	return nil
}

func (f *fakeReviewRepo) GetByID(_ context.Context, id uint) (models.ReviewRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[id]
	if !ok {
		return models.ReviewRequest{}, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (f *fakeReviewRepo) FindOpenBySubmission(_ context.Context, submissionID uint) (models.ReviewRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, row := range f.rows {
		if row.SubmissionID == submissionID && row.IsOpen() {
			return row, nil
		}
	}
	return models.ReviewRequest{}, gorm.ErrRecordNotFound
}

func (f *fakeReviewRepo) HasOpenRequest(_ context.Context, submissionID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, row := range f.rows {
		if row.SubmissionID == submissionID && row.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

type fakeRosterRepo struct {
	students   map[uint]models.Student
	workspaces map[uint]models.Workspace
}

func newFakeRosterRepo() *fakeRosterRepo {
	return &fakeRosterRepo{students: map[uint]models.Student{}, workspaces: map[uint]models.Workspace{}}
}

func (f *fakeRosterRepo) GetStudent(_ context.Context, id uint) (models.Student, error) {
	student, ok := f.students[id]
	if !ok {
		return models.Student{}, gorm.ErrRecordNotFound
	}
	return student, nil
}

func (f *fakeRosterRepo) GetWorkspace(_ context.Context, id uint) (models.Workspace, error) {
	workspace, ok := f.workspaces[id]
	if !ok {
		return models.Workspace{}, gorm.ErrRecordNotFound
	}
	return workspace, nil
}

type fakeAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (f *fakeAuditLog) Record(_ context.Context, entry AuditEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

func (f *fakeAuditLog) byType(eventType string) []AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []AuditEntry
	for _, entry := range f.entries {
		if entry.EventType == eventType {
			result = append(result, entry)
		}
	}
	return result
}

type publishedEvent struct {
	Subject string
	Event   PipelineEvent
}

type fakeEventPublisher struct {
	mu        sync.Mutex
	published []publishedEvent
}

func (f *fakeEventPublisher) Publish(subject string, event PipelineEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedEvent{Subject: subject, Event: event})
}

func (f *fakeEventPublisher) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]string, 0, len(f.published))
	for _, p := range f.published {
		result = append(result, p.Subject)
	}
	return result
}

// syncDispatcher runs tasks inline so tests observe pipeline outcomes
// without racing a goroutine.
type syncDispatcher struct {
	names []string
}

func (d *syncDispatcher) Dispatch(name string, task func(ctx context.Context)) {
	d.names = append(d.names, name)
	task(context.Background())
}

func (d *syncDispatcher) Wait() {}

type fakeScorer struct {
	calls []uint
	err   error
}

func (f *fakeScorer) ScoreSubmission(_ context.Context, submissionID uint) error {
	f.calls = append(f.calls, submissionID)
	return f.err
}

type fakeAutoPublisher struct {
	calls []uint
	err   error
}

func (f *fakeAutoPublisher) AutoPublish(_ context.Context, submissionID uint) error {
	f.calls = append(f.calls, submissionID)
	return f.err
}

type fakeLanguageModel struct {
	followup     string
	followupErr  error
	offTopic     ai.OffTopicResult
	offTopicErr  error
	scoreFn      func(input ai.AxisScoringInput) (ai.AxisScore, error)
	scoreErr     error
	defaultScore float64
}

func (f *fakeLanguageModel) GenerateFollowup(_ context.Context, _, _ string) (string, error) {
	return f.followup, f.followupErr
}

func (f *fakeLanguageModel) DetectOffTopic(_ context.Context, _, _ string) (ai.OffTopicResult, error) {
	return f.offTopic, f.offTopicErr
}

func (f *fakeLanguageModel) ScoreAxis(_ context.Context, input ai.AxisScoringInput) (ai.AxisScore, error) {
	if f.scoreErr != nil {
		return ai.AxisScore{}, f.scoreErr
	}
	if f.scoreFn != nil {
		return f.scoreFn(input)
	}
	return ai.AxisScore{Score: f.defaultScore, Justification: "solid work"}, nil
}

type fakeMediaStore struct {
	mu          sync.Mutex
	blobs       map[string][]byte
	uploadErr   error
	downloadErr error
}

func newFakeMediaStore() *fakeMediaStore {
	return &fakeMediaStore{blobs: map[string][]byte{}}
}

func (f *fakeMediaStore) Upload(_ context.Context, path string, reader io.Reader, _ string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[path] = data
	return "https://media.test/" + path, nil
}

func (f *fakeMediaStore) Download(_ context.Context, path string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[path]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", path)
	}
	return data, nil
}

func (f *fakeMediaStore) SignedURL(path string, _ time.Duration) (string, error) {
	return "https://media.test/" + path + "?signed=1", nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	return f.text, f.err
}
