package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/models"
	"github.com/ejournal-workflow-api/internal/repository"
)

// Store is an in-memory implementation of every repository plus the
// transaction runner. Transactions are serialized and a failed transaction
// restores the snapshot taken when it began.
type Store struct {
	mu     sync.Mutex
	data   *storeData
	faults map[string]error
}

// Verify interface compliance
var _ repository.TxRunner = (*Store)(nil)

type storeData struct {
	users         map[string]*models.User
	topics        map[string]*models.TopicArea
	submissions   map[string]*models.Submission
	files         map[string][]models.SupplementaryFile
	versions      map[string][]*models.SubmissionVersion
	assignments   map[string]*models.ReviewAssignment
	reviews       map[string]*models.Review // by assignment ID
	audit         []*models.AuditLog
	outbox        map[string]*models.OutboxItem
	outboxOrder   []string
	claimedAt     map[string]time.Time
	notifications map[string]*models.Notification
	notifOrder    []string
	emailLogs     map[string]*models.EmailLog
	emailOrder    []string
	replays       map[string]*models.RequestReplay
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		data: &storeData{
			users:         make(map[string]*models.User),
			topics:        make(map[string]*models.TopicArea),
			submissions:   make(map[string]*models.Submission),
			files:         make(map[string][]models.SupplementaryFile),
			versions:      make(map[string][]*models.SubmissionVersion),
			assignments:   make(map[string]*models.ReviewAssignment),
			reviews:       make(map[string]*models.Review),
			outbox:        make(map[string]*models.OutboxItem),
			claimedAt:     make(map[string]time.Time),
			notifications: make(map[string]*models.Notification),
			emailLogs:     make(map[string]*models.EmailLog),
			replays:       make(map[string]*models.RequestReplay),
		},
		faults: make(map[string]error),
	}
}

// FailOn makes the named operation (e.g. "audit.append") return err until cleared
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// ClearFaults removes every injected failure
func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[string]error)
}

// Repos returns repositories that lock the store per call
func (s *Store) Repos() *repository.Repositories {
	return s.repos(false)
}

// WithTx runs fn with exclusive access, restoring the snapshot if fn fails
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, repos *repository.Repositories) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	return fn(ctx, s.repos(true))
}

func (s *Store) repos(inTx bool) *repository.Repositories {
	b := base{s: s, inTx: inTx}
	return &repository.Repositories{
		User:         &userRepo{b},
		TopicArea:    &topicRepo{b},
		Submission:   &submissionRepo{b},
		Version:      &versionRepo{b},
		Assignment:   &assignmentRepo{b},
		Review:       &reviewRepo{b},
		Audit:        &auditRepo{b},
		Outbox:       &outboxRepo{b},
		Notification: &notificationRepo{b},
		Replay:       &replayRepo{b},
	}
}

type base struct {
	s    *Store
	inTx bool
}

// lock acquires the store unless the caller already runs inside WithTx
func (b base) lock() func() {
	if b.inTx {
		return func() {}
	}
	b.s.mu.Lock()
	return b.s.mu.Unlock
}

func (b base) d() *storeData { return b.s.data }

func (b base) fault(op string) error { return b.s.faults[op] }

// ---- inspection helpers for tests ----

// SeedUser inserts or replaces a user
func (s *Store) SeedUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *u
	c.Email = strings.ToLower(c.Email)
	s.data.users[u.ID] = &c
}

// SeedTopic inserts or replaces a topic area
func (s *Store) SeedTopic(t *models.TopicArea) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *t
	s.data.topics[t.ID] = &c
}

// AuditEntries returns a copy of the audit log
func (s *Store) AuditEntries() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditLog, 0, len(s.data.audit))
	for _, e := range s.data.audit {
		out = append(out, *e)
	}
	return out
}

// OutboxItems returns every outbox item in enqueue order
func (s *Store) OutboxItems() []models.OutboxItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.OutboxItem, 0, len(s.data.outboxOrder))
	for _, id := range s.data.outboxOrder {
		out = append(out, *s.data.outbox[id])
	}
	return out
}

// Notifications returns every notification record in creation order
func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, 0, len(s.data.notifOrder))
	for _, id := range s.data.notifOrder {
		out = append(out, *s.data.notifications[id])
	}
	return out
}

// EmailLogs returns every email log record in creation order
func (s *Store) EmailLogs() []models.EmailLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EmailLog, 0, len(s.data.emailOrder))
	for _, id := range s.data.emailOrder {
		out = append(out, *s.data.emailLogs[id])
	}
	return out
}

// Reviews returns every stored review
func (s *Store) Reviews() []models.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Review, 0, len(s.data.reviews))
	for _, r := range s.data.reviews {
		out = append(out, *r)
	}
	return out
}

// SetOutboxDue moves an outbox item's next attempt time, for driving retries in tests
func (s *Store) SetOutboxDue(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.data.outbox[id]; ok {
		item.NextAttemptAt = at
	}
}

// ---- cloning ----

func (d *storeData) clone() *storeData {
	c := &storeData{
		users:         make(map[string]*models.User, len(d.users)),
		topics:        make(map[string]*models.TopicArea, len(d.topics)),
		submissions:   make(map[string]*models.Submission, len(d.submissions)),
		files:         make(map[string][]models.SupplementaryFile, len(d.files)),
		versions:      make(map[string][]*models.SubmissionVersion, len(d.versions)),
		assignments:   make(map[string]*models.ReviewAssignment, len(d.assignments)),
		reviews:       make(map[string]*models.Review, len(d.reviews)),
		audit:         make([]*models.AuditLog, len(d.audit)),
		outbox:        make(map[string]*models.OutboxItem, len(d.outbox)),
		outboxOrder:   append([]string(nil), d.outboxOrder...),
		claimedAt:     make(map[string]time.Time, len(d.claimedAt)),
		notifications: make(map[string]*models.Notification, len(d.notifications)),
		notifOrder:    append([]string(nil), d.notifOrder...),
		emailLogs:     make(map[string]*models.EmailLog, len(d.emailLogs)),
		emailOrder:    append([]string(nil), d.emailOrder...),
		replays:       make(map[string]*models.RequestReplay, len(d.replays)),
	}
	for k, v := range d.users {
		u := *v
		c.users[k] = &u
	}
	for k, v := range d.topics {
		t := *v
		c.topics[k] = &t
	}
	for k, v := range d.submissions {
		c.submissions[k] = copySubmission(v)
	}
	for k, v := range d.files {
		c.files[k] = append([]models.SupplementaryFile(nil), v...)
	}
	for k, v := range d.versions {
		list := make([]*models.SubmissionVersion, len(v))
		for i, ver := range v {
			list[i] = copyVersion(ver)
		}
		c.versions[k] = list
	}
	for k, v := range d.assignments {
		a := *v
		c.assignments[k] = &a
	}
	for k, v := range d.reviews {
		r := *v
		c.reviews[k] = &r
	}
	for i, v := range d.audit {
		e := *v
		c.audit[i] = &e
	}
	for k, v := range d.outbox {
		o := *v
		c.outbox[k] = &o
	}
	for k, v := range d.claimedAt {
		c.claimedAt[k] = v
	}
	for k, v := range d.notifications {
		n := *v
		c.notifications[k] = &n
	}
	for k, v := range d.emailLogs {
		l := *v
		c.emailLogs[k] = &l
	}
	for k, v := range d.replays {
		r := *v
		r.Body = append([]byte(nil), v.Body...)
		c.replays[k] = &r
	}
	return c
}

func copySubmission(s *models.Submission) *models.Submission {
	c := *s
	c.Keywords = append([]string{}, s.Keywords...)
	c.SupplementaryFiles = append([]models.SupplementaryFile{}, s.SupplementaryFiles...)
	return &c
}

func copyVersion(v *models.SubmissionVersion) *models.SubmissionVersion {
	c := *v
	c.SupplementarySnapshot = append([]models.FileSnapshot{}, v.SupplementarySnapshot...)
	return &c
}

// ---- users ----

type userRepo struct{ base }

func (r *userRepo) Upsert(ctx context.Context, user *models.User) error {
	defer r.lock()()
	if err := r.fault("user.upsert"); err != nil {
		return err
	}
	email := strings.ToLower(user.Email)
	for id, u := range r.d().users {
		if u.Email == email && id != user.ID {
			delete(r.d().users, id)
			user.ID = id
		}
	}
	c := *user
	c.Email = email
	r.d().users[user.ID] = &c
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	defer r.lock()()
	if u, ok := r.d().users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	defer r.lock()()
	email = strings.ToLower(email)
	for _, u := range r.d().users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *userRepo) ListApprovedEditors(ctx context.Context) ([]*models.User, error) {
	defer r.lock()()
	var out []*models.User
	for _, u := range r.d().users {
		if u.IsApprovedEditor() {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// ---- topic areas ----

type topicRepo struct{ base }

func (r *topicRepo) Create(ctx context.Context, topic *models.TopicArea) error {
	defer r.lock()()
	for _, t := range r.d().topics {
		if t.Slug == topic.Slug {
			return apperrors.NewConflict("create topic area: duplicate topic_areas_slug_key")
		}
	}
	c := *topic
	r.d().topics[topic.ID] = &c
	return nil
}

func (r *topicRepo) GetByID(ctx context.Context, id string) (*models.TopicArea, error) {
	defer r.lock()()
	if t, ok := r.d().topics[id]; ok {
		c := *t
		return &c, nil
	}
	return nil, nil
}

func (r *topicRepo) List(ctx context.Context) ([]*models.TopicArea, error) {
	defer r.lock()()
	var out []*models.TopicArea
	for _, t := range r.d().topics {
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ---- submissions ----

type submissionRepo struct{ base }

func (r *submissionRepo) Create(ctx context.Context, s *models.Submission) error {
	defer r.lock()()
	if err := r.fault("submission.create"); err != nil {
		return err
	}
	if _, ok := r.d().submissions[s.ID]; ok {
		return apperrors.NewConflict("create submission: duplicate submissions_pkey")
	}
	c := copySubmission(s)
	c.SupplementaryFiles = nil
	r.d().submissions[s.ID] = c
	return nil
}

func (r *submissionRepo) get(id string) *models.Submission {
	s, ok := r.d().submissions[id]
	if !ok {
		return nil
	}
	c := copySubmission(s)
	c.SupplementaryFiles = append([]models.SupplementaryFile{}, r.d().files[id]...)
	return c
}

func (r *submissionRepo) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	defer r.lock()()
	return r.get(id), nil
}

func (r *submissionRepo) GetForUpdate(ctx context.Context, id string) (*models.Submission, error) {
	defer r.lock()()
	return r.get(id), nil
}

func (r *submissionRepo) Save(ctx context.Context, s *models.Submission, expected models.SubmissionStatus) error {
	defer r.lock()()
	if err := r.fault("submission.save"); err != nil {
		return err
	}
	stored, ok := r.d().submissions[s.ID]
	if !ok || stored.Status != expected {
		return apperrors.NewConflict("submission %s is no longer %s", s.ID, expected)
	}
	s.UpdatedAt = time.Now()
	c := copySubmission(s)
	c.SupplementaryFiles = nil
	c.CreatedAt = stored.CreatedAt
	c.AuthorID = stored.AuthorID
	r.d().submissions[s.ID] = c
	return nil
}

func (r *submissionRepo) Delete(ctx context.Context, id string) error {
	defer r.lock()()
	stored, ok := r.d().submissions[id]
	if !ok || stored.Status != models.SubmissionDraft {
		return apperrors.NewConflict("submission %s is not a draft", id)
	}
	delete(r.d().submissions, id)
	delete(r.d().files, id)
	delete(r.d().versions, id)
	return nil
}

func (r *submissionRepo) ListByAuthor(ctx context.Context, authorID string) ([]*models.Submission, error) {
	defer r.lock()()
	return r.filter(func(s *models.Submission) bool { return s.AuthorID == authorID }), nil
}

func (r *submissionRepo) List(ctx context.Context, status models.SubmissionStatus) ([]*models.Submission, error) {
	defer r.lock()()
	return r.filter(func(s *models.Submission) bool {
		if status == "" {
			return s.Status != models.SubmissionDraft
		}
		return s.Status == status
	}), nil
}

func (r *submissionRepo) filter(keep func(*models.Submission) bool) []*models.Submission {
	var out []*models.Submission
	for _, s := range r.d().submissions {
		if keep(s) {
			out = append(out, copySubmission(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *submissionRepo) AddSupplementaryFile(ctx context.Context, f *models.SupplementaryFile) error {
	defer r.lock()()
	if err := r.fault("submission.add_file"); err != nil {
		return err
	}
	r.d().files[f.SubmissionID] = append(r.d().files[f.SubmissionID], *f)
	return nil
}

func (r *submissionRepo) ListSupplementaryFiles(ctx context.Context, submissionID string) ([]models.SupplementaryFile, error) {
	defer r.lock()()
	return append([]models.SupplementaryFile{}, r.d().files[submissionID]...), nil
}

// ---- versions ----

type versionRepo struct{ base }

func (r *versionRepo) Create(ctx context.Context, v *models.SubmissionVersion) error {
	defer r.lock()()
	if err := r.fault("version.create"); err != nil {
		return err
	}
	for _, existing := range r.d().versions[v.SubmissionID] {
		if existing.VersionNumber == v.VersionNumber {
			return apperrors.NewConflict("create submission version: duplicate submission_versions_number_unique")
		}
	}
	r.d().versions[v.SubmissionID] = append(r.d().versions[v.SubmissionID], copyVersion(v))
	return nil
}

func (r *versionRepo) Latest(ctx context.Context, submissionID string) (*models.SubmissionVersion, error) {
	defer r.lock()()
	var latest *models.SubmissionVersion
	for _, v := range r.d().versions[submissionID] {
		if latest == nil || v.VersionNumber > latest.VersionNumber {
			latest = v
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyVersion(latest), nil
}

func (r *versionRepo) List(ctx context.Context, submissionID string) ([]*models.SubmissionVersion, error) {
	defer r.lock()()
	var out []*models.SubmissionVersion
	for _, v := range r.d().versions[submissionID] {
		out = append(out, copyVersion(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

// ---- assignments ----

type assignmentRepo struct{ base }

func (r *assignmentRepo) Create(ctx context.Context, a *models.ReviewAssignment) error {
	defer r.lock()()
	if err := r.fault("assignment.create"); err != nil {
		return err
	}
	email := strings.ToLower(a.InvitedEmail)
	for _, existing := range r.d().assignments {
		if existing.Token == a.Token {
			return apperrors.NewConflict("create review assignment: duplicate review_assignments_token_key")
		}
		if existing.SubmissionID == a.SubmissionID && existing.SubmissionVersionID == a.SubmissionVersionID &&
			existing.InvitedEmail == email {
			return apperrors.NewConflict("create review assignment: duplicate review_assignments_invite_unique")
		}
	}
	c := *a
	c.InvitedEmail = email
	r.d().assignments[a.ID] = &c
	return nil
}

func (r *assignmentRepo) get(id string) *models.ReviewAssignment {
	if a, ok := r.d().assignments[id]; ok {
		c := *a
		return &c
	}
	return nil
}

func (r *assignmentRepo) byToken(token string) *models.ReviewAssignment {
	for _, a := range r.d().assignments {
		if a.Token == token {
			c := *a
			return &c
		}
	}
	return nil
}

func (r *assignmentRepo) GetByID(ctx context.Context, id string) (*models.ReviewAssignment, error) {
	defer r.lock()()
	return r.get(id), nil
}

func (r *assignmentRepo) GetForUpdate(ctx context.Context, id string) (*models.ReviewAssignment, error) {
	defer r.lock()()
	return r.get(id), nil
}

func (r *assignmentRepo) GetByToken(ctx context.Context, token string) (*models.ReviewAssignment, error) {
	defer r.lock()()
	return r.byToken(token), nil
}

func (r *assignmentRepo) GetByTokenForUpdate(ctx context.Context, token string) (*models.ReviewAssignment, error) {
	defer r.lock()()
	return r.byToken(token), nil
}

func (r *assignmentRepo) Save(ctx context.Context, a *models.ReviewAssignment, expected models.AssignmentStatus) error {
	defer r.lock()()
	if err := r.fault("assignment.save"); err != nil {
		return err
	}
	stored, ok := r.d().assignments[a.ID]
	if !ok || stored.Status != expected {
		return apperrors.NewConflict("review assignment %s is no longer %s", a.ID, expected)
	}
	stored.Status = a.Status
	stored.ReviewerID = a.ReviewerID
	stored.RespondedAt = a.RespondedAt
	return nil
}

func (r *assignmentRepo) ExistsForInvite(ctx context.Context, submissionID, versionID, email string) (bool, error) {
	defer r.lock()()
	email = strings.ToLower(email)
	for _, a := range r.d().assignments {
		if a.SubmissionID == submissionID && a.SubmissionVersionID == versionID && a.InvitedEmail == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *assignmentRepo) ListForReviewer(ctx context.Context, userID, email string) ([]*models.ReviewAssignment, error) {
	defer r.lock()()
	email = strings.ToLower(email)
	return r.filter(func(a *models.ReviewAssignment) bool {
		if a.ReviewerID != nil {
			return *a.ReviewerID == userID
		}
		return a.InvitedEmail == email
	}), nil
}

func (r *assignmentRepo) ListBySubmission(ctx context.Context, submissionID string) ([]*models.ReviewAssignment, error) {
	defer r.lock()()
	return r.filter(func(a *models.ReviewAssignment) bool { return a.SubmissionID == submissionID }), nil
}

func (r *assignmentRepo) ListOverdueInvited(ctx context.Context, now time.Time) ([]*models.ReviewAssignment, error) {
	defer r.lock()()
	return r.filter(func(a *models.ReviewAssignment) bool {
		return a.Status == models.AssignmentInvited && a.DueDate != nil && a.DueDate.Before(now)
	}), nil
}

func (r *assignmentRepo) filter(keep func(*models.ReviewAssignment) bool) []*models.ReviewAssignment {
	var out []*models.ReviewAssignment
	for _, a := range r.d().assignments {
		if keep(a) {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvitedAt.Before(out[j].InvitedAt) })
	return out
}

// ---- reviews ----

type reviewRepo struct{ base }

func (r *reviewRepo) Create(ctx context.Context, rv *models.Review) error {
	defer r.lock()()
	if err := r.fault("review.create"); err != nil {
		return err
	}
	if _, ok := r.d().reviews[rv.AssignmentID]; ok {
		return apperrors.NewConflict("create review: duplicate reviews_assignment_id_key")
	}
	c := *rv
	r.d().reviews[rv.AssignmentID] = &c
	return nil
}

func (r *reviewRepo) GetByAssignment(ctx context.Context, assignmentID string) (*models.Review, error) {
	defer r.lock()()
	if rv, ok := r.d().reviews[assignmentID]; ok {
		c := *rv
		return &c, nil
	}
	return nil, nil
}

// ---- audit ----

type auditRepo struct{ base }

func (r *auditRepo) Append(ctx context.Context, e *models.AuditLog) error {
	defer r.lock()()
	if err := r.fault("audit.append"); err != nil {
		return err
	}
	c := *e
	r.d().audit = append(r.d().audit, &c)
	return nil
}

func (r *auditRepo) ListByTarget(ctx context.Context, targetType, targetID string) ([]*models.AuditLog, error) {
	defer r.lock()()
	var out []*models.AuditLog
	for _, e := range r.d().audit {
		if e.TargetType == targetType && e.TargetID == targetID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// ---- outbox ----

type outboxRepo struct{ base }

func (r *outboxRepo) Enqueue(ctx context.Context, item *models.OutboxItem) error {
	defer r.lock()()
	if err := r.fault("outbox.enqueue"); err != nil {
		return err
	}
	c := *item
	r.d().outbox[item.ID] = &c
	r.d().outboxOrder = append(r.d().outboxOrder, item.ID)
	return nil
}

func (r *outboxRepo) GetByID(ctx context.Context, id string) (*models.OutboxItem, error) {
	defer r.lock()()
	if o, ok := r.d().outbox[id]; ok {
		c := *o
		return &c, nil
	}
	return nil, nil
}

func (r *outboxRepo) GetDue(ctx context.Context, now time.Time, limit int) ([]*models.OutboxItem, error) {
	defer r.lock()()
	var out []*models.OutboxItem
	for _, id := range r.d().outboxOrder {
		o := r.d().outbox[id]
		if o.Status == models.OutboxPending && !o.NextAttemptAt.After(now) {
			c := *o
			out = append(out, &c)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *outboxRepo) MarkProcessing(ctx context.Context, id string, now time.Time) (bool, error) {
	defer r.lock()()
	o, ok := r.d().outbox[id]
	if !ok || o.Status != models.OutboxPending {
		return false, nil
	}
	o.Status = models.OutboxProcessing
	r.d().claimedAt[id] = now
	return true, nil
}

func (r *outboxRepo) Complete(ctx context.Context, id string, status models.OutboxStatus, lastError string, now time.Time) error {
	defer r.lock()()
	if err := r.fault("outbox.complete"); err != nil {
		return err
	}
	if o, ok := r.d().outbox[id]; ok {
		o.Status = status
		o.LastError = lastError
		t := now
		o.CompletedAt = &t
		delete(r.d().claimedAt, id)
	}
	return nil
}

func (r *outboxRepo) Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastError string) error {
	defer r.lock()()
	if o, ok := r.d().outbox[id]; ok {
		o.Status = models.OutboxPending
		o.Attempts = attempts
		o.NextAttemptAt = next
		o.LastError = lastError
		delete(r.d().claimedAt, id)
	}
	return nil
}

func (r *outboxRepo) Fail(ctx context.Context, id string, attempts int, lastError string, now time.Time) error {
	defer r.lock()()
	if o, ok := r.d().outbox[id]; ok {
		o.Status = models.OutboxFailed
		o.Attempts = attempts
		o.LastError = lastError
		t := now
		o.CompletedAt = &t
		delete(r.d().claimedAt, id)
	}
	return nil
}

func (r *outboxRepo) RecoverStale(ctx context.Context, claimedBefore time.Time) (int, error) {
	defer r.lock()()
	n := 0
	for id, at := range r.d().claimedAt {
		o := r.d().outbox[id]
		if o != nil && o.Status == models.OutboxProcessing && at.Before(claimedBefore) {
			o.Status = models.OutboxPending
			delete(r.d().claimedAt, id)
			n++
		}
	}
	return n, nil
}

func (r *outboxRepo) ListFailed(ctx context.Context, limit int) ([]*models.OutboxItem, error) {
	defer r.lock()()
	var out []*models.OutboxItem
	for i := len(r.d().outboxOrder) - 1; i >= 0; i-- {
		o := r.d().outbox[r.d().outboxOrder[i]]
		if o.Status == models.OutboxFailed {
			c := *o
			out = append(out, &c)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *outboxRepo) Requeue(ctx context.Context, id string, now time.Time) (bool, error) {
	defer r.lock()()
	o, ok := r.d().outbox[id]
	if !ok || o.Status != models.OutboxFailed {
		return false, nil
	}
	o.Status = models.OutboxPending
	o.Attempts = 0
	o.NextAttemptAt = now
	o.CompletedAt = nil
	return true, nil
}

// ---- notifications ----

type notificationRepo struct{ base }

func (r *notificationRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	defer r.lock()()
	if err := r.fault("notification.create"); err != nil {
		return err
	}
	c := *n
	r.d().notifications[n.ID] = &c
	r.d().notifOrder = append(r.d().notifOrder, n.ID)
	return nil
}

func (r *notificationRepo) CreateEmailLog(ctx context.Context, l *models.EmailLog) error {
	defer r.lock()()
	c := *l
	r.d().emailLogs[l.ID] = &c
	r.d().emailOrder = append(r.d().emailOrder, l.ID)
	return nil
}

func (r *notificationRepo) MarkSent(ctx context.Context, notificationID, emailLogID, messageID string, at time.Time) error {
	defer r.lock()()
	if err := r.fault("notification.mark_sent"); err != nil {
		return err
	}
	if n, ok := r.d().notifications[notificationID]; ok {
		n.Status = models.RecordSent
		t := at
		n.SentAt = &t
	}
	if l, ok := r.d().emailLogs[emailLogID]; ok {
		l.Status = models.RecordSent
		l.ProviderMessageID = messageID
	}
	return nil
}

func (r *notificationRepo) MarkFailed(ctx context.Context, notificationID, emailLogID, errMsg string) error {
	defer r.lock()()
	if n, ok := r.d().notifications[notificationID]; ok {
		n.Status = models.RecordFailed
	}
	if l, ok := r.d().emailLogs[emailLogID]; ok {
		l.Status = models.RecordFailed
		l.Error = errMsg
	}
	return nil
}

func (r *notificationRepo) HasSent(ctx context.Context, eventType, idempotencyKey string) (bool, error) {
	defer r.lock()()
	for _, n := range r.d().notifications {
		if n.EventType == eventType && n.IdempotencyKey == idempotencyKey && n.Status == models.RecordSent {
			return true, nil
		}
	}
	return false, nil
}

func (r *notificationRepo) ListByOutbox(ctx context.Context, outboxID string) ([]*models.Notification, error) {
	defer r.lock()()
	var out []*models.Notification
	for _, id := range r.d().notifOrder {
		n := r.d().notifications[id]
		if n.OutboxID == outboxID {
			c := *n
			out = append(out, &c)
		}
	}
	return out, nil
}

// ---- request replays ----

type replayRepo struct{ base }

func (r *replayRepo) Get(ctx context.Context, actorID, key string) (*models.RequestReplay, error) {
	defer r.lock()()
	if rp, ok := r.d().replays[actorID+"\x00"+key]; ok {
		c := *rp
		c.Body = append([]byte(nil), rp.Body...)
		return &c, nil
	}
	return nil, nil
}

func (r *replayRepo) Reserve(ctx context.Context, rp *models.RequestReplay, staleBefore time.Time) (bool, error) {
	defer r.lock()()
	k := rp.ActorID + "\x00" + rp.Key
	if existing, ok := r.d().replays[k]; ok {
		if !existing.InProgress() || !existing.CreatedAt.Before(staleBefore) {
			return false, nil
		}
	}
	c := *rp
	c.StatusCode = 0
	c.Body = nil
	r.d().replays[k] = &c
	return true, nil
}

func (r *replayRepo) Save(ctx context.Context, rp *models.RequestReplay) error {
	defer r.lock()()
	k := rp.ActorID + "\x00" + rp.Key
	if existing, ok := r.d().replays[k]; ok {
		if !existing.InProgress() {
			return nil
		}
		existing.StatusCode = rp.StatusCode
		existing.Body = append([]byte(nil), rp.Body...)
		return nil
	}
	c := *rp
	c.Body = append([]byte(nil), rp.Body...)
	r.d().replays[k] = &c
	return nil
}

func (r *replayRepo) Release(ctx context.Context, actorID, key string) error {
	defer r.lock()()
	k := actorID + "\x00" + key
	if existing, ok := r.d().replays[k]; ok && existing.InProgress() {
		delete(r.d().replays, k)
	}
	return nil
}
