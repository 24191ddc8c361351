package worker

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"relaycrm/models"
	"relaycrm/utils"
)

// fakeStore is an in-memory Store with per-method error injection.
type fakeStore struct {
	mu sync.Mutex

	enrollments []models.SequenceEnrollment
	templates   map[uint]*models.Template
	senders     map[uint]*models.Sender

	emailLogs  []*models.EmailLog
	activities []*models.ContactActivity
	advances   map[uint]advanceCall
	usage      map[uint]int

	dueErr        error
	createLogErr  error
	updateBodyErr error
	activityErr   error
	advanceErr    error
}

type advanceCall struct {
	currentStep int
	status      string
	nextSendAt  *time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		templates: make(map[uint]*models.Template),
		senders:   make(map[uint]*models.Sender),
		advances:  make(map[uint]advanceCall),
		usage:     make(map[uint]int),
	}
}

func (s *fakeStore) DueEnrollments() ([]models.SequenceEnrollment, error) {
	if s.dueErr != nil {
		return nil, s.dueErr
	}
	return s.enrollments, nil
}

func (s *fakeStore) TemplateByID(id uint) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tmpl, ok := s.templates[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return tmpl, nil
}

func (s *fakeStore) SenderByID(id uint) (*models.Sender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sender, ok := s.senders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return sender, nil
}

func (s *fakeStore) CreateEmailLog(entry *models.EmailLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createLogErr != nil {
		return s.createLogErr
	}
	entry.ID = uint(len(s.emailLogs) + 1)
	s.emailLogs = append(s.emailLogs, entry)
	return nil
}

func (s *fakeStore) UpdateEmailLogBody(logID uint, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateBodyErr != nil {
		return s.updateBodyErr
	}
	for _, entry := range s.emailLogs {
		if entry.ID == logID {
			entry.Body = body
		}
	}
	return nil
}

func (s *fakeStore) CreateActivity(activity *models.ContactActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activityErr != nil {
		return s.activityErr
	}
	s.activities = append(s.activities, activity)
	return nil
}

func (s *fakeStore) AdvanceEnrollment(enrollmentID uint, currentStep int, status string, nextSendAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advanceErr != nil {
		return s.advanceErr
	}
	s.advances[enrollmentID] = advanceCall{currentStep: currentStep, status: status, nextSendAt: nextSendAt}
	return nil
}

func (s *fakeStore) IncrementSenderUsage(senderID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[senderID]++
	return nil
}

// fakePool hands out one recording transport per sender id.
type fakePool struct {
	mu         sync.Mutex
	transports map[uint]*fakeTransport
	getCalls   int
	getErr     error
	closed     bool
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    []*utils.OutgoingEmail
	sendErr error
}

func newFakePool() *fakePool {
	return &fakePool{transports: make(map[uint]*fakeTransport)}
}

func (p *fakePool) Get(sender *models.Sender) (utils.Transport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	if t, ok := p.transports[sender.ID]; ok {
		return t, nil
	}
	t := &fakeTransport{}
	p.transports[sender.ID] = t
	return t, nil
}

func (p *fakePool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (t *fakeTransport) Send(msg *utils.OutgoingEmail) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (p *fakePool) totalSent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.transports {
		t.mu.Lock()
		n += len(t.sent)
		t.mu.Unlock()
	}
	return n
}

func testLogger() *log.Logger {
	return log.New(os.Stdout, "TEST: ", log.LstdFlags)
}

func newTestProcessor(store Store, pool utils.TransportPool, now time.Time) *SequenceProcessor {
	sp := NewSequenceProcessor(store, pool, testLogger(), "http://track.local", 5)
	sp.now = func() time.Time { return now }
	return sp
}

func testEnrollment(id uint, currentStep int, steps []models.SequenceStep) models.SequenceEnrollment {
	e := models.SequenceEnrollment{
		OrganizationID: 1,
		SequenceID:     10,
		ContactID:      20,
		CurrentStep:    currentStep,
		Status:         models.EnrollmentActive,
		Sequence: models.Sequence{
			OrganizationID: 1,
			SenderID:       30,
			Name:           "Onboarding",
			Steps:          steps,
		},
		Contact: models.Contact{
			Email:     "jane@example.com",
			FirstName: "Jane",
			LastName:  "Doe",
		},
	}
	e.ID = id
	e.Sequence.ID = 10
	e.Contact.ID = 20
	return e
}

func seedSender(store *fakeStore) *models.Sender {
	sender := &models.Sender{
		OrganizationID: 1,
		Name:           "Main",
		FromEmail:      "sales@acme.io",
		FromName:       "Acme Sales",
		SMTPHost:       "smtp.acme.io",
		SMTPPort:       587,
		SMTPUsername:   "sales@acme.io",
		SMTPPassword:   "encrypted-credential",
	}
	sender.ID = 30
	store.senders[30] = sender
	return sender
}

func seedTemplate(store *fakeStore, id uint, subject, html string) *models.Template {
	tmpl := &models.Template{
		OrganizationID: 1,
		Name:           fmt.Sprintf("template-%d", id),
		Subject:        subject,
		HTMLContent:    html,
	}
	tmpl.ID = id
	store.templates[id] = tmpl
	return tmpl
}

func TestProcessDueEnrollmentsEmptyQueue(t *testing.T) {
	store := newFakeStore()
	pool := newFakePool()

	report, err := newTestProcessor(store, pool, time.Now()).ProcessDueEnrollments()

	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, "no enrollments due", report.Message)
	assert.Empty(t, report.Details)
	assert.Equal(t, 0, pool.getCalls)
}

func TestProcessDueEnrollmentsEnumerationFailure(t *testing.T) {
	store := newFakeStore()
	store.dueErr = errors.New("connection refused")

	report, err := newTestProcessor(store, newFakePool(), time.Now()).ProcessDueEnrollments()

	require.Error(t, err)
	assert.Nil(t, report)
	assert.Contains(t, err.Error(), "failed to query due enrollments")
}

func TestProcessDueEnrollmentsSendsAndAdvances(t *testing.T) {
	store := newFakeStore()
	pool := newFakePool()
	seedSender(store)
	seedTemplate(store, 100, "Welcome {{first_name}}", `<p>Hi {{first_name}} {{last_name}}</p>`)
	seedTemplate(store, 101, "Checking in", `<p>Still there?</p>`)

	steps := []models.SequenceStep{
		{TemplateID: 100},
		{TemplateID: 101, DelayValue: utils.Pointer(3), DelayUnit: "days"},
	}
	store.enrollments = []models.SequenceEnrollment{testEnrollment(1, 0, steps)}

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	report, err := newTestProcessor(store, pool, now).ProcessDueEnrollments()

	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, 0, report.FailureCount)

	// The message went out with variables substituted and tracking injected
	transport := pool.transports[30]
	require.NotNil(t, transport)
	require.Len(t, transport.sent, 1)
	msg := transport.sent[0]
	assert.Equal(t, "jane@example.com", msg.To)
	assert.Equal(t, "Welcome {{first_name}}", msg.Subject)
	assert.Contains(t, msg.HTML, "Hi Jane Doe")
	assert.Contains(t, msg.HTML, "/track/open/1/")

	// The log row carries the tracked body and the sent-folder defaults
	require.Len(t, store.emailLogs, 1)
	entry := store.emailLogs[0]
	assert.Equal(t, "sent", entry.Folder)
	assert.True(t, entry.IsRead)
	assert.Equal(t, 0, entry.StepIndex)
	assert.Equal(t, msg.HTML, entry.Body)

	// Activity recorded with sequence context
	require.Len(t, store.activities, 1)
	assert.Equal(t, "sequence_email_sent", store.activities[0].Type)
	require.NotNil(t, store.activities[0].StepIndex)
	assert.Equal(t, 0, *store.activities[0].StepIndex)

	// Advanced to step 1, due after step 1's own delay
	adv, ok := store.advances[1]
	require.True(t, ok)
	assert.Equal(t, 1, adv.currentStep)
	assert.Equal(t, models.EnrollmentActive, adv.status)
	require.NotNil(t, adv.nextSendAt)
	assert.Equal(t, now.AddDate(0, 0, 3), *adv.nextSendAt)

	assert.Equal(t, 1, store.usage[30])
}

func TestProcessDueEnrollmentsLastStepCompletes(t *testing.T) {
	store := newFakeStore()
	pool := newFakePool()
	seedSender(store)
	seedTemplate(store, 100, "Bye", `<p>Last one</p>`)

	steps := []models.SequenceStep{{TemplateID: 100}}
	store.enrollments = []models.SequenceEnrollment{testEnrollment(1, 0, steps)}

	report, err := newTestProcessor(store, pool, time.Now()).ProcessDueEnrollments()

	require.NoError(t, err)
	assert.Equal(t, 1, report.SuccessCount)

	adv := store.advances[1]
	assert.Equal(t, 1, adv.currentStep)
	assert.Equal(t, models.EnrollmentCompleted, adv.status)
	assert.Nil(t, adv.nextSendAt)
}

func TestProcessDueEnrollmentsPastEndMarksCompletedWithoutSending(t *testing.T) {
	store := newFakeStore()
	pool := newFakePool()
	seedSender(store)

	// Sequence was shortened after this enrollment got ahead of it
	steps := []models.SequenceStep{{TemplateID: 100}}
	store.enrollments = []models.SequenceEnrollment{testEnrollment(1, 3, steps)}

	report, err := newTestProcessor(store, pool, time.Now()).ProcessDueEnrollments()

	require.NoError(t, err)
	assert.Equal(t, 1, report.SuccessCount)
	assert.Contains(t, report.Details[0].Message, "marked completed")
	assert.Equal(t, 0, pool.totalSent())
	assert.Empty(t, store.emailLogs)

	adv := store.advances[1]
	assert.Equal(t, 3, adv.currentStep)
	assert.Equal(t, models.EnrollmentCompleted, adv.status)
	assert.Nil(t, adv.nextSendAt)
}

func TestProcessDueEnrollmentsIsolatesFailures(t *testing.T) {
	store := newFakeStore()
	pool := newFakePool()
	seedSender(store)
	seedTemplate(store, 100, "Hello", `<p>Hello</p>`)

	good := []models.SequenceStep{{TemplateID: 100}}
	broken := []models.SequenceStep{{TemplateID: 999}} // template does not exist

	e1 := testEnrollment(1, 0, good)
	e2 := testEnrollment(2, 0, broken)
	e3 := testEnrollment(3, 0, good)
	store.enrollments = []models.SequenceEnrollment{e1, e2, e3}

	report, err := newTestProcessor(store, pool, time.Now()).ProcessDueEnrollments()

	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 1, report.FailureCount)

	// Result order matches enumeration order
	assert.Equal(t, resultSuccess, report.Details[0].Status)
	assert.Equal(t, resultError, report.Details[1].Status)
	assert.Contains(t, report.Details[1].Message, "template 999 not found")
	assert.Equal(t, resultSuccess, report.Details[2].Status)

	// The failed enrollment keeps its state for the next run
	_, advanced := store.advances[2]
	assert.False(t, advanced)
	assert.Equal(t, 2, pool.totalSent())
}

func TestProcessDueEnrollmentsMissingCredentials(t *testing.T) {
	store := newFakeStore()
	pool := newFakePool()
	sender := seedSender(store)
	sender.SMTPPassword = ""
	seedTemplate(store, 100, "Hello", `<p>Hello</p>`)

	steps := []models.SequenceStep{{TemplateID: 100}}
	store.enrollments = []models.SequenceEnrollment{testEnrollment(1, 0, steps)}

	report, err := newTestProcessor(store, pool, time.Now()).ProcessDueEnrollments()

	require.NoError(t, err)
	assert.Equal(t, 1, report.FailureCount)
	assert.Contains(t, report.Details[0].Message, "no credentials")
	assert.Equal(t, 0, pool.getCalls)
}

func TestProcessDueEnrollmentsMissingContactEmail(t *testing.T) {
	store := newFakeStore()
	pool := newFakePool()
	seedSender(store)
	seedTemplate(store, 100, "Hello", `<p>Hello</p>`)

	e := testEnrollment(1, 0, []models.SequenceStep{{TemplateID: 100}})
	e.Contact.Email = ""
	store.enrollments = []models.SequenceEnrollment{e}

	report, err := newTestProcessor(store, pool, time.Now()).ProcessDueEnrollments()

	require.NoError(t, err)
	assert.Equal(t, 1, report.FailureCount)
	assert.Contains(t, report.Details[0].Message, "no email address")
	assert.Equal(t, 0, pool.totalSent())
}

func TestProcessDueEnrollmentsSendFailureLeavesStateUntouched(t *testing.T) {
	store := newFakeStore()
	pool := newFakePool()
	seedSender(store)
	seedTemplate(store, 100, "Hello", `<p>Hello</p>`)

	// Pre-create the transport so its error is in place before the run
	transport := &fakeTransport{sendErr: errors.New("535 authentication failed")}
	pool.transports[30] = transport

	store.enrollments = []models.SequenceEnrollment{
		testEnrollment(1, 0, []models.SequenceStep{{TemplateID: 100}}),
	}

	report, err := newTestProcessor(store, pool, time.Now()).ProcessDueEnrollments()

	require.NoError(t, err)
	assert.Equal(t, 1, report.FailureCount)

	_, advanced := store.advances[1]
	assert.False(t, advanced)
	assert.Empty(t, store.activities)
	assert.Equal(t, 0, store.usage[30])
}

func TestProcessDueEnrollmentsLogWriteFailureAbortsSend(t *testing.T) {
	store := newFakeStore()
	pool := newFakePool()
	seedSender(store)
	seedTemplate(store, 100, "Hello", `<p>Hello</p>`)
	store.createLogErr = errors.New("disk full")

	store.enrollments = []models.SequenceEnrollment{
		testEnrollment(1, 0, []models.SequenceStep{{TemplateID: 100}}),
	}

	report, err := newTestProcessor(store, pool, time.Now()).ProcessDueEnrollments()

	require.NoError(t, err)
	assert.Equal(t, 1, report.FailureCount)
	assert.Contains(t, report.Details[0].Message, "failed to create email log")
	assert.Equal(t, 0, pool.totalSent())
}

func TestProcessDueEnrollmentsSharedSenderSharesTransport(t *testing.T) {
	store := newFakeStore()
	pool := newFakePool()
	seedSender(store)
	seedTemplate(store, 100, "Hello", `<p>Hello {{first_name}}</p>`)

	steps := []models.SequenceStep{{TemplateID: 100}}
	e1 := testEnrollment(1, 0, steps)
	e2 := testEnrollment(2, 0, steps)
	e2.ContactID = 21
	e2.Contact.ID = 21
	e2.Contact.Email = "bob@example.com"
	e2.Contact.FirstName = "Bob"
	store.enrollments = []models.SequenceEnrollment{e1, e2}

	report, err := newTestProcessor(store, pool, time.Now()).ProcessDueEnrollments()

	require.NoError(t, err)
	assert.Equal(t, 2, report.SuccessCount)

	// Both enrollments went through the single per-account transport
	assert.Equal(t, 2, pool.getCalls)
	assert.Len(t, pool.transports, 1)
	assert.Equal(t, 2, pool.totalSent())
}

func TestProcessDueEnrollmentsBatching(t *testing.T) {
	store := newFakeStore()
	pool := newFakePool()
	seedSender(store)
	seedTemplate(store, 100, "Hello", `<p>Hello</p>`)

	steps := []models.SequenceStep{{TemplateID: 100}}
	for i := uint(1); i <= 12; i++ {
		e := testEnrollment(i, 0, steps)
		e.Contact.Email = fmt.Sprintf("c%d@example.com", i)
		store.enrollments = append(store.enrollments, e)
	}

	report, err := newTestProcessor(store, pool, time.Now()).ProcessDueEnrollments()

	require.NoError(t, err)
	assert.Equal(t, 12, report.Processed)
	assert.Equal(t, 12, report.SuccessCount)
	assert.Equal(t, 12, pool.totalSent())
	for i, detail := range report.Details {
		assert.Equal(t, uint(i+1), detail.ID)
	}
}

func TestTwoStepSequenceScenario(t *testing.T) {
	store := newFakeStore()
	pool := newFakePool()
	seedSender(store)
	seedTemplate(store, 100, "Welcome", `<p>Welcome {{first_name}}</p>`)
	seedTemplate(store, 101, "Follow up", `<p>Any thoughts?</p>`)

	steps := []models.SequenceStep{
		{TemplateID: 100},
		{TemplateID: 101, DelayValue: utils.Pointer(3), DelayUnit: "days"},
	}

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Run 1: the first step goes out and the follow-up is scheduled 3 days out
	store.enrollments = []models.SequenceEnrollment{testEnrollment(1, 0, steps)}
	report, err := newTestProcessor(store, pool, t0).ProcessDueEnrollments()
	require.NoError(t, err)
	require.Equal(t, 1, report.SuccessCount)

	adv := store.advances[1]
	require.NotNil(t, adv.nextSendAt)
	assert.Equal(t, t0.AddDate(0, 0, 3), *adv.nextSendAt)
	assert.Equal(t, models.EnrollmentActive, adv.status)

	// Run 2 an hour later: the enrollment is not due, so a faithful store
	// returns nothing and no mail moves
	store.enrollments = nil
	report, err = newTestProcessor(store, pool, t0.Add(time.Hour)).ProcessDueEnrollments()
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 1, pool.totalSent())

	// Run 3 past the delay: the follow-up goes out and the enrollment completes
	e := testEnrollment(1, adv.currentStep, steps)
	e.NextSendAt = adv.nextSendAt
	store.enrollments = []models.SequenceEnrollment{e}

	report, err = newTestProcessor(store, pool, t0.AddDate(0, 0, 3).Add(time.Second)).ProcessDueEnrollments()
	require.NoError(t, err)
	require.Equal(t, 1, report.SuccessCount)

	final := store.advances[1]
	assert.Equal(t, 2, final.currentStep)
	assert.Equal(t, models.EnrollmentCompleted, final.status)
	assert.Nil(t, final.nextSendAt)
	assert.Equal(t, 2, pool.totalSent())

	subjects := []string{}
	for _, msg := range pool.transports[30].sent {
		subjects = append(subjects, msg.Subject)
	}
	assert.Equal(t, []string{"Welcome", "Follow up"}, subjects)
}

func TestNextSendTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		step models.SequenceStep
		want time.Time
	}{
		{
			name: "explicit hours",
			step: models.SequenceStep{DelayValue: utils.Pointer(2), DelayUnit: "hours"},
			want: now.Add(2 * time.Hour),
		},
		{
			name: "explicit minutes",
			step: models.SequenceStep{DelayValue: utils.Pointer(30), DelayUnit: "minutes"},
			want: now.Add(30 * time.Minute),
		},
		{
			name: "explicit days",
			step: models.SequenceStep{DelayValue: utils.Pointer(3), DelayUnit: "days"},
			want: now.AddDate(0, 0, 3),
		},
		{
			name: "zero delay is immediate",
			step: models.SequenceStep{DelayValue: utils.Pointer(0), DelayUnit: "hours"},
			want: now,
		},
		{
			name: "missing value defaults to one",
			step: models.SequenceStep{DelayUnit: "days"},
			want: now.AddDate(0, 0, 1),
		},
		{
			name: "missing unit defaults to days",
			step: models.SequenceStep{DelayValue: utils.Pointer(2)},
			want: now.AddDate(0, 0, 2),
		},
		{
			name: "unknown unit falls back to days",
			step: models.SequenceStep{DelayValue: utils.Pointer(1), DelayUnit: "weeks"},
			want: now.AddDate(0, 0, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextSendTime(now, tt.step))
		})
	}
}

func TestReportCountsDeriveFromDetails(t *testing.T) {
	store := newFakeStore()
	pool := newFakePool()
	seedSender(store)
	seedTemplate(store, 100, "Hello", `<p>Hello</p>`)

	good := []models.SequenceStep{{TemplateID: 100}}
	broken := []models.SequenceStep{{TemplateID: 404}}
	store.enrollments = []models.SequenceEnrollment{
		testEnrollment(1, 0, broken),
		testEnrollment(2, 0, good),
	}

	report, err := newTestProcessor(store, pool, time.Now()).ProcessDueEnrollments()

	require.NoError(t, err)
	assert.Equal(t, report.Processed, report.SuccessCount+report.FailureCount)
	assert.True(t, strings.HasPrefix(report.Details[1].Message, "sent step 0"))
}
