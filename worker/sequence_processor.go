package worker

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"relaycrm/models"
	"relaycrm/utils"
)

// Report is the aggregated outcome of one processing run.
type Report struct {
	Processed    int                `json:"processed"`
	SuccessCount int                `json:"successCount"`
	FailureCount int                `json:"failureCount"`
	Message      string             `json:"message,omitempty"`
	Details      []EnrollmentResult `json:"details"`
}

// EnrollmentResult is the outcome for a single enrollment.
type EnrollmentResult struct {
	ID      uint   `json:"id"`
	Status  string `json:"status"` // success or error
	Message string `json:"message"`
}

const (
	resultSuccess = "success"
	resultError   = "error"

	defaultBatchSize = 5
)

// SequenceProcessor advances due enrollments through their sequences. One
// processor instance serves one run: the transport pool it holds is shared
// across every batch of that run and torn down when the run returns.
type SequenceProcessor struct {
	store           Store
	pool            utils.TransportPool
	logger          *log.Logger
	trackingBaseURL string
	batchSize       int

	now func() time.Time // injected for tests
}

func NewSequenceProcessor(store Store, pool utils.TransportPool, logger *log.Logger, trackingBaseURL string, batchSize int) *SequenceProcessor {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &SequenceProcessor{
		store:           store,
		pool:            pool,
		logger:          logger,
		trackingBaseURL: trackingBaseURL,
		batchSize:       batchSize,
		now:             time.Now,
	}
}

// ProcessDueEnrollments runs one snapshot of due enrollments to completion.
// Individual enrollment failures are isolated into the report; only a failure
// to enumerate the due set is returned as an error.
func (sp *SequenceProcessor) ProcessDueEnrollments() (*Report, error) {
	due, err := sp.store.DueEnrollments()
	if err != nil {
		return nil, fmt.Errorf("failed to query due enrollments: %w", err)
	}

	if len(due) == 0 {
		return &Report{Processed: 0, Message: "no enrollments due", Details: []EnrollmentResult{}}, nil
	}

	sp.logger.Printf("Processing %d due enrollments in batches of %d", len(due), sp.batchSize)

	report := &Report{Processed: len(due), Details: make([]EnrollmentResult, len(due))}

	// Batches run one after another; inside a batch every enrollment is
	// advanced concurrently against the shared transport pool.
	for start := 0; start < len(due); start += sp.batchSize {
		end := start + sp.batchSize
		if end > len(due) {
			end = len(due)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				report.Details[idx] = sp.advance(&due[idx])
			}(i)
		}
		wg.Wait()
	}

	for _, r := range report.Details {
		if r.Status == resultSuccess {
			report.SuccessCount++
		} else {
			report.FailureCount++
		}
	}

	return report, nil
}

// advance moves one due enrollment forward: resolve template and sending
// account, log, inject tracking, send, then persist the new enrollment state.
// Any failure along the way leaves the enrollment untouched so the next run
// picks it up again.
func (sp *SequenceProcessor) advance(e *models.SequenceEnrollment) EnrollmentResult {
	steps := e.Sequence.Steps

	// Steps may have been edited to be shorter than enrollments in flight.
	if e.CurrentStep >= len(steps) {
		if err := sp.store.AdvanceEnrollment(e.ID, e.CurrentStep, models.EnrollmentCompleted, nil); err != nil {
			return sp.failure(e, fmt.Errorf("failed to mark enrollment completed: %w", err))
		}
		return EnrollmentResult{ID: e.ID, Status: resultSuccess, Message: "no more steps, marked completed"}
	}

	step := steps[e.CurrentStep]

	tmpl, err := sp.store.TemplateByID(step.TemplateID)
	if err != nil {
		return sp.failure(e, fmt.Errorf("template %d not found: %w", step.TemplateID, err))
	}

	sender, err := sp.store.SenderByID(e.Sequence.SenderID)
	if err != nil {
		return sp.failure(e, fmt.Errorf("sending account %d not found: %w", e.Sequence.SenderID, err))
	}
	if sender.SMTPPassword == "" {
		return sp.failure(e, fmt.Errorf("sending account %d has no credentials", sender.ID))
	}

	if e.Contact.Email == "" {
		return sp.failure(e, fmt.Errorf("contact %d has no email address", e.ContactID))
	}

	transport, err := sp.pool.Get(sender)
	if err != nil {
		return sp.failure(e, err)
	}

	subject := utils.EffectiveSubject(step, tmpl)
	body := utils.RenderContactVariables(utils.EffectiveBody(tmpl), &e.Contact)

	fromName := sender.FromName
	if fromName == "" {
		fromName = sender.SMTPUsername
	}
	fromEmail := sender.FromEmail
	if fromEmail == "" {
		fromEmail = sender.SMTPUsername
	}

	// The log row is created first so its id can be embedded in the tracking
	// URLs; if this write fails the send is not attempted at all.
	entry := &models.EmailLog{
		OrganizationID: e.OrganizationID,
		SenderID:       sender.ID,
		ContactID:      e.ContactID,
		EnrollmentID:   e.ID,
		SequenceID:     e.SequenceID,
		StepIndex:      e.CurrentStep,
		From:           fromEmail,
		To:             e.Contact.Email,
		Subject:        subject,
		Body:           body,
		Folder:         "sent",
		IsRead:         true,
	}
	if err := sp.store.CreateEmailLog(entry); err != nil {
		return sp.failure(e, fmt.Errorf("failed to create email log: %w", err))
	}

	tracked := utils.InjectTracking(body, sp.trackingBaseURL, strconv.FormatUint(uint64(entry.ID), 10))
	if err := sp.store.UpdateEmailLogBody(entry.ID, tracked); err != nil {
		return sp.failure(e, fmt.Errorf("failed to store tracked body: %w", err))
	}

	if err := transport.Send(&utils.OutgoingEmail{
		FromName:  fromName,
		FromEmail: fromEmail,
		To:        e.Contact.Email,
		Subject:   subject,
		HTML:      tracked,
	}); err != nil {
		return sp.failure(e, err)
	}

	activity := &models.ContactActivity{
		OrganizationID: e.OrganizationID,
		ContactID:      e.ContactID,
		Type:           "sequence_email_sent",
		Description:    fmt.Sprintf("Sent step %d of sequence %q", e.CurrentStep, e.Sequence.Name),
		SequenceID:     &e.SequenceID,
		StepIndex:      utils.Pointer(e.CurrentStep),
	}
	if err := sp.store.CreateActivity(activity); err != nil {
		return sp.failure(e, fmt.Errorf("failed to record activity: %w", err))
	}

	nextStep := e.CurrentStep + 1
	status := models.EnrollmentActive
	var nextSendAt *time.Time
	if nextStep < len(steps) {
		nextSendAt = utils.Pointer(NextSendTime(sp.now(), steps[nextStep]))
	} else {
		status = models.EnrollmentCompleted
	}

	if err := sp.store.AdvanceEnrollment(e.ID, nextStep, status, nextSendAt); err != nil {
		return sp.failure(e, fmt.Errorf("failed to advance enrollment: %w", err))
	}

	if err := sp.store.IncrementSenderUsage(sender.ID); err != nil {
		sp.logger.Printf("Failed to update usage for sender %d: %v", sender.ID, err)
	}

	return EnrollmentResult{
		ID:      e.ID,
		Status:  resultSuccess,
		Message: fmt.Sprintf("sent step %d to %s", e.CurrentStep, e.Contact.Email),
	}
}

func (sp *SequenceProcessor) failure(e *models.SequenceEnrollment, err error) EnrollmentResult {
	sp.logger.Printf("Enrollment %d failed: %v", e.ID, err)
	return EnrollmentResult{ID: e.ID, Status: resultError, Message: err.Error()}
}

// NextSendTime computes when the given step becomes due, relative to now.
// A missing delay value defaults to 1 (legacy records predate the field)
// while an explicit 0 is honored; a missing unit defaults to days. Arithmetic
// is wall-clock on the current instant, no timezone conversion.
func NextSendTime(now time.Time, step models.SequenceStep) time.Time {
	value := 1
	if step.DelayValue != nil {
		value = *step.DelayValue
	}

	switch step.DelayUnit {
	case "minutes":
		return now.Add(time.Duration(value) * time.Minute)
	case "hours":
		return now.Add(time.Duration(value) * time.Hour)
	default: // days
		return now.AddDate(0, 0, value)
	}
}
