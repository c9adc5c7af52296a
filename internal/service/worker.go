package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"wadispatch/internal/model"
	"wadispatch/internal/repo"
)

// Rejection errors surfaced synchronously to the caller.
var (
	ErrMissingFields     = errors.New("message and ownerId are required")
	ErrAlreadySending    = errors.New("a campaign is already sending")
	ErrNotConnected      = errors.New("whatsapp session is not connected")
	ErrNoValidRecipients = errors.New("no valid recipients")
)

// Sender is the slice of the connection supervisor the worker needs.
type Sender interface {
	Send(ctx context.Context, phoneNumber, message string) (remoteMessageID string, err error)
	Connected() bool
}

// SentHook is called after each successful send. Used to cache remote
// message ids; failures there never affect the campaign.
type SentHook func(ctx context.Context, campaignID int64, contactPhone, remoteMessageID string)

type FailedRecipient struct {
	Phone  string `json:"phone"`
	Reason string `json:"reason"`
}

// Report is the summary of the last finished campaign.
type Report struct {
	SuccessPhones     []string          `json:"successPhones"`
	FailedWithReasons []FailedRecipient `json:"failedWithReasons"`
}

// StatusReport is the coarse polling payload: "sending" while a campaign is
// in flight, the last summary once it is not.
type StatusReport struct {
	Status string  `json:"status"`
	Report *Report `json:"report,omitempty"`
}

// Worker runs at most one campaign at a time. The busy flag is the only
// externally observable handle of the background loop.
type Worker struct {
	sender    Sender
	repo      repo.CampaignRepository
	pacingMin time.Duration
	pacingMax time.Duration

	onSent SentHook

	busy atomic.Bool

	mu         sync.Mutex
	lastReport *Report
}

func NewWorker(sender Sender, r repo.CampaignRepository, pacingMin, pacingMax time.Duration) (*Worker, error) {
	if sender == nil {
		return nil, errors.New("sender must not be nil")
	}
	if r == nil {
		return nil, errors.New("repository must not be nil")
	}
	if pacingMin < 0 || pacingMax < pacingMin {
		return nil, errors.New("pacing bounds must satisfy 0 <= min <= max")
	}
	return &Worker{
		sender:    sender,
		repo:      r,
		pacingMin: pacingMin,
		pacingMax: pacingMax,
	}, nil
}

// WithSentHook registers the successful-send hook.
func (w *Worker) WithSentHook(h SentHook) *Worker {
	w.onSent = h
	return w
}

// Submit accepts one campaign and runs it in the background. A second submit
// while busy is rejected, not queued.
func (w *Worker) Submit(ownerID, message, contacts string) error {
	if strings.TrimSpace(message) == "" || strings.TrimSpace(ownerID) == "" {
		return ErrMissingFields
	}
	if w.busy.Load() {
		return ErrAlreadySending
	}
	if !w.sender.Connected() {
		return ErrNotConnected
	}

	recipients := ParseRecipients(contacts)
	if len(recipients) == 0 {
		return ErrNoValidRecipients
	}

	// Claim the flag before any asynchronous work to close the race window.
	if !w.busy.CompareAndSwap(false, true) {
		return ErrAlreadySending
	}

	go w.run(context.Background(), ownerID, message, recipients)
	return nil
}

// Busy reports whether a campaign is in flight.
func (w *Worker) Busy() bool {
	return w.busy.Load()
}

// Report implements the single-slot status projection.
func (w *Worker) Report() StatusReport {
	if w.busy.Load() {
		return StatusReport{Status: "sending"}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.lastReport == nil {
		return StatusReport{Status: "idle"}
	}
	return StatusReport{Status: "completed", Report: w.lastReport}
}

func (w *Worker) run(ctx context.Context, ownerID, message string, recipients []model.Recipient) {
	// Release the flag no matter how the loop exits, panics included; the
	// system must never wedge in a permanently-busy state.
	defer w.busy.Store(false)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("campaign dispatch panic recovered", "panic", r)
		}
	}()

	campaignID, err := w.repo.CreateCampaign(ctx, ownerID, message, len(recipients))
	if err != nil {
		slog.Error("failed to create campaign", "error", err)
		return
	}

	slog.Info("campaign started", "campaign_id", campaignID, "recipients", len(recipients))

	var report Report
	aborted := false

	for i, rcpt := range recipients {
		if !w.sender.Connected() {
			slog.Error("session lost mid-campaign, aborting remainder",
				"campaign_id", campaignID, "attempted", i, "remaining", len(recipients)-i)
			aborted = true
			break
		}

		body := RenderTemplate(message, rcpt)

		remoteID, err := w.sender.Send(ctx, digitsOnly(rcpt.Phone), body)
		if err != nil {
			report.FailedWithReasons = append(report.FailedWithReasons, FailedRecipient{
				Phone:  rcpt.Phone,
				Reason: err.Error(),
			})
			w.appendLog(ctx, campaignID, rcpt.Phone, model.OutcomeFailed, err.Error())
			slog.Warn("send failed", "campaign_id", campaignID, "phone", rcpt.Phone, "error", err)
		} else {
			report.SuccessPhones = append(report.SuccessPhones, rcpt.Phone)
			w.appendLog(ctx, campaignID, rcpt.Phone, model.OutcomeSuccess, "")
			if w.onSent != nil {
				w.onSent(ctx, campaignID, rcpt.Phone, remoteID)
			}
		}

		if i < len(recipients)-1 {
			time.Sleep(w.pacingDelay())
		}
	}

	status := finalStatus(len(report.SuccessPhones), len(report.FailedWithReasons), aborted)
	if err := w.repo.FinalizeCampaign(ctx, campaignID, status); err != nil {
		slog.Error("failed to finalize campaign", "campaign_id", campaignID, "error", err)
	}

	slog.Info("campaign finished",
		"campaign_id", campaignID,
		"status", status,
		"sent", len(report.SuccessPhones),
		"failed", len(report.FailedWithReasons),
	)

	w.mu.Lock()
	w.lastReport = &report
	w.mu.Unlock()
}

// appendLog records one attempt's outcome. The send already happened, so a
// write failure is reported but never retried.
func (w *Worker) appendLog(ctx context.Context, campaignID int64, phone string, outcome model.Outcome, reason string) {
	if err := w.repo.AppendLog(ctx, campaignID, phone, outcome, reason); err != nil {
		slog.Error("failed to append dispatch log",
			"campaign_id", campaignID, "phone", phone, "error", err)
	}
}

// pacingDelay draws a uniform random delay within the configured bounds.
// Fixed-interval sends are a pattern automated abuse detection flags.
func (w *Worker) pacingDelay() time.Duration {
	if w.pacingMax <= 0 {
		return 0
	}
	if w.pacingMax == w.pacingMin {
		return w.pacingMin
	}
	return w.pacingMin + rand.N(w.pacingMax-w.pacingMin)
}

func finalStatus(succeeded, failed int, aborted bool) model.CampaignStatus {
	switch {
	case aborted:
		return model.Failed
	case succeeded == 0:
		return model.Failed
	case failed == 0:
		return model.Completed
	default:
		return model.PartialFailure
	}
}
