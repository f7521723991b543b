package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/ledger"
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/notify"
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var ErrNotFound = storage.ErrNotFound

type AppointmentSource interface {
	ConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]storage.Appointment, error)
	GetByID(ctx context.Context, id string) (storage.Appointment, error)
}

type Notifier interface {
	SendReminder(ctx context.Context, a storage.Appointment, window string) (notify.Result, error)
}

type Config struct {
	Windows []Window
	// ResetEvery clears the ledger on a fixed interval. Zero means daily at
	// midnight in Location.
	ResetEvery time.Duration
	Location   *time.Location
}

type ScanResult struct {
	Window  string
	Found   int
	Sent    int
	Skipped int
	Failed  int
}

type Engine struct {
	source   AppointmentSource
	notifier Notifier
	ledger   ledger.Ledger
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time

	sent   metric.Int64Counter
	failed metric.Int64Counter
	resets metric.Int64Counter
}

func NewEngine(source AppointmentSource, notifier Notifier, l ledger.Ledger, logger *slog.Logger, cfg Config) (*Engine, error) {
	if len(cfg.Windows) == 0 {
		cfg.Windows = []Window{DayBefore(), HourBefore()}
	}
	seen := map[string]bool{}
	for _, w := range cfg.Windows {
		if err := w.Validate(); err != nil {
			return nil, err
		}
		if seen[w.Label] {
			return nil, fmt.Errorf("reminder window %s: duplicate label", w.Label)
		}
		seen[w.Label] = true
	}
	if cfg.ResetEvery < 0 {
		return nil, fmt.Errorf("ledger reset interval must not be negative")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	m := otelx.Meter("reminder-service/reminders")
	return &Engine{
		source:   source,
		notifier: notifier,
		ledger:   l,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		sent:     otelx.MustCounter(m, "reminders_dispatched_total", "Reminders delivered on at least one channel."),
		failed:   otelx.MustCounter(m, "reminders_failed_total", "Reminders that could not be delivered."),
		resets:   otelx.MustCounter(m, "reminder_ledger_resets_total", "Dedup ledger resets."),
	}, nil
}

func (e *Engine) Windows() []Window {
	return append([]Window(nil), e.cfg.Windows...)
}

// Scan reminds every confirmed appointment inside w that the ledger has not
// seen this epoch. The ledger is claimed before sending, so a failed delivery
// is not retried until the next reset. Item failures never abort the scan.
func (e *Engine) Scan(ctx context.Context, w Window) (ScanResult, error) {
	res := ScanResult{Window: w.Label}
	from, to := w.Bounds(e.now())
	appts, err := e.source.ConfirmedStartingBetween(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("list %s window: %w", w.Label, err)
	}
	res.Found = len(appts)
	attrs := metric.WithAttributes(attribute.String("window", w.Label))

	for _, a := range appts {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		first, err := e.ledger.Claim(ctx, a.ID, w.Label)
		if err != nil {
			e.logger.Error("ledger claim failed", "appointment_id", a.ID, "window", w.Label, "err", err)
			res.Failed++
			continue
		}
		if !first {
			res.Skipped++
			continue
		}
		out, err := e.notifier.SendReminder(ctx, a, w.Label)
		if err != nil {
			e.logger.Warn("reminder delivery failed", "appointment_id", a.ID, "window", w.Label, "email_sent", out.EmailSent, "sms_sent", out.SMSSent, "err", err)
		}
		if out.Any() {
			res.Sent++
			e.sent.Add(ctx, 1, attrs)
		} else {
			res.Failed++
			e.failed.Add(ctx, 1, attrs)
		}
	}
	return res, nil
}

// SendImmediate reminds the patient of appointment id regardless of the
// ledger and reports whether any channel accepted the message.
func (e *Engine) SendImmediate(ctx context.Context, id string) (bool, error) {
	a, err := e.source.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	attrs := metric.WithAttributes(attribute.String("window", "manual"))
	out, err := e.notifier.SendReminder(ctx, a, "")
	if out.Any() {
		if err != nil {
			e.logger.Warn("manual reminder partially delivered", "appointment_id", id, "err", err)
		}
		e.sent.Add(ctx, 1, attrs)
		return true, nil
	}
	e.failed.Add(ctx, 1, attrs)
	if err == nil {
		err = errors.New("no channel accepted the reminder")
	}
	return false, err
}

// Reset starts a new ledger epoch.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.ledger.Reset(ctx); err != nil {
		return err
	}
	e.resets.Add(ctx, 1)
	return nil
}

// Run scans each window once, then on its own ticker, and resets the ledger
// on the configured cadence. It returns when ctx is done.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range e.cfg.Windows {
		wg.Add(1)
		go func(w Window) {
			defer wg.Done()
			e.scanLoop(ctx, w)
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.resetLoop(ctx)
	}()
	wg.Wait()
}

func (e *Engine) scanLoop(ctx context.Context, w Window) {
	ticker := time.NewTicker(w.Every)
	defer ticker.Stop()

	for {
		e.runScan(ctx, w)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) runScan(ctx context.Context, w Window) {
	res, err := e.Scan(ctx, w)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error("reminder scan failed", "window", w.Label, "err", err)
		}
		return
	}
	if res.Found > 0 {
		e.logger.Info("reminder scan finished", "window", w.Label, "found", res.Found, "sent", res.Sent, "skipped", res.Skipped, "failed", res.Failed)
	}
}

func (e *Engine) resetLoop(ctx context.Context) {
	for {
		timer := time.NewTimer(e.untilReset())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := e.Reset(ctx); err != nil {
			e.logger.Error("ledger reset failed", "err", err)
			continue
		}
		e.logger.Info("reminder ledger reset")
	}
}

func (e *Engine) untilReset() time.Duration {
	if e.cfg.ResetEvery > 0 {
		return e.cfg.ResetEvery
	}
	now := e.now()
	return nextMidnight(now, e.cfg.Location).Sub(now)
}
