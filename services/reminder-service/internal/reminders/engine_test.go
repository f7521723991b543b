package reminders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/ledger"
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/notify"
	"github.com/md-rashed-zaman/clinicbook/services/reminder-service/internal/storage"
)

type fakeSource struct {
	appts   []storage.Appointment
	listErr error
}

func (f *fakeSource) ConfirmedStartingBetween(_ context.Context, from, to time.Time) ([]storage.Appointment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []storage.Appointment
	for _, a := range f.appts {
		if a.Status == "confirmed" && !a.StartsAt.Before(from) && !a.StartsAt.After(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeSource) GetByID(_ context.Context, id string) (storage.Appointment, error) {
	for _, a := range f.appts {
		if a.ID == id {
			return a, nil
		}
	}
	return storage.Appointment{}, storage.ErrNotFound
}

type call struct{ id, window string }

type fakeNotifier struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]error
}

func (f *fakeNotifier) SendReminder(_ context.Context, a storage.Appointment, window string) (notify.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{a.ID, window})
	if err := f.fail[a.ID]; err != nil {
		return notify.Result{}, err
	}
	return notify.Result{EmailSent: true}, nil
}

func (f *fakeNotifier) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.id == id {
			n++
		}
	}
	return n
}

type downEmail struct{}

func (downEmail) Send(context.Context, string, string, string) error {
	return errors.New("smtp down")
}

type failingLedger struct {
	ledger.Ledger
	failFor string
}

func (f failingLedger) Claim(ctx context.Context, id, label string) (bool, error) {
	if id == f.failFor {
		return false, errors.New("ledger unavailable")
	}
	return f.Ledger.Claim(ctx, id, label)
}

var testNow = time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

func appt(id string, in time.Duration) storage.Appointment {
	return storage.Appointment{ID: id, Status: "confirmed", StartsAt: testNow.Add(in)}
}

func newTestEngine(t *testing.T, src AppointmentSource, n Notifier, l ledger.Ledger) *Engine {
	t.Helper()
	e, err := NewEngine(src, n, l, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e.now = func() time.Time { return testNow }
	return e
}

func TestScanSelectsWindow(t *testing.T) {
	src := &fakeSource{appts: []storage.Appointment{
		appt("in-24h", 23*time.Hour+30*time.Minute),
		appt("edge-24h", 24*time.Hour),
		appt("too-late", 25*time.Hour),
		appt("in-1h", 55*time.Minute),
		appt("too-soon", 30*time.Minute),
	}}
	pending := appt("pending", 23*time.Hour+30*time.Minute)
	pending.Status = "pending"
	src.appts = append(src.appts, pending)

	n := &fakeNotifier{}
	e := newTestEngine(t, src, n, ledger.NewMemory())

	res, err := e.Scan(context.Background(), DayBefore())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Found != 2 || res.Sent != 2 {
		t.Fatalf("unexpected 24h result: %+v", res)
	}
	res, err = e.Scan(context.Background(), HourBefore())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Found != 1 || res.Sent != 1 || n.count("in-1h") != 1 {
		t.Fatalf("unexpected 1h result: %+v", res)
	}
	for _, id := range []string{"too-late", "too-soon", "pending"} {
		if n.count(id) != 0 {
			t.Fatalf("%s should not be reminded", id)
		}
	}
	if n.calls[0].window != "24h" {
		t.Fatalf("expected window label to reach notifier, got %q", n.calls[0].window)
	}
}

func TestScanIdempotentWithinEpoch(t *testing.T) {
	src := &fakeSource{appts: []storage.Appointment{appt("a1", 23*time.Hour+30*time.Minute)}}
	n := &fakeNotifier{}
	l := ledger.NewMemory()
	e := newTestEngine(t, src, n, l)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := e.Scan(ctx, DayBefore()); err != nil {
			t.Fatalf("Scan: %v", err)
		}
	}
	if got := n.count("a1"); got != 1 {
		t.Fatalf("expected 1 reminder within epoch, got %d", got)
	}
	if ok, _ := l.Contains(ctx, "a1", "24h"); !ok {
		t.Fatal("expected ledger entry")
	}

	if err := e.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	res, err := e.Scan(ctx, DayBefore())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Sent != 1 || n.count("a1") != 2 {
		t.Fatalf("expected re-fire after reset, got %+v (calls=%d)", res, n.count("a1"))
	}
}

func TestScanWindowsAreIndependent(t *testing.T) {
	src := &fakeSource{appts: []storage.Appointment{appt("a1", 55*time.Minute)}}
	n := &fakeNotifier{}
	l := ledger.NewMemory()
	e := newTestEngine(t, src, n, l)

	if _, err := l.Claim(context.Background(), "a1", "24h"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	res, err := e.Scan(context.Background(), HourBefore())
	if err != nil || res.Sent != 1 {
		t.Fatalf("1h window must not be blocked by the 24h entry: %+v %v", res, err)
	}
}

func TestScanIsolatesFailures(t *testing.T) {
	src := &fakeSource{appts: []storage.Appointment{
		appt("ok-1", 23*time.Hour+10*time.Minute),
		appt("send-fails", 23*time.Hour+20*time.Minute),
		appt("ledger-fails", 23*time.Hour+30*time.Minute),
		appt("ok-2", 23*time.Hour+40*time.Minute),
	}}
	n := &fakeNotifier{fail: map[string]error{"send-fails": errors.New("smtp down")}}
	l := ledger.NewMemory()
	e := newTestEngine(t, src, n, failingLedger{Ledger: l, failFor: "ledger-fails"})
	ctx := context.Background()

	res, err := e.Scan(ctx, DayBefore())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Found != 4 || res.Sent != 2 || res.Failed != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if n.count("ok-2") != 1 {
		t.Fatal("items after a failure must still be processed")
	}
	if n.count("ledger-fails") != 0 {
		t.Fatal("an unclaimed item must not be sent")
	}

	// The failed send was claimed, so it is not retried until reset.
	if _, err := e.Scan(ctx, DayBefore()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n.count("send-fails") != 1 {
		t.Fatalf("failed send retried within epoch: %d", n.count("send-fails"))
	}
}

func TestScanListError(t *testing.T) {
	e := newTestEngine(t, &fakeSource{listErr: errors.New("db down")}, &fakeNotifier{}, ledger.NewMemory())
	if _, err := e.Scan(context.Background(), DayBefore()); err == nil {
		t.Fatal("expected list error")
	}
}

func TestSendImmediate(t *testing.T) {
	src := &fakeSource{appts: []storage.Appointment{appt("a1", 72*time.Hour), appt("broken", time.Hour)}}
	n := &fakeNotifier{fail: map[string]error{"broken": errors.New("smtp down")}}
	l := ledger.NewMemory()
	e := newTestEngine(t, src, n, l)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		sent, err := e.SendImmediate(ctx, "a1")
		if err != nil || !sent {
			t.Fatalf("SendImmediate: %v %v", sent, err)
		}
	}
	if n.count("a1") != 2 {
		t.Fatalf("manual sends ignore the ledger, got %d", n.count("a1"))
	}
	if l.Len() != 0 {
		t.Fatal("manual sends must not touch the ledger")
	}

	if _, err := e.SendImmediate(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if sent, err := e.SendImmediate(ctx, "broken"); sent || err == nil {
		t.Fatalf("expected delivery failure, got %v %v", sent, err)
	}
}

func TestWindowValidate(t *testing.T) {
	for _, w := range []Window{DayBefore(), HourBefore()} {
		if err := w.Validate(); err != nil {
			t.Fatalf("default window %s invalid: %v", w.Label, err)
		}
	}
	bad := []Window{
		{Label: "", Every: time.Hour, From: 0, To: time.Hour},
		{Label: "narrow", Every: time.Hour, From: 50 * time.Minute, To: time.Hour},
		{Label: "inverted", Every: time.Minute, From: time.Hour, To: 50 * time.Minute},
		{Label: "zero-every", Every: 0, From: 0, To: time.Hour},
	}
	for _, w := range bad {
		if err := w.Validate(); err == nil {
			t.Fatalf("expected %+v to be rejected", w)
		}
	}
	if _, err := NewEngine(&fakeSource{}, &fakeNotifier{}, ledger.NewMemory(), slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Windows: []Window{bad[1]}}); err == nil {
		t.Fatal("expected engine to refuse a narrow window")
	}
	if _, err := NewEngine(&fakeSource{}, &fakeNotifier{}, ledger.NewMemory(), slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Windows: []Window{DayBefore(), DayBefore()}}); err == nil {
		t.Fatal("expected engine to refuse duplicate labels")
	}
}

func TestUntilReset(t *testing.T) {
	loc := time.FixedZone("clinic", -5*3600)
	e := newTestEngine(t, &fakeSource{}, &fakeNotifier{}, ledger.NewMemory())
	e.cfg.Location = loc
	// 10:00 UTC is 05:00 clinic time, so midnight is 19h away.
	if got := e.untilReset(); got != 19*time.Hour {
		t.Fatalf("expected 19h until clinic midnight, got %s", got)
	}
	e.cfg.ResetEvery = 6 * time.Hour
	if got := e.untilReset(); got != 6*time.Hour {
		t.Fatalf("expected fixed interval, got %s", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &fakeSource{appts: []storage.Appointment{appt("a1", 23*time.Hour+30*time.Minute)}}
	n := &fakeNotifier{}
	e := newTestEngine(t, src, n, ledger.NewMemory())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for n.count("a1") == 0 {
		select {
		case <-deadline:
			t.Fatal("initial scan did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSendImmediateWithDisabledSMSAndFailedEmail(t *testing.T) {
	a := appt("a1", 72*time.Hour)
	a.Patient = storage.Contact{FirstName: "Grace", Email: "grace@example.com", Phone: "+1 650-253-0000"}
	d := notify.NewDispatcher(downEmail{}, notify.NewNoopSender(), notify.DispatcherConfig{})
	e := newTestEngine(t, &fakeSource{appts: []storage.Appointment{a}}, d, ledger.NewMemory())

	sent, err := e.SendImmediate(context.Background(), "a1")
	if sent || err == nil {
		t.Fatalf("expected failure when no channel delivered, got %v %v", sent, err)
	}
}
