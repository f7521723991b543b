package booking

import (
	"context"
	"sort"
	"sync"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// memStore enforces the live-slot uniqueness the postgres partial index gives.
type memStore struct {
	mu     sync.Mutex
	appts  map[string]model.Appointment
	events []Event
}

func newMemStore() *memStore {
	return &memStore{appts: map[string]model.Appointment{}}
}

func (m *memStore) liveHolder(doctorID, date, clock, exceptID string) (model.Appointment, bool) {
	for _, a := range m.appts {
		if a.ID != exceptID && a.DoctorID == doctorID && a.Date == date && a.Time == clock && a.Status.IsLive() {
			return a, true
		}
	}
	return model.Appointment{}, false
}

func (m *memStore) FindLiveAt(_ context.Context, doctorID, date, clock string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.liveHolder(doctorID, date, clock, ""); ok {
		return a, nil
	}
	return model.Appointment{}, ErrNotFound
}

func (m *memStore) Insert(_ context.Context, a model.Appointment, evt *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.liveHolder(a.DoctorID, a.Date, a.Time, ""); ok {
		return ErrSlotTaken
	}
	m.appts[a.ID] = a
	if evt != nil {
		m.events = append(m.events, *evt)
	}
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (m *memStore) Update(_ context.Context, a model.Appointment, expected model.Status, evt *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.appts[a.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expected {
		return ErrStale
	}
	if a.Status.IsLive() {
		if _, taken := m.liveHolder(a.DoctorID, a.Date, a.Time, a.ID); taken {
			return ErrSlotTaken
		}
	}
	m.appts[a.ID] = a
	if evt != nil {
		m.events = append(m.events, *evt)
	}
	return nil
}

func (m *memStore) List(_ context.Context, f ListFilter) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if f.PatientID != "" && a.PatientID != f.PatientID {
			continue
		}
		if f.DoctorID != "" && a.DoctorID != f.DoctorID {
			continue
		}
		if f.Date != "" && a.Date != f.Date {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) BookedTimes(_ context.Context, doctorID, date string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.Date == date && a.Status.IsLive() {
			out = append(out, a.Time)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}
