package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/vitalwatch/vitalwatch/internal/domain/alerts"
	"github.com/vitalwatch/vitalwatch/internal/domain/registry"
	"github.com/vitalwatch/vitalwatch/internal/domain/vitals"
	"github.com/vitalwatch/vitalwatch/internal/platform/realtime"
)

// -- Mock repositories --

type mockBindings struct {
	store     map[string]*registry.Binding
	syncs     int
	lookupErr error
}

func newMockBindings() *mockBindings {
	return &mockBindings{store: make(map[string]*registry.Binding)}
}

func (m *mockBindings) Create(_ context.Context, b *registry.Binding) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	m.store[b.DeviceID] = b
	return nil
}

func (m *mockBindings) GetByDeviceID(_ context.Context, deviceID string) (*registry.Binding, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	b, ok := m.store[deviceID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return b, nil
}

func (m *mockBindings) ListActive(_ context.Context) ([]*registry.Binding, error) {
	var r []*registry.Binding
	for _, b := range m.store {
		if b.IsActive {
			r = append(r, b)
		}
	}
	return r, nil
}

func (m *mockBindings) List(_ context.Context, limit, offset int) ([]*registry.Binding, int, error) {
	var r []*registry.Binding
	for _, b := range m.store {
		r = append(r, b)
	}
	return r, len(r), nil
}

func (m *mockBindings) UpdateLastSync(_ context.Context, id uuid.UUID) error {
	m.syncs++
	return nil
}

func (m *mockBindings) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	return nil
}

type mockReadings struct {
	store     []*vitals.Reading
	appendErr error
}

func (m *mockReadings) Append(_ context.Context, r *vitals.Reading) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = time.Now()
	m.store = append(m.store, r)
	return nil
}

func (m *mockReadings) Latest(_ context.Context, patientID uuid.UUID) (*vitals.Reading, error) {
	return nil, pgx.ErrNoRows
}

func (m *mockReadings) Window(_ context.Context, patientID uuid.UUID, from, to time.Time, limit, offset int) ([]*vitals.Reading, int, error) {
	return nil, 0, nil
}

type mockAlerts struct {
	store     []*alerts.Alert
	createErr error
}

func (m *mockAlerts) Create(_ context.Context, a *alerts.Alert) error {
	if m.createErr != nil {
		return m.createErr
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	m.store = append(m.store, a)
	return nil
}

func (m *mockAlerts) GetByID(_ context.Context, id uuid.UUID) (*alerts.Alert, error) {
	return nil, pgx.ErrNoRows
}

func (m *mockAlerts) ListByPatient(_ context.Context, patientID uuid.UUID, acknowledged *bool, limit, offset int) ([]*alerts.Alert, int, error) {
	return nil, 0, nil
}

func (m *mockAlerts) ListUnacknowledged(_ context.Context, limit, offset int) ([]*alerts.Alert, int, error) {
	return nil, 0, nil
}

func (m *mockAlerts) Acknowledge(_ context.Context, id uuid.UUID, by string) (*alerts.Alert, error) {
	return nil, pgx.ErrNoRows
}

type capturePublisher struct {
	events []realtime.Event
}

func (p *capturePublisher) Publish(_ context.Context, ev realtime.Event) error {
	p.events = append(p.events, ev)
	return nil
}

// -- Fixture --

type fixture struct {
	svc      *Service
	bindings *mockBindings
	readings *mockReadings
	alerts   *mockAlerts
	pub      *capturePublisher
}

func newFixture() *fixture {
	f := &fixture{
		bindings: newMockBindings(),
		readings: &mockReadings{},
		alerts:   &mockAlerts{},
		pub:      &capturePublisher{},
	}
	regSvc := registry.NewService(f.bindings, nil, zerolog.Nop())
	vitSvc := vitals.NewService(f.readings, nil, zerolog.Nop())
	alSvc := alerts.NewService(f.alerts, zerolog.Nop())
	f.svc = NewService(regSvc, vitSvc, alSvc,
		[]realtime.EventPublisher{f.pub}, time.Hour, zerolog.Nop())
	return f
}

func (f *fixture) seed(deviceID, apiKey string, active bool) *registry.Binding {
	b := &registry.Binding{
		DeviceID:  deviceID,
		APIKey:    apiKey,
		PatientID: uuid.New(),
		IsActive:  active,
	}
	f.bindings.Create(context.Background(), b)
	return b
}

func fptr(v float64) *float64 { return &v }

func validRequest(deviceID string) SubmitRequest {
	return SubmitRequest{
		DeviceID:  deviceID,
		Timestamp: time.Now().UnixMilli(),
		HeartRate: fptr(75),
		SpO2:      fptr(98),
	}
}

// -- Pipeline tests --

func TestIngest_NormalReading(t *testing.T) {
	f := newFixture()
	b := f.seed("GW6-001", "key-abc", true)

	result, err := f.svc.Ingest(context.Background(), "key-abc", validRequest("GW6-001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Alerts) != 0 {
		t.Errorf("expected 0 alerts, got %d", len(result.Alerts))
	}
	if len(f.readings.store) != 1 {
		t.Fatalf("expected 1 stored reading, got %d", len(f.readings.store))
	}
	if f.readings.store[0].PatientID != b.PatientID {
		t.Error("reading must carry the binding's patient id")
	}
	if f.bindings.syncs != 1 {
		t.Errorf("expected 1 last-sync update, got %d", f.bindings.syncs)
	}
	if len(f.pub.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(f.pub.events))
	}
	if f.pub.events[0].Type != realtime.EventReadingCreated {
		t.Errorf("event type = %s, want reading_created", f.pub.events[0].Type)
	}
}

func TestIngest_AlertingReading(t *testing.T) {
	f := newFixture()
	f.seed("GW6-001", "key-abc", true)

	req := validRequest("GW6-001")
	req.HeartRate = fptr(150)
	req.SpO2 = fptr(85)

	result, err := f.svc.Ingest(context.Background(), "key-abc", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(result.Alerts))
	}
	if len(f.alerts.store) != 2 {
		t.Fatalf("expected 2 stored alerts, got %d", len(f.alerts.store))
	}

	// One reading event followed by the alert events, in rule order.
	if len(f.pub.events) != 3 {
		t.Fatalf("expected 3 published events, got %d", len(f.pub.events))
	}
	if f.pub.events[0].Type != realtime.EventReadingCreated {
		t.Errorf("first event = %s, want reading_created", f.pub.events[0].Type)
	}
	for _, ev := range f.pub.events[1:] {
		if ev.Type != realtime.EventAlertCreated {
			t.Errorf("event type = %s, want alert_created", ev.Type)
		}
	}
}

func TestIngest_EventsCarryStoredRecords(t *testing.T) {
	f := newFixture()
	f.seed("GW6-001", "key-abc", true)

	req := validRequest("GW6-001")
	req.HeartRate = fptr(150)

	result, err := f.svc.Ingest(context.Background(), "key-abc", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.pub.events) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(f.pub.events))
	}

	var published vitals.Reading
	if err := json.Unmarshal(f.pub.events[0].Data, &published); err != nil {
		t.Fatalf("failed to unmarshal reading event: %v", err)
	}
	if published.ID != result.Reading.ID {
		t.Error("reading event must carry the stored reading")
	}
	if published.CreatedAt.IsZero() {
		t.Error("reading event must carry the storage timestamp")
	}

	var publishedAlert alerts.Alert
	if err := json.Unmarshal(f.pub.events[1].Data, &publishedAlert); err != nil {
		t.Fatalf("failed to unmarshal alert event: %v", err)
	}
	if publishedAlert.ID != result.Alerts[0].ID {
		t.Error("alert event must carry the stored alert")
	}
	if publishedAlert.CreatedAt.IsZero() {
		t.Error("alert event must carry the storage timestamp")
	}
}

func TestIngest_InvalidCredentials(t *testing.T) {
	f := newFixture()
	f.seed("GW6-001", "key-abc", true)

	for _, tc := range []struct{ device, key string }{
		{"GW6-001", "key-wrong"},
		{"GW6-404", "key-abc"},
	} {
		_, err := f.svc.Ingest(context.Background(), tc.key, validRequest(tc.device))
		if !errors.Is(err, registry.ErrInvalidCredentials) {
			t.Errorf("device=%s: expected ErrInvalidCredentials, got %v", tc.device, err)
		}
	}
	if len(f.readings.store) != 0 {
		t.Error("nothing must be stored on auth failure")
	}
}

func TestIngest_InactiveDevice(t *testing.T) {
	f := newFixture()
	f.seed("GW6-001", "key-abc", false)

	_, err := f.svc.Ingest(context.Background(), "key-abc", validRequest("GW6-001"))
	if !errors.Is(err, registry.ErrDeviceInactive) {
		t.Fatalf("expected ErrDeviceInactive, got %v", err)
	}
}

func TestIngest_Validation(t *testing.T) {
	f := newFixture()
	f.seed("GW6-001", "key-abc", true)

	mutations := []struct {
		name string
		mut  func(r *SubmitRequest)
	}{
		{"missing timestamp", func(r *SubmitRequest) { r.Timestamp = 0 }},
		{"negative timestamp", func(r *SubmitRequest) { r.Timestamp = -1 }},
		{"no vitals at all", func(r *SubmitRequest) { r.HeartRate, r.SpO2 = nil, nil }},
		{"heart rate out of range", func(r *SubmitRequest) { r.HeartRate = fptr(500) }},
		{"negative heart rate", func(r *SubmitRequest) { r.HeartRate = fptr(-1) }},
		{"spo2 out of range", func(r *SubmitRequest) { r.SpO2 = fptr(110) }},
		{"temperature out of range", func(r *SubmitRequest) { r.Temperature = fptr(50) }},
	}
	for _, tc := range mutations {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest("GW6-001")
			tc.mut(&req)
			_, err := f.svc.Ingest(context.Background(), "key-abc", req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if len(f.readings.store) != 0 {
		t.Error("nothing must be stored on validation failure")
	}
}

func TestIngest_MissingDeviceIDIsUnauthorized(t *testing.T) {
	// No device_id means no binding lookup; the pipeline rejects before
	// validation.
	f := newFixture()
	_, err := f.svc.Ingest(context.Background(), "key-abc", validRequest(""))
	if !errors.Is(err, registry.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestIngest_StorageFailureAborts(t *testing.T) {
	f := newFixture()
	f.seed("GW6-001", "key-abc", true)
	f.readings.appendErr = errors.New("insert failed")

	req := validRequest("GW6-001")
	req.HeartRate = fptr(150)

	_, err := f.svc.Ingest(context.Background(), "key-abc", req)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(f.alerts.store) != 0 {
		t.Error("no alerts may be evaluated for an unstored reading")
	}
	if len(f.pub.events) != 0 {
		t.Error("no events may be published for an unstored reading")
	}
	if f.bindings.syncs != 0 {
		t.Error("last sync must not be updated for an unstored reading")
	}
}

func TestIngest_AlertStoreFailureIsolated(t *testing.T) {
	f := newFixture()
	f.seed("GW6-001", "key-abc", true)
	f.alerts.createErr = errors.New("insert failed")

	req := validRequest("GW6-001")
	req.HeartRate = fptr(150)

	result, err := f.svc.Ingest(context.Background(), "key-abc", req)
	if err != nil {
		t.Fatalf("alert store failure must not fail the ingestion: %v", err)
	}
	if len(result.Alerts) != 0 {
		t.Errorf("failed alerts must not be reported, got %d", len(result.Alerts))
	}
	if len(f.readings.store) != 1 {
		t.Error("the reading itself must still be stored")
	}
	// The reading event is still published; no alert events are.
	if len(f.pub.events) != 1 || f.pub.events[0].Type != realtime.EventReadingCreated {
		t.Errorf("expected only the reading event, got %d events", len(f.pub.events))
	}
}

func TestIngest_OxygenSaturationAlias(t *testing.T) {
	f := newFixture()
	f.seed("GW6-001", "key-abc", true)

	req := validRequest("GW6-001")
	req.SpO2 = nil
	req.OxygenSaturation = fptr(85)

	result, err := f.svc.Ingest(context.Background(), "key-abc", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Alerts) != 1 || result.Alerts[0].Type != alerts.TypeLowOxygenSaturation {
		t.Fatalf("expected a low oxygen saturation alert via the alias field")
	}
	if result.Reading.SpO2 == nil || *result.Reading.SpO2 != 85 {
		t.Error("expected the alias value on the stored reading")
	}
}

func TestIngest_SkewedTimestampAccepted(t *testing.T) {
	f := newFixture()
	f.seed("GW6-001", "key-abc", true)

	req := validRequest("GW6-001")
	req.Timestamp = time.Now().Add(-48 * time.Hour).UnixMilli()

	// Far-off timestamps are logged, never rejected.
	if _, err := f.svc.Ingest(context.Background(), "key-abc", req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.readings.store) != 1 {
		t.Error("skewed reading must still be stored")
	}
}

func TestProcess_TrustedEntrySkipsAuth(t *testing.T) {
	f := newFixture()
	b := f.seed("GW6-001", "ignored", true)

	// No API key in sight: the simulator hands over the binding directly.
	result, err := f.svc.Process(context.Background(), b, validRequest("GW6-001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reading.PatientID != b.PatientID {
		t.Error("reading must carry the binding's patient id")
	}
}
