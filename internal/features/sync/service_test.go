package sync

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pipeline-crm/internal/connectors"
	"pipeline-crm/internal/features/deal"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// In-memory fakes for the repositories and a stub connector, so the
// orchestrator is exercised without Mongo or a provider API.

type fakeSettingRepo struct {
	settings map[string]*ConnectorSetting
}

func (f *fakeSettingRepo) GetByProvider(ctx context.Context, provider string) (*ConnectorSetting, error) {
	setting, ok := f.settings[provider]
	if !ok {
		return nil, nil
	}
	copied := *setting
	return &copied, nil
}

func (f *fakeSettingRepo) List(ctx context.Context) ([]ConnectorSetting, error) {
	var out []ConnectorSetting
	for _, s := range f.settings {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeSettingRepo) ListActive(ctx context.Context) ([]ConnectorSetting, error) {
	var out []ConnectorSetting
	for _, s := range f.settings {
		if s.IsActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSettingRepo) Upsert(ctx context.Context, provider string, updates map[string]interface{}) (*ConnectorSetting, error) {
	setting, ok := f.settings[provider]
	if !ok {
		setting = &ConnectorSetting{Provider: provider}
		f.settings[provider] = setting
	}
	if v, ok := updates["api_token"].(string); ok {
		setting.APIToken = v
	}
	if v, ok := updates["base_id"].(string); ok {
		setting.BaseID = v
	}
	if v, ok := updates["table_name"].(string); ok {
		setting.TableName = v
	}
	if v, ok := updates["is_active"].(bool); ok {
		setting.IsActive = v
	}
	if v, ok := updates["field_mapping"].(map[string]string); ok {
		setting.FieldMapping = v
	}
	copied := *setting
	return &copied, nil
}

type fakeLogRepo struct {
	entries []SyncLog
}

func (f *fakeLogRepo) Create(ctx context.Context, entry *SyncLog) error {
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeLogRepo) List(ctx context.Context, provider string, limit int64) ([]SyncLog, error) {
	return f.entries, nil
}

type fakeDealRepo struct {
	deals map[string]*deal.Deal // keyed by client name
}

func newFakeDealRepo() *fakeDealRepo {
	return &fakeDealRepo{deals: map[string]*deal.Deal{}}
}

func (f *fakeDealRepo) List(ctx context.Context, filters deal.Filters) ([]deal.Deal, error) {
	var out []deal.Deal
	for _, d := range f.deals {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeDealRepo) GetByID(ctx context.Context, id string) (*deal.Deal, error) {
	for _, d := range f.deals {
		if d.ID.Hex() == id {
			copied := *d
			return &copied, nil
		}
	}
	return nil, deal.ErrNotFound
}

func (f *fakeDealRepo) GetByClient(ctx context.Context, client string) (*deal.Deal, error) {
	d, ok := f.deals[client]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

func (f *fakeDealRepo) Insert(ctx context.Context, d *deal.Deal) error {
	d.ID = primitive.NewObjectID()
	copied := *d
	f.deals[d.Client] = &copied
	return nil
}

func (f *fakeDealRepo) InsertMany(ctx context.Context, deals []deal.Deal) (int, error) {
	for i := range deals {
		if err := f.Insert(ctx, &deals[i]); err != nil {
			return i, err
		}
	}
	return len(deals), nil
}

func (f *fakeDealRepo) Update(ctx context.Context, id string, d *deal.Deal) error {
	for client, existing := range f.deals {
		if existing.ID.Hex() == id {
			updated := *d
			updated.ID = existing.ID
			delete(f.deals, client)
			f.deals[updated.Client] = &updated
			return nil
		}
	}
	return deal.ErrNotFound
}

func (f *fakeDealRepo) Delete(ctx context.Context, id string) error {
	for client, existing := range f.deals {
		if existing.ID.Hex() == id {
			delete(f.deals, client)
			return nil
		}
	}
	return deal.ErrNotFound
}

func (f *fakeDealRepo) Clear(ctx context.Context) error {
	f.deals = map[string]*deal.Deal{}
	return nil
}

type stubConnector struct {
	records    []map[string]any
	fetchErr   error
	pushResult *connectors.PushResult
	pushErr    error
	pushed     []deal.Deal
}

func (s *stubConnector) TestConnection(ctx context.Context) *connectors.TestResult {
	return &connectors.TestResult{Success: true, Message: "ok"}
}

func (s *stubConnector) FetchRecords(ctx context.Context, mapping connectors.FieldMapping) ([]map[string]any, error) {
	return s.records, s.fetchErr
}

func (s *stubConnector) PushRecords(ctx context.Context, deals []deal.Deal, mapping connectors.FieldMapping) (*connectors.PushResult, error) {
	s.pushed = deals
	if s.pushErr != nil {
		return nil, s.pushErr
	}
	if s.pushResult != nil {
		return s.pushResult, nil
	}
	return &connectors.PushResult{RecordsCreated: len(deals)}, nil
}

type testHarness struct {
	service  *SyncServiceImpl
	settings *fakeSettingRepo
	logs     *fakeLogRepo
	deals    *fakeDealRepo
	stub     *stubConnector
}

func newHarness(configured bool) *testHarness {
	settings := &fakeSettingRepo{settings: map[string]*ConnectorSetting{}}
	if configured {
		settings.settings[connectors.ProviderAirtable] = &ConnectorSetting{
			Provider:  connectors.ProviderAirtable,
			APIToken:  "key-test",
			BaseID:    "app123",
			TableName: "Deals",
			IsActive:  true,
		}
	}

	logs := &fakeLogRepo{}
	deals := newFakeDealRepo()
	stub := &stubConnector{}

	service := NewSyncService(settings, logs, deals, zap.NewNop()).(*SyncServiceImpl)
	service.Factory = func(provider string, cfg connectors.Config) (connectors.Connector, error) {
		return stub, nil
	}

	return &testHarness{service: service, settings: settings, logs: logs, deals: deals, stub: stub}
}

func TestImportMixedRecords(t *testing.T) {
	h := newHarness(true)
	h.stub.records = []map[string]any{
		{"client": "Acme", "status": "Won", "amount": 10000.0},
		{"client": "Globex", "status": "prospect", "amount": nil},
		{"client": "Initech", "status": "archived", "amount": 2000.0},
	}

	result, err := h.service.Import(context.Background(), connectors.ProviderAirtable)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if result.Status != StatusPartial {
		t.Errorf("status = %q, want partial (one bad amount)", result.Status)
	}
	if result.RecordsCreated != 2 || result.RecordsProcessed != 3 {
		t.Errorf("created/processed = %d/%d, want 2/3", result.RecordsCreated, result.RecordsProcessed)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "Globex") {
		t.Errorf("errors = %v, want one amount error for Globex", result.Errors)
	}
	if len(result.UnknownStatuses) != 1 || !strings.Contains(result.UnknownStatuses[0], "archived") {
		t.Errorf("unknownStatuses = %v, want one for archived", result.UnknownStatuses)
	}

	// English status translated and derived fields computed
	acme, _ := h.deals.GetByClient(context.Background(), "Acme")
	if acme == nil || acme.Status != deal.StatusWon {
		t.Fatalf("Acme status not translated: %+v", acme)
	}
	if acme.Probability != 1.0 || acme.WeightedValue != 10000 {
		t.Errorf("Acme derived fields wrong: %+v", acme)
	}

	// Unknown status falls back to prospect
	initech, _ := h.deals.GetByClient(context.Background(), "Initech")
	if initech == nil || initech.Status != deal.StatusProspect {
		t.Fatalf("Initech should default to prospect: %+v", initech)
	}

	if len(h.logs.entries) != 1 {
		t.Fatalf("got %d log entries, want exactly 1 per attempt", len(h.logs.entries))
	}
	entry := h.logs.entries[0]
	if entry.Provider != connectors.ProviderAirtable || entry.Direction != DirectionImport || entry.Status != StatusPartial {
		t.Errorf("unexpected log entry: %+v", entry)
	}
	if entry.ErrorMessage == "" {
		t.Error("log entry should carry the diagnostics")
	}
}

func TestImportIsIdempotentByClient(t *testing.T) {
	h := newHarness(true)
	h.stub.records = []map[string]any{
		{"client": "Acme", "status": "prospect", "amount": 1000.0},
	}

	if _, err := h.service.Import(context.Background(), connectors.ProviderAirtable); err != nil {
		t.Fatalf("first import: %v", err)
	}

	h.stub.records[0]["amount"] = 2500.0
	result, err := h.service.Import(context.Background(), connectors.ProviderAirtable)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}

	if result.RecordsCreated != 0 || result.RecordsUpdated != 1 {
		t.Errorf("created/updated = %d/%d, want 0/1 on reimport", result.RecordsCreated, result.RecordsUpdated)
	}

	deals, _ := h.deals.List(context.Background(), deal.Filters{})
	if len(deals) != 1 {
		t.Fatalf("got %d deals, want 1 after reimport", len(deals))
	}
	if deals[0].Amount != 2500.0 {
		t.Errorf("amount = %v, want updated to 2500", deals[0].Amount)
	}
}

func TestImportUnknownProvider(t *testing.T) {
	h := newHarness(true)

	_, err := h.service.Import(context.Background(), "salesforce")
	if !errors.Is(err, connectors.ErrUnknownProvider) {
		t.Fatalf("err = %v, want ErrUnknownProvider", err)
	}
	if len(h.logs.entries) != 0 {
		t.Errorf("unknown provider must not leave a log entry, got %d", len(h.logs.entries))
	}
}

func TestImportUnconfiguredProvider(t *testing.T) {
	h := newHarness(false)

	_, err := h.service.Import(context.Background(), connectors.ProviderAirtable)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	if len(h.logs.entries) != 1 || h.logs.entries[0].Status != StatusError {
		t.Fatalf("want one error log entry, got %+v", h.logs.entries)
	}
}

func TestImportFetchFailure(t *testing.T) {
	h := newHarness(true)
	h.stub.fetchErr = errors.New("HTTP 500: boom")

	_, err := h.service.Import(context.Background(), connectors.ProviderAirtable)
	if err == nil {
		t.Fatal("expected fetch error to propagate")
	}

	if len(h.logs.entries) != 1 {
		t.Fatalf("want one log entry, got %d", len(h.logs.entries))
	}
	entry := h.logs.entries[0]
	if entry.Status != StatusError || entry.RecordsProcessed != 0 {
		t.Errorf("unexpected failure log: %+v", entry)
	}
	if !strings.Contains(entry.ErrorMessage, "boom") {
		t.Errorf("log should carry the cause, got %q", entry.ErrorMessage)
	}
}

func TestImportAllRecordsFailing(t *testing.T) {
	h := newHarness(true)
	h.stub.records = []map[string]any{
		{"client": "", "status": "prospect", "amount": 100.0},
		{"client": "Acme", "status": "prospect", "amount": -5.0},
	}

	result, err := h.service.Import(context.Background(), connectors.ProviderAirtable)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Status != StatusError {
		t.Errorf("status = %q, want error when nothing succeeded", result.Status)
	}
	if len(result.Errors) != 2 {
		t.Errorf("errors = %v, want 2", result.Errors)
	}
}

func TestExportEmptyStore(t *testing.T) {
	h := newHarness(true)

	result, err := h.service.Export(context.Background(), connectors.ProviderAirtable)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if result.Status != StatusSuccess || result.RecordsProcessed != 0 {
		t.Errorf("empty export should succeed with zero counts: %+v", result)
	}
	if h.stub.pushed != nil {
		t.Error("empty export must not call the provider")
	}
	if len(h.logs.entries) != 1 || h.logs.entries[0].Status != StatusSuccess {
		t.Errorf("want one success log entry, got %+v", h.logs.entries)
	}
}

func TestExportPartial(t *testing.T) {
	h := newHarness(true)
	h.deals.Insert(context.Background(), &deal.Deal{Client: "Acme", Status: deal.StatusWon, Amount: 9000})
	h.deals.Insert(context.Background(), &deal.Deal{Client: "Globex", Status: deal.StatusProspect, Amount: 500})
	h.stub.pushResult = &connectors.PushResult{
		RecordsCreated: 1,
		Errors:         []string{"'Globex': HTTP 400"},
	}

	result, err := h.service.Export(context.Background(), connectors.ProviderAirtable)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if result.Status != StatusPartial {
		t.Errorf("status = %q, want partial", result.Status)
	}
	if len(h.stub.pushed) != 2 {
		t.Errorf("pushed %d deals, want 2", len(h.stub.pushed))
	}
	if len(h.logs.entries) != 1 || h.logs.entries[0].Direction != DirectionExport {
		t.Errorf("want one export log entry, got %+v", h.logs.entries)
	}
}

func TestSaveConfigMasksAndKeepsToken(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()

	token := "secret-token"
	base := "app123"
	saved, err := h.service.SaveConfig(ctx, connectors.ProviderAirtable, SettingUpdate{
		APIToken: &token,
		BaseID:   &base,
	})
	if err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if saved.APIToken != MaskedToken {
		t.Errorf("response token = %q, want masked", saved.APIToken)
	}
	if h.settings.settings[connectors.ProviderAirtable].APIToken != "secret-token" {
		t.Error("stored token should be the real credential")
	}

	// Sending the sentinel back must not overwrite the stored credential
	masked := MaskedToken
	table := "Deals"
	if _, err := h.service.SaveConfig(ctx, connectors.ProviderAirtable, SettingUpdate{
		APIToken:  &masked,
		TableName: &table,
	}); err != nil {
		t.Fatalf("SaveConfig with sentinel: %v", err)
	}

	stored := h.settings.settings[connectors.ProviderAirtable]
	if stored.APIToken != "secret-token" {
		t.Errorf("stored token = %q, sentinel must keep the credential", stored.APIToken)
	}
	if stored.TableName != "Deals" {
		t.Errorf("tableName = %q, other fields should still merge", stored.TableName)
	}
}

func TestListConfigsMasksTokens(t *testing.T) {
	h := newHarness(true)

	settings, err := h.service.ListConfigs(context.Background())
	if err != nil {
		t.Fatalf("ListConfigs: %v", err)
	}
	if len(settings) != 1 {
		t.Fatalf("got %d settings, want 1", len(settings))
	}
	if settings[0].APIToken != MaskedToken {
		t.Errorf("token = %q, want masked in listings", settings[0].APIToken)
	}
}

func TestSaveConfigFieldMappingFormats(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "Object", raw: `{"client": "Société"}`},
		{name: "Encoded String", raw: `"{\"client\": \"Société\"}"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saved, err := h.service.SaveConfig(ctx, connectors.ProviderNotion, SettingUpdate{
				FieldMapping: []byte(tt.raw),
			})
			if err != nil {
				t.Fatalf("SaveConfig: %v", err)
			}
			if saved.FieldMapping["client"] != "Société" {
				t.Errorf("fieldMapping = %v, want client mapped", saved.FieldMapping)
			}
		})
	}

	if _, err := h.service.SaveConfig(ctx, connectors.ProviderNotion, SettingUpdate{
		FieldMapping: []byte(`[1, 2]`),
	}); err == nil {
		t.Error("non-object mapping should be rejected")
	}
}
