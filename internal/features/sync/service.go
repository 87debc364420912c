package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"pipeline-crm/internal/connectors"
	"pipeline-crm/internal/features/deal"

	"go.uber.org/zap"
)

// ErrNotConfigured means the provider is supported but has no stored
// configuration. Unlike an unknown provider, this outcome is logged.
var ErrNotConfigured = errors.New("no configuration found for provider")

type SyncService interface {
	Import(ctx context.Context, provider string) (*SyncResult, error)
	Export(ctx context.Context, provider string) (*SyncResult, error)
	TestConnection(ctx context.Context, provider string) (*connectors.TestResult, error)
	ListConfigs(ctx context.Context) ([]ConnectorSetting, error)
	SaveConfig(ctx context.Context, provider string, update SettingUpdate) (*ConnectorSetting, error)
	ListLogs(ctx context.Context, provider string, limit int64) ([]SyncLog, error)
}

type SyncServiceImpl struct {
	SettingRepo SettingRepository
	LogRepo     LogRepository
	DealRepo    deal.DealRepository
	Factory     connectors.Factory
	Logger      *zap.Logger

	// One mutex per provider: concurrent import/export calls against the
	// same provider serialize instead of racing on the store.
	mu    gosync.Mutex
	locks map[string]*gosync.Mutex
}

func NewSyncService(settingRepo SettingRepository, logRepo LogRepository, dealRepo deal.DealRepository, logger *zap.Logger) SyncService {
	return &SyncServiceImpl{
		SettingRepo: settingRepo,
		LogRepo:     logRepo,
		DealRepo:    dealRepo,
		Factory:     connectors.New,
		Logger:      logger,
		locks:       make(map[string]*gosync.Mutex),
	}
}

func (s *SyncServiceImpl) lockProvider(provider string) func() {
	s.mu.Lock()
	lock, ok := s.locks[provider]
	if !ok {
		lock = &gosync.Mutex{}
		s.locks[provider] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// connectorFor validates the provider, loads its configuration and builds a
// fresh connector instance for this call.
func (s *SyncServiceImpl) connectorFor(ctx context.Context, provider string) (connectors.Connector, connectors.FieldMapping, error) {
	if !connectors.IsSupported(provider) {
		return nil, nil, fmt.Errorf("%w: %s, accepted values: %s",
			connectors.ErrUnknownProvider, provider, strings.Join(connectors.SupportedProviders(), ", "))
	}

	setting, err := s.SettingRepo.GetByProvider(ctx, provider)
	if err != nil {
		return nil, nil, err
	}
	if setting == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotConfigured, provider)
	}

	conn, err := s.Factory(provider, connectors.Config{
		APIToken:  setting.APIToken,
		BaseID:    setting.BaseID,
		TableName: setting.TableName,
		Logger:    s.Logger,
	})
	if err != nil {
		return nil, nil, err
	}

	mapping := connectors.DefaultFieldMapping()
	if len(setting.FieldMapping) > 0 {
		mapping = connectors.FieldMapping(setting.FieldMapping)
	}

	return conn, mapping, nil
}

func (s *SyncServiceImpl) Import(ctx context.Context, provider string) (*SyncResult, error) {
	// Unknown providers are rejected before any I/O and leave no log entry
	if !connectors.IsSupported(provider) {
		return nil, fmt.Errorf("%w: %s, accepted values: %s",
			connectors.ErrUnknownProvider, provider, strings.Join(connectors.SupportedProviders(), ", "))
	}

	unlock := s.lockProvider(provider)
	defer unlock()

	startedAt := time.Now()

	conn, mapping, err := s.connectorFor(ctx, provider)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			s.writeFailureLog(ctx, provider, DirectionImport, startedAt, err)
		}
		return nil, err
	}

	records, err := conn.FetchRecords(ctx, mapping)
	if err != nil {
		s.writeFailureLog(ctx, provider, DirectionImport, startedAt, err)
		return nil, err
	}

	var created, updated int
	var errs, unknownStatuses []string

	for _, record := range records {
		outcome, err := s.importRecord(ctx, record)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if outcome.unknownStatus != "" {
			unknownStatuses = append(unknownStatuses, outcome.unknownStatus)
		}
		if outcome.created {
			created++
		} else {
			updated++
		}
	}

	result := &SyncResult{
		Status:           classify(created+updated, len(errs)),
		RecordsProcessed: created + updated + len(errs),
		RecordsCreated:   created,
		RecordsUpdated:   updated,
		Errors:           errs,
		UnknownStatuses:  unknownStatuses,
	}

	s.writeLog(ctx, &SyncLog{
		Provider:         provider,
		Direction:        DirectionImport,
		Status:           result.Status,
		RecordsProcessed: result.RecordsProcessed,
		RecordsCreated:   created,
		RecordsUpdated:   updated,
		ErrorMessage:     joinDiagnostics(errs, unknownStatuses),
		StartedAt:        startedAt,
		CompletedAt:      time.Now(),
	})

	s.Logger.Info("import finished",
		zap.String("provider", provider),
		zap.String("direction", DirectionImport),
		zap.String("status", result.Status),
		zap.Int("processed", result.RecordsProcessed))

	return result, nil
}

type importOutcome struct {
	created       bool
	unknownStatus string
}

// importRecord reconciles one external record against the local store by
// client name. Any failure is returned as this record's diagnostic and does
// not abort the batch.
func (s *SyncServiceImpl) importRecord(ctx context.Context, record map[string]any) (*importOutcome, error) {
	client := stringField(record, deal.FieldClient)
	if client == "" {
		return nil, errors.New("record without client name, skipped")
	}

	amount, ok := floatField(record, deal.FieldAmount)
	if !ok || amount <= 0 {
		return nil, fmt.Errorf("'%s': invalid amount (%v)", client, record[deal.FieldAmount])
	}

	outcome := &importOutcome{}

	rawStatus := stringField(record, deal.FieldStatus)
	status, known := deal.NormalizeStatus(rawStatus)
	if !known {
		status = deal.StatusProspect
		outcome.unknownStatus = fmt.Sprintf("'%s': unknown status %q, defaulted to %s", client, rawStatus, deal.StatusProspect)
	}

	probability := deal.Probability(status)
	d := &deal.Deal{
		Client:        client,
		Status:        status,
		Amount:        amount,
		Probability:   probability,
		WeightedValue: deal.WeightedValue(amount, probability),
		Sector:        stringField(record, deal.FieldSector),
		DueDate:       stringField(record, deal.FieldDueDate),
		Assignee:      stringField(record, deal.FieldAssignee),
		Notes:         stringField(record, deal.FieldNotes),
	}

	existing, err := s.DealRepo.GetByClient(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("'%s': %v", client, err)
	}

	if existing != nil {
		if err := s.DealRepo.Update(ctx, existing.ID.Hex(), d); err != nil {
			return nil, fmt.Errorf("'%s': %v", client, err)
		}
		return outcome, nil
	}

	if err := s.DealRepo.Insert(ctx, d); err != nil {
		return nil, fmt.Errorf("'%s': %v", client, err)
	}
	outcome.created = true
	return outcome, nil
}

func (s *SyncServiceImpl) Export(ctx context.Context, provider string) (*SyncResult, error) {
	if !connectors.IsSupported(provider) {
		return nil, fmt.Errorf("%w: %s, accepted values: %s",
			connectors.ErrUnknownProvider, provider, strings.Join(connectors.SupportedProviders(), ", "))
	}

	unlock := s.lockProvider(provider)
	defer unlock()

	startedAt := time.Now()

	conn, mapping, err := s.connectorFor(ctx, provider)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			s.writeFailureLog(ctx, provider, DirectionExport, startedAt, err)
		}
		return nil, err
	}

	deals, err := s.DealRepo.List(ctx, deal.Filters{})
	if err != nil {
		s.writeFailureLog(ctx, provider, DirectionExport, startedAt, err)
		return nil, err
	}

	if len(deals) == 0 {
		// Nothing to push: a zero-count success entry, no remote writes
		s.writeLog(ctx, &SyncLog{
			Provider:    provider,
			Direction:   DirectionExport,
			Status:      StatusSuccess,
			StartedAt:   startedAt,
			CompletedAt: time.Now(),
		})
		return &SyncResult{Status: StatusSuccess, Errors: []string{}}, nil
	}

	pushed, err := conn.PushRecords(ctx, deals, mapping)
	if err != nil {
		s.writeFailureLog(ctx, provider, DirectionExport, startedAt, err)
		return nil, err
	}

	status := StatusSuccess
	if len(pushed.Errors) > 0 {
		status = StatusPartial
	}

	result := &SyncResult{
		Status:           status,
		RecordsProcessed: pushed.RecordsCreated + pushed.RecordsUpdated + len(pushed.Errors),
		RecordsCreated:   pushed.RecordsCreated,
		RecordsUpdated:   pushed.RecordsUpdated,
		Errors:           pushed.Errors,
	}

	s.writeLog(ctx, &SyncLog{
		Provider:         provider,
		Direction:        DirectionExport,
		Status:           status,
		RecordsProcessed: result.RecordsProcessed,
		RecordsCreated:   pushed.RecordsCreated,
		RecordsUpdated:   pushed.RecordsUpdated,
		ErrorMessage:     joinDiagnostics(pushed.Errors, nil),
		StartedAt:        startedAt,
		CompletedAt:      time.Now(),
	})

	s.Logger.Info("export finished",
		zap.String("provider", provider),
		zap.String("direction", DirectionExport),
		zap.String("status", status),
		zap.Int("processed", result.RecordsProcessed))

	return result, nil
}

func (s *SyncServiceImpl) TestConnection(ctx context.Context, provider string) (*connectors.TestResult, error) {
	conn, _, err := s.connectorFor(ctx, provider)
	if err != nil {
		return nil, err
	}
	return conn.TestConnection(ctx), nil
}

func (s *SyncServiceImpl) ListConfigs(ctx context.Context) ([]ConnectorSetting, error) {
	settings, err := s.SettingRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range settings {
		maskSetting(&settings[i])
	}
	return settings, nil
}

func (s *SyncServiceImpl) SaveConfig(ctx context.Context, provider string, update SettingUpdate) (*ConnectorSetting, error) {
	if !connectors.IsSupported(provider) {
		return nil, fmt.Errorf("%w: %s, accepted values: %s",
			connectors.ErrUnknownProvider, provider, strings.Join(connectors.SupportedProviders(), ", "))
	}

	updates := map[string]interface{}{}

	// The masked sentinel means "keep the stored credential"
	if update.APIToken != nil && *update.APIToken != MaskedToken {
		updates["api_token"] = *update.APIToken
	}
	if update.BaseID != nil {
		updates["base_id"] = *update.BaseID
	}
	if update.TableName != nil {
		updates["table_name"] = *update.TableName
	}
	if update.IsActive != nil {
		updates["is_active"] = *update.IsActive
	}
	if len(update.FieldMapping) > 0 {
		mapping, err := decodeFieldMapping(update.FieldMapping)
		if err != nil {
			return nil, err
		}
		updates["field_mapping"] = mapping
	}

	setting, err := s.SettingRepo.Upsert(ctx, provider, updates)
	if err != nil {
		return nil, err
	}

	maskSetting(setting)
	return setting, nil
}

func (s *SyncServiceImpl) ListLogs(ctx context.Context, provider string, limit int64) ([]SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.LogRepo.List(ctx, provider, limit)
}

// decodeFieldMapping accepts either a JSON object or a JSON-encoded string
// holding one.
func decodeFieldMapping(raw json.RawMessage) (map[string]string, error) {
	var mapping map[string]string
	if err := json.Unmarshal(raw, &mapping); err == nil {
		return mapping, nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if err := json.Unmarshal([]byte(encoded), &mapping); err == nil {
			return mapping, nil
		}
	}

	return nil, errors.New("fieldMapping must be a JSON object or a JSON-encoded string")
}

func maskSetting(setting *ConnectorSetting) {
	if setting.APIToken != "" {
		setting.APIToken = MaskedToken
	}
}

func classify(succeeded, failed int) string {
	switch {
	case failed == 0:
		return StatusSuccess
	case succeeded > 0:
		return StatusPartial
	default:
		return StatusError
	}
}

func joinDiagnostics(errs, unknownStatuses []string) string {
	all := append(append([]string{}, errs...), unknownStatuses...)
	return strings.Join(all, "; ")
}

func (s *SyncServiceImpl) writeLog(ctx context.Context, entry *SyncLog) {
	if err := s.LogRepo.Create(ctx, entry); err != nil {
		s.Logger.Error("failed to persist sync log",
			zap.String("provider", entry.Provider),
			zap.String("direction", entry.Direction),
			zap.Error(err))
	}
}

// writeFailureLog records a zero-count error entry for failures outside the
// per-record loop.
func (s *SyncServiceImpl) writeFailureLog(ctx context.Context, provider, direction string, startedAt time.Time, cause error) {
	s.writeLog(ctx, &SyncLog{
		Provider:     provider,
		Direction:    direction,
		Status:       StatusError,
		ErrorMessage: cause.Error(),
		StartedAt:    startedAt,
		CompletedAt:  time.Now(),
	})
}

func stringField(record map[string]any, field string) string {
	v, ok := record[field]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func floatField(record map[string]any, field string) (float64, bool) {
	v, ok := record[field]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
