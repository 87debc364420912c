package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pipeline-crm/internal/features/deal"

	"go.uber.org/zap"
)

const (
	airtableAPIBase = "https://api.airtable.com/v0"

	// Airtable's bulk write endpoints accept at most 10 records per
	// request; the 200ms pause keeps us under the 5 req/s ceiling.
	airtableBatchSize = 10
	airtableThrottle  = 200 * time.Millisecond
)

// AirtableConnector syncs deals against an Airtable table. The linked-record
// name cache lives for the lifetime of one connector instance, which is one
// sync call.
type AirtableConnector struct {
	token     string
	baseID    string
	tableName string
	apiBase   string
	throttle  time.Duration
	client    *http.Client
	logger    *zap.Logger

	nameCache map[string]string // linked record id -> display name
}

func NewAirtableConnector(cfg Config) *AirtableConnector {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = airtableAPIBase
	}
	throttle := cfg.Throttle
	if throttle == 0 {
		throttle = airtableThrottle
	}
	return &AirtableConnector{
		token:     cfg.APIToken,
		baseID:    cfg.BaseID,
		tableName: cfg.TableName,
		apiBase:   apiBase,
		throttle:  throttle,
		client:    clientOrDefault(cfg.HTTPClient),
		logger:    loggerOrNop(cfg.Logger),
	}
}

func (a *AirtableConnector) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + a.token,
	}
}

func (a *AirtableConnector) tableURL(table string) string {
	return fmt.Sprintf("%s/%s/%s", a.apiBase, a.baseID, url.PathEscape(table))
}

type airtableRecord struct {
	ID     string         `json:"id,omitempty"`
	Fields map[string]any `json:"fields"`
}

type airtableRecordList struct {
	Records []airtableRecord `json:"records"`
	Offset  string           `json:"offset"`
}

// listRecords fetches every record of a table, following the opaque offset
// token until the provider reports none remaining.
func (a *AirtableConnector) listRecords(ctx context.Context, table string) ([]airtableRecord, error) {
	var records []airtableRecord
	offset := ""
	for {
		endpoint := a.tableURL(table)
		if offset != "" {
			endpoint += "?offset=" + url.QueryEscape(offset)
		}

		var page airtableRecordList
		if err := doJSON(ctx, a.client, http.MethodGet, endpoint, a.headers(), nil, &page); err != nil {
			return nil, err
		}

		records = append(records, page.Records...)
		if page.Offset == "" {
			return records, nil
		}
		offset = page.Offset
	}
}

type airtableTableMeta struct {
	Name   string `json:"name"`
	Fields []struct {
		Name string `json:"name"`
	} `json:"fields"`
}

// buildNameCache lazily resolves linked-record ids to display names by
// walking every other table of the base and keeping each record's primary
// field. Failures degrade to raw ids instead of failing the fetch.
func (a *AirtableConnector) buildNameCache(ctx context.Context) map[string]string {
	if a.nameCache != nil {
		return a.nameCache
	}
	a.nameCache = map[string]string{}

	var meta struct {
		Tables []airtableTableMeta `json:"tables"`
	}
	metaURL := fmt.Sprintf("%s/meta/bases/%s/tables", a.apiBase, a.baseID)
	if err := doJSON(ctx, a.client, http.MethodGet, metaURL, a.headers(), nil, &meta); err != nil {
		a.logger.Warn("airtable linked record resolution unavailable", zap.Error(err))
		return a.nameCache
	}

	for _, table := range meta.Tables {
		if table.Name == a.tableName || len(table.Fields) == 0 {
			continue
		}
		primaryField := table.Fields[0].Name

		records, err := a.listRecords(ctx, table.Name)
		if err != nil {
			a.logger.Warn("airtable linked table fetch failed",
				zap.String("table", table.Name), zap.Error(err))
			continue
		}
		for _, rec := range records {
			if name, ok := rec.Fields[primaryField]; ok && name != nil {
				a.nameCache[rec.ID] = fmt.Sprint(name)
			}
		}
		time.Sleep(a.throttle)
	}

	return a.nameCache
}

// cleanFieldValue flattens Airtable list values: linked record ids are
// resolved through the name cache and the items joined into one string.
func cleanFieldValue(value any, nameCache map[string]string) any {
	items, isList := value.([]any)
	if !isList {
		return value
	}

	resolved := make([]string, 0, len(items))
	for _, item := range items {
		if id, isString := item.(string); isString && strings.HasPrefix(id, "rec") {
			if name, ok := nameCache[id]; ok {
				resolved = append(resolved, name)
			} else {
				resolved = append(resolved, id)
			}
			continue
		}
		resolved = append(resolved, fmt.Sprint(item))
	}
	return strings.Join(resolved, ", ")
}

func (a *AirtableConnector) TestConnection(ctx context.Context) *TestResult {
	records, err := a.listRecords(ctx, a.tableName)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			switch {
			case httpErr.StatusCode == http.StatusNotFound:
				return &TestResult{Success: false, Message: "Airtable base not found"}
			case httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden:
				return &TestResult{Success: false, Message: "Airtable token invalid or expired"}
			default:
				return &TestResult{Success: false, Message: fmt.Sprintf("Airtable HTTP error %d", httpErr.StatusCode)}
			}
		}
		return &TestResult{Success: false, Message: fmt.Sprintf("Airtable connection error: %v", err)}
	}

	return &TestResult{
		Success:     true,
		Message:     "Airtable connection successful",
		TableName:   a.tableName,
		RecordCount: len(records),
	}
}

func (a *AirtableConnector) FetchRecords(ctx context.Context, mapping FieldMapping) ([]map[string]any, error) {
	records, err := a.listRecords(ctx, a.tableName)
	if err != nil {
		return nil, err
	}
	nameCache := a.buildNameCache(ctx)

	locals := make([]map[string]any, 0, len(records))
	for _, record := range records {
		flat := make(map[string]any, len(mapping))
		for _, externalField := range mapping {
			if value, ok := record.Fields[externalField]; ok {
				flat[externalField] = cleanFieldValue(value, nameCache)
			}
		}

		local := mapping.ToLocal(flat)
		coerceAmount(local)
		locals = append(locals, local)
	}

	return locals, nil
}

func (a *AirtableConnector) PushRecords(ctx context.Context, deals []deal.Deal, mapping FieldMapping) (*PushResult, error) {
	existing, err := a.listRecords(ctx, a.tableName)
	if err != nil {
		return nil, err
	}

	clientField := mapping.ExternalField(deal.FieldClient, "Name")
	existingByClient := make(map[string]string, len(existing))
	for _, rec := range existing {
		if name, ok := rec.Fields[clientField]; ok && name != nil {
			if s := fmt.Sprint(name); s != "" {
				existingByClient[s] = rec.ID
			}
		}
	}

	var toCreate, toUpdate []airtableRecord
	for i := range deals {
		d := &deals[i]
		external := mapping.ToExternal(d.Fields())
		if id, found := existingByClient[d.Client]; found {
			toUpdate = append(toUpdate, airtableRecord{ID: id, Fields: external})
		} else {
			toCreate = append(toCreate, airtableRecord{Fields: external})
		}
	}

	result := &PushResult{}

	// A batch failure is recorded and does not abort subsequent batches
	for start := 0; start < len(toCreate); start += airtableBatchSize {
		batch := toCreate[start:min(start+airtableBatchSize, len(toCreate))]
		body := map[string]any{"records": batch}
		if err := doJSON(ctx, a.client, http.MethodPost, a.tableURL(a.tableName), a.headers(), body, nil); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("batch create failed: %v", err))
		} else {
			result.RecordsCreated += len(batch)
		}
		time.Sleep(a.throttle)
	}

	for start := 0; start < len(toUpdate); start += airtableBatchSize {
		batch := toUpdate[start:min(start+airtableBatchSize, len(toUpdate))]
		body := map[string]any{"records": batch}
		if err := doJSON(ctx, a.client, http.MethodPatch, a.tableURL(a.tableName), a.headers(), body, nil); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("batch update failed: %v", err))
		} else {
			result.RecordsUpdated += len(batch)
		}
		time.Sleep(a.throttle)
	}

	return result, nil
}
