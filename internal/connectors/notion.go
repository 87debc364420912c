package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pipeline-crm/internal/features/deal"

	"go.uber.org/zap"
)

const (
	notionAPIBase = "https://api.notion.com/v1"
	notionVersion = "2022-06-28"

	// Notion publishes a 3 req/s limit; writes go one page at a time.
	notionThrottle = 350 * time.Millisecond
)

// NotionConnector syncs deals against a Notion database, one page per deal.
type NotionConnector struct {
	token      string
	databaseID string
	apiBase    string
	throttle   time.Duration
	client     *http.Client
	logger     *zap.Logger
}

func NewNotionConnector(cfg Config) *NotionConnector {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = notionAPIBase
	}
	throttle := cfg.Throttle
	if throttle == 0 {
		throttle = notionThrottle
	}
	return &NotionConnector{
		token:      cfg.APIToken,
		databaseID: cfg.BaseID,
		apiBase:    apiBase,
		throttle:   throttle,
		client:     clientOrDefault(cfg.HTTPClient),
		logger:     loggerOrNop(cfg.Logger),
	}
}

func (n *NotionConnector) headers() map[string]string {
	return map[string]string{
		"Authorization":  "Bearer " + n.token,
		"Notion-Version": notionVersion,
	}
}

type notionPage struct {
	ID         string                    `json:"id"`
	Properties map[string]map[string]any `json:"properties"`
}

type notionQueryPage struct {
	Results    []notionPage `json:"results"`
	HasMore    bool         `json:"has_more"`
	NextCursor string       `json:"next_cursor"`
}

// queryAllPages walks the database query cursor until has_more is false.
func (n *NotionConnector) queryAllPages(ctx context.Context) ([]notionPage, error) {
	var pages []notionPage
	cursor := ""
	for {
		body := map[string]any{}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		var page notionQueryPage
		endpoint := fmt.Sprintf("%s/databases/%s/query", n.apiBase, n.databaseID)
		if err := doJSON(ctx, n.client, http.MethodPost, endpoint, n.headers(), body, &page); err != nil {
			return nil, err
		}

		pages = append(pages, page.Results...)
		if !page.HasMore {
			return pages, nil
		}
		cursor = page.NextCursor
	}
}

// extractNotionValue unwraps a typed Notion property into a flat scalar.
func extractNotionValue(prop map[string]any) any {
	if prop == nil {
		return nil
	}

	propType, _ := prop["type"].(string)
	switch propType {
	case "title", "rich_text":
		items, _ := prop[propType].([]any)
		if len(items) == 0 {
			return nil
		}
		first, _ := items[0].(map[string]any)
		text, _ := first["text"].(map[string]any)
		return text["content"]

	case "number":
		return prop["number"]

	case "date":
		date, _ := prop["date"].(map[string]any)
		if date == nil {
			return nil
		}
		return date["start"]

	case "select", "status":
		obj, _ := prop[propType].(map[string]any)
		if obj == nil {
			return nil
		}
		return obj["name"]

	case "multi_select":
		items, _ := prop["multi_select"].([]any)
		if len(items) == 0 {
			return nil
		}
		names := make([]string, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				names = append(names, fmt.Sprint(m["name"]))
			}
		}
		return strings.Join(names, ", ")

	case "checkbox":
		return prop["checkbox"]
	}

	return nil
}

// buildNotionProperty builds the typed property object for a local field.
// Nil means the value cannot be represented and the property is skipped.
func buildNotionProperty(localField string, value any) map[string]any {
	if value == nil {
		return nil
	}

	switch localField {
	case deal.FieldClient:
		return map[string]any{
			"title": []any{map[string]any{"text": map[string]any{"content": fmt.Sprint(value)}}},
		}
	case deal.FieldAmount:
		number, ok := toFloat(value)
		if !ok {
			return nil
		}
		return map[string]any{"number": number}
	case deal.FieldDueDate:
		return map[string]any{"date": map[string]any{"start": fmt.Sprint(value)}}
	case deal.FieldStatus:
		return map[string]any{"select": map[string]any{"name": fmt.Sprint(value)}}
	default:
		// notes, sector, assignee and anything unmapped go out as rich text
		return map[string]any{
			"rich_text": []any{map[string]any{"text": map[string]any{"content": fmt.Sprint(value)}}},
		}
	}
}

func (n *NotionConnector) TestConnection(ctx context.Context) *TestResult {
	var db struct {
		Title []struct {
			PlainText string `json:"plain_text"`
		} `json:"title"`
	}
	endpoint := fmt.Sprintf("%s/databases/%s", n.apiBase, n.databaseID)
	if err := doJSON(ctx, n.client, http.MethodGet, endpoint, n.headers(), nil, &db); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			switch httpErr.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return &TestResult{Success: false, Message: "Notion token invalid or revoked"}
			case http.StatusNotFound:
				return &TestResult{Success: false, Message: "Notion database not accessible. Check that the integration is connected to the page."}
			default:
				return &TestResult{Success: false, Message: fmt.Sprintf("Notion HTTP error %d", httpErr.StatusCode)}
			}
		}
		return &TestResult{Success: false, Message: fmt.Sprintf("Notion connection error: %v", err)}
	}

	title := "Untitled"
	if len(db.Title) > 0 {
		title = db.Title[0].PlainText
	}

	pages, err := n.queryAllPages(ctx)
	if err != nil {
		return &TestResult{Success: false, Message: fmt.Sprintf("Notion connection error: %v", err)}
	}

	return &TestResult{
		Success:     true,
		Message:     "Notion connection successful",
		TableName:   title,
		RecordCount: len(pages),
	}
}

func (n *NotionConnector) FetchRecords(ctx context.Context, mapping FieldMapping) ([]map[string]any, error) {
	pages, err := n.queryAllPages(ctx)
	if err != nil {
		return nil, err
	}

	locals := make([]map[string]any, 0, len(pages))
	for _, page := range pages {
		local := make(map[string]any, len(mapping))
		for localField, externalField := range mapping {
			if value := extractNotionValue(page.Properties[externalField]); value != nil {
				local[localField] = value
			}
		}

		coerceAmount(local)
		locals = append(locals, local)
	}

	return locals, nil
}

func (n *NotionConnector) PushRecords(ctx context.Context, deals []deal.Deal, mapping FieldMapping) (*PushResult, error) {
	existing, err := n.queryAllPages(ctx)
	if err != nil {
		return nil, err
	}

	clientField := mapping.ExternalField(deal.FieldClient, "Name")
	existingByClient := make(map[string]string, len(existing))
	for _, page := range existing {
		if name := extractNotionValue(page.Properties[clientField]); name != nil {
			if s := fmt.Sprint(name); s != "" {
				existingByClient[s] = page.ID
			}
		}
	}

	result := &PushResult{}

	for i := range deals {
		d := &deals[i]

		properties := map[string]any{}
		for localField, value := range d.Fields() {
			externalField, mapped := mapping[localField]
			if !mapped {
				continue
			}
			if prop := buildNotionProperty(localField, value); prop != nil {
				properties[externalField] = prop
			}
		}

		var pushErr error
		if pageID, found := existingByClient[d.Client]; found {
			endpoint := fmt.Sprintf("%s/pages/%s", n.apiBase, pageID)
			pushErr = doJSON(ctx, n.client, http.MethodPatch, endpoint, n.headers(), map[string]any{"properties": properties}, nil)
			if pushErr == nil {
				result.RecordsUpdated++
			}
		} else {
			body := map[string]any{
				"parent":     map[string]any{"database_id": n.databaseID},
				"properties": properties,
			}
			pushErr = doJSON(ctx, n.client, http.MethodPost, n.apiBase+"/pages", n.headers(), body, nil)
			if pushErr == nil {
				result.RecordsCreated++
			}
		}

		if pushErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("'%s': %v", d.Client, pushErr))
			n.logger.Warn("notion push failed", zap.String("client", d.Client), zap.Error(pushErr))
		}

		time.Sleep(n.throttle)
	}

	return result, nil
}
