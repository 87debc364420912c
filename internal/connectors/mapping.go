package connectors

import (
	"encoding/json"

	"pipeline-crm/internal/features/deal"
)

// FieldMapping maps local deal field names to external provider field
// names. It is directionally invertible: ToLocal builds the reverse lookup.
type FieldMapping map[string]string

// DefaultFieldMapping is used when a connector has no mapping configured.
func DefaultFieldMapping() FieldMapping {
	return FieldMapping{
		deal.FieldClient:   "Name",
		deal.FieldStatus:   "Status",
		deal.FieldAmount:   "Amount",
		deal.FieldSector:   "Sector",
		deal.FieldDueDate:  "Due Date",
		deal.FieldAssignee: "Assignee",
		deal.FieldNotes:    "Notes",
	}
}

// ParseFieldMapping decodes a JSON mapping document. Invalid or empty input
// falls back to the default mapping.
func ParseFieldMapping(raw string) FieldMapping {
	if raw == "" {
		return DefaultFieldMapping()
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil || len(m) == 0 {
		return DefaultFieldMapping()
	}
	return FieldMapping(m)
}

// ExternalField returns the external name for a local field, with a fallback
// when the field is unmapped.
func (m FieldMapping) ExternalField(localField, fallback string) string {
	if ext, ok := m[localField]; ok {
		return ext
	}
	return fallback
}

// ToLocal converts an external record into local field names. External
// fields absent from the mapping or from the record are dropped, not
// defaulted. No validation happens here.
func (m FieldMapping) ToLocal(external map[string]any) map[string]any {
	local := make(map[string]any, len(m))
	for localField, externalField := range m {
		if value, ok := external[externalField]; ok {
			local[localField] = value
		}
	}
	return local
}

// ToExternal converts local fields into the external record shape. Local
// fields with nil values are skipped so providers never receive null
// overwrites for untouched fields.
func (m FieldMapping) ToExternal(local map[string]any) map[string]any {
	external := make(map[string]any, len(local))
	for localField, externalField := range m {
		value, ok := local[localField]
		if !ok || value == nil {
			continue
		}
		external[externalField] = value
	}
	return external
}
