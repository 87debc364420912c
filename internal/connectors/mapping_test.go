package connectors

import (
	"reflect"
	"testing"

	"pipeline-crm/internal/features/deal"
)

func TestParseFieldMapping(t *testing.T) {
	custom := ParseFieldMapping(`{"client": "Société", "amount": "Budget"}`)
	if custom[deal.FieldClient] != "Société" || custom[deal.FieldAmount] != "Budget" {
		t.Errorf("custom mapping not honored: %v", custom)
	}

	for _, raw := range []string{"", "not json", "{}"} {
		got := ParseFieldMapping(raw)
		if !reflect.DeepEqual(got, DefaultFieldMapping()) {
			t.Errorf("ParseFieldMapping(%q) = %v, want default mapping", raw, got)
		}
	}
}

func TestToLocalDropsUnmappedFields(t *testing.T) {
	mapping := FieldMapping{
		deal.FieldClient: "Name",
		deal.FieldAmount: "Amount",
	}

	local := mapping.ToLocal(map[string]any{
		"Name":     "Acme",
		"Amount":   5000.0,
		"Internal": "should vanish",
	})

	want := map[string]any{
		deal.FieldClient: "Acme",
		deal.FieldAmount: 5000.0,
	}
	if !reflect.DeepEqual(local, want) {
		t.Errorf("ToLocal = %v, want %v", local, want)
	}
}

func TestToExternalSkipsNil(t *testing.T) {
	mapping := DefaultFieldMapping()

	external := mapping.ToExternal(map[string]any{
		deal.FieldClient: "Acme",
		deal.FieldAmount: nil,
		deal.FieldNotes:  "call back",
	})

	if _, present := external["Amount"]; present {
		t.Error("nil amount should not be sent externally")
	}
	if external["Name"] != "Acme" || external["Notes"] != "call back" {
		t.Errorf("unexpected external record: %v", external)
	}
}

func TestRoundTripPreservesMappedFields(t *testing.T) {
	mapping := DefaultFieldMapping()

	local := map[string]any{
		deal.FieldClient:  "Acme",
		deal.FieldStatus:  "prospect",
		deal.FieldAmount:  1200.0,
		deal.FieldDueDate: "2026-01-31",
	}

	back := mapping.ToLocal(mapping.ToExternal(local))
	if !reflect.DeepEqual(back, local) {
		t.Errorf("round trip changed record: got %v, want %v", back, local)
	}
}

func TestCoerceAmount(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  any
	}{
		{name: "Float Passthrough", value: 1200.0, want: 1200.0},
		{name: "String Number", value: "1200.50", want: 1200.50},
		{name: "Int", value: 42, want: 42.0},
		{name: "Garbage Becomes Nil", value: "a lot", want: nil},
		{name: "Bool Becomes Nil", value: true, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := map[string]any{deal.FieldAmount: tt.value}
			coerceAmount(local)
			if local[deal.FieldAmount] != tt.want {
				t.Errorf("coerceAmount(%v) = %v, want %v", tt.value, local[deal.FieldAmount], tt.want)
			}
		})
	}
}
