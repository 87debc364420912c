package deal

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Local field names, also the keys of the connector field mapping.
const (
	FieldClient   = "client"
	FieldStatus   = "status"
	FieldAmount   = "amount"
	FieldSector   = "sector"
	FieldDueDate  = "dueDate"
	FieldAssignee = "assignee"
	FieldNotes    = "notes"
)

// Deal is a sales opportunity. Probability and WeightedValue are derived
// from Status and Amount and are recomputed on every write, never set
// independently.
type Deal struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Client        string             `json:"client" bson:"client"`
	Status        string             `json:"status" bson:"status"`
	Amount        float64            `json:"amount" bson:"amount"`
	Probability   float64            `json:"probability" bson:"probability"`
	WeightedValue float64            `json:"weightedValue" bson:"weighted_value"`
	Sector        string             `json:"sector,omitempty" bson:"sector,omitempty"`
	DueDate       string             `json:"dueDate,omitempty" bson:"due_date,omitempty"` // ISO date
	Assignee      string             `json:"assignee,omitempty" bson:"assignee,omitempty"`
	Notes         string             `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}

// Fields returns the deal as a flat local-field map for the connector
// translator. Empty optional fields are omitted so providers never receive
// null overwrites.
func (d *Deal) Fields() map[string]any {
	fields := map[string]any{
		FieldClient: d.Client,
		FieldStatus: d.Status,
		FieldAmount: d.Amount,
	}
	if d.Sector != "" {
		fields[FieldSector] = d.Sector
	}
	if d.DueDate != "" {
		fields[FieldDueDate] = d.DueDate
	}
	if d.Assignee != "" {
		fields[FieldAssignee] = d.Assignee
	}
	if d.Notes != "" {
		fields[FieldNotes] = d.Notes
	}
	return fields
}

// Filters narrows deal listings. Zero values mean "no constraint".
type Filters struct {
	Statuses  []string
	Sectors   []string
	Assignees []string
	DateFrom  string
	DateTo    string
	Search    string
}

func (f Filters) Empty() bool {
	return len(f.Statuses) == 0 && len(f.Sectors) == 0 && len(f.Assignees) == 0 &&
		f.DateFrom == "" && f.DateTo == "" && f.Search == ""
}
