package entity

import (
	"time"
)

// TaskStatus represents the lifecycle state of a transfer task.
type TaskStatus string

const (
	StatusIdle      TaskStatus = "idle"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// ExecutionKind controls how a task may be triggered.
type ExecutionKind string

const (
	KindAuto   ExecutionKind = "auto"
	KindManual ExecutionKind = "manual"
	KindBoth   ExecutionKind = "both"
)

// Direction is the transfer direction between the two databases.
type Direction string

const (
	DirectionUp      Direction = "up"   // Source -> Target
	DirectionDown    Direction = "down" // Target -> Source
	DirectionDefault Direction = "default"
)

// Query parameter operators accepted in a task definition.
const (
	OpEqual        = "="
	OpLess         = "<"
	OpLessEqual    = "<="
	OpGreater      = ">"
	OpGreaterEqual = ">="
	OpNotEqual     = "<>"
	OpLike         = "LIKE"
	OpIn           = "IN"
	OpBetween      = "BETWEEN"
)

// QueryParam is a single projection-query filter. Value2 is only used by
// BETWEEN; IN expects Value to hold a slice.
type QueryParam struct {
	Field    string `bson:"field" json:"field"`
	Operator string `bson:"operator" json:"operator"`
	Value    any    `bson:"value" json:"value"`
	Value2   any    `bson:"value2,omitempty" json:"value2,omitempty"`
}

// ValidOperator reports whether op is one of the supported filter operators.
func ValidOperator(op string) bool {
	switch op {
	case OpEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual,
		OpNotEqual, OpLike, OpIn, OpBetween:
		return true
	}
	return false
}

// PostUpdateMapping maps the destination identity field back to the source
// identity field for the post-transfer update. RemovePrefix, when set, is
// stripped from each collected key before it is bound to the update query.
type PostUpdateMapping struct {
	DestField    string `bson:"destField" json:"destField"`
	SourceField  string `bson:"sourceField" json:"sourceField"`
	RemovePrefix string `bson:"removePrefix,omitempty" json:"removePrefix,omitempty"`
}

// Task is a persisted transfer definition.
type Task struct {
	ID        string        `bson:"_id,omitempty" json:"id"`
	Name      string        `bson:"name" json:"name"`
	Active    bool          `bson:"active" json:"active"`
	Kind      ExecutionKind `bson:"kind" json:"kind"`
	Direction Direction     `bson:"direction" json:"direction"`

	Query      string       `bson:"query" json:"query"`
	Params     []QueryParam `bson:"params,omitempty" json:"params,omitempty"`
	DestTable  string       `bson:"destTable" json:"destTable"`
	Ruleset    ValidationRuleset `bson:"ruleset" json:"ruleset"`

	PostUpdateQuery   string             `bson:"postUpdateQuery,omitempty" json:"postUpdateQuery,omitempty"`
	PostUpdateMapping *PostUpdateMapping `bson:"postUpdateMapping,omitempty" json:"postUpdateMapping,omitempty"`
	ClearBeforeInsert bool               `bson:"clearBeforeInsert" json:"clearBeforeInsert"`
	Promotion         *PromotionConfig   `bson:"promotion,omitempty" json:"promotion,omitempty"`

	SourceServer string `bson:"sourceServer" json:"sourceServer"`
	TargetServer string `bson:"targetServer" json:"targetServer"`

	Runs        int64      `bson:"runs" json:"runs"`
	LastRunAt   *time.Time `bson:"lastRunAt,omitempty" json:"lastRunAt,omitempty"`
	LastOutcome string     `bson:"lastOutcome,omitempty" json:"lastOutcome,omitempty"`

	Status   TaskStatus `bson:"status" json:"status"`
	Progress int        `bson:"progress" json:"progress"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// SourceAndTarget resolves the server keys for the task's direction.
// The "down" direction swaps the two endpoints.
func (t *Task) SourceAndTarget() (source, target string) {
	if t.Direction == DirectionDown {
		return t.TargetServer, t.SourceServer
	}
	return t.SourceServer, t.TargetServer
}

// Runnable reports whether the task may be executed at all.
func (t *Task) Runnable() error {
	if !t.Active {
		return ErrTaskInactive
	}
	if len(t.Ruleset.Fields) == 0 {
		return ErrRuleMissing
	}
	if len(t.Ruleset.MergeKeys()) == 0 {
		return ErrNoMergeKeys
	}
	return nil
}

// Now returns the current UTC time. All persisted timestamps use UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// NowPtr returns a pointer to the current UTC time.
func NowPtr() *time.Time {
	now := Now()
	return &now
}
