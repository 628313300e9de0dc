// Package helpers provides builders and container harnesses shared by
// tests.
package helpers

import (
	"github.com/google/uuid"

	"github.com/heriberto777/core-app-sub000/internal/entity"
)

// TaskBuilder assembles transfer tasks for tests with sensible defaults.
type TaskBuilder struct {
	task entity.Task
}

// NewTaskBuilder creates a builder for an active manual task moving rows
// from the "source" server to the "target" server (see WithServers).
func NewTaskBuilder(name string) *TaskBuilder {
	return &TaskBuilder{
		task: entity.Task{
			ID:           uuid.NewString(),
			Name:         name,
			Active:       true,
			Kind:         entity.KindManual,
			Direction:    entity.DirectionUp,
			SourceServer: "source",
			TargetServer: "target",
			Status:       entity.StatusIdle,
			CreatedAt:    entity.Now(),
			UpdatedAt:    entity.Now(),
		},
	}
}

// WithQuery sets the projection query.
func (b *TaskBuilder) WithQuery(query string) *TaskBuilder {
	b.task.Query = query
	return b
}

// WithDestTable sets the destination table.
func (b *TaskBuilder) WithDestTable(table string) *TaskBuilder {
	b.task.DestTable = table
	return b
}

// WithServers sets the source and target server keys.
func (b *TaskBuilder) WithServers(source, target string) *TaskBuilder {
	b.task.SourceServer = source
	b.task.TargetServer = target
	return b
}

// WithRuleset sets the validation ruleset.
func (b *TaskBuilder) WithRuleset(rs entity.ValidationRuleset) *TaskBuilder {
	b.task.Ruleset = rs
	return b
}

// WithIdentity configures a single-field numeric identity, the most common
// ruleset shape.
func (b *TaskBuilder) WithIdentity(field string) *TaskBuilder {
	b.task.Ruleset = entity.ValidationRuleset{
		Fields: map[string]entity.FieldRule{
			field: {Type: entity.FieldNumber, Required: true, Integer: true},
		},
		RequiredFields: []string{field},
		ExistenceCheck: &entity.ExistenceCheck{Key: field},
	}
	return b
}

// WithField adds a field rule to the ruleset.
func (b *TaskBuilder) WithField(name string, rule entity.FieldRule) *TaskBuilder {
	if b.task.Ruleset.Fields == nil {
		b.task.Ruleset.Fields = make(map[string]entity.FieldRule)
	}
	b.task.Ruleset.Fields[name] = rule
	return b
}

// WithPromotion attaches a promotion configuration.
func (b *TaskBuilder) WithPromotion(cfg *entity.PromotionConfig) *TaskBuilder {
	b.task.Promotion = cfg
	return b
}

// WithPostUpdate configures the post-transfer source update.
func (b *TaskBuilder) WithPostUpdate(query string, mapping *entity.PostUpdateMapping) *TaskBuilder {
	b.task.PostUpdateQuery = query
	b.task.PostUpdateMapping = mapping
	return b
}

// WithClearBeforeInsert enables destination clearing.
func (b *TaskBuilder) WithClearBeforeInsert() *TaskBuilder {
	b.task.ClearBeforeInsert = true
	return b
}

// Inactive marks the task disabled.
func (b *TaskBuilder) Inactive() *TaskBuilder {
	b.task.Active = false
	return b
}

// Build returns the assembled task.
func (b *TaskBuilder) Build() *entity.Task {
	task := b.task
	return &task
}
