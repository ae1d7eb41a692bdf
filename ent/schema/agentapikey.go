package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// AgentAPIKey holds the schema definition for a persisted agent token hash.
// created_by_id is a nullable FK so agent keys survive creator deletion.
type AgentAPIKey struct {
	ent.Schema
}

// Fields of the AgentAPIKey.
func (AgentAPIKey) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("project_id").
			Immutable(),
		field.String("nickname"),
		field.String("token_hash").
			Sensitive(),
		field.Strings("capabilities").
			Optional(),
		field.Bool("is_active").
			Default(true),
		field.String("created_by_id").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("last_used").
			Optional().
			Nillable(),
	}
}

// Edges of the AgentAPIKey.
func (AgentAPIKey) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("created_by", User.Type).
			Ref("created_agent_keys").
			Field("created_by_id").
			Unique().
			Annotations(entsql.OnDelete(entsql.SetNull)),
	}
}

// Indexes of the AgentAPIKey.
func (AgentAPIKey) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id"),
		index.Fields("created_by_id"),
	}
}
