package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Protocol holds the schema definition for a named, versioned message
// contract advertised by sessions within a project.
type Protocol struct {
	ent.Schema
}

// Fields of the Protocol.
func (Protocol) Fields() []ent.Field {
	return []ent.Field{
		field.String("project_id").
			Immutable(),
		field.String("name").
			Immutable(),
		field.String("version").
			Immutable(),
		field.JSON("message_schema", map[string]any{}).
			Comment("JSON Schema Draft-07 document"),
		field.Strings("capabilities").
			Optional().
			Comment("e.g. point_to_point, broadcast"),
		field.String("author").
			Optional().
			Nillable(),
		field.String("description").
			Optional().
			Nillable(),
		field.Strings("tags").
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the Protocol.
func (Protocol) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id", "name", "version").
			Unique(),
		index.Fields("project_id"),
	}
}
