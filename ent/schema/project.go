package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Project holds the schema definition for the Project entity — the
// isolation root every other persisted record hangs off of.
type Project struct {
	ent.Schema
}

// Fields of the Project.
func (Project) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("project_id").
			Unique().
			Immutable().
			Comment("Lowercase slug, [a-z][a-z0-9_]*[a-z0-9]"),
		field.String("name").
			MaxLen(100),
		field.String("description").
			Optional().
			MaxLen(500),
		field.Strings("tags").
			Optional(),
		field.String("owner").
			Optional().
			Nillable(),
		field.Int("max_sessions").
			Default(0).
			Comment("0 = unlimited"),
		field.Int("max_protocols").
			Default(0),
		field.Int("max_message_queue_size").
			Default(100),
		field.Bool("allow_cross_project").
			Default(false),
		field.Bool("discoverable").
			Default(true),
		field.Strings("shared_protocols").
			Optional(),
		field.Enum("status").
			Values("active", "inactive").
			Default("active"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("last_activity").
			Optional().
			Nillable(),
	}
}

// Edges of the Project.
func (Project) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("api_keys", ProjectAPIKey.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("cross_project_permissions", CrossProjectPermission.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Project.
func (Project) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("discoverable"),
	}
}
