package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// CrossProjectPermission holds the schema definition for a grant from a
// source project to address a specific target project.
type CrossProjectPermission struct {
	ent.Schema
}

// Fields of the CrossProjectPermission.
func (CrossProjectPermission) Fields() []ent.Field {
	return []ent.Field{
		field.String("source_project_id").
			Immutable(),
		field.String("target_project_id").
			Immutable(),
		field.Strings("allowed_protocols").
			Optional().
			Comment("empty = wildcard"),
		field.Int("message_rate_limit").
			Default(0).
			Comment("messages/minute; 0 = unlimited"),
	}
}

// Edges of the CrossProjectPermission.
func (CrossProjectPermission) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("project", Project.Type).
			Ref("cross_project_permissions").
			Field("source_project_id").
			Unique().
			Required().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the CrossProjectPermission.
func (CrossProjectPermission) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("source_project_id", "target_project_id").Unique(),
	}
}
