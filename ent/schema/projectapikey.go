package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ProjectAPIKey holds the schema definition for an API key minted for a
// Project. Only the hash is persisted; the plaintext is returned once at
// creation and never stored.
type ProjectAPIKey struct {
	ent.Schema
}

// Fields of the ProjectAPIKey.
func (ProjectAPIKey) Fields() []ent.Field {
	return []ent.Field{
		field.String("key_id").
			Unique().
			Immutable().
			Comment("e.g. 'admin', 'owner', or a generated key<hex>"),
		field.String("project_id").
			Immutable(),
		field.String("key_hash").
			Sensitive().
			Comment("hex sha256 hash of the plaintext key"),
		field.Bool("is_active").
			Default(true),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("expires_at").
			Optional().
			Nillable().
			Comment("set during rotation grace period"),
	}
}

// Edges of the ProjectAPIKey.
func (ProjectAPIKey) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("project", Project.Type).
			Ref("api_keys").
			Field("project_id").
			Unique().
			Required().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the ProjectAPIKey.
func (ProjectAPIKey) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id"),
		index.Fields("expires_at"),
	}
}
