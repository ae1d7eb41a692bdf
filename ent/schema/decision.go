package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Decision holds the schema definition for a durable decision record
// produced by the DiscussionCoordinator when a round reaches consensus.
type Decision struct {
	ent.Schema
}

// Fields of the Decision.
func (Decision) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("meeting_id").
			Immutable(),
		field.String("title"),
		field.Text("description").
			Optional().
			Nillable(),
		field.Strings("options").
			Optional(),
		field.String("selected_option").
			Optional().
			Nillable(),
		field.Text("rationale").
			Optional().
			Nillable(),
		field.JSON("participant_agreement", map[string]any{}).
			Optional().
			Comment("agent_id -> bool|option"),
		field.Strings("related_communication_ids").
			Optional(),
		field.Enum("status").
			Values("pending", "approved", "rejected").
			Default("pending"),
		field.Time("decided_at").
			Optional().
			Nillable(),
	}
}

// Edges of the Decision.
func (Decision) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("meeting", Meeting.Type).
			Ref("decisions").
			Field("meeting_id").
			Unique().
			Required().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Decision.
func (Decision) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("meeting_id"),
		index.Fields("status"),
	}
}
