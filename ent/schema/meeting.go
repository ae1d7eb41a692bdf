package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Meeting holds the schema definition for a discussion coordinated by
// DiscussionCoordinator.
type Meeting struct {
	ent.Schema
}

// Fields of the Meeting.
func (Meeting) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("project_id").
			Immutable(),
		field.String("title"),
		field.Text("description").
			Optional().
			Nillable(),
		field.Text("agenda").
			Optional().
			Nillable(),
		field.Enum("status").
			Values("pending", "active", "completed", "failed", "cancelled").
			Default("pending"),
		field.Int("max_discussion_rounds").
			Default(3),
		field.Int("current_round").
			Default(0),
		field.Int("max_duration_seconds").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("started_at").
			Optional().
			Nillable(),
		field.Time("ended_at").
			Optional().
			Nillable(),
	}
}

// Edges of the Meeting.
func (Meeting) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("participants", MeetingParticipant.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("messages", MeetingMessage.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("decisions", Decision.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Meeting.
func (Meeting) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
	}
}
