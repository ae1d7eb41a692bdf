package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// MeetingParticipant holds the schema definition for one agent's membership
// in a Meeting.
type MeetingParticipant struct {
	ent.Schema
}

// Fields of the MeetingParticipant.
func (MeetingParticipant) Fields() []ent.Field {
	return []ent.Field{
		field.String("meeting_id").
			Immutable(),
		field.String("agent_id").
			Immutable(),
		field.Enum("role").
			Values("moderator", "participant").
			Default("participant"),
		field.Int("speaking_order").
			Comment("1-based, dense, contiguous within a meeting"),
		field.Time("joined_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the MeetingParticipant.
func (MeetingParticipant) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("meeting", Meeting.Type).
			Ref("participants").
			Field("meeting_id").
			Unique().
			Required().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the MeetingParticipant.
func (MeetingParticipant) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("meeting_id", "agent_id").Unique(),
		index.Fields("meeting_id", "speaking_order").Unique(),
	}
}
