package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// MeetingMessage holds the schema definition for one entry in a meeting's
// transcript — statements, opinions, votes, and consensus records.
type MeetingMessage struct {
	ent.Schema
}

// Fields of the MeetingMessage.
func (MeetingMessage) Fields() []ent.Field {
	return []ent.Field{
		field.String("meeting_id").
			Immutable(),
		field.Int("sequence_number").
			Comment("strictly increasing per meeting, gap-free"),
		field.String("agent_id"),
		field.Text("content"),
		field.Enum("message_type").
			Values("statement", "question", "proposal", "opinion", "consensus", "vote").
			Default("statement"),
		field.Time("timestamp").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the MeetingMessage.
func (MeetingMessage) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("meeting", Meeting.Type).
			Ref("messages").
			Field("meeting_id").
			Unique().
			Required().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the MeetingMessage.
func (MeetingMessage) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("meeting_id", "sequence_number").Unique(),
	}
}
