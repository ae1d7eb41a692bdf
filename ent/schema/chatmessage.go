package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ChatMessage holds the schema definition for a logged inter-agent
// communication. Stored as "messages" at the SQL level per SPEC_FULL.md §6.
type ChatMessage struct {
	ent.Schema
}

// Annotations of the ChatMessage.
func (ChatMessage) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "messages"},
	}
}

// Fields of the ChatMessage.
func (ChatMessage) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("message_id").
			Unique().
			Immutable(),
		field.String("room_id").
			Immutable(),
		field.String("sender_id"),
		field.String("recipient_id").
			Optional().
			Nillable().
			Comment("nil = broadcast"),
		field.String("protocol_name").
			Optional().
			Nillable(),
		field.String("protocol_version").
			Optional().
			Nillable(),
		field.Text("content"),
		field.Time("timestamp").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the ChatMessage.
func (ChatMessage) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("room", ChatRoom.Type).
			Ref("messages").
			Field("room_id").
			Unique().
			Required().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the ChatMessage.
func (ChatMessage) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("room_id", "timestamp"),
	}
}
