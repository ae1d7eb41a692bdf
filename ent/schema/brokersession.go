package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// BrokerSession holds the schema definition for a broker Session — one
// logical agent's presence within a project. Named BrokerSession (not
// Session) to avoid colliding with ent's own generated Session helpers.
type BrokerSession struct {
	ent.Schema
}

// Fields of the BrokerSession.
func (BrokerSession) Fields() []ent.Field {
	return []ent.Field{
		field.String("session_id").
			Immutable(),
		field.String("project_id").
			Immutable(),
		field.Time("connection_time").
			Default(time.Now).
			Immutable(),
		field.Time("last_heartbeat").
			Default(time.Now),
		field.Enum("status").
			Values("active", "stale", "disconnected").
			Default("active"),
		field.JSON("supported_protocols", map[string][]string{}).
			Optional().
			Comment("protocol name -> supported versions"),
		field.Strings("supported_features").
			Optional(),
		field.Int("queue_size").
			Default(0),
	}
}

// Indexes of the BrokerSession.
func (BrokerSession) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id", "session_id").Unique(),
		index.Fields("project_id", "status"),
	}
}
