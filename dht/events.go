package dht

import (
	"github.com/toktok/dhtcore/internal/eventlog"
)

// Event kinds appended to a DHT's event façade. These are additive,
// ambient observability: where a narrower, primary-API callback exists
// for the same occurrence (OnGetNodesResponse for a learned node,
// OnIPFound for a found friend), it is still invoked alongside the
// event. Friend-lost, NAT-state and bootstrap events have no callback.
const (
	eventKindNodeLearned eventlog.Kind = iota + 1
	eventKindFriendFound
	eventKindFriendLost
	eventKindNATStateChanged
	eventKindBootstrapCompleted
)

func nodeLearnedFields(pub PublicKey, ep Endpoint) []eventlog.Field {
	return []eventlog.Field{
		{Name: "public_key", Value: pub},
		{Name: "endpoint", Value: ep},
	}
}

func friendFoundFields(pub PublicKey, ep Endpoint) []eventlog.Field {
	return []eventlog.Field{
		{Name: "friend", Value: pub},
		{Name: "endpoint", Value: ep},
	}
}

func friendLostFields(pub PublicKey) []eventlog.Field {
	return []eventlog.Field{
		{Name: "friend", Value: pub},
	}
}

func natStateFields(friend PublicKey, state natState) []eventlog.Field {
	return []eventlog.Field{
		{Name: "friend", Value: friend},
		{Name: "state", Value: state.String()},
	}
}

func bootstrapCompletedFields(pub PublicKey, ep Endpoint) []eventlog.Field {
	return []eventlog.Field{
		{Name: "public_key", Value: pub},
		{Name: "endpoint", Value: ep},
	}
}
