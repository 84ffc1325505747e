package codec

import (
	"encoding/json"
	"strings"

	"trading-relay/src/helpers"
	"trading-relay/src/models"
)

// EncodeEvent serializes a downstream push frame as {"type":...,"data":...}.
func EncodeEvent(evt models.MEvent) ([]byte, error) {
	if evt.Type == "" {
		return nil, helpers.NewValidationError("event without type")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, helpers.NewDecodeError("encode "+evt.Type+" event", err)
	}
	return data, nil
}

// -----------------------------------------------------------------------------

// DecodeCommand parses a message sent by a downstream client.
func DecodeCommand(data []byte) (models.MClientCommand, error) {
	var cmd models.MClientCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, helpers.NewDecodeError("malformed client command", err)
	}
	cmd.Command = strings.ToLower(strings.TrimSpace(cmd.Command))
	switch cmd.Command {
	case "subscribe", "unsubscribe":
		if len(cmd.Symbols) == 0 {
			return cmd, helpers.NewValidationError("%s needs at least one symbol", cmd.Command)
		}
		for i, s := range cmd.Symbols {
			cmd.Symbols[i] = strings.TrimSpace(s)
			if cmd.Symbols[i] == "" {
				return cmd, helpers.NewValidationError("empty symbol in %s", cmd.Command)
			}
		}
	case "ping":
	default:
		return cmd, helpers.NewValidationError("unknown command '%s'", cmd.Command)
	}
	return cmd, nil
}

// -----------------------------------------------------------------------------

// DecodeEvent parses a frame from an analytics collaborator. Only relayed
// event types are accepted.
func DecodeEvent(data []byte) (models.MEvent, error) {
	var raw struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.MEvent{}, helpers.NewDecodeError("malformed analytics frame", err)
	}
	if !models.RelayedEventTypes[raw.Type] {
		return models.MEvent{}, helpers.NewValidationError("event type '%s' is not relayed", raw.Type)
	}
	return models.MEvent{Type: raw.Type, Data: raw.Data}, nil
}
