package feed

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// eventSchema constrains every inbound feed event before decoding. The
// gateway side of the wire is not under our control; a malformed event must
// be droppable without touching coordinator state.
const eventSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type"],
  "oneOf": [
    {
      "properties": {
        "type": {"const": "account_snapshot"},
        "accounts": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id"],
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "primary": {"type": "boolean"}
            }
          }
        }
      },
      "required": ["type", "accounts"]
    },
    {
      "properties": {
        "type": {"const": "entry_signal"},
        "account_id": {"type": "string", "minLength": 1},
        "instrument": {"type": "string", "minLength": 1},
        "side": {"enum": ["buy", "sell"]},
        "kind": {"enum": ["market", "limit", "stop_market", "stop_limit"]},
        "price": {"type": ["number", "string"]},
        "quantity": {"type": ["number", "string"]}
      },
      "required": ["type", "account_id", "instrument", "side", "quantity"]
    },
    {
      "properties": {
        "type": {"const": "order_accepted"},
        "token": {"type": "string", "minLength": 1},
        "order_id": {"type": "string", "minLength": 1}
      },
      "required": ["type", "token", "order_id"]
    },
    {
      "properties": {
        "type": {"const": "order_status"},
        "order_id": {"type": "string", "minLength": 1},
        "filled": {"type": ["number", "string"]},
        "unfilled": {"type": ["number", "string"]},
        "status": {"type": "string", "minLength": 1}
      },
      "required": ["type", "order_id", "filled", "unfilled", "status"]
    },
    {
      "properties": {
        "type": {"const": "execution"},
        "order_id": {"type": "string", "minLength": 1},
        "quantity": {"type": ["number", "string"]},
        "price": {"type": ["number", "string"]}
      },
      "required": ["type", "order_id", "quantity", "price"]
    },
    {
      "properties": {
        "type": {"const": "price_tick"},
        "instrument": {"type": "string", "minLength": 1},
        "price": {"type": ["number", "string"]}
      },
      "required": ["type", "instrument", "price"]
    },
    {
      "properties": {
        "type": {"const": "day_rollover"},
        "day": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}
      },
      "required": ["type", "day"]
    }
  ]
}`

var compiledSchema = jsonschema.MustCompileString("feed_event.json", eventSchema)

func validate(raw []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("feed: invalid json: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("feed: schema violation: %w", err)
	}
	return nil
}
