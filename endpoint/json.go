package endpoint

import (
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"
)

// unmarshalRepair unmarshals JSON into v. Models occasionally emit
// near-JSON (unquoted keys, trailing commas); on a syntax error the data
// is repaired once and retried before giving up.
func unmarshalRepair(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}
