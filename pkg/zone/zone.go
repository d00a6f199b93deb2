package zone

import (
	"encoding/json"
	"fmt"
)

// Zone is a heating-controlled area. Only ID is interpreted; the full
// record is preserved verbatim in Raw for the consumer to decode.
type Zone struct {
	// ID is the zone's unique identifier.
	ID string

	// Raw is the complete zone record as received from the server.
	Raw json.RawMessage
}

// UnmarshalJSON extracts the identity and keeps the original bytes.
func (z *Zone) UnmarshalJSON(data []byte) error {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	z.ID = probe.ID
	z.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits the original record when present, otherwise just
// the identity.
func (z Zone) MarshalJSON() ([]byte, error) {
	if len(z.Raw) > 0 {
		return z.Raw, nil
	}
	return json.Marshal(struct {
		ID string `json:"id"`
	}{ID: z.ID})
}

// DecodeZones decodes a zones collection. The server uses two shapes
// interchangeably: a JSON array of zone records, or an object map keyed
// by zone id. Map entries missing an embedded id inherit the map key.
func DecodeZones(data []byte) ([]Zone, error) {
	if len(data) == 0 {
		return nil, nil
	}

	switch firstToken(data) {
	case '[':
		var zones []Zone
		if err := json.Unmarshal(data, &zones); err != nil {
			return nil, fmt.Errorf("malformed zones array: %w", err)
		}
		return zones, nil

	case '{':
		var m map[string]Zone
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("malformed zones map: %w", err)
		}
		zones := make([]Zone, 0, len(m))
		for key, z := range m {
			if z.ID == "" {
				z.ID = key
			}
			zones = append(zones, z)
		}
		return zones, nil

	default:
		return nil, fmt.Errorf("zones payload is neither array nor map")
	}
}

// firstToken returns the first non-whitespace byte of data (0 if none).
func firstToken(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}
