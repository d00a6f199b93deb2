package zone

import (
	"encoding/json"
	"testing"
)

func TestDecodeZonesArray(t *testing.T) {
	data := []byte(`[{"id":"a1","name":"Living Room","temp":21.5},{"id":"a2","name":"Bedroom"}]`)

	zones, err := DecodeZones(data)
	if err != nil {
		t.Fatalf("DecodeZones failed: %v", err)
	}
	if len(zones) != 2 {
		t.Fatalf("got %d zones, want 2", len(zones))
	}
	if zones[0].ID != "a1" || zones[1].ID != "a2" {
		t.Errorf("ids = %q, %q", zones[0].ID, zones[1].ID)
	}
}

func TestDecodeZonesMap(t *testing.T) {
	data := []byte(`{"a1":{"id":"a1","name":"Living Room"},"a2":{"name":"Bedroom"}}`)

	zones, err := DecodeZones(data)
	if err != nil {
		t.Fatalf("DecodeZones failed: %v", err)
	}
	if len(zones) != 2 {
		t.Fatalf("got %d zones, want 2", len(zones))
	}

	ids := map[string]bool{}
	for _, z := range zones {
		ids[z.ID] = true
	}
	// The a2 entry has no embedded id and must inherit the map key.
	if !ids["a1"] || !ids["a2"] {
		t.Errorf("ids = %v", ids)
	}
}

func TestZoneOpaquePassthrough(t *testing.T) {
	record := `{"id":"a1","name":"Living Room","target":21.5,"sensors":[{"id":"s1"}]}`

	var z Zone
	if err := json.Unmarshal([]byte(record), &z); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if z.ID != "a1" {
		t.Errorf("ID = %q, want a1", z.ID)
	}

	// Re-marshaling must yield the original record unchanged.
	out, err := json.Marshal(z)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != record {
		t.Errorf("passthrough changed payload:\n got %s\nwant %s", out, record)
	}
}

func TestDecodeZonesEmpty(t *testing.T) {
	zones, err := DecodeZones(nil)
	if err != nil {
		t.Fatalf("DecodeZones(nil) failed: %v", err)
	}
	if zones != nil {
		t.Errorf("zones = %v, want nil", zones)
	}
}

func TestDecodeZonesMalformed(t *testing.T) {
	if _, err := DecodeZones([]byte(`"not a collection"`)); err == nil {
		t.Fatal("expected error for scalar payload")
	}
	if _, err := DecodeZones([]byte(`[{"id":`)); err == nil {
		t.Fatal("expected error for truncated array")
	}
}
