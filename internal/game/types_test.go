package game

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestVehicleSnapshot_JSONHidesSecrets(t *testing.T) {
	snap := VehicleSnapshot{
		Kind:              VehicleMatatu,
		CurrentMultiplier: 1.25,
		Status:            StatusRunning,
		HashedServerSeed:  "abc",
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Failed to marshal VehicleSnapshot: %v", err)
	}

	for _, key := range []string{`"final_multiplier"`, `"fairness"`, `"server_seed"`} {
		if strings.Contains(string(data), key) {
			t.Errorf("running snapshot JSON contains %s: %s", key, data)
		}
	}
	if !strings.Contains(string(data), `"hashed_server_seed":"abc"`) {
		t.Errorf("snapshot JSON missing commitment: %s", data)
	}
}

func TestWSMessage_JSON(t *testing.T) {
	msg := WSMessage{
		Type: EventMultiplier,
		Data: MultiplierPayload{
			RoundID:     "round_001",
			Multipliers: map[VehicleKind]float64{VehicleMatatu: 1.5},
			Phase:       PhaseRunning,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Failed to marshal WSMessage: %v", err)
	}

	var decoded struct {
		Type string `json:"type"`
		Data struct {
			RoundID     string             `json:"round_id"`
			Multipliers map[string]float64 `json:"multipliers"`
			Phase       string             `json:"phase"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal WSMessage: %v", err)
	}

	if decoded.Type != "round:multiplier" {
		t.Errorf("Type = %v, want round:multiplier", decoded.Type)
	}
	if decoded.Data.Multipliers["matatu"] != 1.5 {
		t.Errorf("Multipliers = %v", decoded.Data.Multipliers)
	}
	if decoded.Data.Phase != "running" {
		t.Errorf("Phase = %v, want running", decoded.Data.Phase)
	}
}

func TestContributionResult_JSON(t *testing.T) {
	data, _ := json.Marshal(accepted())
	if string(data) != `{"accepted":true}` {
		t.Errorf("accepted JSON = %s", data)
	}

	data, _ = json.Marshal(rejected(RejectCapacity))
	if string(data) != `{"accepted":false,"reason":"vehicle_full"}` {
		t.Errorf("rejected JSON = %s", data)
	}
}

func TestVehicleAudit_FlattensRecord(t *testing.T) {
	audit := VehicleAudit{
		RoundID:            "r1",
		VehicleKind:        VehicleBodaboda,
		ProvablyFairRecord: ProvablyFairRecord{ServerSeed: "s", FinalMultiplier: 2.5},
	}

	data, _ := json.Marshal(audit)
	var flat map[string]interface{}
	json.Unmarshal(data, &flat)

	if flat["server_seed"] != "s" || flat["final_multiplier"] != 2.5 || flat["vehicle_kind"] != "bodaboda" {
		t.Errorf("audit JSON = %s", data)
	}
}

func TestParseVehicleKind(t *testing.T) {
	tests := []struct {
		in     string
		want   VehicleKind
		wantOK bool
	}{
		{"matatu", VehicleMatatu, true},
		{"bodaboda", VehicleBodaboda, true},
		{"Matatu", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseVehicleKind(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseVehicleKind(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
