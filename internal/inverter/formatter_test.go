package inverter

import (
	"errors"
	"reflect"
	"testing"
)

func sampleRuntime() RuntimeData {
	return RuntimeData{
		"vpv1":            320.5,
		"ipv1":            6.2,
		"ppv":             5230,
		"vac1":            230.1,
		"iac2":            7.5,
		"fac3":            50.01,
		"pac":             4980,
		"battery_soc":     64,
		"battery_voltage": 52.3,
		"e_day":           12.4,
		"h_total":         8812,
		"work_mode":       1,
		"temperature":     41.5,
	}
}

func TestFormatOutputModes(t *testing.T) {
	data := sampleRuntime()

	flat, err := FormatOutput(data, ModeFlat)
	if err != nil {
		t.Fatalf("flat: %v", err)
	}
	if !reflect.DeepEqual(flat, data) {
		t.Error("flat mode altered the data")
	}

	// Empty mode defaults to flat.
	def, err := FormatOutput(data, "")
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if !reflect.DeepEqual(def, data) {
		t.Error("default mode is not flat")
	}

	if _, err := FormatOutput(data, "table"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestCategorize(t *testing.T) {
	buckets := Categorize(sampleRuntime())

	want := map[string][]string{
		"pv":      {"vpv1", "ipv1", "ppv"},
		"battery": {"battery_soc", "battery_voltage"},
		"grid":    {"vac1", "iac2", "fac3", "pac"},
		"energy":  {"e_day", "h_total"},
		"status":  {"work_mode", "temperature"},
	}

	for bucket, names := range want {
		for _, name := range names {
			if _, ok := buckets[bucket][name]; !ok {
				t.Errorf("%s missing from %s bucket: %v", name, bucket, buckets[bucket])
			}
		}
		if len(buckets[bucket]) != len(names) {
			t.Errorf("%s bucket has %d entries, want %d", bucket, len(buckets[bucket]), len(names))
		}
	}
}

func TestCategorizeEmptyBucketsPresent(t *testing.T) {
	// Grid-tie data has no battery registers; the bucket still exists.
	buckets := Categorize(RuntimeData{"vpv1": 1})
	for _, bucket := range []string{"pv", "battery", "grid", "energy", "status"} {
		if _, ok := buckets[bucket]; !ok {
			t.Errorf("bucket %s missing", bucket)
		}
	}
}

func TestAsArrayOrdering(t *testing.T) {
	readings := AsArray(RuntimeData{"vpv1": 320.5, "battery_soc": 64, "pac": 4980})

	wantIDs := []string{"battery_soc", "pac", "vpv1"}
	if len(readings) != len(wantIDs) {
		t.Fatalf("got %d readings, want %d", len(readings), len(wantIDs))
	}
	for i, id := range wantIDs {
		if readings[i].ID != id {
			t.Errorf("readings[%d].ID = %s, want %s", i, readings[i].ID, id)
		}
	}
	if readings[0].Value != 64 {
		t.Errorf("battery_soc value = %g, want 64", readings[0].Value)
	}
}

func TestNewErrorResponse(t *testing.T) {
	ce := Enhance(&CommError{Code: CodeTimeout, Message: "request timed out after 1000ms"}, testDetails())

	resp := NewErrorResponse(ce, "read-runtime-data")
	if resp.Success {
		t.Error("Success = true for an error response")
	}
	if resp.Command != "read-runtime-data" {
		t.Errorf("Command = %q", resp.Command)
	}
	if resp.Error.Code != CodeTimeout {
		t.Errorf("Code = %s, want %s", resp.Error.Code, CodeTimeout)
	}
	if resp.Error.Message != "request timed out after 1000ms" {
		t.Errorf("Message = %q", resp.Error.Message)
	}
	if len(resp.Error.Suggestions) == 0 {
		t.Error("suggestions dropped from the response")
	}
}

func TestNewErrorResponsePlainError(t *testing.T) {
	resp := NewErrorResponse(errors.New("boom"), "read-device-info")
	if resp.Error.Code != CodeUnknown {
		t.Errorf("Code = %s, want %s", resp.Error.Code, CodeUnknown)
	}
	if resp.Error.Message != "boom" {
		t.Errorf("Message = %q, want %q", resp.Error.Message, "boom")
	}
}
