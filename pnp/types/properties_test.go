package types

import (
	"testing"
)

func TestParseTwin(t *testing.T) {
	props, err := ParseTwin([]byte(`{"desired":{"serialNumber":"x","$version":4},"reported":{"serialNumber":"SR-1","thermostat1":{"__t":"c","maxTempSinceLastReboot":30}},"tags":{}}`))
	if err != nil {
		t.Fatalf("ParseTwin() err = %v", err)
	}
	if props.Writable().Version() != 4 {
		t.Errorf("desired version = %d", props.Writable().Version())
	}
	if v, ok := props.Get("serialNumber"); !ok || v.String() != "SR-1" {
		t.Errorf("Get() = %v %v", v, ok)
	}
	if v, ok := props.GetComponent("thermostat1", "maxTempSinceLastReboot"); !ok || v.String() != "30" {
		t.Errorf("GetComponent() = %v %v", v, ok)
	}
	if _, ok := props.GetComponent("serialNumber", "x"); ok {
		t.Errorf("GetComponent() on a scalar succeeded")
	}

	if _, err := ParseTwin([]byte(`[]`)); err == nil {
		t.Errorf("ParseTwin() accepted an array")
	}
}

func TestMergeDesired(t *testing.T) {
	props, err := ParseTwin([]byte(`{"desired":{"a":1,"thermostat1":{"targetTemperature":20,"mode":"eco"},"$version":2},"reported":{"a":1}}`))
	if err != nil {
		t.Fatalf("ParseTwin() err = %v", err)
	}

	tests := []struct {
		name    string
		patch   string
		want    string
		version int64
	}{
		{
			name:    "merge nested",
			patch:   `{"thermostat1":{"targetTemperature":35},"$version":3}`,
			want:    `{"a":1,"thermostat1":{"mode":"eco","targetTemperature":35}}`,
			version: 3,
		},
		{
			name:    "null removes",
			patch:   `{"a":null,"$version":5}`,
			want:    `{"thermostat1":{"mode":"eco","targetTemperature":20}}`,
			version: 5,
		},
		{
			name:    "version kept",
			patch:   `{"b":true}`,
			want:    `{"a":1,"b":true,"thermostat1":{"mode":"eco","targetTemperature":20}}`,
			version: 2,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			merged, err := props.MergeDesired([]byte(test.patch))
			if err != nil {
				t.Fatalf("MergeDesired() err = %v", err)
			}
			got, err := merged.Writable().Serialize()
			if err != nil {
				t.Fatalf("Serialize() err = %v", err)
			}
			if got != test.want {
				t.Errorf("MergeDesired() = %s, want %s", got, test.want)
			}
			if merged.Writable().Version() != test.version {
				t.Errorf("version = %d, want %d", merged.Writable().Version(), test.version)
			}
			if v, _ := merged.Get("a"); v.String() != "1" {
				t.Errorf("reported side changed: %v", v)
			}
		})
	}

	if _, err := props.MergeDesired([]byte(`{`)); err == nil {
		t.Errorf("MergeDesired() accepted a malformed patch")
	}
}
