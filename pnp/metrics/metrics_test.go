package metrics

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLabels(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ok", Result(nil), ResultOK},
		{"error", Result(errors.New("x")), ResultError},
		{"code", Code(202), "202"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if test.got != test.want {
				t.Errorf("label = %s, want %s", test.got, test.want)
			}
		})
	}
}

func TestRegisterOnce(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(Diagnostics.WithLabelValues("AckFailed"))
	Diagnostics.WithLabelValues("AckFailed").Inc()
	if got := testutil.ToFloat64(Diagnostics.WithLabelValues("AckFailed")); got != before+1 {
		t.Errorf("diagnostics = %v, want %v", got, before+1)
	}
}
