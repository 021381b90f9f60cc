// internal/template/template_test.go
package template

import (
	"testing"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name     string
		template string
		counter  int
		vars     map[string]string
		want     string
	}{
		{
			name:     "counter upper",
			template: "Add #{COUNTER}",
			counter:  3,
			want:     "Add #3",
		},
		{
			name:     "counter lower",
			template: "{counter} of 5",
			counter:  2,
			want:     "2 of 5",
		},
		{
			name:     "mixed case is not a placeholder",
			template: "{Counter}",
			counter:  2,
			want:     "{Counter}",
		},
		{
			name:     "variable",
			template: "Mez on {var:target}",
			vars:     map[string]string{"target": "a gnoll pup"},
			want:     "Mez on a gnoll pup",
		},
		{
			name:     "variable and counter",
			template: "{var:caster} heal {COUNTER}",
			counter:  7,
			vars:     map[string]string{"caster": "Soandso"},
			want:     "Soandso heal 7",
		},
		{
			name:     "missing variable",
			template: "Target: {var:target}",
			vars:     nil,
			want:     "Target: ",
		},
		{
			name:     "no placeholders",
			template: "Just plain text {S}",
			vars:     map[string]string{"unused": "value"},
			want:     "Just plain text {S}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Expand(tt.template, tt.counter, tt.vars)
			if got != tt.want {
				t.Errorf("Expand() = %q, want %q", got, tt.want)
			}
		})
	}
}
