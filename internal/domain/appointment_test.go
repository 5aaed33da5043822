package domain

import "testing"

func TestContactSameAs(t *testing.T) {
	tests := []struct {
		name string
		a, b Contact
		want bool
	}{
		{"same phone", Contact{Name: "Mai", Phone: "0901 234 567"}, Contact{Name: "Son", Phone: "0901 234 567"}, true},
		{"phone formatting differs", Contact{Name: "Mai", Phone: "0901 234 567"}, Contact{Name: "Mai", Phone: "0901-234-567"}, false},
		{"name when one phone missing", Contact{Name: "Mai Tran", Phone: "0901"}, Contact{Name: "Mai Tran"}, true},
		{"name case differs", Contact{Name: "Mai Tran"}, Contact{Name: "mai tran"}, false},
		{"name whitespace differs", Contact{Name: "Mai Tran"}, Contact{Name: " Mai Tran"}, false},
	}
	for _, tt := range tests {
		if got := tt.a.SameAs(tt.b); got != tt.want {
			t.Fatalf("%s: SameAs = %v, want %v", tt.name, got, tt.want)
		}
	}
}
