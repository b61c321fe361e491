package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hindi", "Hindi"},
		{"  Odia/Oriya ", "Odia-Oriya"},
		{`a:b*c?"d"<e>|f`, "a-b-cdef"},
		{"..", ""},
		{"tab\there", "tabhere"},
	}
	for _, tt := range tests {
		if got := SanitizeFileName(tt.in); got != tt.want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
