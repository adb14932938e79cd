package canonical

import "testing"

func TestEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"   ", ""},
		{"foo@example.com", "foo@example.com"},
		{" Foo@Example.com ", "foo@example.com"},
		{"FOO+tag@EXAMPLE.COM", "foo+tag@example.com"}, // no plus-address folding
	}

	for _, test := range tests {
		if got := Email(test.input); got != test.expected {
			t.Errorf("Email(%q) = %q, want %q", test.input, got, test.expected)
		}
	}
}

func TestEmailEquality(t *testing.T) {
	if Email(" Foo@Example.com ") != Email("foo@example.com") {
		t.Error("case/whitespace variants should canonicalize to the same key")
	}
}

func TestPhone(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"123456", ""},         // under 7 digits never matches
		{"5550100", "5550100"}, // exactly 7 digits kept as-is
		{"+1 (415) 555-0100", "4155550100"},
		{"4155550100", "4155550100"},
		{"14155550100", "4155550100"},
		{"+44 20 7946 0958", "2079460958"},
	}

	for _, test := range tests {
		if got := Phone(test.input); got != test.expected {
			t.Errorf("Phone(%q) = %q, want %q", test.input, got, test.expected)
		}
	}
}

func TestPhoneCountryCodeFolding(t *testing.T) {
	a := Phone("+1 (415) 555-0100")
	b := Phone("4155550100")
	c := Phone("14155550100")
	if a != b || b != c {
		t.Errorf("country-code variants should share a key: %q %q %q", a, b, c)
	}
}

func TestHandleDispatch(t *testing.T) {
	key, isEmail := Handle("Alice@Example.com")
	if !isEmail || key != "alice@example.com" {
		t.Errorf("expected email dispatch, got key=%q isEmail=%v", key, isEmail)
	}

	key, isEmail = Handle("+1 (415) 555-0100")
	if isEmail || key != "4155550100" {
		t.Errorf("expected phone dispatch, got key=%q isEmail=%v", key, isEmail)
	}
}
