package utils

import "testing"

func TestBoolStrSet(t *testing.T) {
	tests := []struct {
		input    string
		expected BoolStr
		wantErr  bool
	}{
		{"true", true, false},
		{"TRUE", true, false},
		{"1", true, false},
		{"t", true, false},
		{"yes", true, false},
		{"Y", true, false},
		{"false", false, false},
		{"0", false, false},
		{"f", false, false},
		{"no", false, false},
		{"N", false, false},
		{"maybe", false, true},
		{"", false, true},
	}

	for _, tt := range tests {
		var b BoolStr
		err := b.Set(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Set(%q) expected an error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("Set(%q) returned error: %v", tt.input, err)
		}
		if b != tt.expected {
			t.Errorf("Set(%q) = %v; expected %v", tt.input, b, tt.expected)
		}
	}
}

func TestBoolStrString(t *testing.T) {
	b := BoolStr(true)
	if b.String() != "true" {
		t.Errorf("String() = %q; expected %q", b.String(), "true")
	}
	b = BoolStr(false)
	if b.String() != "false" {
		t.Errorf("String() = %q; expected %q", b.String(), "false")
	}
}

func TestIsQuotedString(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{`"APP_USER"`, true},
		{`""`, true},
		{`APP_USER`, false},
		{`"APP_USER`, false},
		{`APP_USER"`, false},
		{``, false},
	}

	for _, tt := range tests {
		result := IsQuotedString(tt.input)
		if result != tt.expected {
			t.Errorf("IsQuotedString(%q) = %v; expected %v", tt.input, result, tt.expected)
		}
	}
}

func TestErrExitCallsExitHook(t *testing.T) {
	exitCode := -1
	SetExitHook(func(code int) {
		exitCode = code
	})
	defer SetExitHook(nil)

	ErrExit("something went wrong: %s", "details")
	if exitCode != 1 {
		t.Errorf("ErrExit exited with code %d; expected 1", exitCode)
	}
}
