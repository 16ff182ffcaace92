package types

import "testing"

func TestResultConstructors(t *testing.T) {
	cases := []struct {
		name   string
		result Result
		check  func(Result) bool
	}{
		{"Ok", Ok(NewInt(42)), Result.IsNormal},
		{"Err", Err(E_TYPE), Result.IsError},
		{"Ret", Ret(NewInt(42)), Result.IsReturn},
		{"Break", Break(""), Result.IsBreak},
		{"Continue", Continue(""), Result.IsContinue},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if !c.check(c.result) {
				t.Errorf("%s() produced a Result with the wrong Flow: %+v", c.name, c.result)
			}
		})
	}

	if got := Err(E_TYPE).Error; got != E_TYPE {
		t.Errorf("Err(E_TYPE).Error = %v, want E_TYPE", got)
	}
	if got := Ok(NewInt(42)).Val; !got.Equal(NewInt(42)) {
		t.Errorf("Ok(42).Val = %v, want 42", got)
	}
}

func TestResultPredicates(t *testing.T) {
	tests := []struct {
		name       string
		result     Result
		isNormal   bool
		isError    bool
		isReturn   bool
		isBreak    bool
		isContinue bool
	}{
		{"normal", Ok(NewInt(42)), true, false, false, false, false},
		{"error", Err(E_TYPE), false, true, false, false, false},
		{"return", Ret(NewInt(42)), false, false, true, false, false},
		{"break", Break(""), false, false, false, true, false},
		{"continue", Continue(""), false, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.IsNormal(); got != tt.isNormal {
				t.Errorf("IsNormal() = %v, want %v", got, tt.isNormal)
			}
			if got := tt.result.IsError(); got != tt.isError {
				t.Errorf("IsError() = %v, want %v", got, tt.isError)
			}
			if got := tt.result.IsReturn(); got != tt.isReturn {
				t.Errorf("IsReturn() = %v, want %v", got, tt.isReturn)
			}
			if got := tt.result.IsBreak(); got != tt.isBreak {
				t.Errorf("IsBreak() = %v, want %v", got, tt.isBreak)
			}
			if got := tt.result.IsContinue(); got != tt.isContinue {
				t.Errorf("IsContinue() = %v, want %v", got, tt.isContinue)
			}
		})
	}
}

func TestBreakContinueLabels(t *testing.T) {
	if got := Break("outer").Label; got != "outer" {
		t.Errorf("Break(%q).Label = %q", "outer", got)
	}
	if got := Continue("outer").Label; got != "outer" {
		t.Errorf("Continue(%q).Label = %q", "outer", got)
	}
}
