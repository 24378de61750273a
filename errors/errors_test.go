package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseResolve,
				Kind:     KindImportTypeMismatch,
				Module:   "env",
				Field:    "double",
				Expected: "func(i32) -> i32",
				Actual:   "memory",
			},
			contains: []string{"[resolve]", "import_type_mismatch", "env.double", "func(i32) -> i32", "memory"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDecode,
				Kind:  KindInvalidData,
			},
			contains: []string{"[decode]", "invalid_data"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLink,
				Kind:   KindRelocation,
				Detail: "function index 9 out of range",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[link]", "relocation", "function index 9", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseCompile,
		Kind:  KindUnsupported,
		Cause: cause,
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not match the cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := UnresolvedImport("wasi_snapshot_preview1", "fd_write")

	if !errors.Is(err, &Error{Phase: PhaseResolve, Kind: KindUnresolvedImport}) {
		t.Error("Is did not match on phase+kind")
	}
	if errors.Is(err, &Error{Phase: PhaseResolve, Kind: KindImportTypeMismatch}) {
		t.Error("Is matched a different kind")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("boom")
	err := New(PhaseInstantiate, KindInitializerFailed).
		Import("env", "table").
		Detail("segment %d out of range", 2).
		Cause(cause).
		Build()

	if err.Module != "env" || err.Field != "table" {
		t.Errorf("unexpected import path: %s.%s", err.Module, err.Field)
	}
	if err.Detail != "segment 2 out of range" {
		t.Errorf("unexpected detail: %q", err.Detail)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not chained")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("unresolved import names the pair", func(t *testing.T) {
		err := UnresolvedImport("wasi_snapshot_preview1", "fd_write")
		msg := err.Error()
		if !strings.Contains(msg, "wasi_snapshot_preview1.fd_write") {
			t.Errorf("message %q does not name the import pair", msg)
		}
	})

	t.Run("header mismatch", func(t *testing.T) {
		err := HeaderMismatch("amd64", "arm64")
		if err.Kind != KindHeaderMismatch || err.Phase != PhaseSerialize {
			t.Errorf("unexpected taxonomy: %v/%v", err.Phase, err.Kind)
		}
	})
}
