package manifest

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestInjectDependency(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		changed bool
	}{
		{
			name:    "prepends missing dependency",
			input:   `{"dependencies": ["foo"]}`,
			want:    "{\n  \"dependencies\": [\n    \"bar\",\n    \"foo\"\n  ]\n}\n",
			changed: true,
		},
		{
			name:    "bare dependency already present",
			input:   `{"dependencies": ["bar"]}`,
			want:    `{"dependencies": ["bar"]}`,
			changed: false,
		},
		{
			name:    "attributed dependency already present",
			input:   `{"dependencies": ["foo", {"name": "bar", "host": true}]}`,
			want:    `{"dependencies": ["foo", {"name": "bar", "host": true}]}`,
			changed: false,
		},
		{
			name:    "creates missing dependency list",
			input:   `{"name": "busyq-sed"}`,
			want:    "{\n  \"name\": \"busyq-sed\",\n  \"dependencies\": [\n    \"bar\"\n  ]\n}\n",
			changed: true,
		},
		{
			name:    "empty dependency list",
			input:   `{"dependencies": []}`,
			want:    "{\n  \"dependencies\": [\n    \"bar\"\n  ]\n}\n",
			changed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed, err := InjectDependency([]byte(tt.input), "bar")
			if err != nil {
				t.Fatalf("InjectDependency failed: %v", err)
			}
			if changed != tt.changed {
				t.Errorf("Expected changed=%v, got %v", tt.changed, changed)
			}
			if diff := cmp.Diff(tt.want, string(got)); diff != "" {
				t.Errorf("Unexpected manifest (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInjectDependency_PreservesKeyOrder(t *testing.T) {
	input := `{
  "name": "busyq-sed",
  "version": "4.9",
  "description": "sed & grep <tools> café",
  "dependencies": [
    "busyq-gnulib",
    { "name": "vcpkg-cmake-get-vars", "host": true }
  ],
  "supports": "linux"
}
`
	want := `{
  "name": "busyq-sed",
  "version": "4.9",
  "description": "sed & grep <tools> café",
  "dependencies": [
    "busyq-bash",
    "busyq-gnulib",
    {
      "name": "vcpkg-cmake-get-vars",
      "host": true
    }
  ],
  "supports": "linux"
}
`
	got, changed, err := InjectDependency([]byte(input), "busyq-bash")
	if err != nil {
		t.Fatalf("InjectDependency failed: %v", err)
	}
	if !changed {
		t.Fatal("Expected manifest to change")
	}
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("Unexpected manifest (-want +got):\n%s", diff)
	}

	again, changed, err := InjectDependency(got, "busyq-bash")
	if err != nil {
		t.Fatalf("second InjectDependency failed: %v", err)
	}
	if changed || string(again) != string(got) {
		t.Error("Expected second injection to be a no-op")
	}

	names, err := Dependencies(got)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"busyq-bash", "busyq-gnulib", "vcpkg-cmake-get-vars"}, names); diff != "" {
		t.Errorf("Unexpected dependencies (-want +got):\n%s", diff)
	}
}

func TestInjectDependency_ParseErrors(t *testing.T) {
	for _, input := range []string{
		`not json`,
		`["bar"]`,
		`{"dependencies": "bar"}`,
		`{"dependencies": [42]}`,
	} {
		t.Run(input, func(t *testing.T) {
			_, _, err := InjectDependency([]byte(input), "bar")
			if !errors.Is(err, ErrParse) {
				t.Errorf("Expected ErrParse, got %v", err)
			}
		})
	}
}

func TestHasDependency(t *testing.T) {
	ok, err := HasDependency([]byte(`{"dependencies": [{"name": "busyq-bash"}]}`), "busyq-bash")
	if err != nil || !ok {
		t.Errorf("Expected dependency to be found, got %v %v", ok, err)
	}

	ok, err = HasDependency([]byte(`{}`), "busyq-bash")
	if err != nil || ok {
		t.Errorf("Expected no dependency in empty manifest, got %v %v", ok, err)
	}
}
