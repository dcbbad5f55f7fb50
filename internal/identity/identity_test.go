package identity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestParseClassifiesBySyntax(t *testing.T) {
	cases := []struct {
		name string
		id   string
		want Kind
	}{
		{name: "canonical uuid", id: uuid.NewString(), want: Durable},
		{name: "upper case uuid", id: "6F1C2A3E-4B5D-4C6E-8F70-8192A3B4C5D6", want: Durable},
		{name: "local test account", id: "abc-not-a-uuid", want: Ephemeral},
		{name: "empty", id: "", want: Ephemeral},
		{name: "bare hex", id: "6f1c2a3e4b5d4c6e8f708192a3b4c5d6", want: Ephemeral},
		{name: "braced", id: "{6f1c2a3e-4b5d-4c6e-8f70-8192a3b4c5d6}", want: Ephemeral},
		{name: "urn", id: "urn:uuid:6f1c2a3e-4b5d-4c6e-8f70-8192a3b4c5d6", want: Ephemeral},
		{name: "right length wrong shape", id: "zzzzzzzz-zzzz-zzzz-zzzz-zzzzzzzzzzzz", want: Ephemeral},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Parse(tc.id)
			require.Equal(t, tc.id, got.ID)
			require.Equal(t, tc.want, got.Kind)
			require.Equal(t, tc.want == Durable, got.IsDurable())
		})
	}
}
