package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnmarshalLenient(t *testing.T) {
	var out map[string]int
	err := UnmarshalLenient([]byte(`{"a":1,}`), &out)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, map[string]int{"a": 1}, out)
}

func TestUnmarshalLenientNested(t *testing.T) {
	var out struct {
		Tickets []struct {
			Id string `json:"id"`
		} `json:"tickets"`
	}
	err := UnmarshalLenient([]byte(`{"tickets":[{"id":"x",},],}`), &out)
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, out.Tickets, 1)
	require.Equal(t, "x", out.Tickets[0].Id)
}

func TestUnmarshalLenientStrictInputUntouched(t *testing.T) {
	var out map[string]string
	err := UnmarshalLenient([]byte(`{"sig":"a,]}b"}`), &out)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "a,]}b", out["sig"])
}

func TestUnmarshalLenientDoublyMalformed(t *testing.T) {
	var out map[string]int
	err := UnmarshalLenient([]byte(`{"a":1,,}`), &out)
	require.Error(t, err)
}
