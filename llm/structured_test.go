package llm

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/agora/types"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "bare object", input: `{"a":1}`, want: `{"a":1}`, wantOK: true},
		{name: "prose around", input: "Sure! Here you go:\n{\"a\":1}\nHope that helps.", want: `{"a":1}`, wantOK: true},
		{name: "code fence", input: "```json\n{\"a\":{\"b\":2}}\n```", want: `{"a":{"b":2}}`, wantOK: true},
		{name: "first of two", input: `{"a":1} and {"b":2}`, want: `{"a":1}`, wantOK: true},
		{name: "brace inside string", input: `x {"a":"}{"} y`, want: `{"a":"}{"}`, wantOK: true},
		{name: "escaped quote", input: `{"a":"say \"hi\" {"}`, want: `{"a":"say \"hi\" {"}`, wantOK: true},
		{name: "skips invalid prefix", input: `{oops} {"ok":true}`, want: `{"ok":true}`, wantOK: true},
		{name: "no object", input: "I have nothing to add.", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

type verdict struct {
	ShouldSpeak bool   `json:"shouldSpeak"`
	Confidence  int    `json:"confidence"`
	Analysis    string `json:"analysis"`
	Response    string `json:"response"`
}

func TestDecodeStructured(t *testing.T) {
	var v verdict
	require.NoError(t, DecodeStructured(`{"shouldSpeak":true,"confidence":72,"analysis":"a","response":"r"}`, &v))
	assert.Equal(t, 72, v.Confidence)
	assert.True(t, v.ShouldSpeak)

	v = verdict{}
	require.NoError(t, DecodeStructured("Here is my evaluation: {\"shouldSpeak\":false,\"confidence\":12,\"analysis\":\"meh\",\"response\":\"\"} -- done", &v))
	assert.Equal(t, 12, v.Confidence)
	assert.Equal(t, "meh", v.Analysis)
}

func TestDecodeStructured_ParseErrors(t *testing.T) {
	for _, input := range []string{"", "   ", "no json here", `{"confidence": }`} {
		var v verdict
		err := DecodeStructured(input, &v)
		require.Error(t, err, input)
		assert.Equal(t, types.ErrParse, types.GetErrorCode(err), input)
	}
}

func TestExtractJSONObject_WrappedObjectProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.StringMatching(`[a-zA-Z .,:!\n]{0,40}`).Draw(t, "prefix")
		suffix := rapid.StringMatching(`[a-zA-Z .,:!\n]{0,40}`).Draw(t, "suffix")
		conf := rapid.IntRange(0, 100).Draw(t, "confidence")
		obj := `{"confidence":` + strconv.Itoa(conf) + `,"response":"ok"}`

		got, ok := ExtractJSONObject(prefix + obj + suffix)
		if !ok || got != obj {
			t.Fatalf("expected %q, got %q (ok=%v)", obj, got, ok)
		}
	})
}
