package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	got, err := Decode("5#Alice#15#liked your post#6#a blog")
	require.NoError(t, err)
	assert.Equal(t, Message{Actor: "Alice", Action: "liked your post", Title: "a blog"}, got)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []Message{
		{Actor: "Alice", Action: "liked your post", Title: "Hello world"},
		{Actor: "Bob", Action: "commented on your post", Title: "C# tips #3"},
		{Actor: "#", Action: "##", Title: "###"},
		{Actor: "", Action: "", Title: ""},
		{Actor: "Zo\u00eb", Action: "liked your post", Title: "日本語のタイトル"},
		{Actor: "3#a", Action: "1#", Title: "#1#x"},
	}

	for _, tc := range cases {
		t.Run(tc.Actor+"/"+tc.Title, func(t *testing.T) {
			t.Parallel()

			encoded := Encode(tc.Actor, tc.Action, tc.Title)
			got, err := Decode(encoded)
			require.NoError(t, err, "encoded %q", encoded)
			assert.Equal(t, tc, got)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"length mismatch":    "5#Alice#6#liked#6#a blog",
		"empty":              "",
		"plain text":         "Alice liked your post",
		"two fields":         "5#Alice#5#liked",
		"extra field":        "5#Alice#5#liked#1#a#1#b",
		"trailing bytes":     "5#Alice#5#liked#1#ab",
		"length too long":    "9#Alice#5#liked#1#a",
		"non numeric length": "x#Alice#5#liked#1#a",
		"negative length":    "-5#Alice#5#liked#1#a",
		"missing length":     "#Alice#5#liked#1#a",
		"overflowing length": "99999999999999999999999#a#1#b#1#c",
		"missing delimiter":  "5#Alice5#liked#1#a",
		"only delimiters":    "######",
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "5#Alice#15#liked your post#6#a blog", Encode("Alice", "liked your post", "a blog"))
	assert.Equal(t, "3#Zo\u00eb#1#a#1#b", Encode("Zo\u00eb", "a", "b"))
}

func TestRender(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Alice liked your post a blog", Render("5#Alice#15#liked your post#6#a blog"))
	assert.Equal(t, "5#Alice#6#liked#6#a blog", Render("5#Alice#6#liked#6#a blog"))
	assert.Equal(t, "Bob commented on your post", Render("Bob commented on your post"))
}
