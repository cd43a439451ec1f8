package categorize

import (
	"context"
	"reflect"
	"testing"
)

func TestKeywordCategorize(t *testing.T) {
	ctx := context.Background()
	k := Keyword{}

	cases := []struct {
		content string
		want    []string
	}{
		{"I love pizza on Fridays", []string{"food", "preferences"}},
		{"Standup meeting with the client at 9", []string{"work"}},
		{"Refactoring the Python API server", []string{"technology"}},
		{"zzzzz completely unclassifiable qqqq", []string{"other"}},
		{"My daughter likes coffee", []string{"family", "food", "preferences"}},
	}
	for _, tc := range cases {
		got, err := k.Categorize(ctx, tc.content)
		if err != nil {
			t.Fatalf("%q: %v", tc.content, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%q: got %v want %v", tc.content, got, tc.want)
		}
	}
}

func TestKeywordIsDeterministic(t *testing.T) {
	k := Keyword{}
	first, _ := k.Categorize(context.Background(), "likes coffee and tea at work")
	for i := 0; i < 10; i++ {
		again, _ := k.Categorize(context.Background(), "likes coffee and tea at work")
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("ordering unstable: %v vs %v", first, again)
		}
	}
}
