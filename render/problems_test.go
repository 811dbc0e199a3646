package render

import (
	"slices"
	"testing"
)

func TestParseProblemIDs(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "7", want: []int{7}},
		{in: "1-3,7", want: []int{1, 2, 3, 7}},
		{in: " 4 , 2-2 ,", want: []int{4, 2}},
		{in: "0", wantErr: true},
		{in: "x", wantErr: true},
		{in: "5-3", wantErr: true},
		{in: "1-", wantErr: true},
		{in: "-2", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProblemIDs(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProblemIDs(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("ParseProblemIDs(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
