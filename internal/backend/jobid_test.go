package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseJobID(t *testing.T) {
	tests := map[string]struct {
		output    string
		wantID    string
		wantFound bool
	}{
		"lsf acknowledgement": {
			output:    "Job <123456> is submitted to queue <normal.4h>.\n",
			wantID:    "123456",
			wantFound: true,
		},
		"generic preamble before acknowledgement": {
			output:    "Generic job.\nJob <77> is submitted to queue <normal>.\n",
			wantID:    "77",
			wantFound: true,
		},
		"last occurrence wins": {
			output:    "Job <1> is submitted. Job <2> is submitted.",
			wantID:    "2",
			wantFound: true,
		},
		"marker without digits is ignored": {
			output:    "Job <42> submitted. Job <pending>",
			wantID:    "42",
			wantFound: true,
		},
		"marker is case sensitive": {
			output: "job <42> is submitted",
			wantID: "no job id in: job <42> is submitted",
		},
		"marker at the end": {
			output: "Submitted Job",
			wantID: "no job id in: Submitted Job",
		},
		"empty": {
			output: "",
			wantID: "no job id in: ",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			id, found := ParseJobID(test.output, "Job")
			assert.Equal(t, test.wantID, id)
			assert.Equal(t, test.wantFound, found)
		})
	}
}
