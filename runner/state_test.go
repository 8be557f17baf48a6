package runner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFullRun(t *testing.T) {
	s := NewState()
	for _, p := range []Phase{FetchingPages, Extracting, FetchingPages, Extracting, Cleaning, Inserting, Done} {
		require.NoError(t, s.To(p), "to %s", p)
	}
	assert.Equal(t, Done, s.Current())
	assert.Equal(t, []Phase{Idle, FetchingPages, Extracting, FetchingPages, Extracting, Cleaning, Inserting, Done}, s.History())
}

func TestStateRejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []Phase
		bad  Phase
	}{
		{"insert before fetching", nil, Inserting},
		{"done straight from idle", nil, Done},
		{"clean after insert", []Phase{FetchingPages, Extracting, Inserting}, Cleaning},
		{"fetch after clean", []Phase{Cleaning}, FetchingPages},
		{"leave done", []Phase{Cleaning, Done}, Failed},
		{"leave failed", []Phase{Failed}, FetchingPages},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			for _, p := range tt.path {
				require.NoError(t, s.To(p))
			}
			before := s.Current()

			err := s.To(tt.bad)
			var te *TransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, before, te.From)
			assert.Equal(t, tt.bad, te.To)
			assert.Equal(t, before, s.Current())
		})
	}
}

func TestStateFailRemembersPhase(t *testing.T) {
	s := NewState()
	require.NoError(t, s.To(Cleaning))

	assert.Equal(t, Cleaning, s.Fail())
	assert.Equal(t, Failed, s.Current())
	assert.Equal(t, Cleaning, s.Fail(), "second Fail is a no-op")
	assert.Equal(t, []Phase{Idle, Cleaning, Failed}, s.History())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "fetching_pages", FetchingPages.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "phase(42)", Phase(42).String())
	assert.True(t, Done.Terminal())
	assert.False(t, Inserting.Terminal())
}
