package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubscriptionCycle(t *testing.T) {
	tests := []struct {
		in      string
		want    SubscriptionCycle
		wantErr bool
	}{
		{in: "1 month", want: SubscriptionCycle{Count: 1, Unit: CycleMonth}},
		{in: "2 weeks", want: SubscriptionCycle{Count: 2, Unit: CycleWeek}},
		{in: "10 Days", want: SubscriptionCycle{Count: 10, Unit: CycleDay}},
		{in: "month", wantErr: true},
		{in: "0 weeks", wantErr: true},
		{in: "two weeks", wantErr: true},
		{in: "3 years", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSubscriptionCycle(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "2 weeks", SubscriptionCycle{Count: 2, Unit: CycleWeek}.String())
	assert.Equal(t, "1 month", SubscriptionCycle{Count: 1, Unit: CycleMonth}.String())
}

func TestSubscription_Transitions(t *testing.T) {
	t.Run("pause and resume", func(t *testing.T) {
		s := Subscription{Status: SubscriptionStatusActive}

		require.NoError(t, s.Pause())
		assert.Equal(t, SubscriptionStatusPaused, s.Status)

		require.NoError(t, s.Resume())
		assert.Equal(t, SubscriptionStatusActive, s.Status)
	})

	t.Run("pause twice fails", func(t *testing.T) {
		s := Subscription{Status: SubscriptionStatusPaused}
		err := s.Pause()
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})

	t.Run("resume active fails", func(t *testing.T) {
		s := Subscription{Status: SubscriptionStatusActive}
		assert.ErrorIs(t, s.Resume(), ErrInvalidTransition)
	})

	t.Run("cancel from active and paused", func(t *testing.T) {
		for _, from := range []SubscriptionStatus{SubscriptionStatusActive, SubscriptionStatusPaused} {
			s := Subscription{Status: from}
			require.NoError(t, s.Cancel())
			assert.Equal(t, SubscriptionStatusCancelled, s.Status)
		}
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		s := Subscription{Status: SubscriptionStatusCancelled}
		assert.ErrorIs(t, s.Cancel(), ErrInvalidTransition)
		assert.ErrorIs(t, s.Resume(), ErrInvalidTransition)
		assert.ErrorIs(t, s.Pause(), ErrInvalidTransition)
		assert.Equal(t, SubscriptionStatusCancelled, s.Status)
	})
}
