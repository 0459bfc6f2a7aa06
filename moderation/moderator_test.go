package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestModerator(t *testing.T) Moderator {
	moderator, err := NewModerator([]string{"idiot", "moron", "scumbag"}, '*')
	require.NoError(t, err)
	return moderator
}

func TestCensor_Replaces_Forbidden_Words(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t)

	censored, found := moderator.Censor("you are an idiot, truly")
	req.Equal("you are an *****, truly", censored)
	req.Equal([]string{"idiot"}, found)
}

func TestCensor_Folds_Leet_Speak(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t)

	censored, found := moderator.Censor("what a m0r0n")
	req.Equal("what a *****", censored)
	req.Equal([]string{"moron"}, found)
}

func TestCensor_Ignores_Case(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t)

	censored, found := moderator.Censor("IDIOT")
	req.Equal("*****", censored)
	req.Len(found, 1)
}

func TestCensor_Clean_Text_Passes_Through(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t)

	censored, found := moderator.Censor("see you at noon")
	req.Equal("see you at noon", censored)
	req.Empty(found)
}

func TestCensor_Empty_Body(t *testing.T) {
	req := require.New(t)
	moderator := newTestModerator(t)

	censored, found := moderator.Censor("")
	req.Empty(censored)
	req.Empty(found)
}
