package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidScore(t *testing.T) {
	session := &Session{PointsPerGame: 11, WinBy: 2}

	assert.True(t, session.IsValidScore(11, 9))
	assert.True(t, session.IsValidScore(11, 0))
	assert.True(t, session.IsValidScore(13, 11)) // overtime
	assert.True(t, session.IsValidScore(15, 13))

	assert.False(t, session.IsValidScore(10, 10)) // tie
	assert.False(t, session.IsValidScore(10, 8))  // winner short of target
	assert.False(t, session.IsValidScore(11, 10)) // win-by violated
	assert.False(t, session.IsValidScore(12, 11))
}

func TestIsValidScoreIsSymmetric(t *testing.T) {
	session := &Session{PointsPerGame: 11, WinBy: 2}

	cases := [][2]int{{11, 9}, {9, 11}, {11, 10}, {10, 11}, {7, 7}, {13, 11}, {11, 13}}
	for _, c := range cases {
		assert.Equal(t, session.IsValidScore(c[0], c[1]), session.IsValidScore(c[1], c[0]),
			"validity differs for %d-%d vs %d-%d", c[0], c[1], c[1], c[0])
	}
}

func TestIsValidScoreWinByOne(t *testing.T) {
	session := &Session{PointsPerGame: 15, WinBy: 1}

	assert.True(t, session.IsValidScore(15, 14))
	assert.False(t, session.IsValidScore(14, 13))
	assert.False(t, session.IsValidScore(15, 15))
}

func TestPlayoffGameCount(t *testing.T) {
	assert.Equal(t, 1, (&Session{SessionType: SessionPlayoff4}).PlayoffGameCount())
	assert.Equal(t, 4, (&Session{SessionType: SessionPlayoff8}).PlayoffGameCount())
	assert.Equal(t, 0, (&Session{SessionType: SessionTournament}).PlayoffGameCount())
	assert.Equal(t, 0, (&Session{SessionType: SessionSimple}).PlayoffGameCount())
}

func TestInitialRatingForLevel(t *testing.T) {
	assert.Equal(t, 1200.0, InitialRatingForLevel(LevelAboveAverage))
	assert.Equal(t, 1000.0, InitialRatingForLevel(LevelAverage))
	assert.Equal(t, 800.0, InitialRatingForLevel(LevelBelowAverage))
	assert.Equal(t, 1000.0, InitialRatingForLevel("anything else"))
}
