package services

import (
	"fmt"

	"pickleball-session-system/models"

	"gorm.io/gorm"
)

// sessionFormat is the per-type completion rule. Every format additionally
// requires that no game is left pending or active.
type sessionFormat interface {
	// FullyCompleted reports whether the format's closing games exist and
	// the session has nothing left to play.
	FullyCompleted(tx *gorm.DB, session *models.Session) (bool, error)
}

func formatFor(t models.SessionType) sessionFormat {
	switch t {
	case models.SessionTournament:
		return tournamentFormat{}
	case models.SessionPlayoff4:
		return playoff4Format{}
	case models.SessionPlayoff8:
		return playoff8Format{}
	default:
		return flatFormat{}
	}
}

type tournamentFormat struct{}

// A tournament finishes once its third stage has no games left to play.
func (tournamentFormat) FullyCompleted(tx *gorm.DB, session *models.Session) (bool, error) {
	if session.CurrentStage < 3 {
		return false, nil
	}
	return nothingLeftToPlay(tx, session.ID)
}

type playoff4Format struct{}

func (playoff4Format) FullyCompleted(tx *gorm.DB, session *models.Session) (bool, error) {
	done, err := roundCompleted(tx, session.ID, models.PlayoffRoundFinal)
	if err != nil || !done {
		return false, err
	}
	return nothingLeftToPlay(tx, session.ID)
}

type playoff8Format struct{}

// Both medal games must be decided; a completed gold game alone does not
// finish the session.
func (playoff8Format) FullyCompleted(tx *gorm.DB, session *models.Session) (bool, error) {
	gold, err := roundCompleted(tx, session.ID, models.PlayoffRoundGold)
	if err != nil || !gold {
		return false, err
	}
	bronze, err := roundCompleted(tx, session.ID, models.PlayoffRoundBronze)
	if err != nil || !bronze {
		return false, err
	}
	return nothingLeftToPlay(tx, session.ID)
}

// flatFormat covers the types without stages or brackets: done when every
// generated game is settled.
type flatFormat struct{}

func (flatFormat) FullyCompleted(tx *gorm.DB, session *models.Session) (bool, error) {
	var completed int64
	if err := tx.Model(&models.Game{}).
		Where("session_id = ? AND status = ?", session.ID, models.GameStatusCompleted).
		Count(&completed).Error; err != nil {
		return false, fmt.Errorf("failed to count completed games: %w", err)
	}
	if completed == 0 {
		return false, nil
	}
	return nothingLeftToPlay(tx, session.ID)
}

func nothingLeftToPlay(tx *gorm.DB, sessionID string) (bool, error) {
	var open int64
	if err := tx.Model(&models.Game{}).
		Where("session_id = ? AND status IN ?", sessionID,
			[]string{models.GameStatusPending, models.GameStatusActive}).
		Count(&open).Error; err != nil {
		return false, fmt.Errorf("failed to count open games: %w", err)
	}
	return open == 0, nil
}

func roundCompleted(tx *gorm.DB, sessionID, round string) (bool, error) {
	var n int64
	if err := tx.Model(&models.Game{}).
		Where("session_id = ? AND playoff_round = ? AND status = ?",
			sessionID, round, models.GameStatusCompleted).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check %s round: %w", round, err)
	}
	return n > 0, nil
}
