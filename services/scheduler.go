// services/scheduler.go
package services

import (
	"errors"
	"log"
	"time"

	"pickleball-session-system/models"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StartSessionWatcher runs the background maintenance for active sessions:
// medal games are generated as soon as both semifinals are in, and sessions
// with nothing left to play are closed without waiting for a client call.
func (s *SessionService) StartSessionWatcher() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every 30 seconds: auto-generate the medal games of 8-player playoffs
	_, _ = sched.NewJob(
		gocron.DurationJob(30*time.Second),
		gocron.NewTask(func() {
			var sessions []models.Session
			err := s.DB.Where("status = ? AND session_type = ?",
				models.SessionStatusActive, models.SessionPlayoff8).
				Find(&sessions).Error
			if err != nil {
				log.Printf("[Watcher] DB error: %v", err)
				return
			}

			for i := range sessions {
				session := &sessions[i]
				err := s.DB.Transaction(func(tx *gorm.DB) error {
					if err := lockActiveSession(tx, session); err != nil {
						return err
					}
					return s.autoGenerateMedalGames(tx, session)
				})
				if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
					log.Printf("[Watcher] Failed to generate medal games for session %s: %v", session.ID, err)
				}
			}
		}),
	)

	// Every 30 seconds: close sessions whose format is fully played out
	_, _ = sched.NewJob(
		gocron.DurationJob(30*time.Second),
		gocron.NewTask(func() {
			var sessions []models.Session
			err := s.DB.Where("status = ?", models.SessionStatusActive).
				Find(&sessions).Error
			if err != nil {
				log.Printf("[Watcher] DB error: %v", err)
				return
			}

			for i := range sessions {
				session := &sessions[i]
				err := s.DB.Transaction(func(tx *gorm.DB) error {
					if err := lockActiveSession(tx, session); err != nil {
						return err
					}
					done, err := s.CompleteSessionIfFinished(tx, session)
					if err != nil {
						return err
					}
					if done {
						log.Printf("✅ Auto-completed session: %s", session.SessionName)
					}
					return nil
				})
				if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
					log.Printf("[Watcher] Failed to complete session %s: %v", session.ID, err)
				}
			}
		}),
	)
}

// lockActiveSession reloads the session under a row lock, the same lock the
// request handlers take, so watcher work never interleaves with them.
// Returns gorm.ErrRecordNotFound when the session is no longer active.
func lockActiveSession(tx *gorm.DB, session *models.Session) error {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(session, "id = ? AND status = ?", session.ID, models.SessionStatusActive).Error
}

// autoGenerateMedalGames creates the gold and bronze games once both
// semifinals are in. The caller must hold the session row lock.
func (s *SessionService) autoGenerateMedalGames(tx *gorm.DB, session *models.Session) error {
	ready, err := s.medalGamesReady(tx, session.ID)
	if err != nil || !ready {
		return err
	}
	if _, err := s.Generator.GenerateP8Finals(tx, session); err != nil {
		return err
	}
	return s.UpdateProgress(tx, session)
}

// medalGamesReady reports whether both semifinals are completed and the
// gold and bronze games do not exist yet.
func (s *SessionService) medalGamesReady(tx *gorm.DB, sessionID string) (bool, error) {
	var semis int64
	if err := tx.Model(&models.Game{}).
		Where("session_id = ? AND playoff_round = ? AND status = ?",
			sessionID, models.PlayoffRoundSemifinal, models.GameStatusCompleted).
		Count(&semis).Error; err != nil {
		return false, err
	}
	if semis != 2 {
		return false, nil
	}
	var finals int64
	if err := tx.Model(&models.Game{}).
		Where("session_id = ? AND playoff_round IN ?", sessionID,
			[]string{models.PlayoffRoundGold, models.PlayoffRoundBronze}).
		Count(&finals).Error; err != nil {
		return false, err
	}
	return finals == 0, nil
}
