package services

import (
	"fmt"
	"log"

	"pickleball-session-system/models"

	"gorm.io/gorm"
)

// QueueService assigns queued games to free courts. Games wait in a FIFO
// queue ordered by game number; assignment reserves the court for the game
// but the court is only marked occupied when the game actually starts.
type QueueService struct {
	DB *gorm.DB
}

func NewQueueService(db *gorm.DB) *QueueService {
	return &QueueService{DB: db}
}

// ReorganizeQueue pairs unassigned pending games with available courts,
// lowest game number onto lowest court number, until one side runs out.
// Safe to call after any state change; does nothing when there is no work.
func (s *QueueService) ReorganizeQueue(tx *gorm.DB, sessionID string) (int, error) {
	var games []models.Game
	if err := tx.Where("session_id = ? AND status = ? AND court_id IS NULL", sessionID, models.GameStatusPending).
		Order("game_number ASC").
		Find(&games).Error; err != nil {
		return 0, fmt.Errorf("failed to load queued games: %w", err)
	}
	if len(games) == 0 {
		return 0, nil
	}

	courts, err := s.availableCourts(tx, sessionID)
	if err != nil {
		return 0, err
	}

	assigned := 0
	for i := range games {
		if assigned >= len(courts) {
			break
		}
		court := courts[assigned]
		if err := tx.Model(&models.Game{}).Where("id = ?", games[i].ID).
			Update("court_id", court.ID).Error; err != nil {
			return assigned, fmt.Errorf("failed to assign court to game %d: %w", games[i].GameNumber, err)
		}
		log.Printf("[QUEUE] Game #%d assigned to %s", games[i].GameNumber, court.CourtName)
		assigned++
	}
	return assigned, nil
}

// availableCourts returns the session's available courts in court-number
// order, excluding courts already reserved by a pending game.
func (s *QueueService) availableCourts(tx *gorm.DB, sessionID string) ([]models.Court, error) {
	var courts []models.Court
	if err := tx.Where("session_id = ? AND status = ?", sessionID, models.CourtStatusAvailable).
		Order("court_number ASC").
		Find(&courts).Error; err != nil {
		return nil, fmt.Errorf("failed to load courts: %w", err)
	}

	var reserved []string
	if err := tx.Model(&models.Game{}).
		Where("session_id = ? AND status IN ? AND court_id IS NOT NULL",
			sessionID, []string{models.GameStatusPending, models.GameStatusActive}).
		Pluck("court_id", &reserved).Error; err != nil {
		return nil, fmt.Errorf("failed to load reserved courts: %w", err)
	}
	taken := make(map[string]bool, len(reserved))
	for _, id := range reserved {
		taken[id] = true
	}

	free := make([]models.Court, 0, len(courts))
	for _, court := range courts {
		if !taken[court.ID] {
			free = append(free, court)
		}
	}
	return free, nil
}

// NextAvailableCourt returns the lowest-numbered court a game can start on,
// or nil when every court is busy or reserved.
func (s *QueueService) NextAvailableCourt(tx *gorm.DB, sessionID string, reservedFor *models.Game) (*models.Court, error) {
	courts, err := s.availableCourts(tx, sessionID)
	if err != nil {
		return nil, err
	}
	if reservedFor != nil && reservedFor.CourtID != nil {
		// The game's own reservation still counts as available to it.
		var own models.Court
		if err := tx.First(&own, "id = ?", *reservedFor.CourtID).Error; err == nil && own.IsAvailable() {
			courts = append([]models.Court{own}, courts...)
		}
	}
	if len(courts) == 0 {
		return nil, nil
	}
	best := courts[0]
	for _, court := range courts[1:] {
		if court.CourtNumber < best.CourtNumber {
			best = court
		}
	}
	return &best, nil
}
