package services

import (
	"fmt"
	"math"

	"pickleball-session-system/models"

	"gorm.io/gorm"
)

// KFactor bounds the rating movement of a single game.
const KFactor = 32

// RatingService applies ELO-style rating updates after completed games.
// Ratings are per-team: both players on a team share the team's average
// rating for the expected-score calculation and receive the identical delta.
type RatingService struct {
	DB *gorm.DB
}

func NewRatingService(db *gorm.DB) *RatingService {
	return &RatingService{DB: db}
}

// UpdateRatings adjusts the four players' ratings for a completed game.
// Must run inside the same transaction that completed the game.
func (s *RatingService) UpdateRatings(tx *gorm.DB, game *models.Game, session *models.Session) error {
	if game.WinnerTeam == 0 {
		return fmt.Errorf("game %s has no winner recorded", game.ID)
	}

	players, err := s.loadGamePlayers(tx, game)
	if err != nil {
		return err
	}

	team1 := []*models.Player{players[game.Team1Player1ID], players[game.Team1Player2ID]}
	team2 := []*models.Player{players[game.Team2Player1ID], players[game.Team2Player2ID]}

	team1Avg := (team1[0].CurrentRating + team1[1].CurrentRating) / 2
	team2Avg := (team2[0].CurrentRating + team2[1].CurrentRating) / 2

	expected1 := expectedScore(team1Avg, team2Avg)
	actual1 := 0.0
	if game.WinnerTeam == 1 {
		actual1 = 1.0
	}

	score1, score2 := effectiveScores(game, session)
	margin := score1 - score2
	if margin < 0 {
		margin = -margin
	}
	multiplier := marginMultiplier(margin, session.PointsPerGame)

	delta := KFactor * multiplier * (actual1 - expected1)

	for _, p := range team1 {
		p.CurrentRating += delta
	}
	for _, p := range team2 {
		p.CurrentRating -= delta
	}

	for _, p := range players {
		if err := tx.Model(&models.Player{}).Where("id = ?", p.ID).
			Update("current_rating", p.CurrentRating).Error; err != nil {
			return fmt.Errorf("failed to save rating for player %s: %w", p.ID, err)
		}
	}
	return nil
}

// RecalculateAllRatings resets every player to their seeded initial rating
// and replays the session's completed games in completion order. Used after
// retroactive score corrections so history stays consistent.
func (s *RatingService) RecalculateAllRatings(tx *gorm.DB, session *models.Session) error {
	if err := tx.Model(&models.Player{}).Where("session_id = ?", session.ID).
		Update("current_rating", gorm.Expr("initial_rating")).Error; err != nil {
		return fmt.Errorf("failed to reset ratings: %w", err)
	}

	var games []models.Game
	if err := tx.Where("session_id = ? AND status = ?", session.ID, models.GameStatusCompleted).
		Order("completed_at ASC, game_number ASC").
		Find(&games).Error; err != nil {
		return fmt.Errorf("failed to load completed games: %w", err)
	}

	for i := range games {
		if err := s.UpdateRatings(tx, &games[i], session); err != nil {
			return err
		}
	}
	return nil
}

func (s *RatingService) loadGamePlayers(tx *gorm.DB, game *models.Game) (map[string]*models.Player, error) {
	var players []models.Player
	if err := tx.Where("id IN ?", game.AllPlayerIDs()).Find(&players).Error; err != nil {
		return nil, fmt.Errorf("failed to load game players: %w", err)
	}
	if len(players) != 4 {
		return nil, fmt.Errorf("game %s references %d players, expected 4", game.ID, len(players))
	}
	byID := make(map[string]*models.Player, 4)
	for i := range players {
		byID[players[i].ID] = &players[i]
	}
	return byID, nil
}

// expectedScore is the standard ELO expectation for side A against side B.
func expectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}

// marginMultiplier scales the rating delta by how decisive the win was:
// 0.5 for the closest legal margin up to 1.5 for a blowout.
func marginMultiplier(margin, pointsPerGame int) float64 {
	if pointsPerGame <= 0 {
		return 1.0
	}
	ratio := float64(margin) / float64(pointsPerGame)
	if ratio > 1.0 {
		ratio = 1.0
	}
	return 0.5 + ratio
}

// effectiveScores returns the score pair fed into the margin calculation.
// For best-of-3 games that went to a deciding set, only the third set
// determines the margin: both sides are credited 20 points for the split
// sets plus their deciding-set score.
func effectiveScores(game *models.Game, session *models.Session) (int, int) {
	if session.NumberOfSets == 3 && game.DecidingSetPlayed() {
		return 20 + game.Team1Set3, 20 + game.Team2Set3
	}
	return game.Team1Score, game.Team2Score
}
