package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"pickleball-session-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GameService drives individual games through their lifecycle and keeps
// player stats, ratings, rankings and the court queue consistent after
// every transition.
type GameService struct {
	DB       *gorm.DB
	Queue    *QueueService
	Rating   *RatingService
	Sessions *SessionService
}

func NewGameService(db *gorm.DB, queue *QueueService, rating *RatingService, sessions *SessionService) *GameService {
	return &GameService{DB: db, Queue: queue, Rating: rating, Sessions: sessions}
}

// GetGame returns one game with its court and players.
func (s *GameService) GetGame(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	gameID := c.Params("id")

	var game models.Game
	if err := s.DB.Preload("Court").
		Preload("Team1Player1").Preload("Team1Player2").
		Preload("Team2Player1").Preload("Team2Player2").
		Joins("JOIN sessions ON sessions.id = games.session_id").
		Where("games.id = ? AND sessions.user_id = ?", gameID, userID).
		First(&game).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "game not found"})
		}
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"game": game})
}

// StartGame puts a pending game on a court. The game takes its reserved
// court if that court is free, otherwise the lowest-numbered available one.
func (s *GameService) StartGame(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	gameID := c.Params("id")

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		game, session, err := s.ownedGame(tx, gameID, userID, true)
		if err != nil {
			return err
		}
		if session.Status != models.SessionStatusActive {
			return fiber.NewError(409, "session is not active")
		}
		if game.Status != models.GameStatusPending {
			return fiber.NewError(409, fmt.Sprintf("game is %s, only pending games can start", game.Status))
		}

		court, err := s.Queue.NextAvailableCourt(tx, session.ID, game)
		if err != nil {
			return err
		}
		if court == nil {
			return fiber.NewError(409, "no court is available")
		}

		now := time.Now()
		game.Status = models.GameStatusActive
		game.CourtID = &court.ID
		game.StartedAt = &now
		if err := tx.Save(game).Error; err != nil {
			return fmt.Errorf("failed to start game: %w", err)
		}
		if err := tx.Model(&models.Court{}).Where("id = ?", court.ID).
			Update("status", models.CourtStatusOccupied).Error; err != nil {
			return fmt.Errorf("failed to occupy court: %w", err)
		}
		log.Printf("[GAMES] Game #%d started on %s", game.GameNumber, court.CourtName)

		_, err = s.Queue.ReorganizeQueue(tx, session.ID)
		return err
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"game": s.loadGame(gameID)})
}

// CancelGame sends an active game back to the queue: the court is freed,
// the game returns to pending with no reservation and no start time.
func (s *GameService) CancelGame(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	gameID := c.Params("id")

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		game, session, err := s.ownedGame(tx, gameID, userID, true)
		if err != nil {
			return err
		}
		if game.Status != models.GameStatusActive {
			return fiber.NewError(409, fmt.Sprintf("game is %s, only active games can be sent back", game.Status))
		}

		if game.CourtID != nil {
			if err := s.freeCourt(tx, *game.CourtID); err != nil {
				return err
			}
		}
		if err := tx.Model(&models.Game{}).Where("id = ?", game.ID).
			Updates(map[string]interface{}{
				"status":     models.GameStatusPending,
				"court_id":   nil,
				"started_at": nil,
			}).Error; err != nil {
			return fmt.Errorf("failed to requeue game: %w", err)
		}
		log.Printf("[GAMES] Game #%d sent back to the queue", game.GameNumber)

		_, err = s.Queue.ReorganizeQueue(tx, session.ID)
		return err
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"game": s.loadGame(gameID)})
}

// SkipToCourt moves a pending game onto a specific free court, ahead of the
// queue. A game holding a reservation on that court goes back to the queue.
func (s *GameService) SkipToCourt(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	gameID := c.Params("id")

	type skipRequest struct {
		CourtID string `json:"court_id"`
	}
	var req skipRequest
	if err := c.BodyParser(&req); err != nil || req.CourtID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "court_id is required"})
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		game, session, err := s.ownedGame(tx, gameID, userID, true)
		if err != nil {
			return err
		}
		if game.Status != models.GameStatusPending {
			return fiber.NewError(409, "only queued games can skip to a court")
		}

		var court models.Court
		if err := tx.First(&court, "id = ? AND session_id = ?", req.CourtID, session.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(404, "court not found")
			}
			return fmt.Errorf("failed to load court: %w", err)
		}
		if !court.IsAvailable() {
			return fiber.NewError(409, fmt.Sprintf("%s is occupied", court.CourtName))
		}

		// Displace whoever had the reservation.
		if err := tx.Model(&models.Game{}).
			Where("session_id = ? AND court_id = ? AND status = ? AND id <> ?",
				session.ID, court.ID, models.GameStatusPending, game.ID).
			Update("court_id", nil).Error; err != nil {
			return fmt.Errorf("failed to displace reserved game: %w", err)
		}
		if err := tx.Model(&models.Game{}).Where("id = ?", game.ID).
			Update("court_id", court.ID).Error; err != nil {
			return fmt.Errorf("failed to move game: %w", err)
		}
		log.Printf("[GAMES] Game #%d skipped to %s", game.GameNumber, court.CourtName)

		_, err = s.Queue.ReorganizeQueue(tx, session.ID)
		return err
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"game": s.loadGame(gameID)})
}

type setInput struct {
	Team1 int `json:"team1"`
	Team2 int `json:"team2"`
}

type scoreInput struct {
	Team1Score int        `json:"team1_score"`
	Team2Score int        `json:"team2_score"`
	Sets       []setInput `json:"sets"`
}

// SubmitScore completes an active game and runs the full settlement: stats,
// ratings, rankings, progress, queue refill and the completion check.
func (s *GameService) SubmitScore(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	gameID := c.Params("id")

	var req scoreInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	sessionCompleted := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		game, session, err := s.ownedGame(tx, gameID, userID, true)
		if err != nil {
			return err
		}
		if game.Status == models.GameStatusCompleted {
			return fiber.NewError(409, "game already has a score, use the correction endpoint")
		}
		if game.Status != models.GameStatusActive {
			return fiber.NewError(409, "only active games can receive a score")
		}

		if err := s.applyScore(game, session, &req); err != nil {
			return fiber.NewError(422, err.Error())
		}

		now := time.Now()
		game.Status = models.GameStatusCompleted
		game.CompletedAt = &now
		if err := tx.Save(game).Error; err != nil {
			return fmt.Errorf("failed to save score: %w", err)
		}
		if game.CourtID != nil {
			if err := s.freeCourt(tx, *game.CourtID); err != nil {
				return err
			}
		}

		if err := s.applyPlayerStats(tx, game, 1); err != nil {
			return err
		}
		if err := s.Rating.UpdateRatings(tx, game, session); err != nil {
			return err
		}
		if err := s.Sessions.UpdateRankings(tx, session.ID); err != nil {
			return err
		}
		if err := s.Sessions.UpdateProgress(tx, session); err != nil {
			return err
		}
		if _, err := s.Queue.ReorganizeQueue(tx, session.ID); err != nil {
			return err
		}
		sessionCompleted, err = s.Sessions.CompleteSessionIfFinished(tx, session)
		return err
	})
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"game":              s.loadGame(gameID),
		"session_completed": sessionCompleted,
	})
}

// UpdateScore corrects a completed game retroactively. The old result is
// backed out of the player stats and every rating is replayed from the
// start so later games stay consistent.
func (s *GameService) UpdateScore(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	gameID := c.Params("id")

	var req scoreInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		game, session, err := s.ownedGame(tx, gameID, userID, true)
		if err != nil {
			return err
		}
		if game.Status != models.GameStatusCompleted {
			return fiber.NewError(409, "only completed games can be corrected")
		}

		if err := s.applyPlayerStats(tx, game, -1); err != nil {
			return err
		}
		if err := s.applyScore(game, session, &req); err != nil {
			return fiber.NewError(422, err.Error())
		}
		if err := tx.Save(game).Error; err != nil {
			return fmt.Errorf("failed to save corrected score: %w", err)
		}
		if err := s.applyPlayerStats(tx, game, 1); err != nil {
			return err
		}
		if err := s.Rating.RecalculateAllRatings(tx, session); err != nil {
			return err
		}
		return s.Sessions.UpdateRankings(tx, session.ID)
	})
	if err != nil {
		return s.fail(c, err)
	}

	log.Printf("[GAMES] Score corrected for game %s", gameID)
	return c.JSON(fiber.Map{"game": s.loadGame(gameID)})
}

// applyScore validates the submitted result against the session's rules and
// writes scores, per-set scores and the winner onto the game.
func (s *GameService) applyScore(game *models.Game, session *models.Session, req *scoreInput) error {
	if session.NumberOfSets == 3 {
		return s.applyBestOfThree(game, session, req.Sets)
	}

	if !session.IsValidScore(req.Team1Score, req.Team2Score) {
		return fmt.Errorf("invalid score %d-%d: first to %d, win by %d",
			req.Team1Score, req.Team2Score, session.PointsPerGame, session.WinBy)
	}
	game.Team1Score = req.Team1Score
	game.Team2Score = req.Team2Score
	game.WinnerTeam = 1
	if req.Team2Score > req.Team1Score {
		game.WinnerTeam = 2
	}
	return nil
}

func (s *GameService) applyBestOfThree(game *models.Game, session *models.Session, sets []setInput) error {
	if len(sets) < 2 || len(sets) > 3 {
		return fmt.Errorf("best-of-3 games take 2 or 3 sets, got %d", len(sets))
	}

	team1Sets, team2Sets := 0, 0
	total1, total2 := 0, 0
	for i, set := range sets {
		if !session.IsValidScore(set.Team1, set.Team2) {
			return fmt.Errorf("set %d score %d-%d is invalid: first to %d, win by %d",
				i+1, set.Team1, set.Team2, session.PointsPerGame, session.WinBy)
		}
		if team1Sets == 2 || team2Sets == 2 {
			return fmt.Errorf("set %d was played after the match was decided", i+1)
		}
		if set.Team1 > set.Team2 {
			team1Sets++
		} else {
			team2Sets++
		}
		total1 += set.Team1
		total2 += set.Team2
	}
	if team1Sets < 2 && team2Sets < 2 {
		return fmt.Errorf("no team won 2 sets")
	}

	game.Team1Set1, game.Team2Set1 = sets[0].Team1, sets[0].Team2
	game.Team1Set2, game.Team2Set2 = sets[1].Team1, sets[1].Team2
	game.Team1Set3, game.Team2Set3 = 0, 0
	if len(sets) == 3 {
		game.Team1Set3, game.Team2Set3 = sets[2].Team1, sets[2].Team2
	}
	game.Team1SetsWon = team1Sets
	game.Team2SetsWon = team2Sets
	game.Team1Score = total1
	game.Team2Score = total2
	game.WinnerTeam = 1
	if team2Sets > team1Sets {
		game.WinnerTeam = 2
	}
	return nil
}

// applyPlayerStats adds (direction 1) or backs out (direction -1) a
// completed game's result from its four players' counters.
func (s *GameService) applyPlayerStats(tx *gorm.DB, game *models.Game, direction int) error {
	var players []models.Player
	if err := tx.Where("id IN ?", game.AllPlayerIDs()).Find(&players).Error; err != nil {
		return fmt.Errorf("failed to load game players: %w", err)
	}

	for i := range players {
		p := &players[i]
		onTeam1 := game.IsOnTeam1(p.ID)

		won := onTeam1 == (game.WinnerTeam == 1)
		pointsFor, pointsAgainst := game.Team1Score, game.Team2Score
		if !onTeam1 {
			pointsFor, pointsAgainst = game.Team2Score, game.Team1Score
		}

		p.GamesPlayed += direction
		if won {
			p.GamesWon += direction
		} else {
			p.GamesLost += direction
		}
		p.TotalPointsWon += direction * pointsFor
		p.TotalPointsLost += direction * pointsAgainst
		p.RefreshDerivedStats()

		if err := tx.Model(&models.Player{}).Where("id = ?", p.ID).
			Updates(map[string]interface{}{
				"games_played":          p.GamesPlayed,
				"games_won":             p.GamesWon,
				"games_lost":            p.GamesLost,
				"total_points_won":      p.TotalPointsWon,
				"total_points_lost":     p.TotalPointsLost,
				"win_percentage":        p.WinPercentage,
				"points_won_percentage": p.PointsWonPercentage,
			}).Error; err != nil {
			return fmt.Errorf("failed to update stats for player %s: %w", p.ID, err)
		}
	}
	return nil
}

func (s *GameService) freeCourt(tx *gorm.DB, courtID string) error {
	if err := tx.Model(&models.Court{}).Where("id = ?", courtID).
		Update("status", models.CourtStatusAvailable).Error; err != nil {
		return fmt.Errorf("failed to free court: %w", err)
	}
	return nil
}

// ownedGame loads a game and its session, checking ownership. The session
// row is locked when the caller mutates game state so settlements serialize.
func (s *GameService) ownedGame(tx *gorm.DB, gameID, userID string, forUpdate bool) (*models.Game, *models.Session, error) {
	var game models.Game
	if err := tx.First(&game, "id = ?", gameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fiber.NewError(404, "game not found")
		}
		return nil, nil, fmt.Errorf("failed to load game: %w", err)
	}

	q := tx.Where("id = ? AND user_id = ?", game.SessionID, userID)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var session models.Session
	if err := q.First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fiber.NewError(404, "game not found")
		}
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &game, &session, nil
}

func (s *GameService) loadGame(gameID string) *models.Game {
	var game models.Game
	if err := s.DB.Preload("Court").
		Preload("Team1Player1").Preload("Team1Player2").
		Preload("Team2Player1").Preload("Team2Player2").
		First(&game, "id = ?", gameID).Error; err != nil {
		log.Printf("[GAMES] Failed to reload game %s: %v", gameID, err)
		return nil
	}
	return &game
}

func (s *GameService) fail(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	log.Printf("[GAMES] %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(500).JSON(fiber.Map{"error": "internal server error"})
}
