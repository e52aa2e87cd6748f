package services

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"pickleball-session-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionService owns the session lifecycle: drafts, activation, stage and
// bracket advancement, rankings, progress and completion.
type SessionService struct {
	DB        *gorm.DB
	Generator *GameGeneratorService
	Queue     *QueueService

	collator *collate.Collator
}

func NewSessionService(db *gorm.DB, generator *GameGeneratorService, queue *QueueService) *SessionService {
	return &SessionService{
		DB:        db,
		Generator: generator,
		Queue:     queue,
		collator:  collate.New(language.English, collate.IgnoreCase),
	}
}

type playerInput struct {
	FirstName    string `json:"first_name"`
	LastInitial  string `json:"last_initial"`
	Level        string `json:"level"`
	DominantHand string `json:"dominant_hand"`
}

type sessionInput struct {
	SessionName    string             `json:"session_name"`
	SessionType    models.SessionType `json:"session_type"`
	NumberOfCourts int                `json:"number_of_courts"`
	DurationHours  int                `json:"duration_hours"`
	PointsPerGame  int                `json:"points_per_game"`
	WinBy          int                `json:"win_by"`
	NumberOfSets   int                `json:"number_of_sets"`
	Status         string             `json:"status"`
	Players        []playerInput      `json:"players"`
	CourtNames     []string           `json:"court_names"`
}

// CreateSession creates a session from a full configuration. With
// status=draft the configuration is stored without games; otherwise the
// opening games are generated and the session waits in pending.
func (s *SessionService) CreateSession(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	var req sessionInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.SessionName == "" {
		return c.Status(400).JSON(fiber.Map{"error": "session_name is required"})
	}

	session := s.sessionFromInput(userID, &req)
	asDraft := req.Status == models.SessionStatusDraft

	if err := s.Generator.ValidateSessionConfiguration(session); err != nil {
		return c.Status(422).JSON(fiber.Map{"error": err.Error()})
	}

	skipped := 0
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		if err := s.createPlayers(tx, session, req.Players); err != nil {
			return err
		}
		if err := s.createCourts(tx, session, req.CourtNames); err != nil {
			return err
		}
		if asDraft {
			return nil
		}
		var genErr error
		_, skipped, genErr = s.Generator.GenerateInitialGames(tx, session)
		return genErr
	})
	if err != nil {
		return s.fail(c, err)
	}

	log.Printf("[SESSIONS] Created %s session %s (%s) for user %s",
		session.SessionType, session.SessionName, session.Status, userID)
	resp := fiber.Map{"session": s.loadFull(session.ID)}
	if skipped > 0 {
		resp["skipped_games"] = skipped
	}
	return c.Status(201).JSON(resp)
}

func (s *SessionService) sessionFromInput(userID string, req *sessionInput) *models.Session {
	status := models.SessionStatusPending
	if req.Status == models.SessionStatusDraft {
		status = models.SessionStatusDraft
	}
	id := uuid.NewString()
	return &models.Session{
		ID:              id,
		UserID:          userID,
		SessionName:     req.SessionName,
		SessionCode:     sessionCode(req.SessionName, id),
		NumberOfCourts:  req.NumberOfCourts,
		DurationHours:   req.DurationHours,
		NumberOfPlayers: len(req.Players),
		PointsPerGame:   req.PointsPerGame,
		WinBy:           req.WinBy,
		NumberOfSets:    defaultSets(req.NumberOfSets),
		SessionType:     req.SessionType,
		CurrentStage:    1,
		Status:          status,
	}
}

func defaultSets(n int) int {
	if n == 3 {
		return 3
	}
	return 1
}

// sessionCode is the shareable public handle, a slug of the name plus a
// short unique suffix.
func sessionCode(name, id string) string {
	base := slug.Make(name)
	if len(base) > 24 {
		base = base[:24]
	}
	return base + "-" + strings.Split(id, "-")[0]
}

func (s *SessionService) createPlayers(tx *gorm.DB, session *models.Session, inputs []playerInput) error {
	for _, in := range inputs {
		if in.FirstName == "" {
			return fiber.NewError(400, "every player needs a first_name")
		}
		rating := models.InitialRatingForLevel(in.Level)
		player := models.Player{
			ID:            uuid.NewString(),
			SessionID:     session.ID,
			FirstName:     in.FirstName,
			LastInitial:   in.LastInitial,
			Level:         in.Level,
			DominantHand:  in.DominantHand,
			InitialRating: rating,
			CurrentRating: rating,
		}
		if err := tx.Create(&player).Error; err != nil {
			return fmt.Errorf("failed to create player %s: %w", in.FirstName, err)
		}
	}
	return nil
}

func (s *SessionService) createCourts(tx *gorm.DB, session *models.Session, names []string) error {
	for i := 0; i < session.NumberOfCourts; i++ {
		name := fmt.Sprintf("Court %d", i+1)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		court := models.Court{
			ID:          uuid.NewString(),
			SessionID:   session.ID,
			CourtName:   name,
			CourtNumber: i + 1,
			Status:      models.CourtStatusAvailable,
		}
		if err := tx.Create(&court).Error; err != nil {
			return fmt.Errorf("failed to create court %d: %w", i+1, err)
		}
	}
	return nil
}

// GetDrafts lists the caller's draft sessions, newest first.
func (s *SessionService) GetDrafts(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	var drafts []models.Session
	if err := s.DB.Where("user_id = ? AND status = ?", userID, models.SessionStatusDraft).
		Preload("Players").Preload("Courts").
		Order("created_at DESC").
		Find(&drafts).Error; err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"drafts": drafts, "count": len(drafts)})
}

// UpdateDraft replaces a draft's configuration, players and courts.
func (s *SessionService) UpdateDraft(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	sessionID := c.Params("id")

	var req sessionInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, err := s.ownedSession(tx, sessionID, userID, true)
		if err != nil {
			return err
		}
		if session.Status != models.SessionStatusDraft {
			return fiber.NewError(409, "only draft sessions can be edited")
		}

		if req.SessionName != "" {
			session.SessionName = req.SessionName
		}
		if req.SessionType != "" {
			session.SessionType = req.SessionType
		}
		if req.NumberOfCourts > 0 {
			session.NumberOfCourts = req.NumberOfCourts
		}
		if req.DurationHours > 0 {
			session.DurationHours = req.DurationHours
		}
		if req.PointsPerGame > 0 {
			session.PointsPerGame = req.PointsPerGame
		}
		if req.WinBy > 0 {
			session.WinBy = req.WinBy
		}
		if req.NumberOfSets > 0 {
			session.NumberOfSets = defaultSets(req.NumberOfSets)
		}

		if len(req.Players) > 0 {
			if err := tx.Where("session_id = ?", session.ID).Delete(&models.Player{}).Error; err != nil {
				return fmt.Errorf("failed to clear draft players: %w", err)
			}
			if err := s.createPlayers(tx, session, req.Players); err != nil {
				return err
			}
			session.NumberOfPlayers = len(req.Players)
		}
		if req.NumberOfCourts > 0 || len(req.CourtNames) > 0 {
			if err := tx.Where("session_id = ?", session.ID).Delete(&models.Court{}).Error; err != nil {
				return fmt.Errorf("failed to clear draft courts: %w", err)
			}
			if err := s.createCourts(tx, session, req.CourtNames); err != nil {
				return err
			}
		}
		return tx.Save(session).Error
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"session": s.loadFull(sessionID)})
}

// DeleteDraft removes a draft and its players and courts.
func (s *SessionService) DeleteDraft(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	sessionID := c.Params("id")

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, err := s.ownedSession(tx, sessionID, userID, true)
		if err != nil {
			return err
		}
		if session.Status != models.SessionStatusDraft {
			return fiber.NewError(409, "only draft sessions can be deleted")
		}
		return tx.Select("Players", "Courts", "Games").Delete(session).Error
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "draft deleted"})
}

// ActivateDraft validates a draft, generates its opening games and moves it
// to pending so it can be started.
func (s *SessionService) ActivateDraft(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	sessionID := c.Params("id")

	skipped := 0
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, err := s.ownedSession(tx, sessionID, userID, true)
		if err != nil {
			return err
		}
		if session.Status != models.SessionStatusDraft {
			return fiber.NewError(409, "session is not a draft")
		}
		if err := s.Generator.ValidateSessionConfiguration(session); err != nil {
			return fiber.NewError(422, err.Error())
		}

		var genErr error
		_, skipped, genErr = s.Generator.GenerateInitialGames(tx, session)
		if genErr != nil {
			return genErr
		}
		session.Status = models.SessionStatusPending
		return tx.Save(session).Error
	})
	if err != nil {
		return s.fail(c, err)
	}

	resp := fiber.Map{"session": s.loadFull(sessionID)}
	if skipped > 0 {
		resp["skipped_games"] = skipped
	}
	return c.JSON(resp)
}

// StartSession moves a pending session to active and fills the courts.
func (s *SessionService) StartSession(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	sessionID := c.Params("id")

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, err := s.ownedSession(tx, sessionID, userID, true)
		if err != nil {
			return err
		}
		if session.Status != models.SessionStatusPending {
			return fiber.NewError(409, fmt.Sprintf("session is %s, only pending sessions can start", session.Status))
		}

		now := time.Now()
		session.Status = models.SessionStatusActive
		session.StartedAt = &now
		if err := tx.Save(session).Error; err != nil {
			return fmt.Errorf("failed to start session: %w", err)
		}
		_, err = s.Queue.ReorganizeQueue(tx, session.ID)
		return err
	})
	if err != nil {
		return s.fail(c, err)
	}

	log.Printf("[SESSIONS] Session %s started", sessionID)
	return c.JSON(fiber.Map{"session": s.loadFull(sessionID)})
}

// GetSession returns one session with courts, ranked players and games.
func (s *SessionService) GetSession(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	sessionID := c.Params("id")

	var session models.Session
	if err := s.fullQuery(s.DB).
		First(&session, "id = ? AND user_id = ?", sessionID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "session not found"})
		}
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"session": session})
}

// GetActiveSessions lists the caller's pending and active sessions.
func (s *SessionService) GetActiveSessions(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	var sessions []models.Session
	if err := s.DB.Where("user_id = ? AND status IN ?", userID,
		[]string{models.SessionStatusPending, models.SessionStatusActive}).
		Preload("Courts").
		Order("created_at DESC").
		Find(&sessions).Error; err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"sessions": sessions, "count": len(sessions)})
}

// GetHistory lists the caller's completed sessions with winners and play
// time.
func (s *SessionService) GetHistory(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	var sessions []models.Session
	if err := s.DB.Where("user_id = ? AND status = ?", userID, models.SessionStatusCompleted).
		Order("completed_at DESC").
		Find(&sessions).Error; err != nil {
		return s.fail(c, err)
	}

	history := make([]fiber.Map, 0, len(sessions))
	for i := range sessions {
		entry := fiber.Map{"session": sessions[i]}
		if winners, err := s.sessionWinners(s.DB, &sessions[i]); err == nil && len(winners) > 0 {
			names := make([]string, len(winners))
			for j := range winners {
				names[j] = winners[j].DisplayName()
			}
			entry["winners"] = names
		}
		if sessions[i].StartedAt != nil && sessions[i].CompletedAt != nil {
			entry["duration_minutes"] = int(sessions[i].CompletedAt.Sub(*sessions[i].StartedAt).Minutes())
		}
		history = append(history, entry)
	}
	return c.JSON(fiber.Map{"history": history, "count": len(history)})
}

// sessionWinners resolves who won a completed session: the gold or final
// game's winning pair for playoffs, the top-ranked players otherwise.
func (s *SessionService) sessionWinners(db *gorm.DB, session *models.Session) ([]models.Player, error) {
	if session.IsPlayoff() {
		round := models.PlayoffRoundFinal
		if session.IsPlayoff8() {
			round = models.PlayoffRoundGold
		}
		var game models.Game
		err := db.Where("session_id = ? AND playoff_round = ? AND status = ?",
			session.ID, round, models.GameStatusCompleted).
			First(&game).Error
		if err == nil {
			var winners []models.Player
			if err := db.Where("id IN ?", game.WinningPlayerIDs()).Find(&winners).Error; err != nil {
				return nil, err
			}
			return winners, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	var winners []models.Player
	if err := db.Where("session_id = ? AND current_rank = 1", session.ID).
		Find(&winners).Error; err != nil {
		return nil, err
	}
	return winners, nil
}

// GetPlayerStats returns the session's players in ranking order.
func (s *SessionService) GetPlayerStats(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	sessionID := c.Params("id")

	if _, err := s.ownedSession(s.DB, sessionID, userID, false); err != nil {
		return s.fail(c, err)
	}
	players, err := s.Generator.rankedPlayers(s.DB, sessionID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"players": players, "count": len(players)})
}

// GetGamesByStatus lists a session's games, optionally filtered by ?status=.
func (s *SessionService) GetGamesByStatus(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	sessionID := c.Params("id")

	if _, err := s.ownedSession(s.DB, sessionID, userID, false); err != nil {
		return s.fail(c, err)
	}

	q := s.DB.Where("session_id = ?", sessionID)
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	var games []models.Game
	if err := q.Preload("Court").
		Preload("Team1Player1").Preload("Team1Player2").
		Preload("Team2Player1").Preload("Team2Player2").
		Order("game_number ASC").
		Find(&games).Error; err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"games": games, "count": len(games)})
}

// GetPlayerGames is the per-player game log: every game the player was
// seated in, in schedule order.
func (s *SessionService) GetPlayerGames(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	sessionID := c.Params("id")
	playerID := c.Params("player_id")

	if _, err := s.ownedSession(s.DB, sessionID, userID, false); err != nil {
		return s.fail(c, err)
	}
	var player models.Player
	if err := s.DB.First(&player, "id = ? AND session_id = ?", playerID, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "player not found"})
		}
		return s.fail(c, err)
	}

	var games []models.Game
	if err := s.DB.Where("session_id = ?", sessionID).
		Where(s.DB.Where("team1_player1_id = ?", playerID).
			Or("team1_player2_id = ?", playerID).
			Or("team2_player1_id = ?", playerID).
			Or("team2_player2_id = ?", playerID)).
		Preload("Court").
		Preload("Team1Player1").Preload("Team1Player2").
		Preload("Team2Player1").Preload("Team2Player2").
		Order("game_number ASC").
		Find(&games).Error; err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"player": player, "games": games, "count": len(games)})
}

// CanAdvance reports whether a tournament can move to its next stage.
func (s *SessionService) CanAdvance(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	sessionID := c.Params("id")

	session, err := s.ownedSession(s.DB, sessionID, userID, false)
	if err != nil {
		return s.fail(c, err)
	}
	ok, reason, err := s.canAdvanceStage(s.DB, session)
	if err != nil {
		return s.fail(c, err)
	}
	resp := fiber.Map{"can_advance": ok, "current_stage": session.CurrentStage}
	if reason != "" {
		resp["reason"] = reason
	}
	return c.JSON(resp)
}

func (s *SessionService) canAdvanceStage(db *gorm.DB, session *models.Session) (bool, string, error) {
	if !session.IsTournament() {
		return false, "only tournament sessions have stages", nil
	}
	if session.Status != models.SessionStatusActive {
		return false, "session is not active", nil
	}
	if session.CurrentStage >= 3 {
		return false, "the final stage is already running", nil
	}
	var open int64
	if err := db.Model(&models.Game{}).
		Where("session_id = ? AND stage = ? AND status IN ?",
			session.ID, session.CurrentStage,
			[]string{models.GameStatusPending, models.GameStatusActive}).
		Count(&open).Error; err != nil {
		return false, "", fmt.Errorf("failed to count open stage games: %w", err)
	}
	if open > 0 {
		return false, fmt.Sprintf("%d games of stage %d are still open", open, session.CurrentStage), nil
	}
	return true, "", nil
}

// AdvanceStage closes the current tournament stage and generates the next
// one from updated rankings. Leftover pending games of the closed stage are
// cancelled and kept for the record.
func (s *SessionService) AdvanceStage(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	sessionID := c.Params("id")

	skipped := 0
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, err := s.ownedSession(tx, sessionID, userID, true)
		if err != nil {
			return err
		}
		ok, reason, err := s.canAdvanceStage(tx, session)
		if err != nil {
			return err
		}
		if !ok {
			return fiber.NewError(409, reason)
		}

		stage := session.CurrentStage
		if err := s.cancelOpenGames(tx, session.ID, &stage); err != nil {
			return err
		}
		session.CurrentStage++
		if err := s.UpdateRankings(tx, session.ID); err != nil {
			return err
		}
		if err := tx.Save(session).Error; err != nil {
			return fmt.Errorf("failed to advance session: %w", err)
		}
		_, skipped, err = s.Generator.GenerateStageGames(tx, session)
		if err != nil {
			return err
		}
		return s.UpdateProgress(tx, session)
	})
	if err != nil {
		return s.fail(c, err)
	}

	log.Printf("[SESSIONS] Session %s advanced a stage", sessionID)
	resp := fiber.Map{"session": s.loadFull(sessionID)}
	if skipped > 0 {
		resp["skipped_games"] = skipped
	}
	return c.JSON(resp)
}

// GeneratePlayoffBracket seeds the bracket once the regular phase is done.
// Leftover pending regular games are cancelled and kept.
func (s *SessionService) GeneratePlayoffBracket(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	sessionID := c.Params("id")

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, err := s.ownedSession(tx, sessionID, userID, true)
		if err != nil {
			return err
		}
		if !session.IsPlayoff() {
			return fiber.NewError(409, "session type has no playoff bracket")
		}
		if session.Status != models.SessionStatusActive {
			return fiber.NewError(409, "session is not active")
		}

		var existing int64
		if err := tx.Model(&models.Game{}).
			Where("session_id = ? AND is_playoff_game = ?", session.ID, true).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check bracket: %w", err)
		}
		if existing > 0 {
			return fiber.NewError(409, "bracket already generated")
		}
		var active int64
		if err := tx.Model(&models.Game{}).
			Where("session_id = ? AND status = ?", session.ID, models.GameStatusActive).
			Count(&active).Error; err != nil {
			return fmt.Errorf("failed to count active games: %w", err)
		}
		if active > 0 {
			return fiber.NewError(409, "finish or cancel the active games first")
		}

		if err := s.cancelOpenGames(tx, session.ID, nil); err != nil {
			return err
		}
		if err := s.UpdateRankings(tx, session.ID); err != nil {
			return err
		}
		if _, err := s.Generator.GeneratePlayoffBracket(tx, session); err != nil {
			return err
		}
		return s.UpdateProgress(tx, session)
	})
	if err != nil {
		return s.fail(c, err)
	}

	log.Printf("[SESSIONS] Playoff bracket generated for session %s", sessionID)
	return c.JSON(fiber.Map{"session": s.loadFull(sessionID)})
}

// GenerateP8Finals creates the medal games from the two completed
// semifinals.
func (s *SessionService) GenerateP8Finals(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	sessionID := c.Params("id")

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, err := s.ownedSession(tx, sessionID, userID, true)
		if err != nil {
			return err
		}
		if !session.IsPlayoff8() {
			return fiber.NewError(409, "medal games only exist in 8-player playoffs")
		}
		var finals int64
		if err := tx.Model(&models.Game{}).
			Where("session_id = ? AND playoff_round IN ?", session.ID,
				[]string{models.PlayoffRoundGold, models.PlayoffRoundBronze}).
			Count(&finals).Error; err != nil {
			return fmt.Errorf("failed to check finals: %w", err)
		}
		if finals > 0 {
			return fiber.NewError(409, "medal games already generated")
		}
		if _, err := s.Generator.GenerateP8Finals(tx, session); err != nil {
			return fiber.NewError(409, err.Error())
		}
		return s.UpdateProgress(tx, session)
	})
	if err != nil {
		return s.fail(c, err)
	}

	log.Printf("[SESSIONS] Medal games generated for session %s", sessionID)
	return c.JSON(fiber.Map{"session": s.loadFull(sessionID)})
}

// FinalizeSession ends an active session early: open games are cancelled,
// rankings frozen, status moves to completed.
func (s *SessionService) FinalizeSession(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	sessionID := c.Params("id")

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, err := s.ownedSession(tx, sessionID, userID, true)
		if err != nil {
			return err
		}
		if session.Status != models.SessionStatusActive {
			return fiber.NewError(409, "only active sessions can be finalized")
		}

		if err := s.cancelAllOpenGames(tx, session.ID); err != nil {
			return err
		}
		if err := s.UpdateRankings(tx, session.ID); err != nil {
			return err
		}
		now := time.Now()
		session.Status = models.SessionStatusCompleted
		session.CompletedAt = &now
		if err := tx.Save(session).Error; err != nil {
			return fmt.Errorf("failed to finalize session: %w", err)
		}
		return s.UpdateProgress(tx, session)
	})
	if err != nil {
		return s.fail(c, err)
	}

	log.Printf("[SESSIONS] Session %s finalized", sessionID)
	return c.JSON(fiber.Map{"session": s.loadFull(sessionID)})
}

// FindByCode is the public read surface: anyone with the share code can
// follow the session.
func (s *SessionService) FindByCode(c *fiber.Ctx) error {
	code := c.Params("code")

	var session models.Session
	if err := s.fullQuery(s.DB).
		First(&session, "session_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "session not found"})
		}
		return s.fail(c, err)
	}
	if session.Status == models.SessionStatusDraft {
		return c.Status(404).JSON(fiber.Map{"error": "session not found"})
	}
	return c.JSON(fiber.Map{"session": session})
}

// GetPublicActiveSessions lists every active session for spectator boards.
func (s *SessionService) GetPublicActiveSessions(c *fiber.Ctx) error {
	var sessions []models.Session
	if err := s.DB.Where("status = ?", models.SessionStatusActive).
		Preload("Courts").
		Order("created_at DESC").
		Find(&sessions).Error; err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"sessions": sessions, "count": len(sessions)})
}

// publicSession resolves a share code to a non-draft session.
func (s *SessionService) publicSession(code string) (*models.Session, error) {
	var session models.Session
	if err := s.DB.First(&session, "session_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(404, "session not found")
		}
		return nil, err
	}
	if session.Status == models.SessionStatusDraft {
		return nil, fiber.NewError(404, "session not found")
	}
	return &session, nil
}

// GetPublicGamesByStatus is the spectator view of a session's games,
// optionally filtered by ?status=.
func (s *SessionService) GetPublicGamesByStatus(c *fiber.Ctx) error {
	session, err := s.publicSession(c.Params("code"))
	if err != nil {
		return s.fail(c, err)
	}

	q := s.DB.Where("session_id = ?", session.ID)
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	var games []models.Game
	if err := q.Preload("Court").
		Preload("Team1Player1").Preload("Team1Player2").
		Preload("Team2Player1").Preload("Team2Player2").
		Order("game_number ASC").
		Find(&games).Error; err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"games": games, "count": len(games)})
}

// GetPublicPlayerStats is the spectator leaderboard, ordered by rank.
func (s *SessionService) GetPublicPlayerStats(c *fiber.Ctx) error {
	session, err := s.publicSession(c.Params("code"))
	if err != nil {
		return s.fail(c, err)
	}
	players, err := s.Generator.rankedPlayers(s.DB, session.ID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"players": players, "count": len(players)})
}

// UpdateRankings recomputes every player's rank from rating, win percentage
// and points-won percentage. Players tied on all three share a rank; the
// stored order among tied players is alphabetical so repeated runs agree.
func (s *SessionService) UpdateRankings(tx *gorm.DB, sessionID string) error {
	var players []models.Player
	if err := tx.Where("session_id = ?", sessionID).Find(&players).Error; err != nil {
		return fmt.Errorf("failed to load players for ranking: %w", err)
	}

	for i := range players {
		players[i].RefreshDerivedStats()
	}

	sort.SliceStable(players, func(i, j int) bool {
		a, b := &players[i], &players[j]
		if a.CurrentRating != b.CurrentRating {
			return a.CurrentRating > b.CurrentRating
		}
		if a.WinPercentage != b.WinPercentage {
			return a.WinPercentage > b.WinPercentage
		}
		if a.PointsWonPercentage != b.PointsWonPercentage {
			return a.PointsWonPercentage > b.PointsWonPercentage
		}
		return s.collator.CompareString(a.FirstName, b.FirstName) < 0
	})

	rank := 0
	for i := range players {
		if i == 0 || !sameRankKey(&players[i], &players[i-1]) {
			rank++
		}
		players[i].CurrentRank = rank
		if err := tx.Model(&models.Player{}).Where("id = ?", players[i].ID).
			Updates(map[string]interface{}{
				"current_rank":          players[i].CurrentRank,
				"win_percentage":        players[i].WinPercentage,
				"points_won_percentage": players[i].PointsWonPercentage,
			}).Error; err != nil {
			return fmt.Errorf("failed to save rank for player %s: %w", players[i].ID, err)
		}
	}
	return nil
}

// sameRankKey compares only the performance stats. Name order never creates
// a rank difference.
func sameRankKey(a, b *models.Player) bool {
	return a.CurrentRating == b.CurrentRating &&
		a.WinPercentage == b.WinPercentage &&
		a.PointsWonPercentage == b.PointsWonPercentage
}

// UpdateProgress refreshes the session's completion percentage against the
// cached expected total.
func (s *SessionService) UpdateProgress(tx *gorm.DB, session *models.Session) error {
	if session.TotalGames <= 0 {
		return nil
	}
	var completed int64
	if err := tx.Model(&models.Game{}).
		Where("session_id = ? AND status = ?", session.ID, models.GameStatusCompleted).
		Count(&completed).Error; err != nil {
		return fmt.Errorf("failed to count completed games: %w", err)
	}
	pct := math.Min(float64(completed)/float64(session.TotalGames)*100, 100)
	session.ProgressPercentage = pct
	return tx.Model(&models.Session{}).Where("id = ?", session.ID).
		Update("progress_percentage", pct).Error
}

// CompleteSessionIfFinished checks the format's completion rule and closes
// the session when it holds. Returns whether the session was completed.
func (s *SessionService) CompleteSessionIfFinished(tx *gorm.DB, session *models.Session) (bool, error) {
	if session.Status != models.SessionStatusActive {
		return false, nil
	}
	done, err := formatFor(session.SessionType).FullyCompleted(tx, session)
	if err != nil || !done {
		return false, err
	}

	now := time.Now()
	session.Status = models.SessionStatusCompleted
	session.CompletedAt = &now
	if err := tx.Model(&models.Session{}).Where("id = ?", session.ID).
		Updates(map[string]interface{}{
			"status":       models.SessionStatusCompleted,
			"completed_at": now,
		}).Error; err != nil {
		return false, fmt.Errorf("failed to complete session: %w", err)
	}
	log.Printf("[SESSIONS] Session %s completed", session.ID)
	return true, nil
}

// cancelOpenGames cancels a session's pending games, optionally scoped to
// one tournament stage. Cancelled rows are kept for the record.
func (s *SessionService) cancelOpenGames(tx *gorm.DB, sessionID string, stage *int) error {
	q := tx.Model(&models.Game{}).
		Where("session_id = ? AND status = ?", sessionID, models.GameStatusPending)
	if stage != nil {
		q = q.Where("stage = ?", *stage)
	}
	if err := q.Update("status", models.GameStatusCancelled).Error; err != nil {
		return fmt.Errorf("failed to cancel pending games: %w", err)
	}
	return nil
}

// cancelAllOpenGames cancels pending and active games and frees the courts
// the active ones were holding.
func (s *SessionService) cancelAllOpenGames(tx *gorm.DB, sessionID string) error {
	if err := tx.Model(&models.Court{}).
		Where("session_id = ? AND status = ?", sessionID, models.CourtStatusOccupied).
		Update("status", models.CourtStatusAvailable).Error; err != nil {
		return fmt.Errorf("failed to free courts: %w", err)
	}
	if err := tx.Model(&models.Game{}).
		Where("session_id = ? AND status IN ?", sessionID,
			[]string{models.GameStatusPending, models.GameStatusActive}).
		Update("status", models.GameStatusCancelled).Error; err != nil {
		return fmt.Errorf("failed to cancel open games: %w", err)
	}
	return nil
}

// ownedSession loads a session owned by the user, with a row lock when the
// caller is about to mutate it.
func (s *SessionService) ownedSession(db *gorm.DB, sessionID, userID string, forUpdate bool) (*models.Session, error) {
	q := db.Where("id = ? AND user_id = ?", sessionID, userID)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var session models.Session
	if err := q.First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(404, "session not found")
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session, nil
}

func (s *SessionService) fullQuery(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Courts", func(db *gorm.DB) *gorm.DB { return db.Order("court_number ASC") }).
		Preload("Players", func(db *gorm.DB) *gorm.DB { return db.Order("current_rank ASC, first_name ASC") }).
		Preload("Games", func(db *gorm.DB) *gorm.DB { return db.Order("game_number ASC") }).
		Preload("Games.Court").
		Preload("Games.Team1Player1").Preload("Games.Team1Player2").
		Preload("Games.Team2Player1").Preload("Games.Team2Player2")
}

// loadFull refetches a session with its relations for responses. Returns nil
// when the session vanished, which callers surface as-is.
func (s *SessionService) loadFull(sessionID string) *models.Session {
	var session models.Session
	if err := s.fullQuery(s.DB).First(&session, "id = ?", sessionID).Error; err != nil {
		log.Printf("[SESSIONS] Failed to reload session %s: %v", sessionID, err)
		return nil
	}
	return &session
}

// fail maps handler errors to responses: fiber errors keep their status,
// anything else is a logged 500.
func (s *SessionService) fail(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	log.Printf("[SESSIONS] %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(500).JSON(fiber.Map{"error": "internal server error"})
}
