package services

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"regexp"
	"strconv"

	"pickleball-session-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Courts per venue and session length are capped by what a single organizer
// can physically run.
const (
	MinCourts        = 1
	MaxCourts        = 4
	MinDurationHours = 1
	MaxDurationHours = 3
	PlayersPerCourt  = 4
	MaxPlayersFactor = 8

	// estimatedGamesPerHour drives the random fallback volume.
	estimatedGamesPerHour = 4
)

var validPointsPerGame = map[int]bool{7: true, 11: true, 15: true, 21: true}

// GameGeneratorService turns a session configuration into games, either from
// a declarative template or through the random fallback pairing.
type GameGeneratorService struct {
	DB        *gorm.DB
	Templates *TemplateService
	Queue     *QueueService
}

func NewGameGeneratorService(db *gorm.DB, templates *TemplateService, queue *QueueService) *GameGeneratorService {
	return &GameGeneratorService{DB: db, Templates: templates, Queue: queue}
}

// ValidateSessionConfiguration checks the numeric bounds and, for
// template-driven types, that the configuration resolves to a template.
func (s *GameGeneratorService) ValidateSessionConfiguration(session *models.Session) error {
	if session.NumberOfCourts < MinCourts || session.NumberOfCourts > MaxCourts {
		return fmt.Errorf("number of courts must be between %d and %d", MinCourts, MaxCourts)
	}
	if session.DurationHours < MinDurationHours || session.DurationHours > MaxDurationHours {
		return fmt.Errorf("duration must be between %d and %d hours", MinDurationHours, MaxDurationHours)
	}
	minPlayers := session.NumberOfCourts * PlayersPerCourt
	maxPlayers := session.NumberOfCourts * MaxPlayersFactor
	if session.NumberOfPlayers < minPlayers {
		return fmt.Errorf("you need at least %d players for %d court(s)", minPlayers, session.NumberOfCourts)
	}
	if session.NumberOfPlayers > maxPlayers {
		return fmt.Errorf("at most %d players are supported on %d court(s)", maxPlayers, session.NumberOfCourts)
	}
	if !validPointsPerGame[session.PointsPerGame] {
		return fmt.Errorf("points per game must be 7, 11, 15 or 21")
	}
	if session.WinBy != 1 && session.WinBy != 2 {
		return fmt.Errorf("win-by must be 1 or 2")
	}
	if session.NumberOfSets != 1 && session.NumberOfSets != 3 {
		return fmt.Errorf("games are played as a single set or best of 3")
	}

	if session.SessionType != models.SessionSimple &&
		!s.Templates.HasTemplate(session.NumberOfCourts, session.DurationHours, session.NumberOfPlayers, session.SessionType) {
		return fmt.Errorf("no schedule exists for %d courts, %d hours, %d players (%s)",
			session.NumberOfCourts, session.DurationHours, session.NumberOfPlayers, session.SessionType)
	}
	return nil
}

// GenerateInitialGames creates the opening phase of the session and assigns
// courts to the head of the queue. Returns games created and slots skipped.
func (s *GameGeneratorService) GenerateInitialGames(tx *gorm.DB, session *models.Session) (int, int, error) {
	created, skipped := 0, 0

	tpl, err := s.templateFor(session)
	if err != nil {
		return 0, 0, err
	}

	if tpl == nil {
		created, err = s.generateRandomGames(tx, session)
		if err != nil {
			return 0, 0, err
		}
		session.TotalGames = created
	} else {
		blocks := s.initialBlocks(session, tpl)
		created, skipped, err = s.generateFromBlocks(tx, session, blocks)
		if err != nil {
			return 0, 0, err
		}
		session.TotalGames = s.expectedTotalGames(session, tpl)
	}

	if err := tx.Model(&models.Session{}).Where("id = ?", session.ID).
		Update("total_games", session.TotalGames).Error; err != nil {
		return created, skipped, fmt.Errorf("failed to cache total games: %w", err)
	}
	if _, err := s.Queue.ReorganizeQueue(tx, session.ID); err != nil {
		return created, skipped, err
	}
	return created, skipped, nil
}

// GenerateStageGames creates the games of the session's current tournament
// stage. Rankings must already reflect the previous stage.
func (s *GameGeneratorService) GenerateStageGames(tx *gorm.DB, session *models.Session) (int, int, error) {
	tpl, err := s.templateFor(session)
	if err != nil {
		return 0, 0, err
	}
	if tpl == nil {
		return 0, 0, fmt.Errorf("tournament session %s has no schedule template", session.ID)
	}

	var blocks []models.TemplateBlock
	for _, block := range tpl.Blocks {
		if block.Stage() == session.CurrentStage {
			blocks = append(blocks, block)
		}
	}
	if len(blocks) == 0 {
		return 0, 0, fmt.Errorf("template has no block for stage %d", session.CurrentStage)
	}

	created, skipped, err := s.generateFromBlocks(tx, session, blocks)
	if err != nil {
		return 0, 0, err
	}
	if _, err := s.Queue.ReorganizeQueue(tx, session.ID); err != nil {
		return created, skipped, err
	}
	return created, skipped, nil
}

// GeneratePlayoffBracket seeds the bracket from current rankings.
// Playoff4 gets a single final: 1+4 against 2+3. Playoff8 gets two
// semifinals: 1+8 against 4+5 and 2+7 against 3+6.
func (s *GameGeneratorService) GeneratePlayoffBracket(tx *gorm.DB, session *models.Session) ([]models.Game, error) {
	seeds := 4
	if session.IsPlayoff8() {
		seeds = 8
	}
	ranked, err := s.rankedPlayers(tx, session.ID)
	if err != nil {
		return nil, err
	}
	if len(ranked) < seeds {
		return nil, fmt.Errorf("need %d ranked players for the bracket, have %d", seeds, len(ranked))
	}

	number, err := s.nextGameNumber(tx, session.ID)
	if err != nil {
		return nil, err
	}

	var games []models.Game
	if session.IsPlayoff8() {
		games = []models.Game{
			s.playoffGame(session, number, models.PlayoffRoundSemifinal, ranked[0], ranked[7], ranked[3], ranked[4]),
			s.playoffGame(session, number+1, models.PlayoffRoundSemifinal, ranked[1], ranked[6], ranked[2], ranked[5]),
		}
	} else {
		games = []models.Game{
			s.playoffGame(session, number, models.PlayoffRoundFinal, ranked[0], ranked[3], ranked[1], ranked[2]),
		}
	}

	for i := range games {
		if err := tx.Create(&games[i]).Error; err != nil {
			return nil, fmt.Errorf("failed to create %s game: %w", games[i].PlayoffRound, err)
		}
	}
	if _, err := s.Queue.ReorganizeQueue(tx, session.ID); err != nil {
		return nil, err
	}
	return games, nil
}

// GenerateP8Finals creates the gold and bronze medal games once both
// semifinals are completed. Winners meet for gold, losers for bronze.
func (s *GameGeneratorService) GenerateP8Finals(tx *gorm.DB, session *models.Session) ([]models.Game, error) {
	var semis []models.Game
	if err := tx.Where("session_id = ? AND playoff_round = ? AND status = ?",
		session.ID, models.PlayoffRoundSemifinal, models.GameStatusCompleted).
		Order("game_number ASC").
		Find(&semis).Error; err != nil {
		return nil, fmt.Errorf("failed to load semifinals: %w", err)
	}
	if len(semis) != 2 {
		return nil, fmt.Errorf("both semifinals must be completed, %d are", len(semis))
	}

	number, err := s.nextGameNumber(tx, session.ID)
	if err != nil {
		return nil, err
	}

	w1, w2 := semis[0].WinningPlayerIDs(), semis[1].WinningPlayerIDs()
	l1, l2 := semis[0].LosingPlayerIDs(), semis[1].LosingPlayerIDs()

	games := []models.Game{
		{
			ID:             uuid.NewString(),
			SessionID:      session.ID,
			GameNumber:     number,
			Team1Player1ID: w1[0],
			Team1Player2ID: w1[1],
			Team2Player1ID: w2[0],
			Team2Player2ID: w2[1],
			Status:         models.GameStatusPending,
			IsPlayoffGame:  true,
			PlayoffRound:   models.PlayoffRoundGold,
		},
		{
			ID:             uuid.NewString(),
			SessionID:      session.ID,
			GameNumber:     number + 1,
			Team1Player1ID: l1[0],
			Team1Player2ID: l1[1],
			Team2Player1ID: l2[0],
			Team2Player2ID: l2[1],
			Status:         models.GameStatusPending,
			IsPlayoffGame:  true,
			PlayoffRound:   models.PlayoffRoundBronze,
		},
	}
	for i := range games {
		if err := tx.Create(&games[i]).Error; err != nil {
			return nil, fmt.Errorf("failed to create %s game: %w", games[i].PlayoffRound, err)
		}
	}
	if _, err := s.Queue.ReorganizeQueue(tx, session.ID); err != nil {
		return nil, err
	}
	return games, nil
}

func (s *GameGeneratorService) playoffGame(session *models.Session, number int, round string, t1a, t1b, t2a, t2b models.Player) models.Game {
	return models.Game{
		ID:             uuid.NewString(),
		SessionID:      session.ID,
		GameNumber:     number,
		Team1Player1ID: t1a.ID,
		Team1Player2ID: t1b.ID,
		Team2Player1ID: t2a.ID,
		Team2Player2ID: t2b.ID,
		Status:         models.GameStatusPending,
		IsPlayoffGame:  true,
		PlayoffRound:   round,
	}
}

func (s *GameGeneratorService) templateFor(session *models.Session) (*models.Template, error) {
	if session.SessionType == models.SessionSimple {
		return nil, nil
	}
	return s.Templates.LoadTemplate(session.NumberOfCourts, session.DurationHours, session.NumberOfPlayers, session.SessionType)
}

// initialBlocks picks the blocks generated at session start: stage 1 for
// tournaments, the regular phase for playoffs, everything for flat types.
func (s *GameGeneratorService) initialBlocks(session *models.Session, tpl *models.Template) []models.TemplateBlock {
	var blocks []models.TemplateBlock
	for _, block := range tpl.Blocks {
		switch {
		case session.IsTournament():
			if block.Stage() == 1 {
				blocks = append(blocks, block)
			}
		case session.IsPlayoff():
			if !block.IsPlayoff() {
				blocks = append(blocks, block)
			}
		default:
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// expectedTotalGames is the progress denominator cached on the session.
func (s *GameGeneratorService) expectedTotalGames(session *models.Session, tpl *models.Template) int {
	if !session.IsPlayoff() {
		return tpl.GameCount()
	}
	regular := 0
	for _, block := range tpl.Blocks {
		if block.IsPlayoff() {
			continue
		}
		for _, round := range block.Rounds {
			regular += len(round.Courts)
		}
	}
	return regular + session.PlayoffGameCount()
}

// generateFromBlocks materializes the template blocks into games. Slots that
// cannot be resolved skip their game with a log line rather than failing the
// whole generation.
func (s *GameGeneratorService) generateFromBlocks(tx *gorm.DB, session *models.Session, blocks []models.TemplateBlock) (int, int, error) {
	number, err := s.nextGameNumber(tx, session.ID)
	if err != nil {
		return 0, 0, err
	}

	var byCreation []models.Player
	if err := tx.Where("session_id = ?", session.ID).
		Order("created_at ASC, id ASC").
		Find(&byCreation).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to load players: %w", err)
	}
	ranked, err := s.rankedPlayers(tx, session.ID)
	if err != nil {
		return 0, 0, err
	}

	created, skipped := 0, 0
	for _, block := range blocks {
		stage := block.Stage()
		for _, round := range block.Rounds {
			for _, court := range round.Courts {
				game, resolveErr := s.resolveGame(tx, session, block, court, byCreation, ranked)
				if resolveErr != nil {
					skipped++
					log.Printf("[GENERATOR] Skipping game in block %q: %v", block.Label, resolveErr)
					continue
				}
				game.GameNumber = number
				if stage > 0 {
					st := stage
					game.Stage = &st
				}
				if err := tx.Create(game).Error; err != nil {
					return created, skipped, fmt.Errorf("failed to create game %d: %w", number, err)
				}
				number++
				created++
			}
		}
	}
	return created, skipped, nil
}

func (s *GameGeneratorService) resolveGame(tx *gorm.DB, session *models.Session, block models.TemplateBlock, court models.TemplateCourt, byCreation, ranked []models.Player) (*models.Game, error) {
	if len(court.A) != 2 || len(court.B) != 2 {
		return nil, fmt.Errorf("court declares %d/%d slots, need 2 per team", len(court.A), len(court.B))
	}

	slots := [4]string{court.A[0], court.A[1], court.B[0], court.B[1]}
	var ids [4]string
	seen := make(map[string]bool, 4)
	for i, notation := range slots {
		id, err := s.resolveSlot(tx, session, block, notation, i%2, byCreation, ranked)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, fmt.Errorf("slot %q resolves to a player already in this game", notation)
		}
		seen[id] = true
		ids[i] = id
	}

	game := &models.Game{
		ID:             uuid.NewString(),
		SessionID:      session.ID,
		Team1Player1ID: ids[0],
		Team1Player2ID: ids[1],
		Team2Player1ID: ids[2],
		Team2Player2ID: ids[3],
		Status:         models.GameStatusPending,
		IsPlayoffGame:  block.IsPlayoff(),
		PlayoffRound:   block.PlayoffRound(),
	}
	return game, nil
}

// resolveSlot maps one notation to a player ID. slotIndex is the player's
// position within the team pair, used when a game-result reference names a
// whole team.
func (s *GameGeneratorService) resolveSlot(tx *gorm.DB, session *models.Session, block models.TemplateBlock, notation string, slotIndex int, byCreation, ranked []models.Player) (string, error) {
	ref, err := models.ParsePlayerRef(notation)
	if err != nil {
		return "", err
	}

	switch ref.Kind {
	case models.RefPosition:
		// Opening blocks seat players in sign-up order; later stages seed
		// by current rank.
		pool := ranked
		if block.Stage() <= 1 && !block.IsPlayoff() {
			pool = byCreation
		}
		if ref.Position < 1 || ref.Position > len(pool) {
			return "", fmt.Errorf("position P%d out of range for %d players", ref.Position, len(pool))
		}
		return pool[ref.Position-1].ID, nil

	case models.RefStageRank:
		if ref.Rank < 1 || ref.Rank > len(ranked) {
			return "", fmt.Errorf("rank %d out of range for %d players", ref.Rank, len(ranked))
		}
		return ranked[ref.Rank-1].ID, nil

	case models.RefWinnerOf, models.RefLoserOf:
		game, err := s.referencedGame(tx, session.ID, ref.GameRef)
		if err != nil {
			return "", err
		}
		team := game.WinningPlayerIDs()
		if ref.Kind == models.RefLoserOf {
			team = game.LosingPlayerIDs()
		}
		if len(team) != 2 {
			return "", fmt.Errorf("game %s has no decided teams", ref.GameRef)
		}
		return team[slotIndex], nil
	}
	return "", fmt.Errorf("unknown player notation %q", notation)
}

var gameRefRe = regexp.MustCompile(`^([A-Z]+)(\d+)$`)

// referencedGame looks up a template game reference. G<n> addresses the game
// by number; SF<n> and F<n> address the nth game of that playoff round.
func (s *GameGeneratorService) referencedGame(tx *gorm.DB, sessionID, ref string) (*models.Game, error) {
	m := gameRefRe.FindStringSubmatch(ref)
	if m == nil {
		return nil, fmt.Errorf("unparseable game reference %q", ref)
	}
	prefix := m[1]
	n, _ := strconv.Atoi(m[2])

	var game models.Game
	switch prefix {
	case "G":
		if err := tx.Where("session_id = ? AND game_number = ?", sessionID, n).
			First(&game).Error; err != nil {
			return nil, fmt.Errorf("game %s not found", ref)
		}
	default:
		round, ok := map[string]string{
			"SF": models.PlayoffRoundSemifinal,
			"F":  models.PlayoffRoundFinal,
			"Q":  models.PlayoffRoundQualifier,
			"QF": models.PlayoffRoundQualifier,
		}[prefix]
		if !ok {
			return nil, fmt.Errorf("unknown game reference prefix %q", prefix)
		}
		var games []models.Game
		if err := tx.Where("session_id = ? AND playoff_round = ?", sessionID, round).
			Order("game_number ASC").
			Find(&games).Error; err != nil || n < 1 || n > len(games) {
			return nil, fmt.Errorf("game %s not found", ref)
		}
		game = games[n-1]
	}

	if game.Status != models.GameStatusCompleted {
		return nil, fmt.Errorf("game %s is not completed yet", ref)
	}
	return &game, nil
}

// generateRandomGames is the fallback when no template exists: shuffle groups
// of four until the estimated session volume is reached, keeping per-player
// game counts close to even.
func (s *GameGeneratorService) generateRandomGames(tx *gorm.DB, session *models.Session) (int, error) {
	var players []models.Player
	if err := tx.Where("session_id = ?", session.ID).Find(&players).Error; err != nil {
		return 0, fmt.Errorf("failed to load players: %w", err)
	}
	if len(players) < PlayersPerCourt {
		return 0, fmt.Errorf("need at least %d players, have %d", PlayersPerCourt, len(players))
	}

	totalGames := session.NumberOfCourts * session.DurationHours * estimatedGamesPerHour
	minGamesPerPlayer := int(math.Ceil(float64(totalGames) / (float64(len(players)) / PlayersPerCourt)))

	number, err := s.nextGameNumber(tx, session.ID)
	if err != nil {
		return 0, err
	}

	gamesPlayed := make(map[string]int, len(players))
	created := 0
	for created < totalGames {
		var under []models.Player
		for _, p := range players {
			if gamesPlayed[p.ID] < minGamesPerPlayer {
				under = append(under, p)
			}
		}
		if len(under) < PlayersPerCourt {
			break
		}
		rand.Shuffle(len(under), func(i, j int) { under[i], under[j] = under[j], under[i] })

		group := under[:PlayersPerCourt]
		game := models.Game{
			ID:             uuid.NewString(),
			SessionID:      session.ID,
			GameNumber:     number,
			Team1Player1ID: group[0].ID,
			Team1Player2ID: group[1].ID,
			Team2Player1ID: group[2].ID,
			Team2Player2ID: group[3].ID,
			Status:         models.GameStatusPending,
		}
		if err := tx.Create(&game).Error; err != nil {
			return created, fmt.Errorf("failed to create game %d: %w", number, err)
		}
		for _, p := range group {
			gamesPlayed[p.ID]++
		}
		number++
		created++
	}
	return created, nil
}

// rankedPlayers returns the session's players in ranking order. Tied ranks
// fall back to rating then name so template seeds stay deterministic.
func (s *GameGeneratorService) rankedPlayers(tx *gorm.DB, sessionID string) ([]models.Player, error) {
	var players []models.Player
	if err := tx.Where("session_id = ?", sessionID).
		Order("current_rank ASC, current_rating DESC, win_percentage DESC, points_won_percentage DESC, first_name ASC").
		Find(&players).Error; err != nil {
		return nil, fmt.Errorf("failed to load ranked players: %w", err)
	}
	return players, nil
}

// nextGameNumber continues the session-wide numbering, counting cancelled
// games so history never renumbers.
func (s *GameGeneratorService) nextGameNumber(tx *gorm.DB, sessionID string) (int, error) {
	var highest int
	if err := tx.Model(&models.Game{}).Where("session_id = ?", sessionID).
		Select("COALESCE(MAX(game_number), 0)").Scan(&highest).Error; err != nil {
		return 0, fmt.Errorf("failed to compute next game number: %w", err)
	}
	return highest + 1, nil
}
