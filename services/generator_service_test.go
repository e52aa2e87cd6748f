package services

import (
	"testing"

	"pickleball-session-system/models"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func newGeneratorForTest(db *gorm.DB) *GameGeneratorService {
	templates := NewTemplateService("testdata/templates")
	return NewGameGeneratorService(db, templates, NewQueueService(db))
}

func playerRank(players []models.Player, id string) int {
	for _, p := range players {
		if p.ID == id {
			return p.CurrentRank
		}
	}
	return 0
}

func TestGeneratePlayoff4Final(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionPlayoff4, 8)
	makeCourts(t, db, session, 2)
	players := makePlayers(t, db, session, 8)

	svc := newGeneratorForTest(db)
	games, err := svc.GeneratePlayoffBracket(db, session)
	assert.NoError(t, err)
	assert.Len(t, games, 1)

	final := games[0]
	assert.Equal(t, models.PlayoffRoundFinal, final.PlayoffRound)
	assert.True(t, final.IsPlayoffGame)

	// Seeds 1 and 4 face seeds 2 and 3.
	assert.ElementsMatch(t, []int{1, 4}, []int{
		playerRank(players, final.Team1Player1ID),
		playerRank(players, final.Team1Player2ID),
	})
	assert.ElementsMatch(t, []int{2, 3}, []int{
		playerRank(players, final.Team2Player1ID),
		playerRank(players, final.Team2Player2ID),
	})
}

func TestGeneratePlayoff8Semifinals(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionPlayoff8, 8)
	makeCourts(t, db, session, 2)
	players := makePlayers(t, db, session, 8)

	svc := newGeneratorForTest(db)
	games, err := svc.GeneratePlayoffBracket(db, session)
	assert.NoError(t, err)
	assert.Len(t, games, 2)

	sf1, sf2 := games[0], games[1]
	assert.Equal(t, models.PlayoffRoundSemifinal, sf1.PlayoffRound)
	assert.Equal(t, models.PlayoffRoundSemifinal, sf2.PlayoffRound)

	assert.ElementsMatch(t, []int{1, 8}, []int{
		playerRank(players, sf1.Team1Player1ID),
		playerRank(players, sf1.Team1Player2ID),
	})
	assert.ElementsMatch(t, []int{4, 5}, []int{
		playerRank(players, sf1.Team2Player1ID),
		playerRank(players, sf1.Team2Player2ID),
	})
	assert.ElementsMatch(t, []int{2, 7}, []int{
		playerRank(players, sf2.Team1Player1ID),
		playerRank(players, sf2.Team1Player2ID),
	})
	assert.ElementsMatch(t, []int{3, 6}, []int{
		playerRank(players, sf2.Team2Player1ID),
		playerRank(players, sf2.Team2Player2ID),
	})
}

func TestGenerateP8FinalsPairsWinnersAndLosers(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionPlayoff8, 8)
	makeCourts(t, db, session, 2)
	makePlayers(t, db, session, 8)

	svc := newGeneratorForTest(db)
	semis, err := svc.GeneratePlayoffBracket(db, session)
	assert.NoError(t, err)

	// Medal games refuse to generate while a semifinal is open.
	_, err = svc.GenerateP8Finals(db, session)
	assert.Error(t, err)

	completeGame(t, db, &semis[0], 1, 11, 7)
	completeGame(t, db, &semis[1], 2, 6, 11)

	finals, err := svc.GenerateP8Finals(db, session)
	assert.NoError(t, err)
	assert.Len(t, finals, 2)

	gold, bronze := finals[0], finals[1]
	assert.Equal(t, models.PlayoffRoundGold, gold.PlayoffRound)
	assert.Equal(t, models.PlayoffRoundBronze, bronze.PlayoffRound)

	assert.ElementsMatch(t, semis[0].WinningPlayerIDs(), gold.Team1PlayerIDs())
	assert.ElementsMatch(t, semis[1].WinningPlayerIDs(), gold.Team2PlayerIDs())
	assert.ElementsMatch(t, semis[0].LosingPlayerIDs(), bronze.Team1PlayerIDs())
	assert.ElementsMatch(t, semis[1].LosingPlayerIDs(), bronze.Team2PlayerIDs())
}

func TestRandomGenerationBalancesPlayerLoad(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionSimple, 8)
	makeCourts(t, db, session, 2)
	players := makePlayers(t, db, session, 8)

	svc := newGeneratorForTest(db)
	created, err := svc.generateRandomGames(db, session)
	assert.NoError(t, err)

	// 2 courts * 2 hours * 4 games/hour is the target; generation stops
	// early only when fewer than four players are under their quota.
	assert.Greater(t, created, 0)
	assert.LessOrEqual(t, created, 16)

	counts := make(map[string]int)
	var games []models.Game
	db.Where("session_id = ?", session.ID).Find(&games)
	assert.Len(t, games, created)
	for _, g := range games {
		for _, id := range g.AllPlayerIDs() {
			counts[id]++
		}
		assert.Len(t, uniqueStrings(g.AllPlayerIDs()), 4, "game %d reuses a player", g.GameNumber)
	}
	// 16 games * 4 seats / 8 players puts the per-player quota at 8
	for _, p := range players {
		assert.LessOrEqual(t, counts[p.ID], 8)
	}
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func TestGenerateFromBlocksResolvesNotationAndSkipsBadSlots(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionTournament, 8)
	makeCourts(t, db, session, 2)
	players := makePlayers(t, db, session, 8)

	blocks := []models.TemplateBlock{{
		Label: "Stage 1",
		Rounds: []models.TemplateRound{
			{Courts: []models.TemplateCourt{
				{A: []string{"P1", "P2"}, B: []string{"P3", "P4"}},
				{A: []string{"P5", "P6"}, B: []string{"P7", "P8"}},
			}},
			{Courts: []models.TemplateCourt{
				// P9 does not exist in an 8-player session
				{A: []string{"P1", "P9"}, B: []string{"P3", "P4"}},
			}},
		},
	}}

	svc := newGeneratorForTest(db)
	created, skipped, err := svc.generateFromBlocks(db, session, blocks)
	assert.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 1, skipped)

	var games []models.Game
	db.Where("session_id = ?", session.ID).Order("game_number ASC").Find(&games)
	assert.Len(t, games, 2)

	// P1..P4 resolve in sign-up order for the opening stage.
	first := games[0]
	assert.Equal(t, players[0].ID, first.Team1Player1ID)
	assert.Equal(t, players[1].ID, first.Team1Player2ID)
	assert.Equal(t, players[2].ID, first.Team2Player1ID)
	assert.Equal(t, players[3].ID, first.Team2Player2ID)
	if assert.NotNil(t, first.Stage) {
		assert.Equal(t, 1, *first.Stage)
	}
}

func TestGenerateFromBlocksStageRankNotation(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionTournament, 8)
	session.CurrentStage = 2
	db.Save(session)
	makeCourts(t, db, session, 2)
	players := makePlayers(t, db, session, 8)

	blocks := []models.TemplateBlock{{
		Label: "Stage 2",
		Rounds: []models.TemplateRound{
			{Courts: []models.TemplateCourt{
				{A: []string{"S1P1", "S1P4"}, B: []string{"S1P2", "S1P3"}},
			}},
		},
	}}

	svc := newGeneratorForTest(db)
	created, skipped, err := svc.generateFromBlocks(db, session, blocks)
	assert.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 0, skipped)

	var game models.Game
	db.Where("session_id = ?", session.ID).First(&game)
	// makePlayers assigns rank i+1 to player i
	assert.Equal(t, players[0].ID, game.Team1Player1ID)
	assert.Equal(t, players[3].ID, game.Team1Player2ID)
	assert.Equal(t, players[1].ID, game.Team2Player1ID)
	assert.Equal(t, players[2].ID, game.Team2Player2ID)
}

func TestGenerateFromBlocksGameResultNotation(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionPlayoff8, 8)
	makeCourts(t, db, session, 2)
	players := makePlayers(t, db, session, 8)

	sf1 := makeGame(t, db, session, 1, players[0:4], models.GameStatusCompleted)
	sf1.IsPlayoffGame = true
	sf1.PlayoffRound = models.PlayoffRoundSemifinal
	completeGame(t, db, sf1, 2, 8, 11)

	sf2 := makeGame(t, db, session, 2, players[4:8], models.GameStatusCompleted)
	sf2.IsPlayoffGame = true
	sf2.PlayoffRound = models.PlayoffRoundSemifinal
	completeGame(t, db, sf2, 1, 11, 4)

	blocks := []models.TemplateBlock{{
		Label: "Gold Final",
		Rounds: []models.TemplateRound{
			{Courts: []models.TemplateCourt{
				{A: []string{"Winner of SF1", "Winner of SF1"}, B: []string{"Winner of SF2", "Winner of SF2"}},
			}},
		},
	}}

	svc := newGeneratorForTest(db)
	created, skipped, err := svc.generateFromBlocks(db, session, blocks)
	assert.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 0, skipped)

	var gold models.Game
	db.Where("session_id = ? AND playoff_round = ? AND status = ?",
		session.ID, models.PlayoffRoundGold, models.GameStatusPending).First(&gold)
	assert.ElementsMatch(t, sf1.WinningPlayerIDs(), gold.Team1PlayerIDs())
	assert.ElementsMatch(t, sf2.WinningPlayerIDs(), gold.Team2PlayerIDs())
	assert.True(t, gold.IsPlayoffGame)
}

func TestValidateSessionConfigurationBounds(t *testing.T) {
	db := setupTestDB(t)
	svc := newGeneratorForTest(db)

	base := func() *models.Session {
		return &models.Session{
			SessionType:     models.SessionSimple,
			NumberOfCourts:  2,
			DurationHours:   2,
			NumberOfPlayers: 10,
			PointsPerGame:   11,
			WinBy:           2,
			NumberOfSets:    1,
		}
	}

	assert.NoError(t, svc.ValidateSessionConfiguration(base()))

	s := base()
	s.NumberOfCourts = 5
	assert.Error(t, svc.ValidateSessionConfiguration(s))

	s = base()
	s.NumberOfPlayers = 7 // below 4 per court
	assert.Error(t, svc.ValidateSessionConfiguration(s))

	s = base()
	s.NumberOfPlayers = 17 // above 8 per court
	assert.Error(t, svc.ValidateSessionConfiguration(s))

	s = base()
	s.PointsPerGame = 10
	assert.Error(t, svc.ValidateSessionConfiguration(s))

	s = base()
	s.WinBy = 3
	assert.Error(t, svc.ValidateSessionConfiguration(s))

	s = base()
	s.DurationHours = 4
	assert.Error(t, svc.ValidateSessionConfiguration(s))
}
