package services

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"pickleball-session-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestFindByCodeServesSpectators(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionSimple, 8)
	makeCourts(t, db, session, 2)
	makePlayers(t, db, session, 8)

	svc := newSessionServiceForTest(db)
	app := fiber.New()
	app.Get("/public/sessions/:code", svc.FindByCode)

	req := httptest.NewRequest("GET", "/public/sessions/"+session.SessionCode, nil)
	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Session models.Session `json:"session"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, session.ID, body.Session.ID)
	assert.Len(t, body.Session.Players, 8)
	assert.Len(t, body.Session.Courts, 2)

	// Unknown codes and draft sessions both read as not found.
	resp, err = app.Test(httptest.NewRequest("GET", "/public/sessions/nope", nil))
	assert.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	db.Model(&models.Session{}).Where("id = ?", session.ID).Update("status", models.SessionStatusDraft)
	resp, err = app.Test(httptest.NewRequest("GET", "/public/sessions/"+session.SessionCode, nil))
	assert.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestPublicActiveSessionsListsOnlyActive(t *testing.T) {
	db := setupTestDB(t)
	active := makeSession(t, db, models.SessionSimple, 8)
	makeCourts(t, db, active, 2)
	draft := makeSession(t, db, models.SessionSimple, 8)
	db.Model(&models.Session{}).Where("id = ?", draft.ID).Update("status", models.SessionStatusDraft)

	svc := newSessionServiceForTest(db)
	app := fiber.New()
	app.Get("/public/sessions", svc.GetPublicActiveSessions)

	resp, err := app.Test(httptest.NewRequest("GET", "/public/sessions", nil))
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Sessions []models.Session `json:"sessions"`
		Count    int              `json:"count"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, active.ID, body.Sessions[0].ID)
	assert.Len(t, body.Sessions[0].Courts, 2)
}

func TestPublicGamesAndPlayersByCode(t *testing.T) {
	db := setupTestDB(t)
	session := makeSession(t, db, models.SessionSimple, 8)
	makeCourts(t, db, session, 2)
	players := makePlayers(t, db, session, 8)
	makeGame(t, db, session, 1, players[:4], models.GameStatusPending)
	done := makeGame(t, db, session, 2, players[4:8], models.GameStatusPending)
	completeGame(t, db, done, 1, 11, 6)

	svc := newSessionServiceForTest(db)
	app := fiber.New()
	app.Get("/public/sessions/:code/games", svc.GetPublicGamesByStatus)
	app.Get("/public/sessions/:code/players", svc.GetPublicPlayerStats)

	resp, err := app.Test(httptest.NewRequest("GET",
		"/public/sessions/"+session.SessionCode+"/games?status=completed", nil))
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var games struct {
		Games []models.Game `json:"games"`
		Count int           `json:"count"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&games))
	assert.Equal(t, 1, games.Count)
	assert.Equal(t, done.ID, games.Games[0].ID)

	resp, err = app.Test(httptest.NewRequest("GET",
		"/public/sessions/"+session.SessionCode+"/players", nil))
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var stats struct {
		Players []models.Player `json:"players"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Len(t, stats.Players, 8)
	assert.Equal(t, players[0].ID, stats.Players[0].ID)

	resp, err = app.Test(httptest.NewRequest("GET", "/public/sessions/nope/players", nil))
	assert.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}
