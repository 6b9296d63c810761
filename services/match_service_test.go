package services_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"berenjapp/engine"
	"berenjapp/handlers"
	"berenjapp/models"
	"berenjapp/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Match{},
		&models.Round{},
		&models.MatchPlayer{},
		&models.PlayerStats{},
	); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	app := fiber.New()
	statsService := services.NewStatsService(db)
	matchService := services.NewMatchService(db, statsService)
	handlers.SetupMatchRoutes(app, matchService)
	handlers.SetupStatsRoutes(app, statsService)
	return app, db
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}, out interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s response: %v", method, path, err)
		}
	}
	return resp
}

func TestMatchRoundTrip(t *testing.T) {
	db := newTestDB(t)

	match, err := engine.NewMatch([]string{"p1", "p2", "p3"}, 50)
	if err != nil {
		t.Fatalf("NewMatch() error = %v", err)
	}
	round, _, err := engine.AddRound(match, 5, models.ScoreMap{"p1": 2, "p2": 1, "p3": 0})
	if err != nil {
		t.Fatalf("AddRound() error = %v", err)
	}
	if _, err := engine.RecordResults(match, round.ID, models.ScoreMap{"p1": 2, "p2": 3, "p3": 0}); err != nil {
		t.Fatalf("RecordResults() error = %v", err)
	}
	if _, _, err := engine.AddRound(match, 3, models.ScoreMap{"p1": 1, "p2": 1, "p3": 2}); err != nil {
		t.Fatalf("AddRound() error = %v", err)
	}

	if err := db.Create(match).Error; err != nil {
		t.Fatalf("saving match: %v", err)
	}

	var loaded models.Match
	err = db.Preload("Rounds", func(db *gorm.DB) *gorm.DB {
		return db.Order("\"sort_order\" ASC")
	}).First(&loaded, "id = ?", match.ID).Error
	if err != nil {
		t.Fatalf("loading match: %v", err)
	}

	if len(loaded.Players) != 3 {
		t.Fatalf("loaded.Players = %v, want 3 entries", loaded.Players)
	}
	for i, p := range match.Players {
		if loaded.Players[i] != p {
			t.Fatalf("loaded.Players = %v, want %v", loaded.Players, match.Players)
		}
	}
	if len(loaded.Rounds) != 2 {
		t.Fatalf("len(loaded.Rounds) = %d, want 2", len(loaded.Rounds))
	}
	for i := range match.Rounds {
		if loaded.Rounds[i].ID != match.Rounds[i].ID {
			t.Fatalf("round order changed: %s at %d, want %s", loaded.Rounds[i].ID, i, match.Rounds[i].ID)
		}
	}
	if loaded.Rounds[0].PlayerScores["p1"] != 30 {
		t.Fatalf("loaded scores = %v, want p1=30", loaded.Rounds[0].PlayerScores)
	}
	if loaded.Rounds[1].HasResults() {
		t.Fatal("pending round came back with results")
	}

	// The reloaded aggregate computes identically.
	totals := engine.TotalScores(&loaded)
	wantTotals := engine.TotalScores(match)
	for p, want := range wantTotals {
		if totals[p] != want {
			t.Fatalf("totals after reload = %v, want %v", totals, wantTotals)
		}
	}
}

func TestMatchLifecycleOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)

	var created models.Match
	resp := doJSON(t, app, "POST", "/matches", fiber.Map{
		"player_ids":     []string{"p1", "p2"},
		"winning_points": 50,
	}, &created)
	if resp.StatusCode != 201 {
		t.Fatalf("create match status = %d, want 201", resp.StatusCode)
	}
	if created.ID == "" || !created.IsActive {
		t.Fatalf("created match = %+v", created)
	}

	var roundResp struct {
		Round  models.Round `json:"round"`
		Fiuuum bool         `json:"fiuuum"`
	}
	resp = doJSON(t, app, "POST", "/matches/"+created.ID+"/rounds", fiber.Map{
		"cards_per_player": 5,
		"predictions":      models.ScoreMap{"p1": 4, "p2": 0},
	}, &roundResp)
	if resp.StatusCode != 201 {
		t.Fatalf("add round status = %d, want 201", resp.StatusCode)
	}
	// Predictions total 4 against 5 cards, the under-total notice fires.
	if !roundResp.Fiuuum {
		t.Fatal("fiuuum = false, want true for under-total predictions")
	}

	var resultResp struct {
		Match  models.Match `json:"match"`
		Winner string       `json:"winner"`
	}
	resp = doJSON(t, app, "PUT", "/matches/"+created.ID+"/rounds/"+roundResp.Round.ID+"/results", fiber.Map{
		"results": models.ScoreMap{"p1": 4, "p2": 1},
	}, &resultResp)
	if resp.StatusCode != 200 {
		t.Fatalf("record results status = %d, want 200", resp.StatusCode)
	}
	// p1 hit 50 exactly and crossed; p2 wins as last player standing.
	if resultResp.Winner != "p2" {
		t.Fatalf("winner = %q, want p2", resultResp.Winner)
	}
	if resultResp.Match.IsActive {
		t.Fatal("match still active after winner determined")
	}

	var standings struct {
		TotalScores models.ScoreMap `json:"total_scores"`
		Standings   []string        `json:"standings"`
		Losers      []string        `json:"losers"`
		Winner      string          `json:"winner"`
	}
	resp = doJSON(t, app, "GET", "/matches/"+created.ID+"/standings", nil, &standings)
	if resp.StatusCode != 200 {
		t.Fatalf("standings status = %d, want 200", resp.StatusCode)
	}
	if standings.TotalScores["p1"] != 50 || standings.TotalScores["p2"] != -10 {
		t.Fatalf("total_scores = %v, want p1=50 p2=-10", standings.TotalScores)
	}
	if len(standings.Losers) != 1 || standings.Losers[0] != "p1" {
		t.Fatalf("losers = %v, want [p1]", standings.Losers)
	}
	if standings.Winner != "p2" {
		t.Fatalf("standings winner = %q, want p2", standings.Winner)
	}

	// Completed matches reject further mutation.
	var errBody map[string]interface{}
	resp = doJSON(t, app, "POST", "/matches/"+created.ID+"/players", fiber.Map{
		"player_id": "p3",
	}, &errBody)
	if resp.StatusCode != 409 {
		t.Fatalf("add player to completed match status = %d, want 409", resp.StatusCode)
	}
}

func TestAddRoundRejectionsOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)

	var created models.Match
	doJSON(t, app, "POST", "/matches", fiber.Map{
		"player_ids":     []string{"p1", "p2"},
		"winning_points": 100,
	}, &created)

	// Predictions summing to cards_per_player are forbidden.
	resp := doJSON(t, app, "POST", "/matches/"+created.ID+"/rounds", fiber.Map{
		"cards_per_player": 5,
		"predictions":      models.ScoreMap{"p1": 2, "p2": 3},
	}, nil)
	if resp.StatusCode != 400 {
		t.Fatalf("forbidden predictions status = %d, want 400", resp.StatusCode)
	}

	// The rejected round must not have been persisted.
	var reloaded models.Match
	doJSON(t, app, "GET", "/matches/"+created.ID, nil, &reloaded)
	if len(reloaded.Rounds) != 0 {
		t.Fatalf("rejected round was persisted: %v", reloaded.Rounds)
	}

	resp = doJSON(t, app, "POST", "/matches/unknown/rounds", fiber.Map{
		"cards_per_player": 5,
		"predictions":      models.ScoreMap{"p1": 2, "p2": 2},
	}, nil)
	if resp.StatusCode != 404 {
		t.Fatalf("unknown match status = %d, want 404", resp.StatusCode)
	}
}

func TestRecordResultsRejectionsOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)

	var created models.Match
	doJSON(t, app, "POST", "/matches", fiber.Map{
		"player_ids":     []string{"p1", "p2"},
		"winning_points": 100,
	}, &created)

	var roundResp struct {
		Round models.Round `json:"round"`
	}
	doJSON(t, app, "POST", "/matches/"+created.ID+"/rounds", fiber.Map{
		"cards_per_player": 5,
		"predictions":      models.ScoreMap{"p1": 2, "p2": 2},
	}, &roundResp)

	// Results must account for every hand in play.
	resp := doJSON(t, app, "PUT", "/matches/"+created.ID+"/rounds/"+roundResp.Round.ID+"/results", fiber.Map{
		"results": models.ScoreMap{"p1": 1, "p2": 1},
	}, nil)
	if resp.StatusCode != 400 {
		t.Fatalf("short results status = %d, want 400", resp.StatusCode)
	}

	// A result for a player with no prediction is a consistency failure.
	resp = doJSON(t, app, "PUT", "/matches/"+created.ID+"/rounds/"+roundResp.Round.ID+"/results", fiber.Map{
		"results": models.ScoreMap{"p1": 2, "p2": 2, "ghost": 1},
	}, nil)
	if resp.StatusCode != 422 {
		t.Fatalf("unknown player result status = %d, want 422", resp.StatusCode)
	}

	resp = doJSON(t, app, "PUT", "/matches/"+created.ID+"/rounds/missing/results", fiber.Map{
		"results": models.ScoreMap{"p1": 2, "p2": 3},
	}, nil)
	if resp.StatusCode != 404 {
		t.Fatalf("unknown round status = %d, want 404", resp.StatusCode)
	}

	// First valid write succeeds, the second is rejected.
	resp = doJSON(t, app, "PUT", "/matches/"+created.ID+"/rounds/"+roundResp.Round.ID+"/results", fiber.Map{
		"results": models.ScoreMap{"p1": 2, "p2": 3},
	}, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("valid results status = %d, want 200", resp.StatusCode)
	}
	resp = doJSON(t, app, "PUT", "/matches/"+created.ID+"/rounds/"+roundResp.Round.ID+"/results", fiber.Map{
		"results": models.ScoreMap{"p1": 3, "p2": 2},
	}, nil)
	if resp.StatusCode != 400 {
		t.Fatalf("double write status = %d, want 400", resp.StatusCode)
	}
}

func TestAddPlayerOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)

	var created models.Match
	doJSON(t, app, "POST", "/matches", fiber.Map{
		"player_ids":     []string{"p1", "p2"},
		"winning_points": 100,
	}, &created)

	var roundResp struct {
		Round models.Round `json:"round"`
	}
	doJSON(t, app, "POST", "/matches/"+created.ID+"/rounds", fiber.Map{
		"cards_per_player": 5,
		"predictions":      models.ScoreMap{"p1": 2, "p2": 1},
	}, &roundResp)
	doJSON(t, app, "PUT", "/matches/"+created.ID+"/rounds/"+roundResp.Round.ID+"/results", fiber.Map{
		"results": models.ScoreMap{"p1": 2, "p2": 3},
	}, nil)
	// totals: p1 = 30, p2 = -20.

	var joined models.Match
	resp := doJSON(t, app, "POST", "/matches/"+created.ID+"/players", fiber.Map{
		"player_id": "p3",
	}, &joined)
	if resp.StatusCode != 200 {
		t.Fatalf("add player status = %d, want 200", resp.StatusCode)
	}
	if len(joined.Players) != 3 || joined.Players[2] != "p3" {
		t.Fatalf("players = %v, want p3 appended", joined.Players)
	}

	// The seeded joining round survives persistence.
	var standings struct {
		TotalScores models.ScoreMap `json:"total_scores"`
	}
	doJSON(t, app, "GET", "/matches/"+created.ID+"/standings", nil, &standings)
	if standings.TotalScores["p3"] != -20 {
		t.Fatalf("total_scores[p3] = %d, want -20", standings.TotalScores["p3"])
	}

	resp = doJSON(t, app, "POST", "/matches/"+created.ID+"/players", fiber.Map{
		"player_id": "p3",
	}, nil)
	if resp.StatusCode != 409 {
		t.Fatalf("duplicate player status = %d, want 409", resp.StatusCode)
	}
}

func TestCompleteAndCancelOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)

	var first models.Match
	doJSON(t, app, "POST", "/matches", fiber.Map{
		"player_ids":     []string{"p1", "p2"},
		"winning_points": 100,
	}, &first)

	var completed models.Match
	resp := doJSON(t, app, "POST", "/matches/"+first.ID+"/complete", nil, &completed)
	if resp.StatusCode != 200 {
		t.Fatalf("complete status = %d, want 200", resp.StatusCode)
	}
	if completed.IsActive {
		t.Fatal("match still active after complete")
	}
	if completed.Winner != "" {
		t.Fatalf("forced completion winner = %q, want empty", completed.Winner)
	}

	resp = doJSON(t, app, "POST", "/matches/"+first.ID+"/cancel", nil, nil)
	if resp.StatusCode != 409 {
		t.Fatalf("cancel of completed match status = %d, want 409", resp.StatusCode)
	}

	var second models.Match
	doJSON(t, app, "POST", "/matches", fiber.Map{
		"player_ids":     []string{"p1", "p2"},
		"winning_points": 100,
	}, &second)

	var cancelled models.Match
	resp = doJSON(t, app, "POST", "/matches/"+second.ID+"/cancel", nil, &cancelled)
	if resp.StatusCode != 200 {
		t.Fatalf("cancel status = %d, want 200", resp.StatusCode)
	}
	if !cancelled.IsCancelled || cancelled.IsActive {
		t.Fatalf("IsCancelled = %v, IsActive = %v after cancel", cancelled.IsCancelled, cancelled.IsActive)
	}
}

func TestGetAllMatchesFilters(t *testing.T) {
	app, _ := newTestApp(t)

	var active models.Match
	doJSON(t, app, "POST", "/matches", fiber.Map{
		"player_ids":     []string{"p1", "p2"},
		"winning_points": 100,
	}, &active)

	var done models.Match
	doJSON(t, app, "POST", "/matches", fiber.Map{
		"player_ids":     []string{"p2", "p3"},
		"winning_points": 100,
	}, &done)
	doJSON(t, app, "POST", "/matches/"+done.ID+"/complete", nil, nil)

	var matches []models.Match
	doJSON(t, app, "GET", "/matches?active=true", nil, &matches)
	if len(matches) != 1 || matches[0].ID != active.ID {
		t.Fatalf("active filter returned %d matches, want just %s", len(matches), active.ID)
	}

	doJSON(t, app, "GET", "/matches?player_id=p3", nil, &matches)
	if len(matches) != 1 || matches[0].ID != done.ID {
		t.Fatalf("player filter returned %d matches, want just %s", len(matches), done.ID)
	}

	doJSON(t, app, "GET", "/matches?player_id=p2", nil, &matches)
	if len(matches) != 2 {
		t.Fatalf("player filter returned %d matches, want 2", len(matches))
	}
}

func TestArchiveWithoutR2(t *testing.T) {
	app, _ := newTestApp(t)

	var created models.Match
	doJSON(t, app, "POST", "/matches", fiber.Map{
		"player_ids":     []string{"p1", "p2"},
		"winning_points": 100,
	}, &created)

	resp := doJSON(t, app, "POST", "/admin/matches/"+created.ID+"/archive", nil, nil)
	if resp.StatusCode != 503 {
		t.Fatalf("archive without storage status = %d, want 503", resp.StatusCode)
	}
}
