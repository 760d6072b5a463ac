package rest_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestFlowOverREST(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t, "sybil")
	id := app.createPilot(t, token, "sybils_pilot")

	app.waitForAvailableQuest(t, token, id, "first_flight")

	w := app.request(http.MethodPost, fmt.Sprintf("/api/pilots/%d/quests/first_flight/start", id), token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Travel to the objective target; the quest completes in the same call.
	w = app.request(http.MethodPost, fmt.Sprintf("/api/pilots/%d/travel", id), token,
		map[string]string{"location": "asteroid_belt"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, float64(1), resp["objectives_advanced"])
	pilot := resp["pilot"].(map[string]interface{})
	assert.Equal(t, float64(700), pilot["credits"]) // 500 starting + 200 reward

	w = app.request(http.MethodGet, fmt.Sprintf("/api/pilots/%d/quests?status=completed", id), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	completed := decode(t, w)["quests"].([]interface{})
	require.Len(t, completed, 1)
	assert.Equal(t, "first_flight", completed[0].(map[string]interface{})["id"])

	// The chained follow-up surfaces immediately.
	w = app.request(http.MethodGet, fmt.Sprintf("/api/pilots/%d/quests?status=available", id), token, nil)
	available := decode(t, w)["quests"].([]interface{})
	ids := make([]string, 0, len(available))
	for _, q := range available {
		ids = append(ids, q.(map[string]interface{})["id"].(string))
	}
	assert.Contains(t, ids, "proof_of_trade")
}

func TestStartUnavailableQuest(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t, "trent")
	id := app.createPilot(t, token, "trents_pilot")

	// guild_escort needs level 3 and reputation; a fresh pilot can't take it.
	w := app.request(http.MethodPost, fmt.Sprintf("/api/pilots/%d/quests/guild_escort/start", id), token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAbandonQuest(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t, "uma")
	id := app.createPilot(t, token, "umas_pilot")

	app.waitForAvailableQuest(t, token, id, "first_flight")
	w := app.request(http.MethodPost, fmt.Sprintf("/api/pilots/%d/quests/first_flight/start", id), token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = app.request(http.MethodPost, fmt.Sprintf("/api/pilots/%d/quests/first_flight/abandon", id), token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = app.request(http.MethodGet, fmt.Sprintf("/api/pilots/%d/quests?status=failed", id), token, nil)
	failed := decode(t, w)["quests"].([]interface{})
	require.Len(t, failed, 1)

	// Abandoning again is a conflict.
	w = app.request(http.MethodPost, fmt.Sprintf("/api/pilots/%d/quests/first_flight/abandon", id), token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestQuestListDefaultReturnsAllSets(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t, "victor")
	id := app.createPilot(t, token, "victors_pilot")

	w := app.request(http.MethodGet, fmt.Sprintf("/api/pilots/%d/quests", id), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	for _, key := range []string{"available", "active", "completed", "failed"} {
		_, ok := resp[key]
		assert.True(t, ok, "missing %s", key)
	}

	w = app.request(http.MethodGet, fmt.Sprintf("/api/pilots/%d/quests?status=bogus", id), token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFactionArcsAndTiers(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t, "wendy")
	id := app.createPilot(t, token, "wendys_pilot")

	w := app.request(http.MethodGet, fmt.Sprintf("/api/pilots/%d/factions/miners_guild/arcs", id), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	arcs := decode(t, w)["arcs"].([]interface{})
	require.Len(t, arcs, 1)
	first := arcs[0].(map[string]interface{})
	// guild_trust is locked behind the getting_started arc.
	assert.Equal(t, "locked", first["status"])

	w = app.request(http.MethodGet, fmt.Sprintf("/api/pilots/%d/factions/miners_guild/tiers", id), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tiers := decode(t, w)["tiers"].([]interface{})
	require.Len(t, tiers, 3)
	assert.Equal(t, false, tiers[0].(map[string]interface{})["reached"])

	w = app.request(http.MethodGet, fmt.Sprintf("/api/pilots/%d/factions/no_such_faction/arcs", id), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
