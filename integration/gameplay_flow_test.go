package integration

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/kyrelia/astraldrift/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullAuthLifecycle(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	username := UniqueID("auth")
	password := "testpass1234"

	// 1. First login → auto-registers, returns token.
	token1, accountID := ts.Login(t, username, password)
	require.NotEmpty(t, token1)
	require.Greater(t, accountID, int64(0))

	// 2. List pilots → empty.
	resp := ts.Get(t, "/api/pilots", token1)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listResult map[string]interface{}
	ReadJSON(t, resp, &listResult)
	assert.Empty(t, listResult["pilots"])

	// 3. Create a pilot.
	pilotID := ts.CreatePilot(t, token1, UniqueID("nova"))
	require.Greater(t, pilotID, int64(0))

	// 4. List pilots → has 1 pilot.
	resp = ts.Get(t, "/api/pilots", token1)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ReadJSON(t, resp, &listResult)
	assert.Len(t, listResult["pilots"], 1)

	// 5. Login again with same credentials → same account.
	token2, accountID2 := ts.Login(t, username, password)
	assert.Equal(t, accountID, accountID2)

	// 6. Logout → token invalidated.
	resp = ts.PostJSON(t, "/api/auth/logout", nil, token2)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = ts.Get(t, "/api/pilots", token2)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestFullProgressionFlow(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	token, _ := ts.Login(t, UniqueID("prog"), "testpass1234")
	pilotID := ts.CreatePilot(t, token, UniqueID("drifter"))

	// Story quest chain: first_flight → proof_of_trade.
	ts.WaitForAvailableQuest(t, token, pilotID, "first_flight")
	resp := ts.PostJSON(t, fmt.Sprintf("/api/pilots/%d/quests/first_flight/start", pilotID), nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.PostJSON(t, fmt.Sprintf("/api/pilots/%d/travel", pilotID),
		map[string]string{"location": "asteroid_belt"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var travelResult map[string]interface{}
	ReadJSON(t, resp, &travelResult)
	pilot := travelResult["pilot"].(map[string]interface{})
	assert.Equal(t, float64(700), pilot["credits"])

	// Chained follow-up surfaces; complete it with three trade actions.
	ts.WaitForAvailableQuest(t, token, pilotID, "proof_of_trade")
	resp = ts.PostJSON(t, fmt.Sprintf("/api/pilots/%d/quests/proof_of_trade/start", pilotID), nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	for i := 0; i < 3; i++ {
		resp = ts.PostJSON(t, fmt.Sprintf("/api/pilots/%d/actions", pilotID),
			map[string]interface{}{"type": "trade", "amount": 1}, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	// Both story quests done → getting_started arc completes, which unlocks
	// the guild_trust arc.
	resp = ts.Get(t, fmt.Sprintf("/api/pilots/%d/quests?status=completed", pilotID), token)
	var questsResult struct {
		Quests []struct {
			ID string `json:"id"`
		} `json:"quests"`
	}
	ReadJSON(t, resp, &questsResult)
	ids := make([]string, 0, len(questsResult.Quests))
	for _, q := range questsResult.Quests {
		ids = append(ids, q.ID)
	}
	assert.Contains(t, ids, "first_flight")
	assert.Contains(t, ids, "proof_of_trade")

	resp = ts.Get(t, fmt.Sprintf("/api/pilots/%d/factions/miners_guild/arcs", pilotID), token)
	var arcsResult struct {
		Arcs []struct {
			Status string `json:"status"`
		} `json:"arcs"`
	}
	ReadJSON(t, resp, &arcsResult)
	require.Len(t, arcsResult.Arcs, 1)
	assert.Equal(t, "available", arcsResult.Arcs[0].Status)

	// 500 starting + 200 + 400 quest rewards.
	resp = ts.Get(t, fmt.Sprintf("/api/pilots/%d", pilotID), token)
	var pilotResult map[string]interface{}
	ReadJSON(t, resp, &pilotResult)
	assert.Equal(t, float64(1100), pilotResult["pilot"].(map[string]interface{})["credits"])

	// Persist, evict, reload: the progression survives.
	resp = ts.PostAdmin(t, "/api/admin/save", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	ts.WM.Destroy(pilotID)

	var state model.EngineState
	require.NoError(t, ts.DB.First(&state, "pilot_id = ?", pilotID).Error)
	assert.NotEmpty(t, state.Snapshot)

	resp = ts.Get(t, fmt.Sprintf("/api/pilots/%d/quests?status=completed", pilotID), token)
	ReadJSON(t, resp, &questsResult)
	assert.Len(t, questsResult.Quests, 2)

	// The audit trail recorded the completions.
	auditURL := fmt.Sprintf("%s/api/admin/audit?pilot_id=%d", ts.URL, pilotID)
	require.Eventually(t, func() bool {
		req, err := http.NewRequest("GET", auditURL, nil)
		if err != nil {
			return false
		}
		req.Header.Set("X-Admin-Key", adminKey)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		var auditResult struct {
			Logs []struct {
				Action string `json:"action"`
			} `json:"logs"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&auditResult); err != nil {
			resp.Body.Close()
			return false
		}
		resp.Body.Close()
		completions := 0
		for _, l := range auditResult.Logs {
			if l.Action == "quest_completed" {
				completions++
			}
		}
		return completions >= 2
	}, 5*time.Second, 100*time.Millisecond)
}

func TestLeaderboardReflectsExperience(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	token, _ := ts.Login(t, UniqueID("rank"), "testpass1234")
	name := UniqueID("ace")
	pilotID := ts.CreatePilot(t, token, name)

	// Earn some experience, flush it to the DB, rebuild the leaderboard.
	ts.WaitForAvailableQuest(t, token, pilotID, "first_flight")
	resp := ts.PostJSON(t, fmt.Sprintf("/api/pilots/%d/quests/first_flight/start", pilotID), nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = ts.PostJSON(t, fmt.Sprintf("/api/pilots/%d/travel", pilotID),
		map[string]string{"location": "asteroid_belt"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.PostAdmin(t, "/api/admin/save", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = ts.PostAdmin(t, "/api/admin/ranking/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.Get(t, "/api/ranking/exp", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rankResult struct {
		Ranking []struct {
			PilotName string `json:"pilot_name"`
			Exp       int64  `json:"exp"`
		} `json:"ranking"`
	}
	ReadJSON(t, resp, &rankResult)
	require.NotEmpty(t, rankResult.Ranking)
	assert.Equal(t, name, rankResult.Ranking[0].PilotName)
	assert.Equal(t, int64(50), rankResult.Ranking[0].Exp)
}

func TestSSEDeliversQuestNotices(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	token, _ := ts.Login(t, UniqueID("sse"), "testpass1234")
	pilotID := ts.CreatePilot(t, token, UniqueID("beacon"))
	ts.WaitForAvailableQuest(t, token, pilotID, "first_flight")

	// Open the stream before acting so nothing is missed.
	req, err := http.NewRequest("GET",
		fmt.Sprintf("%s/sse?token=%s&pilot_id=%d", ts.URL, token, pilotID), nil)
	require.NoError(t, err)
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// Wait for the connected handshake.
	requireLine(t, lines, "event: connected")

	r2 := ts.PostJSON(t, fmt.Sprintf("/api/pilots/%d/quests/first_flight/start", pilotID), nil, token)
	require.Equal(t, http.StatusOK, r2.StatusCode)
	r2.Body.Close()

	// The start notice arrives on the pilot channel.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("sse stream closed early")
			}
			if strings.HasPrefix(line, "data: ") && strings.Contains(line, "first_flight") {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for quest notice")
		}
	}
}

func requireLine(t *testing.T, lines <-chan string, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("sse stream closed before %q", want)
			}
			if strings.Contains(line, want) {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}
