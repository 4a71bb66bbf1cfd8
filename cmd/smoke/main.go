package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
)

const (
	defaultAPIBase = "http://localhost:8080"
)

var (
	apiBase   string
	token     string
	client    = &http.Client{Timeout: 30 * time.Second}
	testDate  string
	idemKey   string
	mealID    string
	sessionID string
)

func main() {
	fmt.Println("=== FitDiary E2E Smoke Test ===")
	fmt.Println()

	apiBase = getEnv("API_BASE_URL", defaultAPIBase)
	token = getEnv("SMOKE_TOKEN", "")

	fmt.Printf("API Base: %s\n", apiBase)
	fmt.Printf("Token: %s\n", maskString(token))
	fmt.Println()

	testDate = time.Now().UTC().Format("2006-01-02")
	idemKey = "smoke-" + uuid.NewString()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"Healthz", testHealthz},
		{"Dev Token", testDevToken},
		{"Apply Meal Plan", testApplyMealPlan},
		{"Replay Meal Plan", testReplayMealPlan},
		{"List Meals", testListMeals},
		{"Apply Workout", testApplyWorkout},
		{"List Sessions", testListSessions},
		{"Delete Meal", testDeleteMeal},
		{"Delete Session", testDeleteSession},
	}

	failed := false
	for i, step := range steps {
		fmt.Printf("[%d/%d] %s... ", i+1, len(steps), step.name)
		if err := step.fn(); err != nil {
			fmt.Printf("❌ FAILED\n")
			fmt.Printf("  Error: %v\n\n", err)
			failed = true
			break
		}
		fmt.Printf("✅ OK\n")
	}

	fmt.Println()
	if failed {
		fmt.Println("❌ SMOKE TEST FAILED")
		os.Exit(1)
	}

	fmt.Println("✅ ALL SMOKE TESTS PASSED")
}

func testHealthz() error {
	_, err := do(http.MethodGet, "/healthz", nil, nil, http.StatusOK)
	return err
}

// testDevToken получает dev-токен, если SMOKE_TOKEN не задан.
// 404 означает AUTH_MODE=none: дальше работаем без токена.
func testDevToken() error {
	if token != "" {
		return nil
	}

	body, status, err := request(http.MethodPost, "/v1/auth/dev", map[string]string{"user_id": "smoke-user"}, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	if status != http.StatusOK {
		return fmt.Errorf("status=%d body=%s", status, string(body))
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	token = result.AccessToken
	return nil
}

func mealPlanBody() map[string]any {
	return map[string]any{
		"date":      testDate,
		"meal_type": "breakfast",
		"plan": map[string]any{
			"meals": []map[string]any{{
				"title": "Smoke breakfast",
				"items": []map[string]any{
					{"name": "Овсянка", "grams": 150},
					{"name": "Smoke unknown product", "calories": 120},
				},
			}},
		},
	}
}

func testApplyMealPlan() error {
	var result applyResult
	if _, err := do(http.MethodPost, "/v1/ai/recommendations/mealplan/apply", mealPlanBody(), &result, http.StatusCreated); err != nil {
		return err
	}
	if result.Receipt == nil || len(result.Receipt.ParentIDs) == 0 {
		return fmt.Errorf("receipt without meals")
	}
	mealID = result.Receipt.ParentIDs[0]
	return nil
}

func testReplayMealPlan() error {
	var result applyResult
	if _, err := do(http.MethodPost, "/v1/ai/recommendations/mealplan/apply", mealPlanBody(), &result, http.StatusOK); err != nil {
		return err
	}
	if !result.Replayed {
		return fmt.Errorf("expected replayed=true")
	}
	if result.Receipt == nil || len(result.Receipt.ParentIDs) == 0 || result.Receipt.ParentIDs[0] != mealID {
		return fmt.Errorf("replay returned a different receipt")
	}
	return nil
}

func testListMeals() error {
	var result struct {
		Meals []struct {
			ID string `json:"id"`
		} `json:"meals"`
	}
	if _, err := do(http.MethodGet, "/v1/diary/meals?date="+testDate, nil, &result, http.StatusOK); err != nil {
		return err
	}
	for _, m := range result.Meals {
		if m.ID == mealID {
			return nil
		}
	}
	return fmt.Errorf("meal %s not found in diary", mealID)
}

func testApplyWorkout() error {
	body := map[string]any{
		"date": testDate,
		"plan": map[string]any{
			"title":        "Smoke workout",
			"duration_min": 30,
			"sets": []map[string]any{
				{"reps": 10, "weight_kg": 40, "exercise": map[string]any{"name": "Жим лёжа"}},
				{"reps": 12, "exercise": map[string]any{"name": "Приседания"}},
			},
		},
	}

	var result applyResult
	if _, err := do(http.MethodPost, "/v1/ai/recommendations/workout/apply", body, &result, http.StatusCreated); err != nil {
		return err
	}
	if result.SessionID == "" {
		return fmt.Errorf("empty session_id (is the exercise catalog seeded?)")
	}
	sessionID = result.SessionID
	return nil
}

func testListSessions() error {
	var result struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
	}
	if _, err := do(http.MethodGet, "/v1/workouts/sessions?date="+testDate, nil, &result, http.StatusOK); err != nil {
		return err
	}
	for _, s := range result.Sessions {
		if s.ID == sessionID {
			return nil
		}
	}
	return fmt.Errorf("session %s not found", sessionID)
}

func testDeleteMeal() error {
	_, err := do(http.MethodDelete, "/v1/diary/meals/"+mealID, nil, nil, http.StatusNoContent)
	return err
}

func testDeleteSession() error {
	_, err := do(http.MethodDelete, "/v1/workouts/sessions/"+sessionID, nil, nil, http.StatusNoContent)
	return err
}

type applyResult struct {
	SessionID string `json:"session_id"`
	Replayed  bool   `json:"replayed"`
	Receipt   *struct {
		BatchKey  string   `json:"batch_key"`
		ParentIDs []string `json:"parent_ids"`
	} `json:"receipt"`
}

// do sends a JSON request, checks the status and decodes the body into out.
func do(method, path string, in any, out any, wantStatus int) ([]byte, error) {
	headers := map[string]string{}
	if method == http.MethodPost {
		headers["Idempotency-Key"] = idemKey + path
	}

	body, status, err := request(method, path, in, headers)
	if err != nil {
		return nil, err
	}
	if status != wantStatus {
		return body, fmt.Errorf("status=%d body=%s", status, string(body))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return body, fmt.Errorf("decode failed: %w", err)
		}
	}
	return body, nil
}

func request(method, path string, in any, headers map[string]string) ([]byte, int, error) {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, apiBase+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	addAuth(req)

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func addAuth(req *http.Request) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
