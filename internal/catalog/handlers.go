package catalog

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/fdg312/fitdiary/internal/storage"
)

// Handler handles HTTP requests for catalog search.
type Handler struct {
	service *Service
}

// NewHandler creates a new catalog handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleSearchFoods handles GET /v1/catalog/foods?q=&limit=
func (h *Handler) HandleSearchFoods(w http.ResponseWriter, r *http.Request) {
	limit := clampLimit(parseIntQuery(r, "limit", defaultSearchLimit))

	foods, err := h.service.SearchFoods(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		log.Printf("ERROR catalog: search foods: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to search foods")
		return
	}

	items := make([]FoodDTO, len(foods))
	for i, f := range foods {
		items[i] = toFoodDTO(f)
	}

	writeJSON(w, http.StatusOK, SearchFoodsResponse{Items: items, Limit: limit})
}

// HandleSearchExercises handles GET /v1/catalog/exercises?q=&limit=
func (h *Handler) HandleSearchExercises(w http.ResponseWriter, r *http.Request) {
	limit := clampLimit(parseIntQuery(r, "limit", defaultSearchLimit))

	exercises, err := h.service.SearchExercises(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		log.Printf("ERROR catalog: search exercises: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to search exercises")
		return
	}

	items := make([]ExerciseDTO, len(exercises))
	for i, e := range exercises {
		items[i] = toExerciseDTO(e)
	}

	writeJSON(w, http.StatusOK, SearchExercisesResponse{Items: items, Limit: limit})
}

func toFoodDTO(f storage.FoodProduct) FoodDTO {
	return FoodDTO{
		ID:              f.ID,
		Name:            f.Name,
		KcalPer100g:     f.KcalPer100g,
		ProteinGPer100g: f.ProteinGPer100g,
		FatGPer100g:     f.FatGPer100g,
		CarbsGPer100g:   f.CarbsGPer100g,
		UpdatedAt:       f.UpdatedAt,
	}
}

func toExerciseDTO(e storage.Exercise) ExerciseDTO {
	return ExerciseDTO{
		ID:          e.ID,
		Name:        e.Name,
		MuscleGroup: e.MuscleGroup,
		UpdatedAt:   e.UpdatedAt,
	}
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return val
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
