package services

import (
	"encoding/json"
	"net/http"

	"github.com/fompt/backend/internal/models"
)

type CategoryInfo struct {
	Value       models.Category `json:"value"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
}

var categoryCatalog = []CategoryInfo{
	{Value: models.CategoryWriting, Label: "Writing", Description: "Blog posts, fiction, screenwriting"},
	{Value: models.CategoryCoding, Label: "Coding", Description: "Programming, debugging, refactoring"},
	{Value: models.CategoryDesign, Label: "Design", Description: "UI/UX, graphics, logos"},
	{Value: models.CategoryMarketing, Label: "Marketing", Description: "Ad copy, social content"},
	{Value: models.CategoryEducation, Label: "Education", Description: "Course material, study plans"},
	{Value: models.CategoryEntertainment, Label: "Entertainment", Description: "Games, video, music"},
	{Value: models.CategoryEtc, Label: "Etc", Description: "Everything else"},
}

type CategoryService struct{}

func NewCategoryService() *CategoryService {
	return &CategoryService{}
}

// GetAllCategories returns the listing categories
// @Summary List categories
// @Description Get the fixed set of listing categories
// @Tags catalog
// @Produce json
// @Success 200 {object} object{categories=[]CategoryInfo,count=int}
// @Router /categories [get]
func (s *CategoryService) GetAllCategories(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"categories": categoryCatalog,
		"count":      len(categoryCatalog),
	})
}
