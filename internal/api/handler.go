package api

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nfnt/resize"

	"github.com/eppchris/recettes/internal/catalog"
	"github.com/eppchris/recettes/internal/cost"
	"github.com/eppchris/recettes/internal/platform/gemini"
	"github.com/eppchris/recettes/internal/recipe"
	"github.com/eppchris/recettes/internal/service"
	"github.com/eppchris/recettes/internal/shopping"
)

// RecipeStore defines the interface for recipe and event data operations.
type RecipeStore interface {
	GetRecipe(ctx context.Context, id int64) (*recipe.Recipe, error)
	ListRecipes(ctx context.Context) ([]recipe.Recipe, error)
	IngredientLines(ctx context.Context, recipeID int64, lang string) ([]recipe.IngredientLine, error)
	GetEvent(ctx context.Context, id int64) (*recipe.Event, error)
	EventRecipes(ctx context.Context, eventID int64) ([]recipe.EventRecipe, error)
	SaveShoppingList(ctx context.Context, eventID int64, lang string, items []shopping.Item) (string, error)
	ShoppingList(ctx context.Context, listID string) ([]shopping.Item, error)
}

// CatalogStore defines the interface for price catalog operations.
type CatalogStore interface {
	ListEntries(ctx context.Context) ([]catalog.Entry, error)
	InsertEntry(ctx context.Context, e *catalog.Entry) error
	UpdatePrice(ctx context.Context, id int64, currency catalog.Currency, price float64, packQty float64) error
	Dedupe(ctx context.Context) (int, error)
}

// CostEngine prices recipe ingredient lines.
type CostEngine interface {
	ResolveRecipe(ctx context.Context, lines []cost.Line, currency catalog.Currency, lang string) (cost.RecipeResult, error)
}

// ListBuilder aggregates recipe ingredients into a shopping list.
type ListBuilder interface {
	Aggregate(ctx context.Context, recipes []shopping.RecipeInput, lang string) ([]shopping.Item, error)
}

// ReceiptExtractor runs OCR over a receipt photo.
type ReceiptExtractor interface {
	ExtractReceipt(ctx context.Context, imageData []byte) ([]gemini.ReceiptLine, error)
}

// ReceiptApplier applies extracted receipt lines to the price catalog.
type ReceiptApplier interface {
	Import(ctx context.Context, lines []gemini.ReceiptLine) (*service.ImportResult, error)
}

// Translator translates cooking text between French and Japanese.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// CatalogSyncer backfills catalog rows from recipe ingredients.
type CatalogSyncer interface {
	Sync(ctx context.Context) (int, error)
}

// Handler handles HTTP requests.
type Handler struct {
	RecipeStore  RecipeStore
	CatalogStore CatalogStore
	Cost         CostEngine
	Shopping     ListBuilder
	Extractor    ReceiptExtractor
	Receipts     ReceiptApplier
	Translator   Translator
	Syncer       CatalogSyncer
}

// NewHandler creates a new Handler.
func NewHandler(recipeStore RecipeStore, catalogStore CatalogStore, costEngine CostEngine, listBuilder ListBuilder, extractor ReceiptExtractor, receipts ReceiptApplier, translator Translator, syncer CatalogSyncer) *Handler {
	return &Handler{
		RecipeStore:  recipeStore,
		CatalogStore: catalogStore,
		Cost:         costEngine,
		Shopping:     listBuilder,
		Extractor:    extractor,
		Receipts:     receipts,
		Translator:   translator,
		Syncer:       syncer,
	}
}

// langParam returns the display language from the query, defaulting to
// French.
func langParam(c *gin.Context) string {
	lang := strings.ToLower(c.DefaultQuery("lang", "fr"))
	if lang != "jp" {
		lang = "fr"
	}
	return lang
}

func currencyParam(c *gin.Context) (catalog.Currency, bool) {
	currency := catalog.Currency(strings.ToUpper(c.DefaultQuery("currency", string(catalog.EUR))))
	if !currency.Valid() {
		c.String(http.StatusBadRequest, fmt.Sprintf("unknown currency %q, expected EUR or JPY", currency))
		return "", false
	}
	return currency, true
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("invalid %s: %s", name, c.Param(name)))
		return 0, false
	}
	return id, true
}

// ListRecipes handles requests to list all recipes.
func (h *Handler) ListRecipes(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	recipes, err := h.RecipeStore.ListRecipes(ctx)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("database error: %s", err.Error()))
		return
	}
	c.JSON(http.StatusOK, recipes)
}

// RecipeCost handles requests to price a recipe in one currency.
func (h *Handler) RecipeCost(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	currency, ok := currencyParam(c)
	if !ok {
		return
	}
	lang := langParam(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	rec, err := h.RecipeStore.GetRecipe(ctx, id)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("database error: %s", err.Error()))
		return
	}
	if rec == nil {
		c.String(http.StatusNotFound, "Recipe not found")
		return
	}

	lines, err := h.RecipeStore.IngredientLines(ctx, id, lang)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("database error: %s", err.Error()))
		return
	}

	result, err := h.Cost.ResolveRecipe(ctx, costLines(lines), currency, lang)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("failed to price recipe: %s", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"recipe_id": rec.ID,
		"title":     rec.Title().Select(lang),
		"cost":      result,
	})
}

// recipeBudget is one recipe's share of an event budget.
type recipeBudget struct {
	RecipeID           int64             `json:"recipe_id"`
	Title              string            `json:"title"`
	ServingsMultiplier float64           `json:"servings_multiplier"`
	Cost               cost.RecipeResult `json:"cost"`
	ScaledTotal        float64           `json:"scaled_total"`
}

// EventBudget handles requests to price every recipe of an event, scaled by
// each recipe's servings multiplier.
func (h *Handler) EventBudget(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	currency, ok := currencyParam(c)
	if !ok {
		return
	}
	lang := langParam(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	event, err := h.RecipeStore.GetEvent(ctx, id)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("database error: %s", err.Error()))
		return
	}
	if event == nil {
		c.String(http.StatusNotFound, "Event not found")
		return
	}

	included, err := h.RecipeStore.EventRecipes(ctx, id)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("database error: %s", err.Error()))
		return
	}

	var total float64
	budgets := make([]recipeBudget, 0, len(included))
	for _, er := range included {
		lines, err := h.RecipeStore.IngredientLines(ctx, er.RecipeID, lang)
		if err != nil {
			c.String(http.StatusInternalServerError, fmt.Sprintf("database error: %s", err.Error()))
			return
		}
		result, err := h.Cost.ResolveRecipe(ctx, costLines(lines), currency, lang)
		if err != nil {
			c.String(http.StatusInternalServerError, fmt.Sprintf("failed to price recipe: %s", err.Error()))
			return
		}
		multiplier := er.ServingsMultiplier
		if multiplier <= 0 {
			multiplier = 1
		}
		scaled := result.Total * multiplier
		total += scaled
		budgets = append(budgets, recipeBudget{
			RecipeID:           er.RecipeID,
			Title:              er.Title().Select(lang),
			ServingsMultiplier: multiplier,
			Cost:               result,
			ScaledTotal:        scaled,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id": event.ID,
		"name":     event.Name,
		"currency": currency,
		"total":    total,
		"recipes":  budgets,
	})
}

// CreateShoppingList handles requests to aggregate an event's recipes into a
// persisted shopping list.
func (h *Handler) CreateShoppingList(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	lang := langParam(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	event, err := h.RecipeStore.GetEvent(ctx, id)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("database error: %s", err.Error()))
		return
	}
	if event == nil {
		c.String(http.StatusNotFound, "Event not found")
		return
	}

	included, err := h.RecipeStore.EventRecipes(ctx, id)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("database error: %s", err.Error()))
		return
	}

	inputs := make([]shopping.RecipeInput, 0, len(included))
	for _, er := range included {
		lines, err := h.RecipeStore.IngredientLines(ctx, er.RecipeID, lang)
		if err != nil {
			c.String(http.StatusInternalServerError, fmt.Sprintf("database error: %s", err.Error()))
			return
		}
		ingredients := make([]shopping.IngredientLine, 0, len(lines))
		for _, l := range lines {
			ingredients = append(ingredients, shopping.IngredientLine{
				Name: l.Name, Quantity: l.Quantity, Unit: l.Unit, Notes: l.Notes,
			})
		}
		inputs = append(inputs, shopping.RecipeInput{
			RecipeID:           er.RecipeID,
			RecipeName:         er.Title().Select(lang),
			ServingsMultiplier: er.ServingsMultiplier,
			Ingredients:        ingredients,
		})
	}

	items, err := h.Shopping.Aggregate(ctx, inputs, lang)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("failed to aggregate shopping list: %s", err.Error()))
		return
	}

	listID, err := h.RecipeStore.SaveShoppingList(ctx, id, lang, items)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("failed to save shopping list: %s", err.Error()))
		return
	}
	log.Printf("Shopping list %s saved for event %d (%d items)", listID, id, len(items))
	c.JSON(http.StatusOK, gin.H{"list_id": listID, "items": items})
}

// GetShoppingList handles requests to retrieve a saved shopping list.
func (h *Handler) GetShoppingList(c *gin.Context) {
	listID := c.Param("list_id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	items, err := h.RecipeStore.ShoppingList(ctx, listID)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("database error: %s", err.Error()))
		return
	}
	if len(items) == 0 {
		c.String(http.StatusNotFound, "Shopping list not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"list_id": listID, "items": items})
}

// ImportReceipt handles receipt photo uploads: the photo is downscaled, OCR
// extracts the item lines and matched lines update catalog prices.
func (h *Handler) ImportReceipt(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		log.Printf("Error getting form file: %v", err)
		c.String(http.StatusBadRequest, fmt.Sprintf("get form err: %s", err.Error()))
		return
	}

	allowedExtensions := map[string]bool{
		".jpeg": true,
		".jpg":  true,
		".png":  true,
	}
	extension := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedExtensions[extension] {
		c.String(http.StatusBadRequest, "Invalid file type. Only JPEG, JPG, and PNG images are allowed.")
		return
	}

	src, err := file.Open()
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("open file err: %s", err.Error()))
		return
	}
	defer src.Close()

	imageData, err := io.ReadAll(src)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("read image err: %s", err.Error()))
		return
	}

	downscaled, err := downscaleReceipt(imageData)
	if err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("failed to decode image: %s", err.Error()))
		return
	}

	// Create a context with a 45-second timeout for the OCR call
	ctx, cancel := context.WithTimeout(c.Request.Context(), 45*time.Second)
	defer cancel()

	lines, err := h.Extractor.ExtractReceipt(ctx, downscaled)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("receipt extraction err: %s", err.Error()))
		return
	}
	log.Printf("Receipt OCR extracted %d lines", len(lines))

	result, err := h.Receipts.Import(ctx, lines)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("failed to apply receipt: %s", err.Error()))
		return
	}
	c.JSON(http.StatusOK, result)
}

// downscaleReceipt re-encodes the photo as a JPEG no wider than 1024px to
// keep the OCR payload small.
func downscaleReceipt(imageData []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Dx() > 1024 {
		img = resize.Resize(1024, 0, img, resize.Lanczos3)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// ListCatalog handles requests to list the price catalog.
func (h *Handler) ListCatalog(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	entries, err := h.CatalogStore.ListEntries(ctx)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("database error: %s", err.Error()))
		return
	}
	c.JSON(http.StatusOK, entries)
}

// CreateCatalogEntry handles manual catalog row creation.
func (h *Handler) CreateCatalogEntry(c *gin.Context) {
	var entry catalog.Entry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("invalid entry: %s", err.Error()))
		return
	}
	if strings.TrimSpace(entry.NameFr) == "" {
		c.String(http.StatusBadRequest, "name_fr is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.CatalogStore.InsertEntry(ctx, &entry); err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("failed to insert entry: %s", err.Error()))
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// priceUpdateRequest is the body of a catalog price edit.
type priceUpdateRequest struct {
	Currency string  `json:"currency" binding:"required"`
	Price    float64 `json:"price" binding:"required"`
	PackQty  float64 `json:"pack_qty"`
}

// UpdateCatalogPrice handles catalog price edits for one currency.
func (h *Handler) UpdateCatalogPrice(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req priceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("invalid price update: %s", err.Error()))
		return
	}
	currency := catalog.Currency(strings.ToUpper(req.Currency))
	if !currency.Valid() {
		c.String(http.StatusBadRequest, fmt.Sprintf("unknown currency %q, expected EUR or JPY", req.Currency))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.CatalogStore.UpdatePrice(ctx, id, currency, req.Price, req.PackQty); err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("failed to update price: %s", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "currency": currency, "price": req.Price})
}

// DedupeCatalog handles requests to merge duplicate catalog rows.
func (h *Handler) DedupeCatalog(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	deleted, err := h.CatalogStore.Dedupe(ctx)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("failed to dedupe catalog: %s", err.Error()))
		return
	}
	log.Printf("Catalog dedupe removed %d duplicate rows", deleted)
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// SyncCatalog handles requests to backfill catalog rows from recipe
// ingredients.
func (h *Handler) SyncCatalog(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	synced, err := h.Syncer.Sync(ctx)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("failed to sync catalog: %s", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": synced})
}

// translateRequest is the body of a translation call.
type translateRequest struct {
	Text       string `json:"text" binding:"required"`
	TargetLang string `json:"target_lang" binding:"required"`
}

// Translate handles ad-hoc translation of cooking text.
func (h *Handler) Translate(c *gin.Context) {
	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("invalid translate request: %s", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 45*time.Second)
	defer cancel()

	translated, err := h.Translator.Translate(ctx, req.Text, req.TargetLang)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("translation err: %s", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"translated": translated})
}

func costLines(lines []recipe.IngredientLine) []cost.Line {
	out := make([]cost.Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, cost.Line{Name: l.Name, Quantity: l.Quantity, Unit: l.Unit})
	}
	return out
}
