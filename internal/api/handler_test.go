package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/eppchris/recettes/internal/catalog"
	"github.com/eppchris/recettes/internal/cost"
	"github.com/eppchris/recettes/internal/platform/gemini"
	"github.com/eppchris/recettes/internal/recipe"
	"github.com/eppchris/recettes/internal/service"
	"github.com/eppchris/recettes/internal/shopping"
)

// mockRecipeStore is a mock of the RecipeStore.
type mockRecipeStore struct {
	recipes      map[int64]*recipe.Recipe
	lines        map[int64][]recipe.IngredientLine
	events       map[int64]*recipe.Event
	eventRecipes map[int64][]recipe.EventRecipe
	savedLists   map[string][]shopping.Item
	saveError    error
}

func newMockRecipeStore() *mockRecipeStore {
	return &mockRecipeStore{
		recipes:      make(map[int64]*recipe.Recipe),
		lines:        make(map[int64][]recipe.IngredientLine),
		events:       make(map[int64]*recipe.Event),
		eventRecipes: make(map[int64][]recipe.EventRecipe),
		savedLists:   make(map[string][]shopping.Item),
	}
}

func (m *mockRecipeStore) GetRecipe(ctx context.Context, id int64) (*recipe.Recipe, error) {
	return m.recipes[id], nil
}

func (m *mockRecipeStore) ListRecipes(ctx context.Context) ([]recipe.Recipe, error) {
	var out []recipe.Recipe
	for _, r := range m.recipes {
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockRecipeStore) IngredientLines(ctx context.Context, recipeID int64, lang string) ([]recipe.IngredientLine, error) {
	return m.lines[recipeID], nil
}

func (m *mockRecipeStore) GetEvent(ctx context.Context, id int64) (*recipe.Event, error) {
	return m.events[id], nil
}

func (m *mockRecipeStore) EventRecipes(ctx context.Context, eventID int64) ([]recipe.EventRecipe, error) {
	return m.eventRecipes[eventID], nil
}

func (m *mockRecipeStore) SaveShoppingList(ctx context.Context, eventID int64, lang string, items []shopping.Item) (string, error) {
	if m.saveError != nil {
		return "", m.saveError
	}
	listID := "list-1"
	m.savedLists[listID] = items
	return listID, nil
}

func (m *mockRecipeStore) ShoppingList(ctx context.Context, listID string) ([]shopping.Item, error) {
	return m.savedLists[listID], nil
}

// mockCatalogStore is a mock of the CatalogStore.
type mockCatalogStore struct {
	entries       []catalog.Entry
	inserted      []catalog.Entry
	priceUpdates  int
	dedupeDeleted int
}

func (m *mockCatalogStore) ListEntries(ctx context.Context) ([]catalog.Entry, error) {
	return m.entries, nil
}

func (m *mockCatalogStore) InsertEntry(ctx context.Context, e *catalog.Entry) error {
	e.ID = int64(len(m.inserted) + 1)
	m.inserted = append(m.inserted, *e)
	return nil
}

func (m *mockCatalogStore) UpdatePrice(ctx context.Context, id int64, currency catalog.Currency, price float64, packQty float64) error {
	m.priceUpdates++
	return nil
}

func (m *mockCatalogStore) Dedupe(ctx context.Context) (int, error) {
	return m.dedupeDeleted, nil
}

// mockCostEngine is a mock of the CostEngine. Totals are consumed one per
// ResolveRecipe call.
type mockCostEngine struct {
	totals []float64
	calls  int
}

func (m *mockCostEngine) ResolveRecipe(ctx context.Context, lines []cost.Line, currency catalog.Currency, lang string) (cost.RecipeResult, error) {
	total := 0.0
	if m.calls < len(m.totals) {
		total = m.totals[m.calls]
	}
	m.calls++
	return cost.RecipeResult{Total: total, Currency: currency}, nil
}

// mockListBuilder is a mock of the ListBuilder.
type mockListBuilder struct {
	items    []shopping.Item
	received []shopping.RecipeInput
}

func (m *mockListBuilder) Aggregate(ctx context.Context, recipes []shopping.RecipeInput, lang string) ([]shopping.Item, error) {
	m.received = recipes
	return m.items, nil
}

// mockExtractor is a mock of the ReceiptExtractor.
type mockExtractor struct {
	lines       []gemini.ReceiptLine
	returnError error
	gotImage    []byte
}

func (m *mockExtractor) ExtractReceipt(ctx context.Context, imageData []byte) ([]gemini.ReceiptLine, error) {
	m.gotImage = imageData
	if m.returnError != nil {
		return nil, m.returnError
	}
	return m.lines, nil
}

// mockApplier is a mock of the ReceiptApplier.
type mockApplier struct {
	result *service.ImportResult
	got    []gemini.ReceiptLine
}

func (m *mockApplier) Import(ctx context.Context, lines []gemini.ReceiptLine) (*service.ImportResult, error) {
	m.got = lines
	return m.result, nil
}

// mockTranslator is a mock of the Translator.
type mockTranslator struct {
	out string
	err error
}

func (m *mockTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return m.out, m.err
}

// mockSyncer is a mock of the CatalogSyncer.
type mockSyncer struct {
	synced int
}

func (m *mockSyncer) Sync(ctx context.Context) (int, error) {
	return m.synced, nil
}

type fixture struct {
	recipes   *mockRecipeStore
	catalog   *mockCatalogStore
	cost      *mockCostEngine
	shopping  *mockListBuilder
	extractor *mockExtractor
	applier   *mockApplier
	router    *gin.Engine
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		recipes:   newMockRecipeStore(),
		catalog:   &mockCatalogStore{},
		cost:      &mockCostEngine{},
		shopping:  &mockListBuilder{},
		extractor: &mockExtractor{},
		applier:   &mockApplier{result: &service.ImportResult{}},
	}
	h := NewHandler(f.recipes, f.catalog, f.cost, f.shopping, f.extractor, f.applier, &mockTranslator{out: "Bonjour"}, &mockSyncer{synced: 3})

	r := gin.New()
	r.GET("/recipes", h.ListRecipes)
	r.GET("/recipes/:id/cost", h.RecipeCost)
	r.GET("/events/:id/budget", h.EventBudget)
	r.POST("/events/:id/shopping-list", h.CreateShoppingList)
	r.GET("/shopping-lists/:list_id", h.GetShoppingList)
	r.POST("/receipts", h.ImportReceipt)
	r.GET("/catalog", h.ListCatalog)
	r.POST("/catalog", h.CreateCatalogEntry)
	r.PUT("/catalog/:id/price", h.UpdateCatalogPrice)
	r.POST("/catalog/dedupe", h.DedupeCatalog)
	r.POST("/catalog/sync", h.SyncCatalog)
	r.POST("/translate", h.Translate)
	f.router = r
	return f
}

func (f *fixture) do(method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRecipeCost(t *testing.T) {
	f := newFixture()
	f.recipes.recipes[1] = &recipe.Recipe{ID: 1, TitleFr: "Quiche lorraine"}
	f.recipes.lines[1] = []recipe.IngredientLine{{Name: "Farine", Quantity: 200, Unit: "g"}}
	f.cost.totals = []float64{3.5}

	w := f.do(http.MethodGet, "/recipes/1/cost?currency=EUR", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Title string            `json:"title"`
		Cost  cost.RecipeResult `json:"cost"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Quiche lorraine", resp.Title)
	assert.Equal(t, 3.5, resp.Cost.Total)
	assert.Equal(t, catalog.EUR, resp.Cost.Currency)
}

func TestRecipeCostNotFound(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/recipes/99/cost", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecipeCostUnknownCurrency(t *testing.T) {
	f := newFixture()
	f.recipes.recipes[1] = &recipe.Recipe{ID: 1}

	w := f.do(http.MethodGet, "/recipes/1/cost?currency=USD", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventBudgetScalesByMultiplier(t *testing.T) {
	f := newFixture()
	f.recipes.events[5] = &recipe.Event{ID: 5, Name: "Anniversaire"}
	f.recipes.eventRecipes[5] = []recipe.EventRecipe{
		{EventID: 5, RecipeID: 1, ServingsMultiplier: 2, TitleFr: "Quiche"},
		{EventID: 5, RecipeID: 2, ServingsMultiplier: 1, TitleFr: "Salade"},
	}
	f.cost.totals = []float64{10, 4}

	w := f.do(http.MethodGet, "/events/5/budget?currency=EUR", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Total   float64 `json:"total"`
		Recipes []struct {
			ScaledTotal float64 `json:"scaled_total"`
		} `json:"recipes"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 24.0, resp.Total)
	if assert.Len(t, resp.Recipes, 2) {
		assert.Equal(t, 20.0, resp.Recipes[0].ScaledTotal)
		assert.Equal(t, 4.0, resp.Recipes[1].ScaledTotal)
	}
}

func TestEventBudgetNotFound(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/events/99/budget", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateShoppingList(t *testing.T) {
	f := newFixture()
	f.recipes.events[5] = &recipe.Event{ID: 5, Name: "Anniversaire"}
	f.recipes.eventRecipes[5] = []recipe.EventRecipe{
		{EventID: 5, RecipeID: 1, ServingsMultiplier: 1.5, TitleFr: "Quiche"},
	}
	f.recipes.lines[1] = []recipe.IngredientLine{{Name: "Farine", Quantity: 200, Unit: "g"}}
	f.shopping.items = []shopping.Item{{Name: "Farine", TotalQuantity: 300, Unit: "g"}}

	w := f.do(http.MethodPost, "/events/5/shopping-list", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ListID string          `json:"list_id"`
		Items  []shopping.Item `json:"items"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "list-1", resp.ListID)
	assert.Len(t, resp.Items, 1)

	if assert.Len(t, f.shopping.received, 1) {
		assert.Equal(t, 1.5, f.shopping.received[0].ServingsMultiplier)
		assert.Equal(t, "Quiche", f.shopping.received[0].RecipeName)
	}
	assert.Len(t, f.recipes.savedLists["list-1"], 1)
}

func TestGetShoppingListNotFound(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/shopping-lists/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func receiptForm(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var imgBuf bytes.Buffer
	assert.NoError(t, png.Encode(&imgBuf, img))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	assert.NoError(t, err)
	_, err = part.Write(imgBuf.Bytes())
	assert.NoError(t, err)
	assert.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestImportReceipt(t *testing.T) {
	f := newFixture()
	f.extractor.lines = []gemini.ReceiptLine{
		{Name: "Farine", Price: 1.15, Currency: "EUR"},
	}
	f.applier.result = &service.ImportResult{Updated: 1, Unmatched: []gemini.ReceiptLine{}}

	body, contentType := receiptForm(t, "receipt.png")
	w := f.do(http.MethodPost, "/receipts", body, contentType)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp service.ImportResult
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Updated)
	assert.NotEmpty(t, f.extractor.gotImage, "the downscaled photo must reach the extractor")
	assert.Len(t, f.applier.got, 1)
}

func TestImportReceiptRejectsExtension(t *testing.T) {
	f := newFixture()
	body, contentType := receiptForm(t, "receipt.pdf")
	w := f.do(http.MethodPost, "/receipts", body, contentType)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportReceiptExtractorError(t *testing.T) {
	f := newFixture()
	f.extractor.returnError = errors.New("ocr unavailable")

	body, contentType := receiptForm(t, "receipt.jpg")
	w := f.do(http.MethodPost, "/receipts", body, contentType)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCreateCatalogEntry(t *testing.T) {
	f := newFixture()
	price := 2.3
	payload, _ := json.Marshal(catalog.Entry{NameFr: "Farine", UnitFr: "kg", PriceEUR: &price})

	w := f.do(http.MethodPost, "/catalog", bytes.NewBuffer(payload), "application/json")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, f.catalog.inserted, 1)
}

func TestCreateCatalogEntryMissingName(t *testing.T) {
	f := newFixture()
	payload := []byte(`{"unit_fr": "kg"}`)

	w := f.do(http.MethodPost, "/catalog", bytes.NewBuffer(payload), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.catalog.inserted)
}

func TestUpdateCatalogPrice(t *testing.T) {
	f := newFixture()
	payload := []byte(`{"currency": "jpy", "price": 258, "pack_qty": 1000}`)

	w := f.do(http.MethodPut, "/catalog/7/price", bytes.NewBuffer(payload), "application/json")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.catalog.priceUpdates)
}

func TestUpdateCatalogPriceUnknownCurrency(t *testing.T) {
	f := newFixture()
	payload := []byte(`{"currency": "USD", "price": 10}`)

	w := f.do(http.MethodPut, "/catalog/7/price", bytes.NewBuffer(payload), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, f.catalog.priceUpdates)
}

func TestDedupeCatalog(t *testing.T) {
	f := newFixture()
	f.catalog.dedupeDeleted = 2

	w := f.do(http.MethodPost, "/catalog/dedupe", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted":2`)
}

func TestSyncCatalog(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/catalog/sync", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"synced":3`)
}

func TestTranslate(t *testing.T) {
	f := newFixture()
	payload := []byte(`{"text": "ボンジュール", "target_lang": "fr"}`)

	w := f.do(http.MethodPost, "/translate", bytes.NewBuffer(payload), "application/json")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Bonjour")
}

func TestTranslateMissingText(t *testing.T) {
	f := newFixture()
	payload := []byte(`{"target_lang": "fr"}`)

	w := f.do(http.MethodPost, "/translate", bytes.NewBuffer(payload), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
