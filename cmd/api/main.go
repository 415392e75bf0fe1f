package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/eppchris/recettes/internal/api"
	"github.com/eppchris/recettes/internal/catalog"
	"github.com/eppchris/recettes/internal/config"
	"github.com/eppchris/recettes/internal/cost"
	"github.com/eppchris/recettes/internal/platform/gemini"
	"github.com/eppchris/recettes/internal/platform/groq"
	"github.com/eppchris/recettes/internal/recipe"
	"github.com/eppchris/recettes/internal/service"
	"github.com/eppchris/recettes/internal/shopping"
	"github.com/eppchris/recettes/internal/units"
)

// resolverStore adapts the catalog store's transaction scope to the cost
// resolver, so each resolution's reads and fallback write share one
// transaction.
type resolverStore struct {
	*catalog.PostgresStore
}

func (s resolverStore) Transact(ctx context.Context, fn func(cost.Store) error) error {
	return s.PostgresStore.Transact(ctx, func(cs catalog.Store) error { return fn(cs) })
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("failed to load config: %w", err))
	}

	catalogStore, err := catalog.NewPostgresStore(cfg.Database.URL)
	if err != nil {
		panic(fmt.Errorf("error creating catalog store: %w", err))
	}
	recipeStore, err := recipe.NewPostgresStoreFromDB(catalogStore.DB())
	if err != nil {
		panic(fmt.Errorf("error creating recipe store: %w", err))
	}

	geminiClient, err := gemini.NewClient(ctx, cfg.AI.GeminiAPIKey)
	if err != nil {
		panic(fmt.Errorf("error creating gemini client: %w", err))
	}

	// Translation and matching can run on either text provider; receipt OCR
	// needs image input and always goes through Gemini.
	var translator api.Translator = geminiClient
	var aiMatcher service.AIMatcher = geminiClient
	if cfg.AI.Provider == "groq" {
		groqClient := groq.NewClient(cfg.AI.GroqAPIKey)
		translator = groqClient
		aiMatcher = groqClient
		log.Printf("Using Groq as the text AI provider")
	}

	conversions := units.NewTable(catalogStore, 5*time.Minute, time.Now)
	converter := &units.IngredientConverter{Table: conversions, Specifics: catalogStore}
	resolver := cost.NewResolver(resolverStore{catalogStore})
	aggregator := shopping.NewAggregator(converter, catalogStore)

	matcher := &service.Matcher{Store: catalogStore, AI: aiMatcher}
	importer := &service.ReceiptImporter{Store: catalogStore, Matcher: matcher, Conversions: conversions}
	syncer := &service.CatalogSyncer{Recipes: recipeStore, Catalog: catalogStore}

	handler := api.NewHandler(recipeStore, catalogStore, resolver, aggregator, geminiClient, importer, translator, syncer)

	r := gin.Default()

	// Configure CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:8081"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/recipes", handler.ListRecipes)
	r.GET("/recipes/:id/cost", handler.RecipeCost)
	r.GET("/events/:id/budget", handler.EventBudget)
	r.POST("/events/:id/shopping-list", handler.CreateShoppingList)
	r.GET("/shopping-lists/:list_id", handler.GetShoppingList)
	r.POST("/receipts", handler.ImportReceipt)
	r.GET("/catalog", handler.ListCatalog)
	r.POST("/catalog", handler.CreateCatalogEntry)
	r.PUT("/catalog/:id/price", handler.UpdateCatalogPrice)
	r.POST("/catalog/dedupe", handler.DedupeCatalog)
	r.POST("/catalog/sync", handler.SyncCatalog)
	r.POST("/translate", handler.Translate)
	r.Run(cfg.Server.Addr)
}
