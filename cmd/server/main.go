package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"cloud.google.com/go/firestore"
	gcsstorage "cloud.google.com/go/storage"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/abreulima/finsync/internal/provider"
	"github.com/abreulima/finsync/internal/service"
	"github.com/abreulima/finsync/internal/store"
)

func main() {
	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8111"
	}

	ctx := context.Background()

	// Determine if we're running locally
	useMemoryStore := os.Getenv("USE_MEMORY_STORE") == "true" || os.Getenv("ENV") == "local"

	var storeImpl store.Store
	if useMemoryStore {
		log.Println("Using in-memory store for local development")
		storeImpl = store.NewMemoryStore()
	} else {
		projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
		if projectID == "" {
			log.Fatal("GOOGLE_CLOUD_PROJECT is required when not using the memory store")
		}

		firestoreClient, err := firestore.NewClient(ctx, projectID)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		storeImpl = store.NewFirestoreStore(firestoreClient)
	}

	providerClient := provider.NewHTTPClient(
		os.Getenv("PROVIDER_BASE_URL"),
		os.Getenv("PROVIDER_API_KEY"),
	)
	webhookSecret := os.Getenv("PROVIDER_WEBHOOK_SECRET")
	if webhookSecret == "" {
		log.Println("⚠️  PROVIDER_WEBHOOK_SECRET not set - webhook deliveries will be rejected")
	}

	// Wire the services
	ledgerService := service.NewLedgerService(storeImpl)
	syncService := service.NewSyncService(storeImpl, providerClient)

	importService := service.NewImportService(ledgerService)
	if bucketName := os.Getenv("IMPORT_BUCKET"); bucketName != "" {
		gcsClient, err := gcsstorage.NewClient(ctx)
		if err != nil {
			log.Fatalf("Failed to create storage client: %v", err)
		}
		defer gcsClient.Close()
		importService.SetStorageBucket(gcsClient.Bucket(bucketName))
		log.Printf("CSV imports served from bucket %s", bucketName)
	}

	webhookHandler := service.NewWebhookHandler(syncService, webhookSecret)

	// Create mux and register handlers
	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/provider", webhookHandler.HandleWebhook)

	// Add health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Set up CORS
	c := cors.New(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:1234",
			"http://127.0.0.1:1234",
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"User-Agent",
			"X-Webhook-Signature",
		},
		AllowCredentials: true,
	})

	handler := c.Handler(mux)

	// Create HTTP/2 server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}

	log.Printf("Starting server on port %s", port)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
