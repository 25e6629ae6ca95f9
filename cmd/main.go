package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/lipaqr/lipaqr-gobackend/internal/db"
	"github.com/lipaqr/lipaqr-gobackend/internal/handlers"
	"github.com/lipaqr/lipaqr-gobackend/internal/services"
	"github.com/lipaqr/lipaqr-gobackend/internal/store"
)

func main() {
	// Load .env
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Error loading .env: %s", err)
	}

	// Connect to MongoDB
	uri := os.Getenv("MONGOURI")
	if uri == "" {
		log.Fatal("MONGOURI environment variable not set")
	}
	database, err := db.Connect(uri, "lipaqrdb")
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := database.Client().Disconnect(ctx); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	if err := db.EnsureIndexes(context.Background(), database); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	// Initialize stores, services and handlers
	transactionStore := store.NewMongoTransactionStore(database)
	merchantStore := store.NewMongoMerchantStore(database)
	daraja := services.NewDarajaService()

	paymentService := services.NewPaymentService(transactionStore, merchantStore, daraja)
	paymentHandler := handlers.NewPaymentHandler(paymentService)

	merchantService := services.NewMerchantService(merchantStore)
	merchantHandler := handlers.NewMerchantHandler(merchantService)

	analyticsService := services.NewAnalyticsService(transactionStore)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)

	// Set up router
	router := mux.NewRouter()
	router.Use(handlers.RequestID)
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "HEAD")

	router.HandleFunc("/api/merchant", merchantHandler.Register).Methods("POST")
	router.HandleFunc("/api/merchant", merchantHandler.GetProfile).Methods("GET")
	router.HandleFunc("/api/login", merchantHandler.Login).Methods("POST")

	router.HandleFunc("/api/payment", paymentHandler.InitiatePayment).Methods("POST")
	router.HandleFunc("/api/payment/guest", paymentHandler.InitiateGuestPayment).Methods("POST")
	router.HandleFunc("/api/payment/callback/{secret}", paymentHandler.Callback).Methods("POST")
	router.HandleFunc("/api/payment/status/{checkoutRequestID}", paymentHandler.GetStatus).Methods("GET")
	router.HandleFunc("/api/payments", paymentHandler.ListTransactions).Methods("GET")

	router.HandleFunc("/api/analytics", analyticsHandler.GetSummary).Methods("GET")

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:         "0.0.0.0:" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.Printf("Server running on port %s", port)
	log.Fatal(server.ListenAndServe())
}
