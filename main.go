// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"sparknexora-backend/controllers"
	"sparknexora-backend/middleware"
	"sparknexora-backend/models"
	"sparknexora-backend/payments"
	"sparknexora-backend/routes"
	"sparknexora-backend/storage"
	"sparknexora-backend/utils"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Proceeding with environment variables.")
	}

	// Set the JWT secret key
	utils.JwtKey = []byte(os.Getenv("JWT_SECRET"))

	// Initialize EmailService
	emailService := utils.NewEmailService()

	// Select the storage backend once; everything downstream is injected.
	store := openStore()
	defer func() {
		if err := store.Close(context.TODO()); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()

	if err := seedDefaultAdmin(store.Users()); err != nil {
		log.Printf("Could not seed default admin: %v", err)
	}

	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}
	provider := payments.NewStripeProvider(os.Getenv("STRIPE_SECRET_KEY"), frontendURL)
	paymentService := payments.NewService(provider, store.Payments(), store.Orders())

	// Initialize controllers
	paymentController := controllers.NewPaymentController(paymentService, emailService, os.Getenv("STRIPE_WEBHOOK_SECRET"))
	contactController := controllers.NewContactController(store.Contacts(), emailService, os.Getenv("ADMIN_EMAIL"))
	authController := controllers.NewAuthController(store.Users())
	adminController := controllers.NewAdminController(store.Contacts(), store.Orders())

	// Set up the router
	router := mux.NewRouter()
	router.Use(middleware.CORS)
	routes.RegisterRoutes(router, paymentController, contactController, authController, adminController)

	// Start the server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}
	fmt.Printf("Server is running on port %s\n", port)
	log.Fatal(http.ListenAndServe(":"+port, router))
}

// openStore picks the storage backend: MongoDB when configured, the
// flat-file store otherwise.
func openStore() storage.Store {
	backend := os.Getenv("STORAGE_BACKEND")
	if backend == "" && os.Getenv("MONGODB_URI") != "" {
		backend = "mongo"
	}

	switch backend {
	case "mongo":
		client := utils.ConnectDB()
		ms := storage.NewMongoStore(client, "sparknexora")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ms.EnsureIndexes(ctx); err != nil {
			log.Fatalf("Failed to create indexes: %v", err)
		}
		return ms
	default:
		dataDir := os.Getenv("DATA_DIR")
		if dataDir == "" {
			dataDir = "data"
		}
		fs, err := storage.NewFileStore(dataDir)
		if err != nil {
			log.Fatalf("Failed to open file store: %v", err)
		}
		log.Println("Using JSON file storage")
		return fs
	}
}

// seedDefaultAdmin creates the admin account on first run so the dashboard
// is reachable without manual database surgery.
func seedDefaultAdmin(users storage.UserStore) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := users.FindByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := &models.User{
		Name:     "Admin",
		Email:    email,
		Password: string(hashed),
		Role:     "admin",
		IsActive: true,
	}
	if err := users.Insert(ctx, admin); err != nil {
		return err
	}
	log.Printf("Seeded default admin account %s", email)
	return nil
}
