package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omerhodo/hollypolly2/ratelim"
	"github.com/omerhodo/hollypolly2/rdx"
	"github.com/omerhodo/hollypolly2/rooms"
	"github.com/omerhodo/hollypolly2/routes"
	"github.com/omerhodo/hollypolly2/session"
	"github.com/omerhodo/hollypolly2/store"
	"github.com/omerhodo/hollypolly2/ws"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// securityHeaders applies a set of recommended HTTP security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request method, path, remote address, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s from %s – %v", r.Method, r.RequestURI, r.RemoteAddr, time.Since(start))
	})
}

// Index is a simple health check handler.
func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

func main() {
	// load .env if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found; using system environment")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = ":8080"
	} else if port[0] != ':' {
		port = ":" + port
	}

	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}
	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "hollypolly"
	}

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	st, err := store.NewMongo(connectCtx, mongoURI, dbName)
	cancelConnect()
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}

	joins := rdx.NewJoinCounter(rdx.InitRedis())

	clock := clockwork.NewRealClock()
	registry := rooms.NewRegistry(st, clock)
	sessions := session.NewManager(st, clock)
	rateLimiter := ratelim.NewRateLimiter()

	// initialize snapshot hub
	hub := ws.NewHub()
	go hub.Run()
	registry.SetBroadcast(func(roomID string, snap rooms.Snapshot) {
		data, err := json.Marshal(snap)
		if err != nil {
			log.Println("snapshot marshal:", err)
			return
		}
		hub.Broadcast(roomID, data)
	})

	router := httprouter.New()
	router.GET("/health", Index)
	routes.AddRoomRoutes(router, registry, rateLimiter)
	routes.AddSessionRoutes(router, registry, sessions, joins, rateLimiter)
	routes.AddLiveRoutes(router, hub, registry, sessions)

	// apply middleware: CORS → security headers → logging → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // lock down in production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)

	handler := loggingMiddleware(securityHeaders(corsHandler))

	server := &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	server.RegisterOnShutdown(func() {
		log.Println("🛑 Shutting down room synchronizers...")
		registry.StopAll()
		hub.Stop()
	})

	go func() {
		log.Printf("🚀 Server listening on %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ ListenAndServe error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("🛑 Shutdown signal received; shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Graceful shutdown failed: %v", err)
	}
	if err := st.Close(ctx); err != nil {
		log.Println("store close:", err)
	}

	log.Println("✅ Server stopped cleanly")
}
