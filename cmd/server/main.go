/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Warp Welfare Engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Optionally seed the default benefit catalog
  4. Create API handler with dependencies
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: welfare.db)
           Use ":memory:" for an in-memory database
  -seed    Seed the default benefit catalog on startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database, seeded catalog
  ./server -db="./data/welfare.db" -seed

  # Run with in-memory database
  ./server -db=":memory:" -seed

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/welfare-engine/api"
	"github.com/warp/welfare-engine/factory"
	"github.com/warp/welfare-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "welfare.db", "SQLite database path")
	seed := flag.Bool("seed", false, "seed the default benefit catalog on startup")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if *seed {
		if err := seedCatalog(context.Background(), store); err != nil {
			log.Fatalf("Failed to seed catalog: %v", err)
		}
		log.Println("Default benefit catalog seeded")
	}

	// Initialize handler
	handler := api.NewHandler(store)

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// seedCatalog upserts the default catalog. IDs are derived from codes, so
// re-running against an existing database is a no-op update.
func seedCatalog(ctx context.Context, store *sqlite.Store) error {
	programs, err := factory.NewCatalogFactory().ParseCatalog(factory.DefaultCatalogJSON)
	if err != nil {
		return err
	}
	for _, p := range programs {
		if err := store.SaveProgram(ctx, p.Program); err != nil {
			return err
		}
		for _, sp := range p.SubPrograms {
			if err := store.SaveSubProgram(ctx, sp); err != nil {
				return err
			}
		}
	}
	return nil
}
