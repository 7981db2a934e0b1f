package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/permitflow/go-services/internal/authz"
	"github.com/permitflow/go-services/internal/database"
	"github.com/permitflow/go-services/internal/directory"
	permithandler "github.com/permitflow/go-services/internal/permit/handler"
	permitrepo "github.com/permitflow/go-services/internal/permit/repository"
	permitsvc "github.com/permitflow/go-services/internal/permit/service"
	"github.com/permitflow/go-services/internal/requirements"
	"github.com/permitflow/go-services/internal/storage"
)

// Standalone permit API with no token verification: every request acts as
// the development admin. Mongo-backed when MONGODB_URI is set, otherwise
// everything lives in process memory and is lost on exit. Intended for
// frontend work and quick demos.
func main() {
	port := os.Getenv("PERMIT_SERVICE_PORT")
	if port == "" {
		port = "5020"
	}

	r := gin.New()
	r.Use(gin.Recovery())

	checklist := requirements.Default()
	if path := os.Getenv("REQUIREMENTS_FILE"); path != "" {
		var err error
		checklist, err = requirements.LoadChecklist(path)
		if err != nil {
			log.Fatalf("cannot load checklist %s: %v", path, err)
		}
	}

	opts := permitsvc.Options{
		Repo:       permitrepo.NewMemoryRepo(),
		Files:      storage.NewMemoryStore(),
		Checklist:  checklist,
		Authorizer: authz.AllowAll{},
	}
	var dirRepo directory.Repository = directory.NewMemoryRepo()

	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		client, err := database.ConnectMongo(context.Background(), uri, 10*time.Second)
		if err != nil {
			log.Printf("warning: cannot connect to MongoDB (%v), using memory-backed storage", err)
		} else {
			dbName := os.Getenv("MONGODB_DATABASE")
			if dbName == "" {
				dbName = "permitflow"
			}
			db := client.Database(dbName)
			opts.Repo = permitrepo.NewMongoRepo(db)
			opts.BillingMongoURI = uri
			opts.BillingDatabase = dbName
			dirRepo = directory.NewMongoRepo(db)
		}
	}

	svc := permitsvc.New(opts)

	api := r.Group("/api/v1")
	permithandler.NewPermitHandler(svc).Register(api)
	directory.RegisterDirectoryRoutes(api, dirRepo, authz.AllowAll{})

	log.Printf("permit service listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
