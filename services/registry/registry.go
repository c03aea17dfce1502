// The registry service is the twin registry: an owner-scoped CRUD surface for
// digital-twin records over postgres, with bearer-token authentication
// delegated to an external identity provider, a mesh-token path for trusted
// service calls and a periodic liveness heartbeat.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/meshworks/twin-registry/core/access"
	"github.com/meshworks/twin-registry/core/csql"
	"github.com/meshworks/twin-registry/core/logger"
	"github.com/meshworks/twin-registry/heartbeat"
	"github.com/meshworks/twin-registry/twin"
)

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
type Service struct {
	Postgres          string        `env:"POSTGRES,required" description:"the connection string for the Postgres DB"`
	Port              string        `env:"PORT,default=4000" description:"the port the service listens on"`
	MeshToken         string        `env:"MESH_TOKEN,required" description:"pre-shared secret for privileged service calls"`
	EventMeshURL      string        `env:"EVENT_MESH_URL,default=ws://localhost:5000" description:"default event mesh endpoint for new twins"`
	IdentityURL       string        `env:"IDENTITY_URL,required" description:"base URL of the identity provider"`
	IdentityAPIKey    string        `env:"IDENTITY_API_KEY,required" description:"api key for the identity provider"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=60s" description:"period of the liveness heartbeat"`
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	logger.InitLogger(logrus.DebugLevel)
	rlog := logger.Default()

	db := csql.OpenWithSchema(service.Postgres, "registry")
	defer db.Close()

	router := mux.NewRouter()
	logger.AddRequestID(router)
	router.Use(corsMiddleware)
	router.Use(access.NewMeshTokenMiddleware(&access.MeshTokenMiddlewareBuilder{
		Token: service.MeshToken,
	}))
	router.Use(access.NewBearerMiddleware(&access.BearerMiddlewareBuilder{
		Verifier: access.MustNewIdentityClient(&access.IdentityClientBuilder{
			URL:    service.IdentityURL,
			APIKey: service.IdentityAPIKey,
		}),
	}))

	twin.MustNewAPI(&twin.Builder{
		Store:               twin.MustNewPostgresStore(db),
		Router:              router,
		DefaultEventMeshURL: service.EventMeshURL,
	})

	reporter := heartbeat.MustNewReporter(&heartbeat.Builder{
		Sink:     heartbeat.MustNewPostgresSink(db),
		Router:   router,
		Interval: service.HeartbeatInterval,
	})
	reporter.Run()

	srv := &http.Server{
		Addr:    ":" + service.Port,
		Handler: handlers.CombinedLoggingHandler(os.Stdout, router),
	}

	go func() {
		rlog.Infoln("twin registry listening on port :" + service.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rlog.WithError(err).Fatalln("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	rlog.Infoln("shutting down")
	reporter.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func corsMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers for all requests
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Mesh-Token")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		// Handle preflight OPTIONS request
		if r.Method == http.MethodOptions {
			logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method, " (handled by CORS middleware)")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		h.ServeHTTP(w, r)
	})
}
