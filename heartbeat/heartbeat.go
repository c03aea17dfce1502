/*Package heartbeat provides the service-level liveness reporter

The reporter appends timestamped rows to a write-only log table, on a fixed
interval and on demand via POST /heartbeat. The rows carry no relation to twin
records; they are a plain telemetry sink that is never read back by this
service.

A failed periodic write is logged and swallowed. It must never crash the
process or interfere with request handling. The manual trigger, in contrast,
reports the outcome of its write to the caller.
*/
package heartbeat

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/meshworks/twin-registry/core/csql"
	"github.com/meshworks/twin-registry/core/logger"
)

// Sink receives liveness rows. Implementations must be safe for concurrent
// use; the periodic reporter and the manual trigger route share one sink.
type Sink interface {
	Ping(ctx context.Context, source string) error
}

// PostgresSink appends liveness rows to the "_heartbeat_" system table.
type PostgresSink struct {
	db *csql.DB
}

// MustNewPostgresSink creates the sink. It creates the sql relation for the
// heartbeat log (if it does not exist yet).
func MustNewPostgresSink(db *csql.DB) *PostgresSink {
	if db == nil {
		panic("DB is missing")
	}

	// poor man's database migrations
	_, err := db.Exec(`CREATE table IF NOT EXISTS ` + db.Schema + `."_heartbeat_"
(serial SERIAL,
source varchar NOT NULL DEFAULT '',
created_at timestamp NOT NULL DEFAULT now(),
PRIMARY KEY(serial)
);`)

	if err != nil {
		panic(err)
	}

	return &PostgresSink{db: db}
}

// Ping appends one liveness row.
func (s *PostgresSink) Ping(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.db.Schema+`."_heartbeat_"(source) VALUES($1);`, source)
	return err
}

// Reporter writes liveness rows on a fixed interval. The periodic loop is an
// explicitly owned background task: Run starts it, Close stops it.
type Reporter struct {
	sink     Sink
	interval time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// Builder is a builder helper for the heartbeat reporter
type Builder struct {
	// Sink receives the liveness rows. This is mandatory.
	Sink Sink
	// Router is a mux router. When set, the reporter adds the manual
	// trigger route POST /heartbeat.
	Router *mux.Router
	// Interval is the period of the liveness timer. The default is one
	// minute.
	Interval time.Duration
}

// MustNewReporter realizes the reporter and adds the manual trigger route to
// the router. The periodic timer does not start before Run is called.
func MustNewReporter(b *Builder) *Reporter {

	if b.Sink == nil {
		panic("Sink is missing")
	}

	interval := b.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	rep := &Reporter{
		sink:     b.Sink,
		interval: interval,
		done:     make(chan struct{}),
	}

	if b.Router != nil {
		rep.handleRoutes(b.Router)
	}

	return rep
}

func (rep *Reporter) handleRoutes(router *mux.Router) {
	logger.Default().Debugln("heartbeat")
	logger.Default().Debugln("  handle route: /heartbeat POST")

	router.HandleFunc("/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		rlog := logger.FromContext(r.Context())
		rlog.Infoln("called route for", r.URL, r.Method)

		w.Header().Set("Content-Type", "application/json")
		if err := rep.sink.Ping(r.Context(), "manual"); err != nil {
			rlog.WithError(err).Errorln("heartbeat insert failed")
			w.WriteHeader(http.StatusInternalServerError)
			jsonData, _ := json.Marshal(map[string]string{"error": "heartbeat failed"})
			w.Write(jsonData)
			return
		}
		jsonData, _ := json.Marshal(map[string]bool{"ok": true})
		w.Write(jsonData)
	}).Methods(http.MethodOptions, http.MethodPost)
}

// Run starts the periodic timer. It returns immediately. This function must
// only be called once.
func (rep *Reporter) Run() {
	go func() {
		ticker := time.NewTicker(rep.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := rep.sink.Ping(context.Background(), "timer"); err != nil {
					// liveness logging must never affect service availability
					logger.Default().WithError(err).Errorln("heartbeat insert failed")
				}
			case <-rep.done:
				return
			}
		}
	}()
}

// Close stops the periodic timer. It is safe to call Close multiple times.
func (rep *Reporter) Close() {
	rep.closeOnce.Do(func() { close(rep.done) })
}
