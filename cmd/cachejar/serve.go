package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/always-cache/cachejar"
	"github.com/always-cache/cachejar/cookie"
	"github.com/always-cache/cachejar/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultJanitorInterval = 5 * time.Minute

var addrFlag string

// forwardedHeaders are copied from /fetch requests to the fetched URL.
var forwardedHeaders = []string{"Accept", "Accept-Language", "Cache-Control", "Pragma"}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the cache and cookie jar over HTTP",
	Long: `Run an HTTP server that fetches URLs through the cache and cookie jar.

Routes:
  GET    /fetch?url=URL   fetch URL and return the response
  POST   /purge?url=URL   remove the stored responses of URL
  GET    /cookies         list cookies as JSON, filtered by ?domain=
  DELETE /cookies         clear cookies, narrowed by ?domain=&path=&name=
  GET    /metrics         Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", ":8080", "Address to listen on")
}

// cookieAdmin is implemented by both jar types.
type cookieAdmin interface {
	All(f cookie.Filter) []cookie.Cookie
}

type server struct {
	transport *cachejar.Transport
	client    *http.Client
}

func serveCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	registry := prometheus.NewRegistry()
	transport, closeAll, err := openTransport(metrics.NewMetrics(registry))
	if err != nil {
		return err
	}
	defer closeAll()

	interval := fileConfig.Cache.JanitorInterval
	if interval == 0 {
		interval = defaultJanitorInterval
	}
	go transport.RunJanitor(ctx, interval)

	if fj, ok := transport.Jar().(*cookie.FileJar); ok {
		go func() {
			if err := fj.Watch(ctx); err != nil {
				log.Error().Err(err).Msg("Cannot watch cookie file")
			}
		}()
	}

	s := &server{transport: transport, client: transport.Client()}
	srv := &http.Server{Addr: addrFlag, Handler: s.routes(registry)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Msgf("Listening on %s", addrFlag)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) routes(registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/fetch", s.fetch)
	r.Post("/purge", s.purge)
	r.Get("/cookies", s.listCookies)
	r.Delete("/cookies", s.clearCookies)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return r
}

func (s *server) fetch(w http.ResponseWriter, r *http.Request) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, r.URL.Query().Get("url"), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, name := range forwardedHeaders {
		if v := r.Header.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	res, err := s.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", req.URL.String()).Msg("Fetch failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer res.Body.Close()

	for name, values := range res.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(res.StatusCode)
	io.Copy(w, res.Body)
}

func (s *server) purge(w http.ResponseWriter, r *http.Request) {
	req, err := http.NewRequestWithContext(r.Context(), cachejar.MethodPurge, r.URL.Query().Get("url"), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.transport.RoundTrip(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer res.Body.Close()
	w.WriteHeader(res.StatusCode)
	io.Copy(w, res.Body)
}

func (s *server) listCookies(w http.ResponseWriter, r *http.Request) {
	jar, ok := s.transport.Jar().(cookieAdmin)
	if !ok {
		http.Error(w, "cookies are disabled", http.StatusNotFound)
		return
	}
	cookies := jar.All(cookie.Filter{Domain: r.URL.Query().Get("domain")})
	if cookies == nil {
		cookies = []cookie.Cookie{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cookies)
}

func (s *server) clearCookies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var n int
	switch jar := s.transport.Jar().(type) {
	case *cookie.FileJar:
		var err error
		if n, err = jar.Clear(q.Get("domain"), q.Get("path"), q.Get("name")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	case *cookie.Jar:
		n = jar.Clear(q.Get("domain"), q.Get("path"), q.Get("name"))
	default:
		http.Error(w, "cookies are disabled", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"removed": n})
}
