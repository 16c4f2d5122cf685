package main

import (
	"flag"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/hearth-server/hearth"
	"github.com/hearth-server/hearth/core"
	"github.com/hearth-server/hearth/pkg/accesslog"
	"github.com/hearth-server/hearth/pkg/gateway"
	"github.com/hearth-server/hearth/pkg/rules"
	"github.com/hearth-server/hearth/pkg/templates"
)

var (
	configFilenameFlag string
	portFlag           int
	rootFlag           string
	originFlag         string
	adminFlag          string
	h2cFlag            bool
	verbosityTraceFlag bool
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on (overrides config)")
	flag.StringVar(&rootFlag, "root", "", "Directory to serve (overrides config)")
	flag.StringVar(&originFlag, "origin", "", "Origin to proxy /api/ to (overrides config)")
	flag.StringVar(&adminFlag, "admin", "", "Admin listen address, e.g. 127.0.0.1:8081")
	flag.BoolVar(&h2cFlag, "h2c", false, "Serve cleartext HTTP/2")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
}

func main() {
	flag.Parse()

	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stdout})

	var config Config
	if configFilenameFlag != "" {
		var err error
		config, err = getConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config file")
		}
	}

	if config.Port == 0 {
		config.Port = portFlag
	}
	if rootFlag != "" {
		config.Root = rootFlag
	}
	if adminFlag != "" {
		config.Admin = adminFlag
	}
	if originFlag != "" {
		config.Proxies = append(config.Proxies, ProxyConfig{Prefix: "/api/", Origin: originFlag})
	}
	if config.Root == "" && len(config.Proxies) == 0 {
		log.Fatal().Msg("Please specify a root directory or an origin")
	}

	var policy core.EvictionPolicy
	if config.CacheSize > 0 {
		policy = core.NewLRUPolicy(config.CacheSize)
	}

	engine := templates.VarEngine{}
	s := hearth.New(hearth.Config{
		Root:              config.Root,
		Resolver:          resolver(config),
		VaryHeaders:       config.Vary,
		EvictionPolicy:    policy,
		PushPageBudget:    config.Push.PageBudget,
		PushSessionBudget: config.Push.SessionBudget,
		PushConcurrency:   config.Push.Concurrency,
		DisablePush:       config.Push.Disable,
		Directives: map[string]core.Handler{
			"tmpl": templates.Directive(engine, config.Root),
		},
		Logger: &log.Logger,
	})

	if len(config.Vars) > 0 {
		s.Registry().Register(core.PhasePresent, "*.html", -100, templates.WithVars(config.Vars))
		s.Registry().Register(core.PhasePresent, "*.html", 0, templates.Present(engine))
	}

	if len(config.Headers) > 0 {
		s.Registry().Register(core.PhasePost, "", 0, rules.Post(config.Headers))
	}

	for _, p := range config.Proxies {
		origin, err := url.Parse(p.Origin)
		if err != nil {
			log.Fatal().Err(err).Str("origin", p.Origin).Msg("Invalid proxy origin")
		}
		up := gateway.NewHTTP(gateway.HTTPConfig{
			Origin: *origin,
			Host:   p.Host,
			Logger: &log.Logger,
		})
		s.Registry().Register(core.PhasePre, p.Prefix, 0, gateway.Pre(up))
		log.Info().Str("prefix", p.Prefix).Str("origin", p.Origin).Msg("Proxying")
	}

	if config.Admin != "" {
		go serveAdmin(config.Admin, s)
	}

	handler := otelhttp.NewHandler(accesslog.Middleware(s, log.Logger), "hearth")

	addr := ":" + strconv.Itoa(config.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ConnContext: s.ConnContext,
	}

	var err error
	switch {
	case config.TLS.Cert != "":
		if err = http2.ConfigureServer(srv, &http2.Server{}); err != nil {
			log.Fatal().Err(err).Msg("Could not configure HTTP/2")
		}
		log.Info().Str("addr", addr).Msg("Serving HTTPS")
		err = srv.ListenAndServeTLS(config.TLS.Cert, config.TLS.Key)
	case h2cFlag:
		srv.Handler = h2c.NewHandler(handler, &http2.Server{})
		log.Info().Str("addr", addr).Msg("Serving h2c")
		err = srv.ListenAndServe()
	default:
		log.Info().Str("addr", addr).Msg("Serving HTTP")
		err = srv.ListenAndServe()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func resolver(config Config) core.Resolver {
	if config.Root == "" || config.Index == "" {
		return nil
	}
	return core.FileResolver{Root: config.Root, Index: config.Index}
}

// serveAdmin exposes cache management on a separate listener, so it can
// stay off the public interface.
func serveAdmin(addr string, s *hearth.Server) {
	r := chi.NewRouter()
	r.Get("/cache", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(strconv.Itoa(s.Cache().Len()) + "\n"))
	})
	r.Delete("/cache", func(w http.ResponseWriter, r *http.Request) {
		host := r.URL.Query().Get("host")
		path := r.URL.Query().Get("path")
		if path == "" {
			s.Cache().EvictAll()
			log.Info().Msg("Cache cleared")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		n := s.Cache().EvictPath(host, path)
		log.Info().Str("host", host).Str("path", path).Int("entries", n).Msg("Cache evict")
		w.Write([]byte(strconv.Itoa(n) + "\n"))
	})
	log.Info().Str("addr", addr).Msg("Serving admin endpoints")
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Error().Err(err).Msg("Admin server stopped")
	}
}
