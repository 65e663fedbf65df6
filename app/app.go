package peerchat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/cors"
	"github.com/putto11262002/peerchat/core"
	"github.com/putto11262002/peerchat/pkg/router"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// App is the client: one per process. Everything below the event loop is owned by
// it and only touched through loop tasks.
type App struct {
	config  *Config
	ctx     context.Context
	db      *core.SQLiteDB
	logger  *slog.Logger
	metrics *Metrics

	loop     *core.Loop
	client   *core.WSClient
	sender   frameSender
	frames   *core.FrameRouter
	commands *Commands

	rooms    *core.Rooms
	logStore core.LogStore
	profiles core.ProfileStore
	dialogs  *core.DialogQueue
	calls    *core.CallSession
	boot     *bootGate
	state    *clientState
	auth     *core.TokenAuth

	media core.MediaSource
	peers core.PeerFactory

	router *router.Router
	server *http.Server

	cleanupFuncs []func(context.Context)
}

type Option func(*App)

func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithMediaSource plugs in the microphone and camera. Without one every call
// aborts while acquiring media.
func WithMediaSource(m core.MediaSource) Option {
	return func(a *App) {
		a.media = m
	}
}

func WithPeerFactory(p core.PeerFactory) Option {
	return func(a *App) {
		a.peers = p
	}
}

// withSender replaces the backend connection for outbound frames.
func withSender(s frameSender) Option {
	return func(a *App) {
		a.sender = s
	}
}

// NewLogger returns the text logger used by every component. Source file names are
// trimmed to their base name.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))
}

func New(ctx context.Context, config *Config, opts ...Option) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%s", FormatValidationErrors(err))
	}
	app := &App{
		config: config,
		ctx:    ctx,
		media:  noMedia{},
		peers:  noPeers{},
		state:  newClientState(),
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		app.logger = NewLogger(os.Stdout, config.LogLevel())
	}

	sqliteOptions := &core.SQLiteDBOption{
		Mode:        "rwc",
		Cache:       "shared",
		JournalMode: "WAL",
	}
	db, err := core.NewSQLiteDB(config.SQLite.File, sqliteOptions)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app.db = db
	app.AddCleanupFunc(func(ctx context.Context) {
		app.db.Close()
	})
	if err := app.db.Migrate(); err != nil {
		app.db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	app.metrics = NewMetrics()
	app.logStore = core.NewSQLiteLogStore(app.db.DB)
	app.profiles = core.NewSQLiteProfileStore(app.db.DB)
	app.auth = core.NewTokenAuth(config.Auth.Secret)

	app.loop = core.NewLoop(app.logger.With("component", "loop"), 1024)
	app.rooms = core.NewRooms(
		core.WithRoomsLogger(app.logger.With("component", "rooms")),
		core.WithLogStore(app.logStore),
		core.WithFoldObserver(app.metrics.ObserveFold),
	)

	app.client = core.NewWSClient(core.WSClientConfig{
		URL:         config.Backend.URL,
		DialTimeout: config.Backend.ConnectTimeout,
		Reconnect:   config.ReconnectConfig(),
	}, core.WithClientLogger(app.logger.With("component", "backend")))
	app.client.OnFrame(app.onFrame)
	app.client.OnConnected(app.onConnected)
	app.client.OnDisconnected(app.onDisconnected)
	if app.sender == nil {
		app.sender = app.client
	}
	app.commands = NewCommands(app.sender, app.metrics, app.logger.With("component", "commands"))

	app.frames = core.NewFrameRouter(app.logger.With("component", "frames"))
	app.registerFrameHandlers()

	app.dialogs = core.NewDialogQueue(app.onDialogChange)
	app.calls = core.NewCallSession(app.loop, app.media, app.peers, app.commands, config.CallConfig(),
		core.WithCallLogger(app.logger.With("component", "call")),
		core.WithCallEvents(app.onCallEvent),
	)
	app.boot = newBootGate(app.loop, config.Backend.HistoryTimeout, app.logger.With("component", "boot"), app.onReady)

	app.router = app.routes()
	app.server = &http.Server{
		Addr:    net.JoinHostPort(config.API.Hostname, fmt.Sprint(config.API.Port)),
		Handler: app.router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.ctx
		},
	}
	if config.API.TLS.Crt != "" {
		app.server.TLSConfig = serverTLSConfig()
	}
	return app, nil
}

func (app *App) routes() *router.Router {
	r := router.New(router.WithLogger(app.logger.With("component", "api")))
	registerErrorMappers(r)

	r.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.API.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Router.Handle("/metrics", app.metrics.Handler())
	r.Get("/api/health", app.HealthHandler)

	authMiddleware := core.JWTMiddleware(app.auth)
	authHandler := NewAuthHandler(app.auth)
	profileHandler := NewProfileHandler(app.profiles, app.commands)

	r.Route("/api", func(r *router.Router) {
		r.Use(authMiddleware)

		r.Route("/auth", func(r *router.Router) {
			r.Get("/me", authHandler.MeHandler)
			r.Post("/session", authHandler.SessionHandler)
			r.Post("/signout", authHandler.SignoutHandler)
		})

		r.Get("/status", app.StatusHandler)
		r.Get("/me", profileHandler.MeHandler)
		r.Put("/me", profileHandler.SetProfileHandler)
		r.Put("/me/presence", profileHandler.SetPresenceHandler)
		r.Get("/profiles/{publicKey}", profileHandler.GetProfileHandler)

		r.Get("/focus", app.FocusHandler)
		r.Put("/focus", app.SetFocusHandler)
		r.Get("/files/{fileId}", app.FileHandler)

		r.Route("/rooms", func(r *router.Router) {
			r.Get("/", app.ListRoomsHandler)
			r.Route("/{roomKey}", func(r *router.Router) {
				r.Get("/", app.GetRoomHandler)
				r.Delete("/", app.DisbandRoomHandler)
				r.Get("/access", app.AccessHandler)
				r.Get("/messages", app.MessagesHandler)
				r.Post("/messages", app.SendMessageHandler)
				r.Post("/older", app.LoadOlderHandler)
				r.Post("/reactions", app.ReactHandler)
				r.Put("/name", app.SetRoomNameHandler)
				r.Put("/profile", app.SetRoomProfileHandler)
				r.Put("/admins", app.SetRoomAdminsHandler)
				r.Put("/owner", app.SetRoomOwnerHandler)
				r.Post("/channels", app.AddChannelHandler)
				r.Post("/bans", app.BanHandler)
				r.Delete("/bans/{publicKey}", app.UnbanHandler)
				r.Post("/channel-kicks", app.KickFromChannelHandler)
				r.Post("/pins", app.PinHandler)
				r.Delete("/pins/{messageId}", app.UnpinHandler)
				r.Post("/emoji", app.AddCustomEmojiHandler)
				r.Delete("/emoji/{name}", app.RemoveCustomEmojiHandler)
				r.Post("/friends/{publicKey}/accept", app.FriendAcceptHandler)
			})
		})

		r.Route("/calls", func(r *router.Router) {
			r.Get("/", app.CallsHandler)
			r.Post("/", app.StartCallHandler)
			r.Delete("/current", app.EndCallHandler)
			r.Post("/{callId}/join", app.JoinCallHandler)
		})

		r.Get("/dialogs", app.DialogsHandler)
		r.Post("/dialogs/{dialogId}", app.ResolveDialogHandler)
	})
	return r
}

// exposeAs maps an error to code. Messages of insensitive core errors are shown as
// they are, anything else is reported with the message of target.
func exposeAs(code int, target error) router.ErrorMapper {
	return func(err error) router.JsonError {
		var e *core.Error
		if errors.As(err, &e) && !e.Sensitive {
			return router.NewJsonError(code, e.Error())
		}
		return router.NewJsonError(code, target.Error())
	}
}

func registerErrorMappers(r *router.Router) {
	for code, targets := range map[int][]error{
		http.StatusBadRequest:          {ErrInvalidCommand, core.ErrInvalidScope, core.ErrInvalidSignal},
		http.StatusForbidden:           {ErrCallBlocked, ErrComposeBlocked, ErrNotAdmin, ErrNotOwner},
		http.StatusNotFound:            {core.ErrUnknownRoom, ErrUnknownMessage, ErrFileNotFound},
		http.StatusConflict:            {core.ErrCallActive, core.ErrNoCall, core.ErrDialogNotActive, ErrNoOlderHistory},
		http.StatusServiceUnavailable:  {core.ErrNotConnected, core.ErrSendBufferFull, core.ErrLoopStopped},
		http.StatusUnprocessableEntity: {core.ErrDialogClosed},
	} {
		for _, target := range targets {
			r.RegisterErrorMapper(target, exposeAs(code, target))
		}
	}
}

// IssueToken signs a local API token for subject.
func (app *App) IssueToken(subject string) (*core.Session, error) {
	return app.auth.Issue(subject, app.config.Auth.TokenTTL)
}

// restore replays the cache before anything else touches the rooms.
func (app *App) restore(ctx context.Context) error {
	rooms, err := app.rooms.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore cache: %w", err)
	}
	for _, r := range rooms {
		app.state.records[r.Key] = r
	}
	if local, err := app.profiles.LocalProfile(ctx); err == nil && local != nil {
		app.state.identity = local
		app.calls.SetLocalKey(local.PublicKey)
	}
	return nil
}

// Run serves until the app context is cancelled or a component fails.
func (app *App) Run() error {
	if err := app.restore(app.ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(app.ctx)
	app.ctx = ctx

	g.Go(func() error {
		return app.loop.Run(ctx)
	})
	g.Go(func() error {
		return app.client.Run(ctx)
	})
	g.Go(func() error {
		app.logger.Info(fmt.Sprintf("api listening on %s", app.server.Addr), "backend", app.config.Backend.URL)
		var err error
		if app.config.API.TLS.Crt != "" {
			err = app.server.ListenAndServeTLS(app.config.API.TLS.Crt, app.config.API.TLS.Key)
		} else {
			err = app.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.server.Shutdown(closeCtx)
	})

	err := g.Wait()
	app.Close()
	return err
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}

// Close runs the cleanup functions, giving up after the shutdown timeout.
func (app *App) Close() {
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, f := range app.cleanupFuncs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(closeCtx)
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		app.logger.Info("app shutdown gracefully")
	case <-closeCtx.Done():
		app.logger.Warn("app shutdown timed out")
	}
	app.cleanupFuncs = nil
}
