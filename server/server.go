package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/janelia-flyem/pixstore/builder"
	"github.com/janelia-flyem/pixstore/format"
	"github.com/janelia-flyem/pixstore/message"
	"github.com/janelia-flyem/pixstore/metadata"
	"github.com/janelia-flyem/pixstore/pix"
	"github.com/janelia-flyem/pixstore/storage"
)

// Server holds the storage service and everything wired to it.
type Server struct {
	config   *Config
	formats  *format.Formats
	bus      *message.Bus
	builder  *builder.Builder
	kafka    *message.KafkaNotifier
	service  *storage.Service
	manifest *metadata.Manifest
	auth     *authorizer
	handler  http.Handler
	started  time.Time
}

// New wires formats, event bus, builder, Kafka notifier and storage service
// from the configuration and builds the HTTP handler.
func New(c *Config) (*Server, error) {
	if c == nil {
		c = NewConfig()
	}
	s := &Server{config: c, bus: message.NewBus(), started: time.Now()}

	var err error
	if s.formats, err = format.New(c.Pyramid, c.Images); err != nil {
		return nil, err
	}
	s.builder = builder.New(c.Builder, s.formats)
	if len(c.Kafka.Servers) != 0 {
		if s.kafka, err = message.NewKafkaNotifier(c.Kafka); err != nil {
			return nil, err
		}
	}
	s.subscribe(c.Builder.Enabled)
	if s.service, err = storage.NewService(c.Storage, s.formats, storage.WithPublisher(s.bus)); err != nil {
		s.Close()
		return nil, err
	}
	if c.Server.Manifest != "" {
		s.manifest, err = metadata.LoadManifest(c.Server.Manifest)
	} else {
		pix.Warningf("No manifest configured; no pixels sets will be served.\n")
		s.manifest, err = metadata.NewManifest()
	}
	if err != nil {
		s.Close()
		return nil, err
	}
	if s.auth, err = newAuthorizer(c.Auth); err != nil {
		s.Close()
		return nil, err
	}

	s.handler = s.routes()
	if len(c.Server.CorsDomains) != 0 {
		s.handler = cors.New(cors.Options{
			AllowedOrigins: c.Server.CorsDomains,
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}).Handler(s.handler)
	}
	return s, nil
}

// subscribe registers the Kafka notifier ahead of the builder, since the bus
// stops at the first subscriber error and failed builds should still be recorded.
func (s *Server) subscribe(builderEnabled bool) {
	if s.kafka != nil {
		s.bus.Subscribe(message.TopicMissingPyramid, s.kafka)
	}
	if builderEnabled {
		s.builder.Subscribe(s.bus)
	}
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Service() *storage.Service { return s.service }

func (s *Server) Builder() *builder.Builder { return s.builder }

func (s *Server) Manifest() *metadata.Manifest { return s.manifest }

// Serve listens on the configured address until ctx is done, then shuts
// the HTTP server down.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.config.Server.HTTPAddress,
		Handler:     s.handler,
		ReadTimeout: time.Duration(s.config.Server.ReadTimeout) * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		pix.Infof("Web server listening at %s (%s) ...\n", srv.Addr, s.config.Host())
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	pix.Infof("Web server at %s shut down.\n", srv.Addr)
	return nil
}

// Close releases the Kafka producer, if any.
func (s *Server) Close() error {
	if s.kafka != nil {
		return s.kafka.Close()
	}
	return nil
}
