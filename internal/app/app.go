// Package app assembles the client: transport, user service, cache, queries
// and the two view models, wired so that editing from the list drives the form
// and finishing an edit in the form clears the list's marker.
package app

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/99minutos/userdesk/internal/core/queries"
	"github.com/99minutos/userdesk/internal/core/service"
	"github.com/99minutos/userdesk/internal/core/store"
	"github.com/99minutos/userdesk/internal/infrastructure/config"
	"github.com/99minutos/userdesk/internal/infrastructure/queue"
	"github.com/99minutos/userdesk/internal/infrastructure/rest"
	"github.com/99minutos/userdesk/internal/viewmodel"
	"github.com/99minutos/userdesk/pkg/logger"
)

type App struct {
	Users *queries.Users
	Form  *viewmodel.Form
	List  *viewmodel.List

	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

type Option func(*options)

type options struct {
	httpClient   *http.Client
	onFormChange func(viewmodel.FormState)
	onListChange func(viewmodel.ListView)
}

// WithHTTPClient replaces the client built from configuration.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithFormRenderer is called with every new form state.
func WithFormRenderer(fn func(viewmodel.FormState)) Option {
	return func(o *options) { o.onFormChange = fn }
}

// WithListRenderer is called with every new list view.
func WithListRenderer(fn func(viewmodel.ListView)) Option {
	return func(o *options) { o.onListChange = fn }
}

// New builds the object graph. Nothing is fetched until Start. Cancelling ctx
// or calling Close stops notification workers and aborts in-flight fetches.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) *App {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = rest.NewHTTPClient(cfg.API.Timeout)
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &App{ctx: ctx, cancel: cancel, log: log}

	transport := rest.NewTransport(cfg.API.BaseURL,
		rest.WithHTTPClient(o.httpClient),
		rest.WithLogger(logger.Named(log, "transport")),
	)
	svc := service.NewUserService(transport, logger.Named(log, "user_service"))

	dispatcher := queue.NewDispatcher(cfg.Notify.Workers, logger.Named(log, "notifier"))
	dispatcher.Start(ctx)
	st := store.New(ctx, dispatcher, logger.Named(log, "store"))

	a.Users = queries.NewUsers(st, svc, logger.Named(log, "queries"))

	formOpts := []viewmodel.FormOption{
		viewmodel.OnFinishEdit(func(string) { a.List.EditFinished() }),
	}
	if o.onFormChange != nil {
		formOpts = append(formOpts, viewmodel.OnFormChange(o.onFormChange))
	}
	a.Form = viewmodel.NewForm(a.Users, logger.Named(log, "form"), formOpts...)

	listOpts := []viewmodel.ListOption{
		viewmodel.OnEdit(a.editInForm),
	}
	if o.onListChange != nil {
		listOpts = append(listOpts, viewmodel.OnListChange(o.onListChange))
	}
	a.List = viewmodel.NewList(a.Users, logger.Named(log, "list"), listOpts...)

	return a
}

func (a *App) editInForm(id string) {
	if err := a.Form.Edit(a.ctx, id); err != nil {
		a.log.Warn().Err(err).Str("user_id", id).Msg("could not start editing")
	}
}

// Start subscribes the list view model, which triggers the first fetch.
func (a *App) Start() {
	a.List.Start()
	a.log.Info().Msg("userdesk client started")
}

// Close unsubscribes and stops background work.
func (a *App) Close() {
	a.List.Close()
	a.cancel()
}
