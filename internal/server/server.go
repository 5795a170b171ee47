package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"sprintsync/internal/domain"
	"sprintsync/internal/engine"
	"sprintsync/internal/plugins"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Version  string
	Auth     AuthConfig
	Logger   zerolog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"item 42 not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the single error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the sprintsync API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, e := range errs {
				msgs = append(msgs, e.Error())
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(accessLog(cfg.Logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine))
	hcfg := huma.DefaultConfig("Sprintsync API", version)
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group, version)
	registerAccounts(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerItems(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func accessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var (
		nf   domain.NotFoundError
		cf   domain.ConflictError
		ve   domain.ValidationError
		hard *plugins.HardError
	)
	switch {
	case errors.As(err, &hard):
		return newAPIError(http.StatusUnprocessableEntity, "plugin_rejected", err.Error(), map[string]any{"plugin": hard.Plugin, "hook": hard.Hook})
	case errors.As(err, &nf):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), map[string]any{"kind": nf.Kind})
	case errors.As(err, &cf):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), map[string]any{"kind": cf.Kind})
	case errors.As(err, &ve):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ve.Field})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusServiceUnavailable, "", "request cancelled", nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

var commonErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{{"bearerAuth": {}}, {"apiKeyAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <title>Sprintsync API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => { SwaggerUIBundle({ url: '%s', dom_id: '#swagger-ui' }); };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API, version string) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok", "version": version}}, nil
	})
}

type accountBody struct {
	Body domain.Account `json:"body"`
}

func registerAccounts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "ensure-account",
		Method:      http.MethodPut,
		Path:        "/accounts",
		Summary:     "Create or refresh an account",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Body EnsureAccountRequest `json:"body"`
	}) (*accountBody, error) {
		a, err := e.EnsureAccount(ctx, input.Body.ID, input.Body.Name, input.Body.Email)
		if err != nil {
			return nil, handleError(err)
		}
		return &accountBody{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-accounts",
		Method:      http.MethodGet,
		Path:        "/accounts",
		Summary:     "List accounts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Account `json:"body"`
	}, error) {
		as, err := e.ListAccounts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Account `json:"body"`
		}{Body: as}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/accounts/{id}/keys",
		Summary:       "Issue an API key",
		Description:   "The plaintext key is returned once.",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Name string `json:"name,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body CreatedAPIKey `json:"body"`
	}, error) {
		if actor := actorFromContext(ctx); actor != input.ID && actor != engine.DefaultActor {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "keys can only be issued for the acting account", nil)
		}
		k, plain, err := e.CreateAPIKey(ctx, input.ID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreatedAPIKey `json:"body"`
		}{Body: CreatedAPIKey{APIKey: k, Key: plain}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/accounts/{id}/keys",
		Summary:     "List an account's API keys",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		ks, err := e.ListAPIKeys(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: ks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/keys/{key_id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := e.RevokeAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Acting account",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		p, _ := principalFromContext(ctx)
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"actor_id": actorFromContext(ctx), "source": p.Source}}, nil
	})
}

type projectBody struct {
	Body domain.Project `json:"body"`
}

type projectRef struct {
	Ref string `path:"project" doc:"Project slug or id"`
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*projectBody, error) {
		p, err := e.CreateProject(ctx, input.Body.project(), actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &projectBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		ps, err := e.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: ps}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectRef) (*projectBody, error) {
		p, err := e.GetProject(ctx, input.Ref)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project}",
		Summary:     "Update project",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Ref  string               `path:"project"`
		Body UpdateProjectRequest `json:"body"`
	}) (*projectBody, error) {
		p, err := e.UpdateProject(ctx, input.Ref, input.Body.patch(), actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &projectBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project}",
		Summary:     "Delete an empty project",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *projectRef) (*projectBody, error) {
		p, err := e.DeleteProject(ctx, input.Ref, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &projectBody{Body: p}, nil
	})
}

type itemBody struct {
	Body domain.WorkItem `json:"body"`
}

type itemID struct {
	ID string `path:"id"`
}

type itemSlug struct {
	Slug string `path:"slug"`
}

type listQuery struct {
	Project  string `query:"project" doc:"Project slug or id"`
	Type     string `query:"type" enum:"backlog,task,draft,self"`
	Status   string `query:"status" enum:"new,started,checked_in,completed,cancelled"`
	Sprint   string `query:"sprint" doc:"Sprint number"`
	Assignee string `query:"assignee"`
	Limit    int    `query:"limit" minimum:"0" maximum:"500"`
	Offset   int    `query:"offset" minimum:"0"`
}

func (q listQuery) filters() (domain.ItemFilters, error) {
	f := domain.ItemFilters{
		ProjectSlug: q.Project,
		Type:        domain.ItemType(q.Type),
		Status:      domain.Status(q.Status),
		AssigneeID:  q.Assignee,
		Limit:       q.Limit,
		Offset:      q.Offset,
	}
	if q.Sprint != "" {
		n, err := strconv.Atoi(q.Sprint)
		if err != nil {
			return f, domain.ValidationError{Field: "sprint", Reason: "must be a number"}
		}
		f.SprintNumber = &n
	}
	return f, nil
}

func listItems(ctx context.Context, e engine.Engine, f domain.ItemFilters) (*struct {
	Body ItemList `json:"body"`
}, error) {
	items, err := e.ListItems(ctx, f)
	if err != nil {
		return nil, handleError(err)
	}
	count := f
	count.Limit, count.Offset = 0, 0
	total, err := e.CountItems(ctx, count)
	if err != nil {
		return nil, handleError(err)
	}
	if items == nil {
		items = []domain.WorkItem{}
	}
	return &struct {
		Body ItemList `json:"body"`
	}{Body: ItemList{Items: items, Total: total}}, nil
}

func registerItems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-item",
		Method:        http.MethodPost,
		Path:          "/items",
		Summary:       "Create item",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateItemRequest `json:"body"`
	}) (*itemBody, error) {
		w, err := e.CreateItem(ctx, input.Body.item(), actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &itemBody{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/items",
		Summary:     "List items",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *listQuery) (*struct {
		Body ItemList `json:"body"`
	}, error) {
		f, err := input.filters()
		if err != nil {
			return nil, handleError(err)
		}
		return listItems(ctx, e, f)
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-type",
		Method:      http.MethodGet,
		Path:        "/listings/{project_type}",
		Summary:     "List one project's items of one type",
		Description: "The key is {project}_{type}, e.g. core_backlog.",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Key    string `path:"project_type"`
		Limit  int    `query:"limit" minimum:"0" maximum:"500"`
		Offset int    `query:"offset" minimum:"0"`
	}) (*struct {
		Body ItemList `json:"body"`
	}, error) {
		project, typ, err := engine.ParseProjectType(input.Key)
		if err != nil {
			return nil, handleError(err)
		}
		return listItems(ctx, e, domain.ItemFilters{ProjectSlug: project, Type: typ, Limit: input.Limit, Offset: input.Offset})
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/items/{id}",
		Summary:     "Get item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *itemID) (*itemBody, error) {
		w, err := e.GetItem(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemBody{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-item-by-slug",
		Method:      http.MethodGet,
		Path:        "/slugs/{slug}",
		Summary:     "Get item by slug",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *itemSlug) (*itemBody, error) {
		w, err := e.GetItemBySlug(ctx, input.Slug)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemBody{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-item",
		Method:      http.MethodPatch,
		Path:        "/items/{id}",
		Summary:     "Update item",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateItemRequest `json:"body"`
	}) (*itemBody, error) {
		w, err := e.UpdateItem(ctx, input.ID, input.Body.patch(), actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &itemBody{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-item",
		Method:      http.MethodDelete,
		Path:        "/items/{id}",
		Summary:     "Delete item",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *itemID) (*itemBody, error) {
		w, err := e.DeleteItem(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &itemBody{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "item-audits",
		Method:      http.MethodGet,
		Path:        "/items/{id}/audits",
		Summary:     "Field change history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *itemID) (*struct {
		Body []domain.Audit `json:"body"`
	}, error) {
		as, err := e.ItemAudits(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Audit `json:"body"`
		}{Body: as}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "step-item",
		Method:      http.MethodPost,
		Path:        "/slugs/{slug}/step",
		Summary:     "Step one axis, holding at the ends",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Slug string      `path:"slug"`
		Body StepRequest `json:"body"`
	}) (*itemBody, error) {
		axis, err := domain.ParseAxisName(input.Body.Axis)
		if err != nil {
			return nil, handleError(err)
		}
		delta := input.Body.Delta
		if delta == 0 {
			delta = 1
		}
		w, err := e.StepAxis(ctx, input.Slug, axis, delta, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &itemBody{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "circle-item",
		Method:      http.MethodPost,
		Path:        "/slugs/{slug}/circle",
		Summary:     "Advance one axis, wrapping past the end",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Slug string        `path:"slug"`
		Body CircleRequest `json:"body"`
	}) (*itemBody, error) {
		axis, err := domain.ParseAxisName(input.Body.Axis)
		if err != nil {
			return nil, handleError(err)
		}
		w, err := e.CircleAxis(ctx, input.Slug, axis, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &itemBody{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "switch-item",
		Method:      http.MethodPost,
		Path:        "/slugs/{slug}/switch",
		Summary:     "Move an item to another type",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Slug string        `path:"slug"`
		Body SwitchRequest `json:"body"`
	}) (*itemBody, error) {
		w, err := e.SwitchType(ctx, input.Slug, domain.ItemType(input.Body.Type), actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &itemBody{Body: w}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent events, newest first",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" minimum:"0" maximum:"500"`
		Project    string `query:"project"`
		EntityKind string `query:"entity_kind" enum:"item,project"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		limit := input.Limit
		if limit == 0 {
			limit = 50
		}
		evs, err := e.RecentEvents(ctx, limit, input.Project, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: evs}, nil
	})
}
