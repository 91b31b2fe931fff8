package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/rs/zerolog/log"

	"github.com/graphgate-io/graphgate/internal/config"
	"github.com/graphgate-io/graphgate/internal/exec"
	"github.com/graphgate-io/graphgate/internal/observability"
)

// DatabaseRoleHeader selects the PostgreSQL role a request executes as.
const DatabaseRoleHeader = "X-Database-Role"

// GraphQLHandler serves the HTTP GraphQL endpoint.
type GraphQLHandler struct {
	schemas *SchemaProvider
	cfg     *config.GraphQLConfig
	metrics *observability.Metrics
}

// GraphQLRequest is the POST body of a GraphQL HTTP request.
type GraphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// GraphQLResponse is the HTTP response body.
type GraphQLResponse struct {
	Data   interface{}    `json:"data,omitempty"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// GraphQLError is one entry of the errors array.
type GraphQLError struct {
	Message    string                 `json:"message"`
	Locations  []GraphQLErrorLocation `json:"locations,omitempty"`
	Path       []interface{}          `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// GraphQLErrorLocation points into the query source.
type GraphQLErrorLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// NewGraphQLHandler creates the HTTP handler.
func NewGraphQLHandler(schemas *SchemaProvider, cfg *config.GraphQLConfig, metrics *observability.Metrics) *GraphQLHandler {
	return &GraphQLHandler{schemas: schemas, cfg: cfg, metrics: metrics}
}

// HandleGraphQL handles POST /graphql requests.
func (h *GraphQLHandler) HandleGraphQL(c *fiber.Ctx) error {
	startTime := time.Now()
	ctx := c.UserContext()

	var req GraphQLRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(GraphQLResponse{
			Errors: []GraphQLError{{Message: "Invalid JSON in request body"}},
		})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(GraphQLResponse{
			Errors: []GraphQLError{{Message: "Query string is required"}},
		})
	}

	if h.cfg.MaxDepth > 0 {
		depth, err := calculateQueryDepth(req.Query)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(GraphQLResponse{
				Errors: []GraphQLError{{Message: "Invalid query syntax"}},
			})
		}
		if depth > h.cfg.MaxDepth {
			return c.Status(fiber.StatusBadRequest).JSON(GraphQLResponse{
				Errors: []GraphQLError{{
					Message: fmt.Sprintf("query depth %d exceeds maximum allowed depth of %d", depth, h.cfg.MaxDepth),
				}},
			})
		}
	}

	role := c.Get(DatabaseRoleHeader)
	schema, err := h.schemas.SchemaFor(ctx, role)
	if err != nil {
		log.Error().Err(err).Str("role", role).Msg("Failed to build GraphQL schema")
		return c.Status(fiber.StatusInternalServerError).JSON(GraphQLResponse{
			Errors: []GraphQLError{{Message: "Failed to initialize GraphQL schema"}},
		})
	}

	result := graphql.Do(graphql.Params{
		Schema:         *schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})

	duration := time.Since(startTime)
	if h.metrics != nil {
		h.metrics.RecordGraphQLRequest(req.OperationName, duration, len(result.Errors) > 0)
	}
	log.Debug().
		Str("operation", req.OperationName).
		Str("role", role).
		Int("errors", len(result.Errors)).
		Dur("duration", duration).
		Msg("GraphQL query executed")

	return c.JSON(GraphQLResponse{
		Data:   result.Data,
		Errors: convertErrors(result.Errors),
	})
}

// HandleIntrospection handles GET /graphql requests.
func (h *GraphQLHandler) HandleIntrospection(c *fiber.Ctx) error {
	if !h.cfg.Introspection {
		return c.Status(fiber.StatusForbidden).JSON(GraphQLResponse{
			Errors: []GraphQLError{{Message: "Introspection is disabled"}},
		})
	}

	ctx := c.UserContext()
	schema, err := h.schemas.SchemaFor(ctx, c.Get(DatabaseRoleHeader))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(GraphQLResponse{
			Errors: []GraphQLError{{Message: "Failed to initialize GraphQL schema"}},
		})
	}

	result := graphql.Do(graphql.Params{
		Schema:        *schema,
		RequestString: introspectionQuery,
		Context:       ctx,
	})
	return c.JSON(GraphQLResponse{
		Data:   result.Data,
		Errors: convertErrors(result.Errors),
	})
}

// convertErrors maps graphql-go errors to the wire format, attaching the
// classified error code and constraint name when present.
func convertErrors(errs []gqlerrors.FormattedError) []GraphQLError {
	if len(errs) == 0 {
		return nil
	}

	result := make([]GraphQLError, len(errs))
	for i, err := range errs {
		gqlErr := GraphQLError{
			Message:    err.Message,
			Path:       err.Path,
			Extensions: errorExtensions(err),
		}
		if len(err.Locations) > 0 {
			gqlErr.Locations = make([]GraphQLErrorLocation, len(err.Locations))
			for j, loc := range err.Locations {
				gqlErr.Locations[j] = GraphQLErrorLocation{Line: loc.Line, Column: loc.Column}
			}
		}
		result[i] = gqlErr
	}
	return result
}

func errorExtensions(err gqlerrors.FormattedError) map[string]interface{} {
	original := err.OriginalError()
	if original == nil {
		return nil
	}
	var classified *exec.Error
	if !errors.As(original, &classified) {
		return nil
	}
	ext := map[string]interface{}{"code": string(classified.Kind)}
	if classified.Constraint != "" {
		ext["constraint"] = classified.Constraint
	}
	return ext
}

// calculateQueryDepth returns the maximum selection depth of a query.
func calculateQueryDepth(query string) (int, error) {
	doc, err := parser.Parse(parser.ParseParams{Source: query})
	if err != nil {
		return 0, err
	}

	var maxDepth int
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			depth := calculateSelectionSetDepth(op.SelectionSet, 0)
			if depth > maxDepth {
				maxDepth = depth
			}
		}
	}
	return maxDepth, nil
}

func calculateSelectionSetDepth(selSet *ast.SelectionSet, currentDepth int) int {
	if selSet == nil || len(selSet.Selections) == 0 {
		return currentDepth
	}

	maxDepth := currentDepth + 1
	for _, sel := range selSet.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			depth := calculateSelectionSetDepth(s.SelectionSet, currentDepth+1)
			if depth > maxDepth {
				maxDepth = depth
			}
		case *ast.InlineFragment:
			depth := calculateSelectionSetDepth(s.SelectionSet, currentDepth+1)
			if depth > maxDepth {
				maxDepth = depth
			}
		case *ast.FragmentSpread:
			// Needs document context to resolve; count as one level.
			if currentDepth+1 > maxDepth {
				maxDepth = currentDepth + 1
			}
		}
	}
	return maxDepth
}

// Standard GraphQL introspection query.
const introspectionQuery = `
query IntrospectionQuery {
  __schema {
    queryType { name }
    mutationType { name }
    subscriptionType { name }
    types {
      ...FullType
    }
    directives {
      name
      description
      locations
      args {
        ...InputValue
      }
    }
  }
}

fragment FullType on __Type {
  kind
  name
  description
  fields(includeDeprecated: true) {
    name
    description
    args {
      ...InputValue
    }
    type {
      ...TypeRef
    }
    isDeprecated
    deprecationReason
  }
  inputFields {
    ...InputValue
  }
  interfaces {
    ...TypeRef
  }
  enumValues(includeDeprecated: true) {
    name
    description
    isDeprecated
    deprecationReason
  }
  possibleTypes {
    ...TypeRef
  }
}

fragment InputValue on __InputValue {
  name
  description
  type { ...TypeRef }
  defaultValue
}

fragment TypeRef on __Type {
  kind
  name
  ofType {
    kind
    name
    ofType {
      kind
      name
      ofType {
        kind
        name
        ofType {
          kind
          name
          ofType {
            kind
            name
            ofType {
              kind
              name
              ofType {
                kind
                name
              }
            }
          }
        }
      }
    }
  }
}
`
